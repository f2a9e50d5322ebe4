package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct values whose field names match the
// JSON names of the domain types.
const ServiceName = "harmonie.booking.v1.BookingService"

type BookingServiceServer interface {
	ListWindows(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListMonthAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CancelBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListClientBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetSlotEnabled(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetSlotDuration(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetWeekdayEnabled(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetAllSlotsEnabled(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResetData(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetLoyalty(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	QuotePrice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreatePaymentIntent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListServices(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(srv BookingServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListWindows", Handler: unaryHandler("ListWindows", BookingServiceServer.ListWindows)},
		{MethodName: "ListMonthAvailability", Handler: unaryHandler("ListMonthAvailability", BookingServiceServer.ListMonthAvailability)},
		{MethodName: "CreateBooking", Handler: unaryHandler("CreateBooking", BookingServiceServer.CreateBooking)},
		{MethodName: "CancelBooking", Handler: unaryHandler("CancelBooking", BookingServiceServer.CancelBooking)},
		{MethodName: "GetBooking", Handler: unaryHandler("GetBooking", BookingServiceServer.GetBooking)},
		{MethodName: "ListClientBookings", Handler: unaryHandler("ListClientBookings", BookingServiceServer.ListClientBookings)},
		{MethodName: "ListBookings", Handler: unaryHandler("ListBookings", BookingServiceServer.ListBookings)},
		{MethodName: "GetStats", Handler: unaryHandler("GetStats", BookingServiceServer.GetStats)},
		{MethodName: "ListSlots", Handler: unaryHandler("ListSlots", BookingServiceServer.ListSlots)},
		{MethodName: "SetSlotEnabled", Handler: unaryHandler("SetSlotEnabled", BookingServiceServer.SetSlotEnabled)},
		{MethodName: "SetSlotDuration", Handler: unaryHandler("SetSlotDuration", BookingServiceServer.SetSlotDuration)},
		{MethodName: "SetWeekdayEnabled", Handler: unaryHandler("SetWeekdayEnabled", BookingServiceServer.SetWeekdayEnabled)},
		{MethodName: "SetAllSlotsEnabled", Handler: unaryHandler("SetAllSlotsEnabled", BookingServiceServer.SetAllSlotsEnabled)},
		{MethodName: "ResetData", Handler: unaryHandler("ResetData", BookingServiceServer.ResetData)},
		{MethodName: "GetLoyalty", Handler: unaryHandler("GetLoyalty", BookingServiceServer.GetLoyalty)},
		{MethodName: "QuotePrice", Handler: unaryHandler("QuotePrice", BookingServiceServer.QuotePrice)},
		{MethodName: "CreatePaymentIntent", Handler: unaryHandler("CreatePaymentIntent", BookingServiceServer.CreatePaymentIntent)},
		{MethodName: "ListServices", Handler: unaryHandler("ListServices", BookingServiceServer.ListServices)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "harmonie/booking/v1/booking.proto",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls BookingService methods by name.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
