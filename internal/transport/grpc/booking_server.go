package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"harmonie/backend/internal/availability"
	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/loyalty"
	"harmonie/backend/internal/payment"
	"harmonie/backend/internal/service/booking"
	"harmonie/backend/internal/service/schedule"
	"harmonie/backend/internal/store"
)

type BookingServer struct {
	bookings bookingService
	schedule scheduleService
	payments payment.Gateway
	currency string
	log      *slog.Logger
}

type bookingService interface {
	WindowsForDate(ctx context.Context, date string) ([]availability.Window, error)
	WindowsForDateAndDuration(ctx context.Context, date string, duration int) ([]availability.Window, error)
	MonthAvailability(ctx context.Context, year, month int) ([]booking.DayAvailability, error)
	Commit(ctx context.Context, in booking.CommitInput) (domain.Booking, error)
	Cancel(ctx context.Context, id string) (domain.Booking, error)
	Get(ctx context.Context, id string) (domain.Booking, error)
	ClientBookings(ctx context.Context, email string, filter booking.Filter) (booking.ClientView, error)
	AdminBookings(ctx context.Context, filter booking.Filter) ([]domain.Booking, error)
	Stats(ctx context.Context) (booking.Stats, error)
	Upcoming(ctx context.Context, limit int) ([]domain.Booking, error)
	Reset(ctx context.Context, confirmation string) error
	Loyalty(ctx context.Context, email string) (loyalty.Summary, error)
	AttachPayment(ctx context.Context, id, reference string) (domain.Booking, error)
}

type scheduleService interface {
	List(ctx context.Context) ([]domain.SlotTemplate, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (domain.SlotTemplate, error)
	Toggle(ctx context.Context, id string) (domain.SlotTemplate, error)
	SetDuration(ctx context.Context, id string, minutes int) (domain.SlotTemplate, error)
	SetWeekdayEnabled(ctx context.Context, weekday string, enabled bool) (int, error)
	SetAllEnabled(ctx context.Context, enabled bool) (int, error)
}

// NewBookingServer wires the RPC surface. A nil gateway makes
// CreatePaymentIntent return Unimplemented.
func NewBookingServer(bookings bookingService, sched scheduleService, payments payment.Gateway, currency string, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		bookings: bookings,
		schedule: sched,
		payments: payments,
		currency: currency,
		log:      log.With(slog.String("component", "grpc.booking")),
	}
}

func (s *BookingServer) ListWindows(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListWindows"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date := stringField(req, "date")
	duration, hasDuration, err := intField(req, "duration")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var windows []availability.Window
	if hasDuration {
		windows, err = s.bookings.WindowsForDateAndDuration(ctx, date, duration)
	} else {
		windows, err = s.bookings.WindowsForDate(ctx, date)
	}
	if err != nil {
		return nil, statusError(log, err, "date")
	}

	log.Debug("windows listed", slog.String("date", date), slog.Int("count", len(windows)))
	list, err := toList(windows)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	return structpb.NewStruct(map[string]any{"date": date, "slots": list})
}

func (s *BookingServer) ListMonthAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListMonthAvailability"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	year, hasYear, err := intField(req, "year")
	if err != nil || !hasYear {
		return nil, status.Error(codes.InvalidArgument, "year is required")
	}
	month, hasMonth, err := intField(req, "month")
	if err != nil || !hasMonth {
		return nil, status.Error(codes.InvalidArgument, "month is required")
	}

	days, err := s.bookings.MonthAvailability(ctx, year, month)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	list, err := toList(days)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	return structpb.NewStruct(map[string]any{"days": list})
}

func (s *BookingServer) CreateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateBooking"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	duration, _, err := intField(req, "duration")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	key := idempotencyKey(ctx)
	if key == "" {
		key = stringField(req, "idempotencyKey")
	}

	b, err := s.bookings.Commit(ctx, booking.CommitInput{
		GivenName:       stringField(req, "prenom"),
		FamilyName:      stringField(req, "nom"),
		Email:           stringField(req, "email"),
		Phone:           stringField(req, "telephone"),
		Service:         domain.ServiceCode(stringField(req, "service")),
		Date:            stringField(req, "date"),
		Time:            stringField(req, "time"),
		DurationMinutes: duration,
		Message:         stringField(req, "message"),
		IdempotencyKey:  key,
	})
	if err != nil {
		return nil, statusError(log.With(slog.String("date", stringField(req, "date")), slog.String("time", stringField(req, "time"))), err, "")
	}

	log.Info("booking created", slog.String("booking_id", b.ID), slog.String("date", b.Date), slog.String("time", b.StartTime.String()))
	return bookingResponse(log, b)
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *BookingServer) CancelBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CancelBooking"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id := stringField(req, "bookingId")
	b, err := s.bookings.Cancel(ctx, id)
	if err != nil {
		return nil, statusError(log.With(slog.String("booking_id", id)), err, "booking")
	}
	log.Info("booking cancelled", slog.String("booking_id", b.ID))
	return bookingResponse(log, b)
}

func (s *BookingServer) GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetBooking"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id := stringField(req, "bookingId")
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, statusError(log.With(slog.String("booking_id", id)), err, "booking")
	}
	return bookingResponse(log, b)
}

func (s *BookingServer) ListClientBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListClientBookings"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	filter, err := booking.ParseFilter(stringField(req, "filter"))
	if err != nil {
		return nil, statusError(log, err, "")
	}
	view, err := s.bookings.ClientBookings(ctx, stringField(req, "email"), filter)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	log.Debug("client bookings listed", slog.Int("count", len(view.Bookings)), slog.String("filter", string(filter)))
	return encode(log, view)
}

func (s *BookingServer) ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListBookings"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	filter, err := booking.ParseFilter(stringField(req, "filter"))
	if err != nil {
		return nil, statusError(log, err, "")
	}
	bookings, err := s.bookings.AdminBookings(ctx, filter)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	list, err := toList(bookings)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	return structpb.NewStruct(map[string]any{"bookings": list})
}

func (s *BookingServer) GetStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetStats"))
	stats, err := s.bookings.Stats(ctx)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	limit, _, err := intField(req, "upcomingLimit")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	upcoming, err := s.bookings.Upcoming(ctx, limit)
	if err != nil {
		return nil, statusError(log, err, "")
	}

	out, err := toStruct(stats)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	list, err := toList(upcoming)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	values, err := structpb.NewList(list)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	out.Fields["upcoming"] = structpb.NewListValue(values)
	return out, nil
}

func (s *BookingServer) ListSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListSlots"))
	slots, err := s.schedule.List(ctx)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	list, err := toList(slots)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	return structpb.NewStruct(map[string]any{"slots": list})
}

// SetSlotEnabled toggles the slot when "enabled" is absent.
func (s *BookingServer) SetSlotEnabled(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SetSlotEnabled"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id := stringField(req, "slotId")
	enabled, hasEnabled, err := boolField(req, "enabled")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var slot domain.SlotTemplate
	if hasEnabled {
		slot, err = s.schedule.SetEnabled(ctx, id, enabled)
	} else {
		slot, err = s.schedule.Toggle(ctx, id)
	}
	if err != nil {
		return nil, statusError(log.With(slog.String("slot_id", id)), err, "slot")
	}
	return slotResponse(log, slot)
}

func (s *BookingServer) SetSlotDuration(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SetSlotDuration"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id := stringField(req, "slotId")
	minutes, ok, err := intField(req, "duration")
	if err != nil || !ok {
		return nil, status.Error(codes.InvalidArgument, "duration is required")
	}
	slot, err := s.schedule.SetDuration(ctx, id, minutes)
	if err != nil {
		return nil, statusError(log.With(slog.String("slot_id", id)), err, "slot")
	}
	return slotResponse(log, slot)
}

func (s *BookingServer) SetWeekdayEnabled(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SetWeekdayEnabled"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	enabled, ok, err := boolField(req, "enabled")
	if err != nil || !ok {
		return nil, status.Error(codes.InvalidArgument, "enabled is required")
	}
	changed, err := s.schedule.SetWeekdayEnabled(ctx, stringField(req, "day"), enabled)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	return structpb.NewStruct(map[string]any{"changed": changed})
}

func (s *BookingServer) SetAllSlotsEnabled(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SetAllSlotsEnabled"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	enabled, ok, err := boolField(req, "enabled")
	if err != nil || !ok {
		return nil, status.Error(codes.InvalidArgument, "enabled is required")
	}
	changed, err := s.schedule.SetAllEnabled(ctx, enabled)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	return structpb.NewStruct(map[string]any{"changed": changed})
}

func (s *BookingServer) ResetData(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ResetData"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if err := s.bookings.Reset(ctx, stringField(req, "confirmation")); err != nil {
		return nil, statusError(log, err, "")
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

func (s *BookingServer) GetLoyalty(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetLoyalty"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	summary, err := s.bookings.Loyalty(ctx, stringField(req, "email"))
	if err != nil {
		return nil, statusError(log, err, "")
	}
	return encode(log, summary)
}

// QuotePrice prices a service for a customer email, or for an explicit tier
// when no email is given.
func (s *BookingServer) QuotePrice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "QuotePrice"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	tier, err := s.tierFor(ctx, stringField(req, "email"), stringField(req, "tier"))
	if err != nil {
		return nil, statusError(log, err, "")
	}
	q, err := payment.NewQuote(domain.ServiceCode(stringField(req, "service")), tier, s.currency)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	return encode(log, q)
}

func (s *BookingServer) tierFor(ctx context.Context, email, tier string) (loyalty.Tier, error) {
	if email != "" {
		summary, err := s.bookings.Loyalty(ctx, email)
		if err != nil {
			return "", err
		}
		return summary.Tier, nil
	}
	t, err := loyalty.ParseTier(tier)
	if err != nil {
		return "", status.Error(codes.InvalidArgument, err.Error())
	}
	return t, nil
}

func (s *BookingServer) CreatePaymentIntent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreatePaymentIntent"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if s.payments == nil {
		return nil, statusError(log, payment.ErrPaymentsDisabled, "")
	}
	id := stringField(req, "bookingId")
	log = log.With(slog.String("booking_id", id))

	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, statusError(log, err, "booking")
	}
	if !b.IsConfirmed() {
		return nil, status.Error(codes.FailedPrecondition, "booking is cancelled")
	}
	summary, err := s.bookings.Loyalty(ctx, b.Email)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	q, err := payment.NewQuote(b.Service, summary.Tier, s.currency)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	intent, err := s.payments.CreateIntent(ctx, q, b)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	if _, err := s.bookings.AttachPayment(ctx, b.ID, intent.ID); err != nil {
		return nil, statusError(log, err, "booking")
	}

	log.Info("payment intent created", slog.String("intent_id", intent.ID), slog.Int64("amount_cents", intent.AmountCents))
	return encode(log, struct {
		Intent payment.Intent `json:"intent"`
		Quote  payment.Quote  `json:"quote"`
	}{Intent: intent, Quote: q})
}

func (s *BookingServer) ListServices(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListServices"))
	list, err := toList(domain.Services())
	if err != nil {
		return nil, statusError(log, err, "")
	}
	return structpb.NewStruct(map[string]any{"services": list})
}

func bookingResponse(log *slog.Logger, b domain.Booking) (*structpb.Struct, error) {
	return encode(log, struct {
		Booking domain.Booking `json:"booking"`
	}{Booking: b})
}

func slotResponse(log *slog.Logger, slot domain.SlotTemplate) (*structpb.Struct, error) {
	log.Info("slot updated", slog.String("slot_id", slot.ID), slog.Bool("enabled", slot.Enabled), slog.Int("duration", slot.DurationMinutes))
	return encode(log, struct {
		Slot domain.SlotTemplate `json:"slot"`
	}{Slot: slot})
}

func encode(log *slog.Logger, v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, statusError(log, err, "")
	}
	return out, nil
}

// statusError maps service and store errors to gRPC codes. what names the
// missing entity in NotFound messages.
func statusError(log *slog.Logger, err error, what string) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var bookingErr *booking.ValidationError
	var scheduleErr *schedule.ValidationError
	var serviceErr *payment.UnknownServiceError
	switch {
	case errors.As(err, &bookingErr), errors.As(err, &scheduleErr), errors.As(err, &serviceErr):
		log.Warn("invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		if what == "" {
			what = "resource"
		}
		log.Info(what+" not found")
		return status.Error(codes.NotFound, what+" not found")
	case errors.Is(err, booking.ErrSlotUnavailable):
		log.Info("slot unavailable")
		return status.Error(codes.FailedPrecondition, "That time is not available. Pick a different slot.")
	case errors.Is(err, store.ErrConflict):
		log.Info("booking conflict")
		return status.Error(codes.FailedPrecondition, "That time was just booked by someone else. Pick a different slot.")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("booking idempotency conflict")
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different booking. Try again.")
	case errors.Is(err, payment.ErrPaymentsDisabled):
		return status.Error(codes.Unimplemented, "online payment is not available")
	case errors.Is(err, store.ErrUnavailable):
		log.Error("store unavailable", slog.Any("err", err))
		return status.Error(codes.Unavailable, "storage is unavailable, try again shortly")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("request timed out", slog.Any("err", err))
		return status.Error(codes.DeadlineExceeded, "request timed out")
	default:
		log.Error("request failed", slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}
}
