package grpc

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// DefaultRequestTimeoutInterceptor bounds requests that arrive without a
// client deadline.
func DefaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

// RateLimitInterceptor rejects calls beyond perSecond (with burst) across
// the whole server. A non-positive rate disables it.
func RateLimitInterceptor(perSecond float64, burst int, log *slog.Logger) grpc.UnaryServerInterceptor {
	if perSecond <= 0 {
		return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !limiter.Allow() {
			log.Warn("rate limited", slog.String("method", info.FullMethod))
			return nil, status.Error(codes.ResourceExhausted, "too many requests, slow down")
		}
		return handler(ctx, req)
	}
}

// AdminMethods are the RPCs that read every customer's data or change the
// schedule.
var AdminMethods = []string{
	FullMethod("ListBookings"),
	FullMethod("GetStats"),
	FullMethod("SetSlotEnabled"),
	FullMethod("SetSlotDuration"),
	FullMethod("SetWeekdayEnabled"),
	FullMethod("SetAllSlotsEnabled"),
	FullMethod("ResetData"),
}

// AdminTokenInterceptor requires the shared admin token on the given methods,
// sent as "x-admin-token" or "authorization: Bearer <token>". An empty token
// leaves them open.
func AdminTokenInterceptor(token string, methods []string, log *slog.Logger) grpc.UnaryServerInterceptor {
	if token == "" {
		return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}
	if log == nil {
		log = slog.Default()
	}
	guarded := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		guarded[m] = struct{}{}
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := guarded[info.FullMethod]; !ok {
			return handler(ctx, req)
		}
		got := adminToken(ctx)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			log.Warn("admin call rejected", slog.String("method", info.FullMethod), slog.Bool("token_present", got != ""))
			return nil, status.Error(codes.Unauthenticated, "admin token required")
		}
		return handler(ctx, req)
	}
}

func adminToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get("x-admin-token"); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	for _, v := range md.Get("authorization") {
		if token, ok := strings.CutPrefix(strings.TrimSpace(v), "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}
