package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"harmonie/backend/internal/availability"
	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/store"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[\d\s+\-()]{10,}$`)
)

const (
	maxNameLength     = 100
	maxMessageLength  = 2000
	maxIdempotencyKey = 256
)

type CommitInput struct {
	GivenName       string
	FamilyName      string
	Email           string
	Phone           string
	Service         domain.ServiceCode
	Date            string
	Time            string
	DurationMinutes int
	Message         string
	IdempotencyKey  string
}

// Commit validates the request and appends it as a confirmed booking. The
// overlap check runs again inside the booking transaction, so two commits for
// the same interval cannot both succeed on a transactional store. A keyed
// retry is answered from the stored booking before the template is consulted.
func (s *Service) Commit(ctx context.Context, in CommitInput) (domain.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.commit", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	b, day, err := s.newBooking(in)
	if err != nil {
		s.metrics.ObserveCommit(string(in.Service), "invalid")
		return domain.Booking{}, err
	}
	span.SetAttributes(
		attribute.String("harmonie.booking_id", b.ID),
		attribute.String("harmonie.date", b.Date),
		attribute.String("harmonie.time", b.StartTime.String()),
		attribute.Int("harmonie.duration_minutes", b.DurationMinutes),
	)

	slots, err := s.slots.LoadSlots(ctx)
	if err != nil {
		s.metrics.ObserveCommit(string(b.Service), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "load slots")
		return domain.Booking{}, err
	}
	replayed := false
	err = store.RunBookingTx(ctx, s.bookings, func(ctx context.Context, tx store.BookingStore) error {
		bookings, err := tx.LoadBookings(ctx)
		if err != nil {
			return err
		}
		// Only a keyed retry can produce an id that already exists.
		if i, ok := store.FindBooking(bookings, b.ID); ok {
			if !sameRequest(bookings[i], b) {
				return store.ErrIdempotencyConflict
			}
			b = bookings[i]
			replayed = true
			return nil
		}
		if !s.engine.Fits(day, b.StartTime, b.DurationMinutes, slots, nil) {
			return ErrSlotUnavailable
		}
		if availability.Conflicts(day, b.Interval(), bookings) {
			return store.ErrConflict
		}
		return tx.SaveBookings(ctx, append(bookings, b))
	})
	if err != nil {
		s.metrics.ObserveCommit(string(b.Service), commitResult(err))
		if !errors.Is(err, store.ErrConflict) && !errors.Is(err, store.ErrIdempotencyConflict) && !errors.Is(err, ErrSlotUnavailable) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit")
		}
		return domain.Booking{}, err
	}
	if replayed {
		s.metrics.ObserveCommit(string(b.Service), "replayed")
		return b, nil
	}

	s.metrics.ObserveCommit(string(b.Service), "confirmed")
	s.logger.Info("booking confirmed",
		slog.String("booking_id", b.ID),
		slog.String("date", b.Date),
		slog.String("time", b.StartTime.String()),
		slog.Int("duration_minutes", b.DurationMinutes),
	)
	s.afterConfirm(ctx, b)
	return b, nil
}

func (s *Service) afterConfirm(ctx context.Context, b domain.Booking) {
	if s.notifier != nil {
		err := s.notifier.BookingConfirmed(ctx, b)
		s.metrics.ObserveNotification("confirmation", err)
		if err != nil {
			s.logger.Warn("confirmation email failed", slog.Any("err", err), slog.String("booking_id", b.ID))
		}
	}
	err := s.reminders.Schedule(ctx, b)
	s.metrics.ObserveReminder("schedule", err)
	if err != nil {
		s.logger.Warn("reminder scheduling failed", slog.Any("err", err), slog.String("booking_id", b.ID))
	}
}

func commitResult(err error) string {
	switch {
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrIdempotencyConflict):
		return "idempotency_conflict"
	case errors.Is(err, ErrSlotUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func (s *Service) newBooking(in CommitInput) (domain.Booking, time.Time, error) {
	given := strings.TrimSpace(in.GivenName)
	family := strings.TrimSpace(in.FamilyName)
	if given == "" {
		return domain.Booking{}, time.Time{}, validationError("prenom is required")
	}
	if family == "" {
		return domain.Booking{}, time.Time{}, validationError("nom is required")
	}
	if len(given) > maxNameLength || len(family) > maxNameLength {
		return domain.Booking{}, time.Time{}, validationError("name too long")
	}

	email := strings.TrimSpace(in.Email)
	if !emailPattern.MatchString(email) {
		return domain.Booking{}, time.Time{}, validationError("invalid email")
	}
	phone := strings.TrimSpace(in.Phone)
	if !phonePattern.MatchString(phone) {
		return domain.Booking{}, time.Time{}, validationError("invalid phone number")
	}

	svc, ok := domain.LookupService(in.Service)
	if !ok {
		return domain.Booking{}, time.Time{}, validationError("unknown service")
	}
	duration := in.DurationMinutes
	if duration == 0 {
		duration = svc.DurationMinutes
	}
	if duration < 0 || duration%domain.SubSlotMinutes != 0 || duration > domain.MinutesPerDay {
		return domain.Booking{}, time.Time{}, validationError("duration must be a positive multiple of 30 minutes")
	}

	day, err := s.parseDate(in.Date)
	if err != nil {
		return domain.Booking{}, time.Time{}, err
	}
	date := domain.FormatDate(day)
	if date < s.today() {
		return domain.Booking{}, time.Time{}, validationError("date is in the past")
	}
	start, err := domain.ParseTimeOfDay(in.Time)
	if err != nil {
		return domain.Booking{}, time.Time{}, validationError("time must be HH:MM")
	}

	message := strings.TrimSpace(in.Message)
	if len(message) > maxMessageLength {
		return domain.Booking{}, time.Time{}, validationError("message too long")
	}

	b := domain.Booking{
		GivenName:       given,
		FamilyName:      family,
		Email:           email,
		Phone:           phone,
		Service:         svc.Code,
		Date:            date,
		StartTime:       start,
		DurationMinutes: duration,
		Status:          domain.BookingStatusConfirmed,
		Message:         message,
		CreatedAt:       s.now().UTC(),
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > maxIdempotencyKey {
			return domain.Booking{}, time.Time{}, validationError("idempotency_key too long")
		}
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("harmonie:create_booking:"+strings.ToLower(email)+":"+key))
		b.ID = domain.BookingIDFromUUID(id)
	} else {
		id, err := domain.NewBookingID()
		if err != nil {
			return domain.Booking{}, time.Time{}, fmt.Errorf("booking id: %w", err)
		}
		b.ID = id
	}
	return b, day, nil
}

// sameRequest compares the fields a client chooses; ids, status and
// timestamps are ignored.
func sameRequest(a, b domain.Booking) bool {
	return a.GivenName == b.GivenName &&
		a.FamilyName == b.FamilyName &&
		strings.EqualFold(a.Email, b.Email) &&
		a.Phone == b.Phone &&
		a.Service == b.Service &&
		a.Date == b.Date &&
		a.StartTime == b.StartTime &&
		a.DurationMinutes == b.DurationMinutes &&
		a.Message == b.Message
}
