package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"harmonie/backend/internal/availability"
	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/observability/metrics"
	"harmonie/backend/internal/reminder"
	"harmonie/backend/internal/store"
)

var tracer = otel.Tracer("harmonie.internal.service.booking")

// ErrSlotUnavailable means the requested start and duration do not fit an
// enabled template window on that date.
var ErrSlotUnavailable = errors.New("slot unavailable")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Notifier receives booking lifecycle events. Errors are logged, never
// returned to the caller of Commit or Cancel.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b domain.Booking) error
	BookingCancelled(ctx context.Context, b domain.Booking) error
}

type Service struct {
	slots     store.SlotStore
	bookings  store.BookingStore
	engine    *availability.Engine
	notifier  Notifier
	reminders reminder.Scheduler
	metrics   *metrics.BookingMetrics
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithReminders(r reminder.Scheduler) Option {
	return func(s *Service) { s.reminders = r }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the business time zone and the source of "now". Today is
// the calendar date of now in loc.
func WithClock(loc *time.Location, now func() time.Time) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
		if now != nil {
			s.now = now
		}
	}
}

func NewService(slots store.SlotStore, bookings store.BookingStore, engine *availability.Engine, opts ...Option) *Service {
	s := &Service{
		slots:     slots,
		bookings:  bookings,
		engine:    engine,
		reminders: reminder.NoopScheduler{},
		logger:    slog.Default(),
		loc:       time.UTC,
		now:       time.Now,
	}
	if s.engine == nil {
		s.engine = availability.NewEngine()
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "booking_service"))
	return s
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) today() string {
	return domain.FormatDate(s.now().In(s.loc))
}

func (s *Service) parseDate(date string) (time.Time, error) {
	d, err := domain.ParseDate(date)
	if err != nil {
		return time.Time{}, validationError("date must be YYYY-MM-DD")
	}
	return d, nil
}

func (s *Service) loadSnapshot(ctx context.Context) ([]domain.SlotTemplate, []domain.Booking, error) {
	slots, err := s.slots.LoadSlots(ctx)
	if err != nil {
		return nil, nil, err
	}
	bookings, err := s.bookings.LoadBookings(ctx)
	if err != nil {
		return nil, nil, err
	}
	return slots, bookings, nil
}
