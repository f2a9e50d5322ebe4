package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/store"
)

type BookingGetter interface {
	Get(ctx context.Context, id string) (domain.Booking, error)
}

type ReminderSender interface {
	BookingReminder(ctx context.Context, b domain.Booking) error
}

type Handler struct {
	bookings BookingGetter
	sender   ReminderSender
	logger   *slog.Logger
}

func NewHandler(bookings BookingGetter, sender ReminderSender, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{bookings: bookings, sender: sender, logger: logger.With(slog.String("component", "reminder_worker"))}
}

// ProcessTask reloads the booking and only reminds for confirmed ones, so a
// cancellation that raced with the delete still suppresses the email.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := parsePayload(t)
	if err != nil {
		h.logger.Error("invalid reminder payload", slog.Any("err", err))
		return fmt.Errorf("reminder: payload: %v: %w", err, asynq.SkipRetry)
	}

	b, err := h.bookings.Get(ctx, p.BookingID)
	if errors.Is(err, store.ErrNotFound) {
		h.logger.Warn("reminder for unknown booking", slog.String("booking_id", p.BookingID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("reminder: load %s: %w", p.BookingID, err)
	}
	if !b.IsConfirmed() {
		h.logger.Info("booking no longer confirmed; reminder skipped", slog.String("booking_id", b.ID))
		return nil
	}

	if err := h.sender.BookingReminder(ctx, b); err != nil {
		h.logger.Error("reminder send failed", slog.Any("err", err), slog.String("booking_id", b.ID))
		return err
	}
	h.logger.Info("reminder sent", slog.String("booking_id", b.ID))
	return nil
}

type WorkerConfig struct {
	Queue       string
	Concurrency int
}

type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

func NewWorker(rdb redis.UniversalClient, cfg WorkerConfig, h *Handler, logger *slog.Logger) *Worker {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv := asynq.NewServerFromRedisClient(rdb, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
		Logger:      asynqLogger{logger: logger.With(slog.String("component", "asynq"))},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBookingReminder, h.ProcessTask)
	return &Worker{srv: srv, mux: mux}
}

// Start runs the worker in the background.
func (w *Worker) Start() error {
	return w.srv.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

// asynqLogger routes asynq's printf-style logging into slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
