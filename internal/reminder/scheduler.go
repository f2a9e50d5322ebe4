package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"harmonie/backend/internal/domain"
)

const (
	DefaultQueue = "reminders"
	DefaultLead  = 24 * time.Hour
	maxRetry     = 3
)

type Scheduler interface {
	Schedule(ctx context.Context, b domain.Booking) error
	Cancel(ctx context.Context, bookingID string) error
}

// NoopScheduler is used when no Redis is configured.
type NoopScheduler struct{}

func (NoopScheduler) Schedule(context.Context, domain.Booking) error { return nil }
func (NoopScheduler) Cancel(context.Context, string) error           { return nil }

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type taskDeleter interface {
	DeleteTask(queue, id string) error
}

type Config struct {
	Queue    string
	Lead     time.Duration
	TimeZone *time.Location
	Now      func() time.Time
}

type QueueScheduler struct {
	client    enqueuer
	inspector taskDeleter
	queue     string
	lead      time.Duration
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

// NewQueueScheduler shares rdb with asynq; closing rdb is the caller's job.
func NewQueueScheduler(rdb redis.UniversalClient, cfg Config, logger *slog.Logger) *QueueScheduler {
	return newQueueScheduler(
		asynq.NewClientFromRedisClient(rdb),
		asynq.NewInspectorFromRedisClient(rdb),
		cfg,
		logger,
	)
}

func newQueueScheduler(client enqueuer, inspector taskDeleter, cfg Config, logger *slog.Logger) *QueueScheduler {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Lead <= 0 {
		cfg.Lead = DefaultLead
	}
	if cfg.TimeZone == nil {
		cfg.TimeZone = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueScheduler{
		client:    client,
		inspector: inspector,
		queue:     cfg.Queue,
		lead:      cfg.Lead,
		loc:       cfg.TimeZone,
		now:       cfg.Now,
		logger:    logger.With(slog.String("component", "reminder")),
	}
}

// FireAt is start minus the lead time, clamped to now. ok is false when the
// appointment has already started.
func (s *QueueScheduler) FireAt(b domain.Booking) (at time.Time, ok bool, err error) {
	start, err := b.StartsAt(s.loc)
	if err != nil {
		return time.Time{}, false, err
	}
	now := s.now()
	if !start.After(now) {
		return time.Time{}, false, nil
	}
	at = start.Add(-s.lead)
	if at.Before(now) {
		at = now
	}
	return at, true, nil
}

func (s *QueueScheduler) Schedule(ctx context.Context, b domain.Booking) error {
	if !b.IsConfirmed() {
		return nil
	}
	at, ok, err := s.FireAt(b)
	if err != nil {
		return fmt.Errorf("reminder: %w", err)
	}
	if !ok {
		s.logger.Debug("appointment already started; no reminder", slog.String("booking_id", b.ID))
		return nil
	}

	task, err := NewReminderTask(b.ID)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.TaskID(TaskID(b.ID)),
		asynq.Queue(s.queue),
		asynq.ProcessAt(at),
		asynq.MaxRetry(maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reminder: enqueue %s: %w", b.ID, err)
	}
	s.logger.Info("reminder scheduled", slog.String("booking_id", b.ID), slog.Time("fire_at", at))
	return nil
}

// Cancel drops the pending reminder. A missing task or queue is not an error.
func (s *QueueScheduler) Cancel(ctx context.Context, bookingID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.inspector.DeleteTask(s.queue, TaskID(bookingID))
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return fmt.Errorf("reminder: delete %s: %w", bookingID, err)
}
