// Package schedule holds the admin commands on the weekly slot template.
// Every command loads the template once and saves it at most once.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Service struct {
	slots  store.SlotStore
	logger *slog.Logger
}

func NewService(slots store.SlotStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{slots: slots, logger: logger.With(slog.String("component", "schedule_service"))}
}

// List returns the template ordered Monday first, then by start time.
func (s *Service) List(ctx context.Context) ([]domain.SlotTemplate, error) {
	slots, err := s.slots.LoadSlots(ctx)
	if err != nil {
		return nil, err
	}
	domain.SortTemplates(slots)
	return slots, nil
}

// Seed writes the default template when the store holds none and reports
// whether it did.
func (s *Service) Seed(ctx context.Context) (bool, error) {
	slots, err := s.slots.LoadSlots(ctx)
	if err != nil {
		return false, err
	}
	if len(slots) > 0 {
		return false, nil
	}
	if err := s.slots.SaveSlots(ctx, domain.DefaultTemplate()); err != nil {
		return false, err
	}
	s.logger.Info("default slot template seeded")
	return true, nil
}

func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) (domain.SlotTemplate, error) {
	return s.updateOne(ctx, id, func(slot *domain.SlotTemplate) error {
		slot.Enabled = enabled
		return nil
	})
}

func (s *Service) Toggle(ctx context.Context, id string) (domain.SlotTemplate, error) {
	return s.updateOne(ctx, id, func(slot *domain.SlotTemplate) error {
		slot.Enabled = !slot.Enabled
		return nil
	})
}

// SetDuration changes the span of one entry. Only 30, 60, 90 and 120 minutes
// are accepted, and the entry must still end on the same day.
func (s *Service) SetDuration(ctx context.Context, id string, minutes int) (domain.SlotTemplate, error) {
	if !domain.IsAllowedSlotDuration(minutes) {
		return domain.SlotTemplate{}, validationError(fmt.Sprintf("duration must be one of %v", domain.AllowedSlotDurations))
	}
	return s.updateOne(ctx, id, func(slot *domain.SlotTemplate) error {
		if int(slot.StartTime)+minutes > domain.MinutesPerDay {
			return validationError("slot would end after midnight")
		}
		slot.DurationMinutes = minutes
		return nil
	})
}

// SetWeekdayEnabled flips every entry of day and returns how many changed.
func (s *Service) SetWeekdayEnabled(ctx context.Context, weekday string, enabled bool) (int, error) {
	day, err := domain.ParseWeekday(weekday)
	if err != nil {
		return 0, validationError("unknown weekday")
	}
	return s.updateMany(ctx, func(slot domain.SlotTemplate) bool { return slot.Weekday == day }, enabled)
}

func (s *Service) SetAllEnabled(ctx context.Context, enabled bool) (int, error) {
	return s.updateMany(ctx, func(domain.SlotTemplate) bool { return true }, enabled)
}

func (s *Service) updateOne(ctx context.Context, id string, mutate func(*domain.SlotTemplate) error) (domain.SlotTemplate, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.SlotTemplate{}, validationError("slot_id is required")
	}
	slots, err := s.slots.LoadSlots(ctx)
	if err != nil {
		return domain.SlotTemplate{}, err
	}
	for i := range slots {
		if slots[i].ID != id {
			continue
		}
		before := slots[i]
		if err := mutate(&slots[i]); err != nil {
			return domain.SlotTemplate{}, err
		}
		if slots[i] == before {
			return slots[i], nil
		}
		if err := s.slots.SaveSlots(ctx, slots); err != nil {
			return domain.SlotTemplate{}, err
		}
		s.logger.Info("slot updated",
			slog.String("slot_id", id),
			slog.Bool("enabled", slots[i].Enabled),
			slog.Int("duration_minutes", slots[i].DurationMinutes),
		)
		return slots[i], nil
	}
	return domain.SlotTemplate{}, store.ErrNotFound
}

func (s *Service) updateMany(ctx context.Context, match func(domain.SlotTemplate) bool, enabled bool) (int, error) {
	slots, err := s.slots.LoadSlots(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i := range slots {
		if match(slots[i]) && slots[i].Enabled != enabled {
			slots[i].Enabled = enabled
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := s.slots.SaveSlots(ctx, slots); err != nil {
		return 0, err
	}
	s.logger.Info("slots updated", slog.Int("changed", changed), slog.Bool("enabled", enabled))
	return changed, nil
}
