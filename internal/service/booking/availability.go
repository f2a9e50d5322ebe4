package booking

import (
	"context"
	"time"

	"harmonie/backend/internal/availability"
	"harmonie/backend/internal/domain"
)

// DayAvailability is one open day of a month view.
type DayAvailability struct {
	Date    string                `json:"date"`
	Weekday domain.Weekday        `json:"dayOfWeek"`
	Windows []availability.Window `json:"slots"`
}

// WindowsForDate lists the free 30-minute sub-windows of date. A failed store
// load is returned as an error, never as an empty day.
func (s *Service) WindowsForDate(ctx context.Context, date string) ([]availability.Window, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	slots, bookings, err := s.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	windows := s.engine.WindowsForDate(day, slots, bookings)
	s.metrics.ObserveAvailability("plain", len(windows), time.Since(started).Seconds())
	return windows, nil
}

func (s *Service) WindowsForDateAndDuration(ctx context.Context, date string, duration int) ([]availability.Window, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, validationError("duration must be positive")
	}
	started := time.Now()
	slots, bookings, err := s.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	windows := s.engine.WindowsForDateAndDuration(day, duration, slots, bookings)
	s.metrics.ObserveAvailability("duration", len(windows), time.Since(started).Seconds())
	return windows, nil
}

// IsAvailable reports whether a duration-aware window starts exactly at start.
func (s *Service) IsAvailable(ctx context.Context, date, start string, duration int) (bool, error) {
	t, err := domain.ParseTimeOfDay(start)
	if err != nil {
		return false, validationError("time must be HH:MM")
	}
	windows, err := s.WindowsForDateAndDuration(ctx, date, duration)
	if err != nil {
		return false, err
	}
	for _, w := range windows {
		if w.StartTime == t {
			return true, nil
		}
	}
	return false, nil
}

// MonthAvailability returns, for every open day of the month that still has a
// free window, the plain-query windows. month is 1-12.
func (s *Service) MonthAvailability(ctx context.Context, year, month int) ([]DayAvailability, error) {
	if month < 1 || month > 12 {
		return nil, validationError("month must be between 1 and 12")
	}
	if year < 1970 || year > 9999 {
		return nil, validationError("year out of range")
	}
	slots, bookings, err := s.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	out := []DayAvailability{}
	for day := first; day.Month() == first.Month(); day = day.AddDate(0, 0, 1) {
		if s.engine.IsClosed(day) {
			continue
		}
		windows := s.engine.WindowsForDate(day, slots, bookings)
		if len(windows) == 0 {
			continue
		}
		out = append(out, DayAvailability{
			Date:    domain.FormatDate(day),
			Weekday: domain.WeekdayOf(day),
			Windows: windows,
		})
	}
	return out, nil
}
