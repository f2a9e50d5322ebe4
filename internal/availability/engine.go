// Package availability turns a weekly slot template and the confirmed bookings
// of a day into the list of bookable windows for that day.
//
// The engine is pure: callers load both collections from their stores and pass
// snapshots in. Nothing here reads or writes storage.
package availability

import (
	"sort"
	"time"

	"harmonie/backend/internal/domain"
)

type Window struct {
	StartTime       domain.TimeOfDay `json:"time"`
	DurationMinutes int              `json:"duration"`
	TemplateID      string           `json:"templateId"`
}

func (w Window) Interval() domain.Interval {
	return domain.Interval{Start: w.StartTime, End: w.StartTime.Add(w.DurationMinutes)}
}

type Engine struct {
	closed           domain.Weekday
	strictSubWindows bool
}

type Option func(*Engine)

// WithClosedWeekday sets the weekday on which no window is ever offered.
func WithClosedWeekday(day domain.Weekday) Option {
	return func(e *Engine) {
		e.closed = day
	}
}

// WithStrictSubWindows makes WindowsForDate drop a 30 minute sub-window when its
// whole span overlaps a booking, instead of only when its start is inside one.
func WithStrictSubWindows(strict bool) Option {
	return func(e *Engine) {
		e.strictSubWindows = strict
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{closed: domain.Sunday}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) ClosedWeekday() domain.Weekday {
	return e.closed
}

func (e *Engine) IsClosed(date time.Time) bool {
	return domain.WeekdayOf(date) == e.closed
}

// WindowsForDate splits every enabled template entry of the date's weekday into
// 30 minute sub-windows and drops those whose start falls inside a confirmed
// booking. Results are ordered by start time; a start time reachable from two
// entries is reported once per entry.
func (e *Engine) WindowsForDate(date time.Time, slots []domain.SlotTemplate, bookings []domain.Booking) []Window {
	entries := e.enabledEntries(date, slots)
	if len(entries) == 0 {
		return []Window{}
	}
	booked := bookedIntervals(date, bookings)

	out := make([]Window, 0, len(entries)*2)
	for _, entry := range entries {
		n := entry.DurationMinutes / domain.SubSlotMinutes
		for i := 0; i < n; i++ {
			start := entry.StartTime.Add(i * domain.SubSlotMinutes)
			candidate := domain.Interval{Start: start, End: start.Add(domain.SubSlotMinutes)}
			if e.subWindowTaken(candidate, booked) {
				continue
			}
			out = append(out, Window{
				StartTime:       start,
				DurationMinutes: domain.SubSlotMinutes,
				TemplateID:      entry.ID,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

// WindowsForDateAndDuration returns every 30 minute aligned start inside an
// enabled entry where a booking of the requested length fits before the
// entry ends and overlaps no confirmed booking.
func (e *Engine) WindowsForDateAndDuration(date time.Time, requested int, slots []domain.SlotTemplate, bookings []domain.Booking) []Window {
	if requested <= 0 {
		return []Window{}
	}
	entries := e.enabledEntries(date, slots)
	if len(entries) == 0 {
		return []Window{}
	}
	booked := bookedIntervals(date, bookings)

	seen := make(map[domain.TimeOfDay]struct{})
	out := make([]Window, 0, len(entries))
	for _, entry := range entries {
		end := entry.EndTime()
		for start := entry.StartTime; start < end; start = start.Add(domain.SubSlotMinutes) {
			candidate := domain.Interval{Start: start, End: start.Add(requested)}
			if candidate.End > end {
				break
			}
			if overlapsAny(candidate, booked) {
				continue
			}
			if _, ok := seen[start]; ok {
				continue
			}
			seen[start] = struct{}{}
			out = append(out, Window{
				StartTime:       start,
				DurationMinutes: requested,
				TemplateID:      entry.ID,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

// Fits reports whether a booking [start, start+duration) can be placed on date.
func (e *Engine) Fits(date time.Time, start domain.TimeOfDay, duration int, slots []domain.SlotTemplate, bookings []domain.Booking) bool {
	for _, w := range e.WindowsForDateAndDuration(date, duration, slots, bookings) {
		if w.StartTime == start {
			return true
		}
	}
	return false
}

// Conflicts is the write-time check: it reports whether candidate overlaps any
// confirmed booking on date.
func Conflicts(date time.Time, candidate domain.Interval, bookings []domain.Booking) bool {
	return overlapsAny(candidate, bookedIntervals(date, bookings))
}

func (e *Engine) subWindowTaken(candidate domain.Interval, booked []domain.Interval) bool {
	if e.strictSubWindows {
		return overlapsAny(candidate, booked)
	}
	for _, b := range booked {
		if b.Contains(candidate.Start) {
			return true
		}
	}
	return false
}

func (e *Engine) enabledEntries(date time.Time, slots []domain.SlotTemplate) []domain.SlotTemplate {
	day := domain.WeekdayOf(date)
	if day == e.closed {
		return nil
	}
	out := make([]domain.SlotTemplate, 0, len(slots))
	for _, s := range slots {
		if s.Enabled && s.Weekday == day && s.DurationMinutes > 0 {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func bookedIntervals(date time.Time, bookings []domain.Booking) []domain.Interval {
	confirmed := domain.ConfirmedOn(bookings, domain.FormatDate(date))
	out := make([]domain.Interval, 0, len(confirmed))
	for _, b := range confirmed {
		out = append(out, b.Interval())
	}
	return out
}

func overlapsAny(candidate domain.Interval, booked []domain.Interval) bool {
	for _, b := range booked {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
