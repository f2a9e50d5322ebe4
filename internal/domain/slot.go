package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var weekdayByTime = [...]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// WeekdayOf returns the weekday of a calendar date.
func WeekdayOf(date time.Time) Weekday {
	return weekdayByTime[date.Weekday()]
}

func ParseWeekday(s string) (Weekday, error) {
	w := Weekday(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range weekdayByTime {
		if w == known {
			return w, nil
		}
	}
	return "", fmt.Errorf("unknown weekday %q", s)
}

func (w Weekday) Order() int {
	for i, known := range weekdayByTime {
		if w == known {
			// monday first, sunday last
			return (i + 6) % 7
		}
	}
	return 7
}

// TimeOfDay is a minute-of-day value. It encodes as "HH:MM" in JSON.
type TimeOfDay int

const MinutesPerDay = 24 * 60

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return NewTimeOfDay(h, m), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return t.UnmarshalText([]byte(s))
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return int64(t), nil
}

func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*t = TimeOfDay(v)
	case int32:
		*t = TimeOfDay(v)
	case []byte:
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return err
		}
		*t = TimeOfDay(n)
	case nil:
		*t = 0
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
	return nil
}

// SubSlotMinutes is the granularity of bookable start times.
const SubSlotMinutes = 30

const DefaultSlotDuration = 60

var AllowedSlotDurations = []int{30, 60, 90, 120}

func IsAllowedSlotDuration(minutes int) bool {
	for _, d := range AllowedSlotDurations {
		if d == minutes {
			return true
		}
	}
	return false
}

type SlotTemplate struct {
	bun.BaseModel `bun:"table:slot_templates" json:"-"`

	ID              string    `bun:"id,pk" json:"id"`
	Weekday         Weekday   `bun:"weekday,notnull" json:"day"`
	StartTime       TimeOfDay `bun:"start_minute,notnull" json:"time"`
	Enabled         bool      `bun:"enabled,notnull" json:"enabled"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"duration"`
}

func (s SlotTemplate) EndTime() TimeOfDay {
	return s.StartTime.Add(s.DurationMinutes)
}

func TemplateID(day Weekday, start TimeOfDay) string {
	return string(day) + "-" + start.String()
}

var (
	weekdayHours  = []int{9, 10, 11, 12, 14, 15, 16, 17, 18}
	saturdayHours = []int{10, 11, 12, 14, 15, 16}
)

// DefaultTemplate is the template seeded into an empty slot store.
func DefaultTemplate() []SlotTemplate {
	days := []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}
	out := make([]SlotTemplate, 0, 5*len(weekdayHours)+len(saturdayHours))
	for _, day := range days {
		hours := weekdayHours
		if day == Saturday {
			hours = saturdayHours
		}
		for _, h := range hours {
			start := NewTimeOfDay(h, 0)
			out = append(out, SlotTemplate{
				ID:              TemplateID(day, start),
				Weekday:         day,
				StartTime:       start,
				Enabled:         true,
				DurationMinutes: DefaultSlotDuration,
			})
		}
	}
	return out
}

func SortTemplates(slots []SlotTemplate) {
	sort.SliceStable(slots, func(i, j int) bool {
		oi, oj := slots[i].Weekday.Order(), slots[j].Weekday.Order()
		if oi != oj {
			return oi < oj
		}
		return slots[i].StartTime < slots[j].StartTime
	})
}
