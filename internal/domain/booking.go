package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const DateLayout = "2006-01-02"

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings" json:"-"`

	ID               string        `bun:"id,pk" json:"id"`
	GivenName        string        `bun:"given_name,notnull" json:"prenom"`
	FamilyName       string        `bun:"family_name,notnull" json:"nom"`
	Email            string        `bun:"email,notnull" json:"email"`
	Phone            string        `bun:"phone,notnull" json:"telephone"`
	Service          ServiceCode   `bun:"service,notnull" json:"service"`
	Date             string        `bun:"booking_date,notnull" json:"date"`
	StartTime        TimeOfDay     `bun:"start_minute,notnull" json:"time"`
	DurationMinutes  int           `bun:"duration_minutes,notnull" json:"duration"`
	Status           BookingStatus `bun:"status,notnull" json:"status"`
	Message          string        `bun:"message" json:"message,omitempty"`
	PaymentReference string        `bun:"payment_reference" json:"paymentReference,omitempty"`
	CreatedAt        time.Time     `bun:"created_at,notnull" json:"createdAt"`
	CancelledAt      *time.Time    `bun:"cancelled_at,nullzero" json:"cancelledAt,omitempty"`
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == "" {
			id, err := NewBookingID()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = time.Now().UTC()
		}
		if b.Status == "" {
			b.Status = BookingStatusConfirmed
		}
	}
	return nil
}

func (b Booking) IsConfirmed() bool {
	return b.Status == BookingStatusConfirmed
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.StartTime.Add(b.DurationMinutes)}
}

// Day parses the booking date as a calendar day in UTC.
func (b Booking) Day() (time.Time, error) {
	return ParseDate(b.Date)
}

// StartsAt resolves the booking start in the business time zone.
func (b Booking) StartsAt(loc *time.Location) (time.Time, error) {
	d, err := ParseDate(b.Date)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), b.StartTime.Hour(), b.StartTime.Minute(), 0, 0, loc), nil
}

func (b Booking) EndsAt(loc *time.Location) (time.Time, error) {
	start, err := b.StartsAt(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(b.DurationMinutes) * time.Minute), nil
}

func (b Booking) CustomerName() string {
	return strings.TrimSpace(b.GivenName + " " + b.FamilyName)
}

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// NewBookingID returns an opaque booking reference such as "BKG-0192F3...".
func NewBookingID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return BookingIDFromUUID(id), nil
}

func BookingIDFromUUID(id uuid.UUID) string {
	return "BKG-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}

// Interval is a half-open span of minutes within one day.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Overlaps reports whether [a,b) and [c,d) share a minute: a<d and c<b.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether t lies in [Start, End).
func (i Interval) Contains(t TimeOfDay) bool {
	return i.Start <= t && t < i.End
}

// ConfirmedOn returns the confirmed bookings for date, preserving order.
func ConfirmedOn(bookings []Booking, date string) []Booking {
	out := make([]Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Date == date && b.IsConfirmed() {
			out = append(out, b)
		}
	}
	return out
}
