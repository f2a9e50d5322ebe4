// Package reminder schedules and delivers appointment reminder emails through
// asynq delayed tasks.
package reminder

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TypeBookingReminder = "booking:reminder"

type Payload struct {
	BookingID string `json:"bookingId"`
}

// TaskID is stable per booking so a booking has at most one pending reminder.
func TaskID(bookingID string) string {
	return "reminder:" + bookingID
}

func NewReminderTask(bookingID string) (*asynq.Task, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("reminder: booking id is required")
	}
	b, err := json.Marshal(Payload{BookingID: bookingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBookingReminder, b), nil
}

func parsePayload(t *asynq.Task) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return Payload{}, err
	}
	if p.BookingID == "" {
		return Payload{}, fmt.Errorf("missing bookingId")
	}
	return p, nil
}
