// Package calendar renders bookings as iCalendar invitations.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"harmonie/backend/internal/domain"
)

const ContentType = "text/calendar;charset=utf-8"

var ErrNotConfirmed = errors.New("calendar: only confirmed bookings can be exported")

type Options struct {
	BusinessName string
	// Domain is the UID suffix, e.g. "harmonie-bienetre.fr".
	Domain   string
	Address  string
	TimeZone *time.Location
	// Now stamps DTSTAMP. Defaults to time.Now.
	Now func() time.Time
}

func Filename(bookingID string) string {
	return "reservation-" + bookingID + ".ics"
}

// Invite builds a METHOD:REQUEST calendar with one event and a one-hour
// display alarm. Start and end are written in UTC.
func Invite(b domain.Booking, opts Options) (string, error) {
	if !b.IsConfirmed() {
		return "", ErrNotConfirmed
	}
	if opts.TimeZone == nil {
		opts.TimeZone = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BusinessName == "" {
		opts.BusinessName = "Harmonie & Bien-Être"
	}
	if opts.Domain == "" {
		opts.Domain = "harmonie-bienetre.fr"
	}

	start, err := b.StartsAt(opts.TimeZone)
	if err != nil {
		return "", fmt.Errorf("calendar: %w", err)
	}
	end := start.Add(time.Duration(b.DurationMinutes) * time.Minute)
	serviceName := domain.ServiceName(b.Service)

	cal := ics.NewCalendar()
	cal.SetProductId("-//" + opts.BusinessName + "//Booking//FR")
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodRequest)

	event := cal.AddEvent(b.ID + "@" + opts.Domain)
	event.SetDtStampTime(opts.Now())
	event.SetStartAt(start)
	event.SetEndAt(end)
	event.SetSummary(serviceName + " - " + opts.BusinessName)
	event.SetDescription(description(b, serviceName, opts.Address))
	if opts.Address != "" {
		event.SetLocation(opts.Address)
	}
	event.SetStatus(ics.ObjectStatusConfirmed)
	event.SetSequence(0)

	alarm := event.AddAlarm()
	alarm.SetAction(ics.ActionDisplay)
	alarm.SetTrigger("-PT1H")
	alarm.SetProperty(ics.ComponentPropertyDescription, "Rappel: Rendez-vous dans 1 heure")

	return cal.Serialize(), nil
}

func description(b domain.Booking, serviceName, address string) string {
	lines := []string{
		"Réservation confirmée",
		"",
		"Service: " + serviceName,
		"Client: " + b.CustomerName(),
		"Téléphone: " + b.Phone,
	}
	if address != "" {
		lines = append(lines, "", "Adresse: "+address)
	}
	return strings.Join(lines, "\n")
}
