package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"harmonie/backend/internal/domain"
)

type Business struct {
	Name    string
	Address string
}

// Service turns booking events into customer emails.
type Service struct {
	sender   EmailSender
	business Business
	logger   *slog.Logger
}

func NewService(sender EmailSender, business Business, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		sender = NewStubEmailSender(logger)
	}
	if business.Name == "" {
		business.Name = "Harmonie & Bien-Être"
	}
	return &Service{sender: sender, business: business, logger: logger.With(slog.String("component", "notify"))}
}

func (s *Service) BookingConfirmed(ctx context.Context, b domain.Booking) error {
	return s.send(ctx, "confirmation", s.ConfirmationMessage(b))
}

func (s *Service) BookingCancelled(ctx context.Context, b domain.Booking) error {
	return s.send(ctx, "cancellation", s.CancellationMessage(b))
}

func (s *Service) BookingReminder(ctx context.Context, b domain.Booking) error {
	return s.send(ctx, "reminder", s.ReminderMessage(b))
}

func (s *Service) send(ctx context.Context, kind string, msg EmailMessage) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("notify: %s: recipient is empty", kind)
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: %s: %w", kind, err)
	}
	return nil
}

func (s *Service) ConfirmationMessage(b domain.Booking) EmailMessage {
	var body strings.Builder
	fmt.Fprintf(&body, "Bonjour %s,\n\n", b.GivenName)
	fmt.Fprintf(&body, "Votre réservation est confirmée.\n\n")
	s.writeDetails(&body, b)
	fmt.Fprintf(&body, "\nPour annuler, rendez-vous dans votre espace client avec la référence %s.\n", b.ID)
	s.writeSignature(&body)

	return EmailMessage{
		To:      b.Email,
		ToName:  b.CustomerName(),
		Subject: fmt.Sprintf("Confirmation de votre réservation - %s", s.business.Name),
		Body:    body.String(),
	}
}

func (s *Service) CancellationMessage(b domain.Booking) EmailMessage {
	var body strings.Builder
	fmt.Fprintf(&body, "Bonjour %s,\n\n", b.GivenName)
	fmt.Fprintf(&body, "Votre réservation a bien été annulée.\n\n")
	s.writeDetails(&body, b)
	s.writeSignature(&body)

	return EmailMessage{
		To:      b.Email,
		ToName:  b.CustomerName(),
		Subject: fmt.Sprintf("Annulation de votre réservation - %s", s.business.Name),
		Body:    body.String(),
	}
}

func (s *Service) ReminderMessage(b domain.Booking) EmailMessage {
	var body strings.Builder
	fmt.Fprintf(&body, "Bonjour %s,\n\n", b.GivenName)
	fmt.Fprintf(&body, "Nous vous rappelons votre rendez-vous de demain.\n\n")
	s.writeDetails(&body, b)
	s.writeSignature(&body)

	return EmailMessage{
		To:      b.Email,
		ToName:  b.CustomerName(),
		Subject: fmt.Sprintf("Rappel: votre rendez-vous demain - %s", s.business.Name),
		Body:    body.String(),
	}
}

func (s *Service) writeDetails(w *strings.Builder, b domain.Booking) {
	fmt.Fprintf(w, "Référence: %s\n", b.ID)
	fmt.Fprintf(w, "Service: %s\n", domain.ServiceName(b.Service))
	fmt.Fprintf(w, "Date: %s à %s\n", FrenchDate(b.Date), b.StartTime)
	fmt.Fprintf(w, "Durée: %d minutes\n", b.DurationMinutes)
	if s.business.Address != "" {
		fmt.Fprintf(w, "Adresse: %s\n", s.business.Address)
	}
}

func (s *Service) writeSignature(w *strings.Builder) {
	fmt.Fprintf(w, "\nÀ bientôt,\n%s\n", s.business.Name)
}

var (
	frenchDays   = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}
	frenchMonths = [...]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août", "septembre", "octobre", "novembre", "décembre"}
)

// FrenchDate renders "2025-01-13" as "lundi 13 janvier 2025". Unparseable
// input is returned as is.
func FrenchDate(date string) string {
	d, err := domain.ParseDate(date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%s %d %s %d", frenchDays[d.Weekday()], d.Day(), frenchMonths[d.Month()-1], d.Year())
}
