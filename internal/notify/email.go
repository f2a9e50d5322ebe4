package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailSender delivers one message. Implementations can be swapped without
// changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // plain text
	HTML    string // optional
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Host overrides the API host, mostly for tests.
	Host string
}

// SendGridSender sends through the SendGrid v3 mail API.
type SendGridSender struct {
	apiKey    string
	host      string
	fromEmail string
	fromName  string
	logger    *slog.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *slog.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Harmonie & Bien-Être"
	}
	return &SendGridSender{
		apiKey:    cfg.APIKey,
		host:      cfg.Host,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger.With(slog.String("component", "sendgrid")),
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.apiKey == "" {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, html)

	// The client carries the request body, so each send gets its own.
	req := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	req.Method = "POST"
	client := &sendgrid.Client{Request: req}

	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", slog.Any("err", err), slog.String("to", msg.To))
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status",
			slog.Int("status", response.StatusCode),
			slog.String("body", response.Body),
			slog.String("to", msg.To),
		)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent", slog.String("to", msg.To), slog.String("subject", msg.Subject), slog.Int("status", response.StatusCode))
	return nil
}

// StubEmailSender logs instead of sending. Used when email is disabled.
type StubEmailSender struct {
	logger *slog.Logger
}

func NewStubEmailSender(logger *slog.Logger) *StubEmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}
