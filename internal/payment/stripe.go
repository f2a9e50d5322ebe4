package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"harmonie/backend/internal/domain"
)

var stripeTracer = otel.Tracer("harmonie.internal.payment.stripe")

var ErrPaymentsDisabled = errors.New("payment: payments are not configured")

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Status       string `json:"status"`
	AmountCents  int64  `json:"amountCents"`
	Currency     string `json:"currency"`
}

type Gateway interface {
	CreateIntent(ctx context.Context, q Quote, b domain.Booking) (Intent, error)
}

type StripeConfig struct {
	SecretKey string
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL           string
	DryRun            bool
	HTTPClient        *http.Client
	MaxNetworkRetries int64
}

type StripeGateway struct {
	api    *client.API
	dryRun bool
	logger *slog.Logger
}

// NewStripeGateway always returns a gateway; without a secret key and outside
// dry-run every call fails with ErrPaymentsDisabled.
func NewStripeGateway(cfg StripeConfig, logger *slog.Logger) *StripeGateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &StripeGateway{
		dryRun: cfg.DryRun,
		logger: logger.With(slog.String("component", "stripe")),
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return g
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.BaseURL, "/"))
	}
	g.api = client.New(cfg.SecretKey, stripe.NewBackendsWithConfig(backendCfg))
	return g
}

func (g *StripeGateway) Enabled() bool {
	return g.api != nil || g.dryRun
}

// CreateIntent opens a PaymentIntent for the quoted amount. The booking id is
// the Stripe idempotency key, so retries return the same intent.
func (g *StripeGateway) CreateIntent(ctx context.Context, q Quote, b domain.Booking) (Intent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_payment_intent")
	defer span.End()
	span.SetAttributes(
		attribute.String("harmonie.booking_id", b.ID),
		attribute.String("harmonie.service", string(q.Service)),
		attribute.Int64("harmonie.amount_cents", q.FinalPriceCents),
	)

	if g.dryRun {
		g.logger.Info("stripe dry run: skipping payment intent", slog.String("booking_id", b.ID), slog.Int64("amount_cents", q.FinalPriceCents))
		return Intent{
			ID:           "pi_dryrun_" + b.ID,
			ClientSecret: "pi_dryrun_" + b.ID + "_secret",
			Status:       string(stripe.PaymentIntentStatusRequiresPaymentMethod),
			AmountCents:  q.FinalPriceCents,
			Currency:     q.Currency,
		}, nil
	}
	if g.api == nil {
		return Intent{}, ErrPaymentsDisabled
	}

	params := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(q.FinalPriceCents),
		Currency:     stripe.String(q.Currency),
		Description:  stripe.String(domain.ServiceName(q.Service) + " " + b.Date + " " + b.StartTime.String()),
		ReceiptEmail: stripe.String(b.Email),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("harmonie:booking:" + b.ID)
	params.AddMetadata("booking_id", b.ID)
	params.AddMetadata("service", string(q.Service))
	params.AddMetadata("loyalty_tier", string(q.Tier))

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create payment intent")
		g.logger.Error("stripe create payment intent failed", slog.Any("err", err), slog.String("booking_id", b.ID))
		return Intent{}, fmt.Errorf("payment: stripe: %w", err)
	}

	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}
