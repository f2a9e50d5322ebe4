package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/loyalty"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBooking() domain.Booking {
	return domain.Booking{
		ID:              "BKG-7",
		Email:           "lea@example.fr",
		Service:         domain.ServiceSwedishMassage,
		Date:            "2025-02-03",
		StartTime:       domain.NewTimeOfDay(14, 0),
		DurationMinutes: 60,
		Status:          domain.BookingStatusConfirmed,
	}
}

func TestNewQuote(t *testing.T) {
	tests := []struct {
		name     string
		service  domain.ServiceCode
		tier     loyalty.Tier
		base     int64
		percent  int
		final    int64
		currency string
	}{
		{name: "bronze", service: domain.ServiceSwedishMassage, tier: loyalty.TierBronze, base: 7500, percent: 0, final: 7500, currency: "eur"},
		{name: "default tier", service: domain.ServiceReflexology, tier: "", base: 4500, percent: 0, final: 4500, currency: "eur"},
		{name: "silver", service: domain.ServiceSwedishMassage, tier: loyalty.TierSilver, base: 7500, percent: 5, final: 7125, currency: "eur"},
		{name: "gold", service: domain.ServiceHotStones, tier: loyalty.TierGold, base: 11000, percent: 10, final: 9900, currency: "eur"},
		{name: "platinum", service: domain.ServiceReflexology, tier: loyalty.TierPlatinum, base: 4500, percent: 15, final: 3825, currency: "eur"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewQuote(tt.service, tt.tier, "EUR")
			require.NoError(t, err)
			assert.Equal(t, tt.base, q.BasePriceCents)
			assert.Equal(t, tt.percent, q.DiscountPercent)
			assert.Equal(t, tt.final, q.FinalPriceCents)
			assert.Equal(t, tt.base-tt.final, q.DiscountCents)
			assert.Equal(t, tt.currency, q.Currency)
		})
	}
}

func TestNewQuote_UnknownService(t *testing.T) {
	_, err := NewQuote("massage-thai", loyalty.TierGold, "")
	var unknown *UnknownServiceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, domain.ServiceCode("massage-thai"), unknown.Service)
}

func TestStripeGateway_DisabledWithoutKey(t *testing.T) {
	g := NewStripeGateway(StripeConfig{}, testLogger())
	assert.False(t, g.Enabled())

	q, err := NewQuote(domain.ServiceSwedishMassage, loyalty.TierBronze, "eur")
	require.NoError(t, err)
	_, err = g.CreateIntent(context.Background(), q, testBooking())
	assert.True(t, errors.Is(err, ErrPaymentsDisabled))
}

func TestStripeGateway_DryRun(t *testing.T) {
	g := NewStripeGateway(StripeConfig{DryRun: true}, testLogger())
	require.True(t, g.Enabled())

	q, err := NewQuote(domain.ServiceSwedishMassage, loyalty.TierSilver, "eur")
	require.NoError(t, err)
	intent, err := g.CreateIntent(context.Background(), q, testBooking())
	require.NoError(t, err)
	assert.Equal(t, "pi_dryrun_BKG-7", intent.ID)
	assert.Equal(t, int64(7125), intent.AmountCents)
	assert.Equal(t, "requires_payment_method", intent.Status)
}

func TestStripeGateway_CreatesIntent(t *testing.T) {
	var form map[string]string
	var idempotencyKey, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"amount":               r.PostForm.Get("amount"),
			"currency":             r.PostForm.Get("currency"),
			"receipt_email":        r.PostForm.Get("receipt_email"),
			"metadata[booking_id]": r.PostForm.Get("metadata[booking_id]"),
		}
		idempotencyKey = r.Header.Get("Idempotency-Key")
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":7125,"currency":"eur","client_secret":"pi_123_secret_abc","status":"requires_payment_method"}`))
	}))
	defer srv.Close()

	g := NewStripeGateway(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL, HTTPClient: srv.Client()}, testLogger())
	q, err := NewQuote(domain.ServiceSwedishMassage, loyalty.TierSilver, "eur")
	require.NoError(t, err)

	intent, err := g.CreateIntent(context.Background(), q, testBooking())
	require.NoError(t, err)

	assert.Equal(t, Intent{ID: "pi_123", ClientSecret: "pi_123_secret_abc", Status: "requires_payment_method", AmountCents: 7125, Currency: "eur"}, intent)
	assert.Equal(t, "7125", form["amount"])
	assert.Equal(t, "eur", form["currency"])
	assert.Equal(t, "lea@example.fr", form["receipt_email"])
	assert.Equal(t, "BKG-7", form["metadata[booking_id]"])
	assert.Equal(t, "harmonie:booking:BKG-7", idempotencyKey)
	assert.Equal(t, "Bearer sk_test_123", auth)
}

func TestStripeGateway_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Amount too small"}}`))
	}))
	defer srv.Close()

	g := NewStripeGateway(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL, HTTPClient: srv.Client()}, testLogger())
	q, err := NewQuote(domain.ServiceReflexology, loyalty.TierBronze, "eur")
	require.NoError(t, err)

	_, err = g.CreateIntent(context.Background(), q, testBooking())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPaymentsDisabled)
}
