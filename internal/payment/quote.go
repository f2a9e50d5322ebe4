// Package payment prices services and opens Stripe payment intents.
package payment

import (
	"fmt"
	"strings"

	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/loyalty"
)

const DefaultCurrency = "eur"

// Quote amounts are integer cents.
type Quote struct {
	Service         domain.ServiceCode `json:"service"`
	Tier            loyalty.Tier       `json:"tier"`
	Currency        string             `json:"currency"`
	BasePriceCents  int64              `json:"basePriceCents"`
	DiscountPercent int                `json:"discountPercent"`
	DiscountCents   int64              `json:"discountCents"`
	FinalPriceCents int64              `json:"finalPriceCents"`
}

type UnknownServiceError struct {
	Service domain.ServiceCode
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("unknown service %q", e.Service)
}

// NewQuote applies the tier discount to the catalog price, rounding the
// discount down to the cent.
func NewQuote(service domain.ServiceCode, tier loyalty.Tier, currency string) (Quote, error) {
	svc, ok := domain.LookupService(service)
	if !ok {
		return Quote{}, &UnknownServiceError{Service: service}
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if tier == "" {
		tier = loyalty.TierBronze
	}

	percent := loyalty.DiscountPercent(tier)
	discount := svc.PriceCents * int64(percent) / 100
	return Quote{
		Service:         service,
		Tier:            tier,
		Currency:        currency,
		BasePriceCents:  svc.PriceCents,
		DiscountPercent: percent,
		DiscountCents:   discount,
		FinalPriceCents: svc.PriceCents - discount,
	}, nil
}
