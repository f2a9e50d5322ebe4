// Package loyalty derives a customer's points and tier from booking history.
package loyalty

import (
	"fmt"
	"strings"

	"harmonie/backend/internal/domain"
)

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

type level struct {
	tier      Tier
	minPoints int
	discount  int
}

// Ascending by minPoints.
var levels = []level{
	{tier: TierBronze, minPoints: 0, discount: 0},
	{tier: TierSilver, minPoints: 300, discount: 5},
	{tier: TierGold, minPoints: 750, discount: 10},
	{tier: TierPlatinum, minPoints: 1500, discount: 15},
}

type Summary struct {
	Email           string `json:"email"`
	Points          int    `json:"points"`
	Visits          int    `json:"visits"`
	Tier            Tier   `json:"tier"`
	DiscountPercent int    `json:"discountPercent"`
	// NextTier is empty at the top tier.
	NextTier     Tier `json:"nextTier,omitempty"`
	PointsToNext int  `json:"pointsToNext"`
}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return TierBronze, nil
	}
	for _, l := range levels {
		if l.tier == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown loyalty tier %q", s)
}

func TierFor(points int) Tier {
	tier := TierBronze
	for _, l := range levels {
		if points >= l.minPoints {
			tier = l.tier
		}
	}
	return tier
}

// DiscountPercent returns 0 for unknown tiers.
func DiscountPercent(t Tier) int {
	for _, l := range levels {
		if l.tier == t {
			return l.discount
		}
	}
	return 0
}

// Compute awards one point per euro of base price for every confirmed
// booking of email dated strictly before today ("YYYY-MM-DD").
func Compute(email string, bookings []domain.Booking, today string) Summary {
	email = normalizeEmail(email)
	s := Summary{Email: email}

	for _, b := range bookings {
		if normalizeEmail(b.Email) != email || !b.IsConfirmed() || b.Date >= today {
			continue
		}
		s.Visits++
		if svc, ok := domain.LookupService(b.Service); ok {
			s.Points += int(svc.PriceCents / 100)
		}
	}

	s.Tier = TierFor(s.Points)
	s.DiscountPercent = DiscountPercent(s.Tier)
	for _, l := range levels {
		if l.minPoints > s.Points {
			s.NextTier = l.tier
			s.PointsToNext = l.minPoints - s.Points
			break
		}
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
