package settlement

import "github.com/example/service-dispatch/internal/models"

// Requester tiers and provider levels, lowest to highest.
const (
	TierBronze = "bronze"
	TierSilver = "silver"
	TierGold   = "gold"

	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
	LevelExpert       = "expert"
)

// RequesterTier derives the loyalty tier from aggregates. Pure and
// idempotent: the same aggregates always yield the same tier.
func RequesterTier(agg models.RequesterAggregates) string {
	switch {
	case agg.CompletedCount >= 50:
		return TierGold
	case agg.CompletedCount >= 20:
		return TierSilver
	default:
		return TierBronze
	}
}

// ProviderLevel derives the skill level from aggregates.
func ProviderLevel(agg models.ProviderAggregates) string {
	switch {
	case agg.CompletedCount >= 100 && agg.RatingAvg >= 4.5 && agg.ReviewCount >= 50:
		return LevelExpert
	case agg.CompletedCount >= 50 && agg.RatingAvg >= 4.0:
		return LevelAdvanced
	case agg.CompletedCount >= 20 && agg.RatingAvg >= 3.5:
		return LevelIntermediate
	default:
		return LevelBeginner
	}
}

// CommissionCents computes the platform commission for a price at the given
// rate in basis points, rounded half-down to the minor unit so the provider
// is never over-charged on the half cent.
func CommissionCents(priceCents, rateBp int64) int64 {
	return roundHalfDown(priceCents*rateBp, 10000)
}

// LoyaltyPoints awards one point per whole major currency unit spent.
func LoyaltyPoints(priceCents int64) int64 {
	return priceCents / 100
}

func roundHalfDown(num, den int64) int64 {
	q := num / den
	if 2*(num%den) > den {
		q++
	}
	return q
}
