package settlement

import (
	"testing"

	"github.com/example/service-dispatch/internal/models"
)

func TestCommissionCents(t *testing.T) {
	cases := []struct {
		name       string
		priceCents int64
		rateBp     int64
		want       int64
	}{
		{"exact split", 10000, 3000, 3000},
		{"zero price", 0, 3000, 0},
		{"zero rate", 10000, 0, 0},
		// 3333 * 30% = 999.9 -> fractional part above half rounds up
		{"above half rounds up", 3333, 3000, 1000},
		// 1667 * 30% = 500.1 -> below half rounds down
		{"below half rounds down", 1667, 3000, 500},
		// 15 * 30% = 4.5 -> exactly half rounds down
		{"exactly half rounds down", 15, 3000, 4},
		{"full rate", 2500, 10000, 2500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CommissionCents(tc.priceCents, tc.rateBp); got != tc.want {
				t.Fatalf("CommissionCents(%d, %d) = %d, want %d", tc.priceCents, tc.rateBp, got, tc.want)
			}
		})
	}
}

func TestCommissionNeverExceedsPrice(t *testing.T) {
	for _, price := range []int64{1, 99, 100, 101, 4999, 123456} {
		c := CommissionCents(price, 10000)
		if c > price {
			t.Fatalf("commission %d exceeds price %d at full rate", c, price)
		}
	}
}

func TestLoyaltyPoints(t *testing.T) {
	cases := []struct {
		priceCents int64
		want       int64
	}{
		{0, 0},
		{99, 0},
		{100, 1},
		{199, 1},
		{5200, 52},
	}
	for _, tc := range cases {
		if got := LoyaltyPoints(tc.priceCents); got != tc.want {
			t.Fatalf("LoyaltyPoints(%d) = %d, want %d", tc.priceCents, got, tc.want)
		}
	}
}

func TestRequesterTier(t *testing.T) {
	cases := []struct {
		completed int64
		want      string
	}{
		{0, TierBronze},
		{19, TierBronze},
		{20, TierSilver},
		{49, TierSilver},
		{50, TierGold},
		{500, TierGold},
	}
	for _, tc := range cases {
		agg := models.RequesterAggregates{CompletedCount: tc.completed}
		if got := RequesterTier(agg); got != tc.want {
			t.Fatalf("RequesterTier(completed=%d) = %s, want %s", tc.completed, got, tc.want)
		}
	}
}

func TestRequesterTierIdempotent(t *testing.T) {
	agg := models.RequesterAggregates{CompletedCount: 20, Tier: TierSilver}
	if got := RequesterTier(agg); got != TierSilver {
		t.Fatalf("re-deriving from unchanged aggregates moved the tier to %s", got)
	}
}

func TestProviderLevel(t *testing.T) {
	cases := []struct {
		name      string
		completed int64
		rating    float64
		reviews   int64
		want      string
	}{
		{"new provider", 0, 0, 0, LevelBeginner},
		{"count without rating", 30, 3.0, 10, LevelBeginner},
		{"intermediate threshold", 20, 3.5, 5, LevelIntermediate},
		{"advanced threshold", 50, 4.0, 10, LevelAdvanced},
		{"expert needs reviews", 100, 4.6, 49, LevelAdvanced},
		{"expert threshold", 100, 4.5, 50, LevelExpert},
		{"high rating low count", 5, 5.0, 100, LevelBeginner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := models.ProviderAggregates{
				CompletedCount: tc.completed,
				RatingAvg:      tc.rating,
				ReviewCount:    tc.reviews,
			}
			if got := ProviderLevel(agg); got != tc.want {
				t.Fatalf("ProviderLevel(%+v) = %s, want %s", agg, got, tc.want)
			}
		})
	}
}
