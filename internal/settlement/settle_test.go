package settlement_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/service-dispatch/internal/models"
	"github.com/example/service-dispatch/internal/settlement"
	"github.com/example/service-dispatch/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T, store *storage.MemoryStore, provider models.Provider, requester models.Requester, req *models.ServiceRequest) {
	t.Helper()
	ctx := context.Background()
	if err := store.UpsertProvider(ctx, &provider); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertRequester(ctx, &requester); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateRequest(ctx, req); err != nil {
		t.Fatal(err)
	}
}

func TestSettleSplitsPriceExactly(t *testing.T) {
	store := storage.NewMemoryStore()
	completed := time.Now()
	req := &models.ServiceRequest{
		ID: "r1", RequesterID: "c1", ProviderID: "p1",
		PriceCents: 10000, Status: models.StatusCompleted, CompletedAt: &completed,
	}
	seed(t, store,
		models.Provider{ID: "p1", CommissionRateBp: 3000},
		models.Requester{ID: "c1"},
		req,
	)

	engine := settlement.NewEngine(store, testLogger())
	out, err := engine.Settle(context.Background(), req)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if req.CommissionCents != 3000 || req.PayoutCents != 7000 {
		t.Fatalf("split = %d + %d, want 3000 + 7000", req.CommissionCents, req.PayoutCents)
	}
	if req.CommissionCents+req.PayoutCents != req.PriceCents {
		t.Fatalf("split does not conserve the price")
	}
	if out.Record.PayoutCents != 7000 || out.Record.RequestID != "r1" {
		t.Fatalf("unexpected earning record %+v", out.Record)
	}

	sum, err := store.EarningsSummary(context.Background(), "p1", completed.Add(-time.Hour), completed.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 1 || sum.TotalPayoutCents != 7000 {
		t.Fatalf("earnings summary = %+v, want one record of 7000", sum)
	}
}

func TestSettleConservesOddPrices(t *testing.T) {
	for _, price := range []int64{1, 15, 3333, 9999, 12345} {
		store := storage.NewMemoryStore()
		req := &models.ServiceRequest{
			ID: "r1", RequesterID: "c1", ProviderID: "p1",
			PriceCents: price, Status: models.StatusCompleted,
		}
		seed(t, store,
			models.Provider{ID: "p1", CommissionRateBp: 3000},
			models.Requester{ID: "c1"},
			req,
		)
		engine := settlement.NewEngine(store, testLogger())
		if _, err := engine.Settle(context.Background(), req); err != nil {
			t.Fatalf("price %d: %v", price, err)
		}
		if req.CommissionCents+req.PayoutCents != price {
			t.Fatalf("price %d split into %d + %d", price, req.CommissionCents, req.PayoutCents)
		}
	}
}

func TestSettleBumpsAggregatesAndRanks(t *testing.T) {
	store := storage.NewMemoryStore()
	req := &models.ServiceRequest{
		ID: "r1", RequesterID: "c1", ProviderID: "p1",
		PriceCents: 5200, Status: models.StatusCompleted,
	}
	seed(t, store,
		models.Provider{
			ID: "p1", CommissionRateBp: 2500,
			ProviderAggregates: models.ProviderAggregates{
				CompletedCount: 19, RatingAvg: 3.8, ReviewCount: 10, Level: settlement.LevelBeginner,
			},
		},
		models.Requester{
			ID: "c1",
			RequesterAggregates: models.RequesterAggregates{
				CompletedCount: 19, Tier: settlement.TierBronze,
			},
		},
		req,
	)

	engine := settlement.NewEngine(store, testLogger())
	out, err := engine.Settle(context.Background(), req)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if out.ProviderAggregates.CompletedCount != 20 {
		t.Fatalf("provider completed = %d, want 20", out.ProviderAggregates.CompletedCount)
	}
	if !out.LevelChanged || out.ProviderAggregates.Level != settlement.LevelIntermediate {
		t.Fatalf("expected level change to intermediate, got %+v", out.ProviderAggregates)
	}
	if out.RequesterAggregates.CompletedCount != 20 {
		t.Fatalf("requester completed = %d, want 20", out.RequesterAggregates.CompletedCount)
	}
	if !out.TierChanged || out.RequesterAggregates.Tier != settlement.TierSilver {
		t.Fatalf("expected tier change to silver, got %+v", out.RequesterAggregates)
	}
	if out.RequesterAggregates.LoyaltyPoints != 52 {
		t.Fatalf("loyalty points = %d, want 52", out.RequesterAggregates.LoyaltyPoints)
	}

	p, err := store.GetProvider(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Level != settlement.LevelIntermediate || p.CompletedCount != 20 {
		t.Fatalf("stored provider = %+v", p.ProviderAggregates)
	}
}

func TestSettleNoRankChangeMidBand(t *testing.T) {
	store := storage.NewMemoryStore()
	req := &models.ServiceRequest{
		ID: "r1", RequesterID: "c1", ProviderID: "p1",
		PriceCents: 1000, Status: models.StatusCompleted,
	}
	seed(t, store,
		models.Provider{
			ID: "p1", CommissionRateBp: 3000,
			ProviderAggregates: models.ProviderAggregates{
				CompletedCount: 25, RatingAvg: 3.9, ReviewCount: 12, Level: settlement.LevelIntermediate,
			},
		},
		models.Requester{
			ID: "c1",
			RequesterAggregates: models.RequesterAggregates{
				CompletedCount: 30, Tier: settlement.TierSilver,
			},
		},
		req,
	)

	engine := settlement.NewEngine(store, testLogger())
	out, err := engine.Settle(context.Background(), req)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if out.LevelChanged || out.TierChanged {
		t.Fatalf("mid-band completion must not change ranks: %+v", out)
	}
}

func TestSettleRollsBackOnPartialFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	req := &models.ServiceRequest{
		ID: "r1", RequesterID: "missing", ProviderID: "p1",
		PriceCents: 10000, Status: models.StatusCompleted,
	}
	if err := store.UpsertProvider(ctx, &models.Provider{ID: "p1", CommissionRateBp: 3000}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateRequest(ctx, req); err != nil {
		t.Fatal(err)
	}

	engine := settlement.NewEngine(store, testLogger())
	if _, err := engine.Settle(ctx, req); err == nil {
		t.Fatal("expected settlement to fail for unknown requester")
	}

	// nothing from the aborted transaction may remain visible
	p, err := store.GetProvider(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.CompletedCount != 0 || p.PayoutTotalCents != 0 {
		t.Fatalf("provider aggregates leaked from aborted settlement: %+v", p.ProviderAggregates)
	}
	stored, err := store.GetRequest(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.CommissionCents != 0 || stored.PayoutCents != 0 {
		t.Fatalf("request amounts leaked from aborted settlement: %+v", stored)
	}
	sum, err := store.EarningsSummary(ctx, "p1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 0 {
		t.Fatalf("earning record leaked from aborted settlement")
	}
}
