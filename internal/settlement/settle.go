package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/service-dispatch/internal/models"
	"github.com/example/service-dispatch/internal/observability"
)

// Tx is the set of writes available inside one settlement transaction.
// Either all of them commit or none do.
type Tx interface {
	SetRequestAmounts(ctx context.Context, requestID string, commissionCents, payoutCents int64) error
	InsertEarning(ctx context.Context, rec models.EarningRecord) error
	// AddProviderCompletion bumps completed count and payout sum and returns
	// the aggregates after the bump.
	AddProviderCompletion(ctx context.Context, providerID string, payoutCents int64) (models.ProviderAggregates, error)
	AddRequesterCompletion(ctx context.Context, requesterID string, spendCents, loyaltyPoints int64) (models.RequesterAggregates, error)
	SetProviderLevel(ctx context.Context, providerID, level string) error
	SetRequesterTier(ctx context.Context, requesterID, tier string) error
}

// Store is the persistence surface the engine needs.
type Store interface {
	GetProvider(ctx context.Context, id string) (*models.Provider, error)
	// InSettlementTx runs fn within one all-or-nothing transaction.
	InSettlementTx(ctx context.Context, fn func(Tx) error) error
}

// Outcome describes what a settlement wrote, for the event emitter.
type Outcome struct {
	Record             models.EarningRecord
	ProviderAggregates models.ProviderAggregates
	RequesterAggregates models.RequesterAggregates
	LevelChanged       bool
	TierChanged        bool
}

// Engine performs the one-time settlement of a completed request. The
// assignment ledger guarantees it is invoked exactly once per request, on
// the exactly-once terminal transition to completed.
type Engine struct {
	store  Store
	logger *slog.Logger
}

func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Settle computes the commission split at the provider's current rate and
// persists the earning record, both parties' aggregates and their re-derived
// tier/level in a single transaction. On success req's commission and payout
// fields are filled in.
func (e *Engine) Settle(ctx context.Context, req *models.ServiceRequest) (*Outcome, error) {
	provider, err := e.store.GetProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("settle %s: %w", req.ID, err)
	}

	commission := CommissionCents(req.PriceCents, provider.CommissionRateBp)
	payout := req.PriceCents - commission
	points := LoyaltyPoints(req.PriceCents)

	settledAt := time.Now()
	if req.CompletedAt != nil {
		settledAt = *req.CompletedAt
	}
	out := &Outcome{
		Record: models.EarningRecord{
			ID:               uuid.NewString(),
			RequestID:        req.ID,
			ProviderID:       req.ProviderID,
			PayoutCents:      payout,
			CommissionRateBp: provider.CommissionRateBp,
			CreatedAt:        settledAt,
		},
	}

	err = e.store.InSettlementTx(ctx, func(tx Tx) error {
		if err := tx.SetRequestAmounts(ctx, req.ID, commission, payout); err != nil {
			return err
		}
		if err := tx.InsertEarning(ctx, out.Record); err != nil {
			return err
		}

		pAgg, err := tx.AddProviderCompletion(ctx, req.ProviderID, payout)
		if err != nil {
			return err
		}
		level := ProviderLevel(pAgg)
		if err := tx.SetProviderLevel(ctx, req.ProviderID, level); err != nil {
			return err
		}
		out.LevelChanged = level != pAgg.Level
		pAgg.Level = level
		out.ProviderAggregates = pAgg

		rAgg, err := tx.AddRequesterCompletion(ctx, req.RequesterID, req.PriceCents, points)
		if err != nil {
			return err
		}
		tier := RequesterTier(rAgg)
		if err := tx.SetRequesterTier(ctx, req.RequesterID, tier); err != nil {
			return err
		}
		out.TierChanged = tier != rAgg.Tier
		rAgg.Tier = tier
		out.RequesterAggregates = rAgg
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("settle %s: %w", req.ID, err)
	}

	req.CommissionCents = commission
	req.PayoutCents = payout
	observability.SettlementsTotal.Inc()
	e.logger.Info("request settled",
		"request_id", req.ID,
		"provider_id", req.ProviderID,
		"commission_cents", commission,
		"payout_cents", payout,
	)
	return out, nil
}
