package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/service-dispatch/internal/models"
	"github.com/example/service-dispatch/internal/settlement"
)

// MemoryStore is a process-local store used for tests and for running the
// binary without Postgres. One lock guards everything; the conditional-write
// semantics match the Postgres implementation exactly.
type MemoryStore struct {
	mu               sync.RWMutex
	requests         map[string]*models.ServiceRequest
	providers        map[string]*models.Provider
	requesters       map[string]*models.Requester
	earnings         []models.EarningRecord
	earningByRequest map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:         make(map[string]*models.ServiceRequest),
		providers:        make(map[string]*models.Provider),
		requesters:       make(map[string]*models.Requester),
		earningByRequest: make(map[string]struct{}),
	}
}

func (m *MemoryStore) CreateRequest(ctx context.Context, req *models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[req.ID]; ok {
		return ErrDuplicate
	}
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ClaimRequest(ctx context.Context, id, providerID string, at time.Time) (*models.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != models.StatusPending {
		return nil, ErrNoRows
	}
	r.ProviderID = providerID
	r.Status = models.StatusAccepted
	ts := at
	r.AssignedAt = &ts
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateRequestStatus(ctx context.Context, id string, from, to models.Status, at time.Time) (*models.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != from {
		return nil, ErrNoRows
	}
	r.Status = to
	ts := at
	switch to {
	case models.StatusInProgress:
		r.StartedAt = &ts
	case models.StatusCompleted:
		r.CompletedAt = &ts
	case models.StatusCancelled:
		r.CancelledAt = &ts
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) SetPaymentStatus(ctx context.Context, id, status string, amountCents int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	r.PaymentStatus = status
	r.PaymentAmountCents = amountCents
	ts := at
	r.PaidAt = &ts
	return nil
}

func (m *MemoryStore) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetRequester(ctx context.Context, id string) (*models.Requester, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requesters[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpsertProvider(ctx context.Context, p *models.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	if cp.Level == "" {
		cp.Level = settlement.LevelBeginner
	}
	m.providers[p.ID] = &cp
	return nil
}

func (m *MemoryStore) UpsertRequester(ctx context.Context, r *models.Requester) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	if cp.Tier == "" {
		cp.Tier = settlement.TierBronze
	}
	m.requesters[r.ID] = &cp
	return nil
}

func (m *MemoryStore) EarningsSummary(ctx context.Context, providerID string, from, to time.Time) (*models.EarningsSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum models.EarningsSummary
	for _, rec := range m.earnings {
		if rec.ProviderID != providerID || rec.CreatedAt.Before(from) || rec.CreatedAt.After(to) {
			continue
		}
		sum.Count++
		sum.TotalPayoutCents += rec.PayoutCents
	}
	if sum.Count > 0 {
		sum.AvgPayoutCents = sum.TotalPayoutCents / sum.Count
	}
	return &sum, nil
}

// InSettlementTx holds the store lock for the duration of fn and restores
// every touched entity if fn fails, so the four settlement writes land
// together or not at all.
func (m *MemoryStore) InSettlementTx(ctx context.Context, fn func(settlement.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{store: m}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memTx mutates the store in place under the held lock, recording undo
// closures in case fn aborts partway.
type memTx struct {
	store *MemoryStore
	undo  []func()
}

func (t *memTx) SetRequestAmounts(ctx context.Context, requestID string, commissionCents, payoutCents int64) error {
	r, ok := t.store.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	prevC, prevP := r.CommissionCents, r.PayoutCents
	t.undo = append(t.undo, func() { r.CommissionCents, r.PayoutCents = prevC, prevP })
	r.CommissionCents = commissionCents
	r.PayoutCents = payoutCents
	return nil
}

func (t *memTx) InsertEarning(ctx context.Context, rec models.EarningRecord) error {
	if _, ok := t.store.earningByRequest[rec.RequestID]; ok {
		return ErrDuplicate
	}
	t.store.earnings = append(t.store.earnings, rec)
	t.store.earningByRequest[rec.RequestID] = struct{}{}
	t.undo = append(t.undo, func() {
		t.store.earnings = t.store.earnings[:len(t.store.earnings)-1]
		delete(t.store.earningByRequest, rec.RequestID)
	})
	return nil
}

func (t *memTx) AddProviderCompletion(ctx context.Context, providerID string, payoutCents int64) (models.ProviderAggregates, error) {
	p, ok := t.store.providers[providerID]
	if !ok {
		return models.ProviderAggregates{}, ErrNotFound
	}
	prev := p.ProviderAggregates
	t.undo = append(t.undo, func() { p.ProviderAggregates = prev })
	p.CompletedCount++
	p.PayoutTotalCents += payoutCents
	return p.ProviderAggregates, nil
}

func (t *memTx) AddRequesterCompletion(ctx context.Context, requesterID string, spendCents, loyaltyPoints int64) (models.RequesterAggregates, error) {
	r, ok := t.store.requesters[requesterID]
	if !ok {
		return models.RequesterAggregates{}, ErrNotFound
	}
	prev := r.RequesterAggregates
	t.undo = append(t.undo, func() { r.RequesterAggregates = prev })
	r.CompletedCount++
	r.SpendTotalCents += spendCents
	r.LoyaltyPoints += loyaltyPoints
	return r.RequesterAggregates, nil
}

func (t *memTx) SetProviderLevel(ctx context.Context, providerID, level string) error {
	p, ok := t.store.providers[providerID]
	if !ok {
		return ErrNotFound
	}
	prev := p.Level
	t.undo = append(t.undo, func() { p.Level = prev })
	p.Level = level
	return nil
}

func (t *memTx) SetRequesterTier(ctx context.Context, requesterID, tier string) error {
	r, ok := t.store.requesters[requesterID]
	if !ok {
		return ErrNotFound
	}
	prev := r.Tier
	t.undo = append(t.undo, func() { r.Tier = prev })
	r.Tier = tier
	return nil
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}
