package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/service-dispatch/internal/models"
)

var (
	// ErrNotFound means no row exists for the id.
	ErrNotFound = errors.New("storage: not found")
	// ErrNoRows means a conditional write matched nothing: the row is
	// missing or its status no longer satisfies the condition.
	ErrNoRows = errors.New("storage: conditional write affected no rows")
	// ErrDuplicate means a uniqueness constraint was violated.
	ErrDuplicate = errors.New("storage: duplicate")
)

// RequestStore persists service requests. Status-changing writes are
// conditional on the current status so lifecycle invariants hold at the
// write boundary, not in callers.
type RequestStore interface {
	CreateRequest(ctx context.Context, req *models.ServiceRequest) error
	GetRequest(ctx context.Context, id string) (*models.ServiceRequest, error)
	// ClaimRequest atomically sets the provider and moves pending ->
	// accepted. Returns ErrNoRows when the request is missing or not
	// pending anymore.
	ClaimRequest(ctx context.Context, id, providerID string, at time.Time) (*models.ServiceRequest, error)
	// UpdateRequestStatus moves from -> to, stamping the transition
	// timestamp, conditional on the stored status still being from.
	UpdateRequestStatus(ctx context.Context, id string, from, to models.Status, at time.Time) (*models.ServiceRequest, error)
	// SetPaymentStatus records the payment collaborator's verdict. It never
	// touches lifecycle status.
	SetPaymentStatus(ctx context.Context, id, status string, amountCents int64, at time.Time) error
}

// PartyStore persists the two party kinds. Aggregates and derived fields on
// them are written only through the settlement transaction.
type PartyStore interface {
	GetProvider(ctx context.Context, id string) (*models.Provider, error)
	GetRequester(ctx context.Context, id string) (*models.Requester, error)
	UpsertProvider(ctx context.Context, p *models.Provider) error
	UpsertRequester(ctx context.Context, r *models.Requester) error
}

// EarningsStore reads the append-only earning records.
type EarningsStore interface {
	EarningsSummary(ctx context.Context, providerID string, from, to time.Time) (*models.EarningsSummary, error)
}
