package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/service-dispatch/internal/models"
	"github.com/example/service-dispatch/internal/observability"
	"github.com/example/service-dispatch/internal/settlement"
	"github.com/example/service-dispatch/internal/storage"
)

var (
	// ErrNotFound means the request id is unknown.
	ErrNotFound = errors.New("request not found")
	// ErrConflict means another caller won the race for this request.
	ErrConflict = errors.New("request no longer available")
	// ErrRejected means the transition is illegal or the actor is not
	// authorized; nothing was mutated.
	ErrRejected = errors.New("transition rejected")
)

// Settler is invoked synchronously on the completed transition.
type Settler interface {
	Settle(ctx context.Context, req *models.ServiceRequest) (*settlement.Outcome, error)
}

// Emitter receives lifecycle facts after they have been persisted. It must
// never fail the calling operation.
type Emitter interface {
	TransitionOccurred(req *models.ServiceRequest, from models.Status)
	SettlementOccurred(req *models.ServiceRequest, out *settlement.Outcome)
}

// Ledger owns the authoritative status of every request and enforces
// exclusive acceptance plus the fixed transition graph.
type Ledger struct {
	store   storage.RequestStore
	settler Settler
	emitter Emitter
	logger  *slog.Logger
}

func New(store storage.RequestStore, settler Settler, emitter Emitter, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, settler: settler, emitter: emitter, logger: logger}
}

// Accept claims a pending request for a provider. The claim is a single
// conditional write; exactly one concurrent caller can win. Losers get
// ErrConflict, unknown ids get ErrNotFound.
func (l *Ledger) Accept(ctx context.Context, requestID, providerID string) (*models.ServiceRequest, error) {
	req, err := l.store.ClaimRequest(ctx, requestID, providerID, time.Now())
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			// Zero rows means either the id is unknown or someone else
			// already holds the request; a plain read disambiguates.
			if _, getErr := l.store.GetRequest(ctx, requestID); errors.Is(getErr, storage.ErrNotFound) {
				return nil, ErrNotFound
			}
			observability.ClaimConflictsTotal.Inc()
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("claim %s: %w", requestID, err)
	}

	observability.ClaimsTotal.Inc()
	l.logger.Info("request claimed", "request_id", requestID, "provider_id", providerID)
	l.emitter.TransitionOccurred(req, models.StatusPending)
	return req, nil
}

// Transition moves a request along the lifecycle graph on behalf of actorID.
// On the completed edge the settlement engine runs before Transition
// returns, so callers observe settlement effects as part of this operation.
func (l *Ledger) Transition(ctx context.Context, requestID string, target models.Status, actorID string) (*models.ServiceRequest, error) {
	req, err := l.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %s: %w", requestID, err)
	}

	if err := authorize(req, target, actorID); err != nil {
		return nil, err
	}
	if !CanTransition(req.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrRejected, req.Status, target)
	}

	from := req.Status
	updated, err := l.store.UpdateRequestStatus(ctx, requestID, from, target, time.Now())
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			// Status moved underneath us between the read and the write.
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("transition %s: %w", requestID, err)
	}

	observability.TransitionsTotal.WithLabelValues(string(target)).Inc()

	var outcome *settlement.Outcome
	if target == models.StatusCompleted {
		outcome, err = l.settler.Settle(ctx, updated)
		if err != nil {
			return nil, fmt.Errorf("settlement for %s: %w", requestID, err)
		}
	}

	l.emitter.TransitionOccurred(updated, from)
	if outcome != nil {
		l.emitter.SettlementOccurred(updated, outcome)
	}
	return updated, nil
}

// authorize enforces who may drive each edge: the assigned provider for
// everything, plus the requester for cancellation while the request is
// still pending or accepted.
func authorize(req *models.ServiceRequest, target models.Status, actorID string) error {
	if target == models.StatusCancelled {
		if actorID == req.RequesterID &&
			(req.Status == models.StatusPending || req.Status == models.StatusAccepted) {
			return nil
		}
		if req.ProviderID != "" && actorID == req.ProviderID {
			return nil
		}
		return fmt.Errorf("%w: actor %s may not cancel", ErrRejected, actorID)
	}
	if req.ProviderID == "" || actorID != req.ProviderID {
		return fmt.Errorf("%w: actor %s is not the assigned provider", ErrRejected, actorID)
	}
	return nil
}
