package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/service-dispatch/internal/models"
	"github.com/example/service-dispatch/internal/storage"
)

// Recorder handles the payment collaborator's callbacks. It records verdicts
// on the request row and never touches lifecycle status; the booking state
// machine does not know about money collection.
type Recorder struct {
	requests storage.RequestStore
	gateway  Gateway // optional; nil when no processor is configured
	logger   *slog.Logger
}

func NewRecorder(requests storage.RequestStore, gateway Gateway, logger *slog.Logger) *Recorder {
	return &Recorder{requests: requests, gateway: gateway, logger: logger}
}

// Hold places a best-effort hold for the request price once a provider has
// claimed it. The returned reference travels with the collaborator and comes
// back on confirm or release. No processor configured means no hold.
func (r *Recorder) Hold(ctx context.Context, req *models.ServiceRequest) (string, error) {
	if r.gateway == nil {
		return "", nil
	}
	ref, err := r.gateway.Hold(ctx, req.PriceCents, "usd", req.RequesterID)
	if err != nil {
		return "", fmt.Errorf("hold for %s: %w", req.ID, err)
	}
	r.logger.Info("payment held", "request_id", req.ID, "ref", ref, "amount_cents", req.PriceCents)
	return ref, nil
}

// Confirm persists the confirmed payment. When the collaborator passes a
// gateway reference for a held intent, the capture is finalized best-effort.
func (r *Recorder) Confirm(ctx context.Context, requestID string, amountCents int64, settledAt time.Time, gatewayRef string) error {
	if err := r.requests.SetPaymentStatus(ctx, requestID, "confirmed", amountCents, settledAt); err != nil {
		return fmt.Errorf("record payment for %s: %w", requestID, err)
	}
	if gatewayRef != "" && r.gateway != nil {
		if err := r.gateway.Capture(ctx, gatewayRef); err != nil {
			r.logger.Warn("gateway capture failed", "request_id", requestID, "ref", gatewayRef, "error", err)
		}
	}
	r.logger.Info("payment confirmed", "request_id", requestID, "amount_cents", amountCents)
	return nil
}

// Release records that no money changes hands, typically after a
// cancellation, and drops any held intent best-effort.
func (r *Recorder) Release(ctx context.Context, requestID string, at time.Time, gatewayRef string) error {
	if err := r.requests.SetPaymentStatus(ctx, requestID, "released", 0, at); err != nil {
		return fmt.Errorf("record release for %s: %w", requestID, err)
	}
	if gatewayRef != "" && r.gateway != nil {
		if err := r.gateway.Cancel(ctx, gatewayRef); err != nil {
			r.logger.Warn("gateway cancel failed", "request_id", requestID, "ref", gatewayRef, "error", err)
		}
	}
	r.logger.Info("payment released", "request_id", requestID)
	return nil
}
