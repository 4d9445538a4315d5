package notify

import (
	"context"
	"log/slog"

	"github.com/example/service-dispatch/internal/models"
	"github.com/example/service-dispatch/internal/observability"
	"github.com/example/service-dispatch/internal/settlement"
)

// Sink delivers a single intent. Implementations live in internal/push.
type Sink interface {
	Deliver(ctx context.Context, in Intent) error
}

// Emitter fans intents out to the sink without ever failing or blocking the
// caller: delivery runs in its own goroutine and failures are logged,
// counted and dropped.
type Emitter struct {
	sink   Sink
	logger *slog.Logger
}

func NewEmitter(sink Sink, logger *slog.Logger) *Emitter {
	return &Emitter{sink: sink, logger: logger}
}

func (e *Emitter) TransitionOccurred(req *models.ServiceRequest, from models.Status) {
	e.Emit(ForTransition(req, from))
}

func (e *Emitter) SettlementOccurred(req *models.ServiceRequest, out *settlement.Outcome) {
	e.Emit(ForSettlement(req, out))
}

// Emit dispatches the intents and returns immediately.
func (e *Emitter) Emit(intents []Intent) {
	if len(intents) == 0 || e.sink == nil {
		return
	}
	go func() {
		ctx := context.Background()
		for _, in := range intents {
			if err := e.sink.Deliver(ctx, in); err != nil {
				observability.NotifyFailuresTotal.Inc()
				e.logger.Warn("intent delivery failed",
					"kind", in.Kind, "recipient", in.Recipient, "error", err)
			}
		}
	}()
}
