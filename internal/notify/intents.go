package notify

import (
	"github.com/example/service-dispatch/internal/models"
	"github.com/example/service-dispatch/internal/settlement"
)

// Kind tags the notification intent payload variant.
type Kind string

const (
	KindRequestBroadcast Kind = "request_broadcast"
	KindRequestAccepted  Kind = "request_accepted"
	KindProviderEnRoute  Kind = "provider_en_route"
	KindWorkStarted      Kind = "work_started"
	KindWorkCompleted    Kind = "work_completed"
	KindRequestCancelled Kind = "request_cancelled"
	KindPayoutRecorded   Kind = "payout_recorded"
	KindTierUpgraded     Kind = "tier_upgraded"
	KindLevelChanged     Kind = "level_changed"
)

// Intent is a delivery instruction for the external notification transport.
// The engine only produces these; delivery and retry live elsewhere.
type Intent struct {
	Recipient string `json:"recipient"`
	Kind      Kind   `json:"kind"`
	Payload   any    `json:"payload"`
}

// BroadcastPayload accompanies KindRequestBroadcast, one per candidate.
type BroadcastPayload struct {
	RequestID      string       `json:"request_id"`
	Reference      string       `json:"reference"`
	ServiceKind    string       `json:"service_kind"`
	Site           models.Coord `json:"site"`
	PriceCents     int64        `json:"price_cents"`
	Urgent         bool         `json:"urgent"`
	DistanceMeters float64      `json:"distance_meters"`
	EtaSeconds     float64      `json:"eta_seconds,omitempty"`
}

// LifecyclePayload accompanies the transition kinds.
type LifecyclePayload struct {
	RequestID  string        `json:"request_id"`
	Reference  string        `json:"reference"`
	Status     models.Status `json:"status"`
	ProviderID string        `json:"provider_id,omitempty"`
}

// PayoutPayload accompanies KindPayoutRecorded.
type PayoutPayload struct {
	RequestID        string `json:"request_id"`
	PayoutCents      int64  `json:"payout_cents"`
	CommissionRateBp int64  `json:"commission_rate_bp"`
}

// RankPayload accompanies tier and level changes.
type RankPayload struct {
	Rank           string `json:"rank"`
	CompletedCount int64  `json:"completed_count"`
}

// ForTransition translates a persisted transition into intents. Pure: no
// side effects, no IO.
func ForTransition(req *models.ServiceRequest, from models.Status) []Intent {
	lifecycle := LifecyclePayload{
		RequestID:  req.ID,
		Reference:  req.Reference,
		Status:     req.Status,
		ProviderID: req.ProviderID,
	}

	switch req.Status {
	case models.StatusAccepted:
		return []Intent{{Recipient: req.RequesterID, Kind: KindRequestAccepted, Payload: lifecycle}}
	case models.StatusEnRoute:
		return []Intent{{Recipient: req.RequesterID, Kind: KindProviderEnRoute, Payload: lifecycle}}
	case models.StatusInProgress:
		return []Intent{{Recipient: req.RequesterID, Kind: KindWorkStarted, Payload: lifecycle}}
	case models.StatusCompleted:
		return []Intent{{Recipient: req.RequesterID, Kind: KindWorkCompleted, Payload: lifecycle}}
	case models.StatusCancelled:
		out := []Intent{{Recipient: req.RequesterID, Kind: KindRequestCancelled, Payload: lifecycle}}
		if req.ProviderID != "" {
			out = append(out, Intent{Recipient: req.ProviderID, Kind: KindRequestCancelled, Payload: lifecycle})
		}
		return out
	default:
		return nil
	}
}

// ForSettlement translates a settlement outcome into intents.
func ForSettlement(req *models.ServiceRequest, out *settlement.Outcome) []Intent {
	intents := []Intent{{
		Recipient: req.ProviderID,
		Kind:      KindPayoutRecorded,
		Payload: PayoutPayload{
			RequestID:        req.ID,
			PayoutCents:      out.Record.PayoutCents,
			CommissionRateBp: out.Record.CommissionRateBp,
		},
	}}
	if out.TierChanged {
		intents = append(intents, Intent{
			Recipient: req.RequesterID,
			Kind:      KindTierUpgraded,
			Payload: RankPayload{
				Rank:           out.RequesterAggregates.Tier,
				CompletedCount: out.RequesterAggregates.CompletedCount,
			},
		})
	}
	if out.LevelChanged {
		intents = append(intents, Intent{
			Recipient: req.ProviderID,
			Kind:      KindLevelChanged,
			Payload: RankPayload{
				Rank:           out.ProviderAggregates.Level,
				CompletedCount: out.ProviderAggregates.CompletedCount,
			},
		})
	}
	return intents
}
