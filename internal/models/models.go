package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Status is the lifecycle state of a ServiceRequest.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusEnRoute    Status = "en_route"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ServiceRequest is the unit of work flowing through the system. All money
// amounts are in minor currency units. ProviderID is empty until a provider
// has claimed the request; CommissionCents and PayoutCents are zero until
// settlement.
type ServiceRequest struct {
	ID              string `json:"id"`
	Reference       string `json:"reference"`
	RequesterID     string `json:"requester_id"`
	ProviderID      string `json:"provider_id,omitempty"`
	Site            Coord  `json:"site"`
	ServiceKind     string `json:"service_kind"`
	Urgent          bool   `json:"urgent"`
	PriceCents      int64  `json:"price_cents"`
	UrgencyFeeCents int64  `json:"urgency_fee_cents"`
	CommissionCents int64  `json:"commission_cents"`
	PayoutCents     int64  `json:"payout_cents"`
	Status          Status `json:"status"`

	// PaymentStatus and PaymentAmountCents are owned by the payment
	// collaborator, never by the lifecycle state machine.
	PaymentStatus      string     `json:"payment_status,omitempty"`
	PaymentAmountCents int64      `json:"payment_amount_cents,omitempty"`
	PaidAt             *time.Time `json:"paid_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// ProviderAggregates are rolling stats owned by the settlement engine.
// Level is derived from the other fields, never set directly.
type ProviderAggregates struct {
	CompletedCount   int64   `json:"completed_count"`
	PayoutTotalCents int64   `json:"payout_total_cents"`
	RatingAvg        float64 `json:"rating_avg"`
	ReviewCount      int64   `json:"review_count"`
	Level            string  `json:"level"`
}

type Provider struct {
	ID               string `json:"id"`
	CommissionRateBp int64  `json:"commission_rate_bp"` // basis points, 3000 = 30%
	Available        bool   `json:"available"`
	ProviderAggregates
}

// RequesterAggregates mirror ProviderAggregates for the other party.
// Tier is derived, never set directly.
type RequesterAggregates struct {
	CompletedCount  int64  `json:"completed_count"`
	SpendTotalCents int64  `json:"spend_total_cents"`
	LoyaltyPoints   int64  `json:"loyalty_points"`
	Tier            string `json:"tier"`
}

type Requester struct {
	ID string `json:"id"`
	RequesterAggregates
}

// EarningRecord is the append-only audit row written once per completed
// request. Never updated or deleted.
type EarningRecord struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id"`
	ProviderID       string    `json:"provider_id"`
	PayoutCents      int64     `json:"payout_cents"`
	CommissionRateBp int64     `json:"commission_rate_bp"`
	CreatedAt        time.Time `json:"created_at"`
}

// PositionUpdate is a provider-reported location sample. Timestamp is the
// client clock; the position index applies strictly newer samples only.
type PositionUpdate struct {
	ProviderID string    `json:"provider_id"`
	Loc        Coord     `json:"loc"`
	Available  bool      `json:"available"`
	Timestamp  time.Time `json:"timestamp"`
}

// Candidate is a provider returned by a nearest query, eligible to claim.
type Candidate struct {
	ProviderID     string  `json:"provider_id"`
	Loc            Coord   `json:"loc"`
	DistanceMeters float64 `json:"distance_meters"`
}

// EarningsSummary aggregates a provider's earnings over a period.
type EarningsSummary struct {
	Count            int64 `json:"count"`
	TotalPayoutCents int64 `json:"total_payout_cents"`
	AvgPayoutCents   int64 `json:"avg_payout_cents"`
}
