package notify

import (
	"testing"

	"github.com/example/service-dispatch/internal/models"
	"github.com/example/service-dispatch/internal/settlement"
)

func request(status models.Status) *models.ServiceRequest {
	return &models.ServiceRequest{
		ID: "r1", Reference: "SRX1", RequesterID: "c1", ProviderID: "p1",
		Status: status,
	}
}

func TestForTransitionKinds(t *testing.T) {
	cases := []struct {
		status models.Status
		kind   Kind
	}{
		{models.StatusAccepted, KindRequestAccepted},
		{models.StatusEnRoute, KindProviderEnRoute},
		{models.StatusInProgress, KindWorkStarted},
		{models.StatusCompleted, KindWorkCompleted},
	}
	for _, tc := range cases {
		intents := ForTransition(request(tc.status), models.StatusPending)
		if len(intents) != 1 {
			t.Fatalf("%s: got %d intents, want 1", tc.status, len(intents))
		}
		in := intents[0]
		if in.Kind != tc.kind || in.Recipient != "c1" {
			t.Fatalf("%s: got %s to %s", tc.status, in.Kind, in.Recipient)
		}
		p, ok := in.Payload.(LifecyclePayload)
		if !ok || p.RequestID != "r1" || p.Status != tc.status {
			t.Fatalf("%s: payload %+v", tc.status, in.Payload)
		}
	}
}

func TestForTransitionCancelNotifiesBothParties(t *testing.T) {
	intents := ForTransition(request(models.StatusCancelled), models.StatusAccepted)
	if len(intents) != 2 {
		t.Fatalf("got %d intents, want 2", len(intents))
	}
	recipients := map[string]bool{}
	for _, in := range intents {
		if in.Kind != KindRequestCancelled {
			t.Fatalf("unexpected kind %s", in.Kind)
		}
		recipients[in.Recipient] = true
	}
	if !recipients["c1"] || !recipients["p1"] {
		t.Fatalf("recipients = %v", recipients)
	}
}

func TestForTransitionCancelUnassigned(t *testing.T) {
	req := request(models.StatusCancelled)
	req.ProviderID = ""
	intents := ForTransition(req, models.StatusPending)
	if len(intents) != 1 || intents[0].Recipient != "c1" {
		t.Fatalf("unassigned cancel should only reach the requester: %v", intents)
	}
}

func TestForSettlementPayoutOnly(t *testing.T) {
	out := &settlement.Outcome{
		Record: models.EarningRecord{RequestID: "r1", PayoutCents: 7000, CommissionRateBp: 3000},
	}
	intents := ForSettlement(request(models.StatusCompleted), out)
	if len(intents) != 1 {
		t.Fatalf("got %d intents, want 1", len(intents))
	}
	in := intents[0]
	if in.Kind != KindPayoutRecorded || in.Recipient != "p1" {
		t.Fatalf("got %s to %s", in.Kind, in.Recipient)
	}
	p := in.Payload.(PayoutPayload)
	if p.PayoutCents != 7000 || p.CommissionRateBp != 3000 {
		t.Fatalf("payload %+v", p)
	}
}

func TestForSettlementRankChanges(t *testing.T) {
	out := &settlement.Outcome{
		Record:      models.EarningRecord{RequestID: "r1", PayoutCents: 7000},
		TierChanged: true,
		RequesterAggregates: models.RequesterAggregates{
			CompletedCount: 20, Tier: settlement.TierSilver,
		},
		LevelChanged: true,
		ProviderAggregates: models.ProviderAggregates{
			CompletedCount: 50, Level: settlement.LevelAdvanced,
		},
	}
	intents := ForSettlement(request(models.StatusCompleted), out)
	if len(intents) != 3 {
		t.Fatalf("got %d intents, want 3", len(intents))
	}
	byKind := map[Kind]Intent{}
	for _, in := range intents {
		byKind[in.Kind] = in
	}
	tier, ok := byKind[KindTierUpgraded]
	if !ok || tier.Recipient != "c1" {
		t.Fatalf("tier intent = %+v", tier)
	}
	if p := tier.Payload.(RankPayload); p.Rank != settlement.TierSilver || p.CompletedCount != 20 {
		t.Fatalf("tier payload %+v", p)
	}
	level, ok := byKind[KindLevelChanged]
	if !ok || level.Recipient != "p1" {
		t.Fatalf("level intent = %+v", level)
	}
	if p := level.Payload.(RankPayload); p.Rank != settlement.LevelAdvanced {
		t.Fatalf("level payload %+v", p)
	}
}
