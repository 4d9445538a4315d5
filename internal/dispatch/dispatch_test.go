package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/example/service-dispatch/internal/models"
	"github.com/example/service-dispatch/internal/notify"
	"github.com/example/service-dispatch/internal/storage"
)

type fakeGeo struct {
	candidates []models.Candidate
	gotLat     float64
	gotLon     float64
	gotRadius  float64
	gotLimit   int
}

func (f *fakeGeo) Update(u models.PositionUpdate) {}

func (f *fakeGeo) Nearest(lat, lon, radiusMeters float64, limit int) []models.Candidate {
	f.gotLat, f.gotLon, f.gotRadius, f.gotLimit = lat, lon, radiusMeters, limit
	return f.candidates
}

type captureSink struct {
	ch chan notify.Intent
}

func (c *captureSink) Deliver(ctx context.Context, in notify.Intent) error {
	c.ch <- in
	return nil
}

func newTestService(t *testing.T, g *fakeGeo) (*Service, *storage.MemoryStore, *captureSink) {
	t.Helper()
	store := storage.NewMemoryStore()
	if err := store.UpsertRequester(context.Background(), &models.Requester{ID: "c1"}); err != nil {
		t.Fatal(err)
	}
	sink := &captureSink{ch: make(chan notify.Intent, 32)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := &Service{
		Geo:             g,
		Requests:        store,
		Parties:         store,
		Emitter:         notify.NewEmitter(sink, logger),
		RadiusMeters:    10000,
		Limit:           10,
		DefaultSpeedMps: 10,
		Logger:          logger,
	}
	return svc, store, sink
}

func collect(t *testing.T, sink *captureSink, n int) []notify.Intent {
	t.Helper()
	out := make([]notify.Intent, 0, n)
	for len(out) < n {
		select {
		case in := <-sink.ch:
			out = append(out, in)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d intents", len(out), n)
		}
	}
	return out
}

func TestSubmitValidation(t *testing.T) {
	cases := []struct {
		name string
		in   SubmitInput
	}{
		{"missing requester", SubmitInput{ServiceKind: "classic", Site: models.Coord{Lat: 36.8, Lon: 10.18}}},
		{"latitude out of range", SubmitInput{RequesterID: "c1", ServiceKind: "classic", Site: models.Coord{Lat: 91, Lon: 10}}},
		{"longitude out of range", SubmitInput{RequesterID: "c1", ServiceKind: "classic", Site: models.Coord{Lat: 36, Lon: 181}}},
		{"negative price", SubmitInput{RequesterID: "c1", ServiceKind: "classic", PriceCents: -1}},
		{"unknown service kind", SubmitInput{RequesterID: "c1", ServiceKind: "detailing"}},
		{"unknown requester", SubmitInput{RequesterID: "ghost", ServiceKind: "classic"}},
	}
	svc, _, _ := newTestService(t, &fakeGeo{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Submit(context.Background(), tc.in); !errors.Is(err, ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestSubmitPricesFromBaseTable(t *testing.T) {
	cases := []struct {
		kind   string
		urgent bool
		want   int64
		fee    int64
	}{
		{"exterior", false, 2500, 0},
		{"classic", false, 4000, 0},
		{"deep", false, 7000, 0},
		{"classic", true, 5200, 1200},
		{"deep", true, 9100, 2100},
	}
	for _, tc := range cases {
		svc, _, _ := newTestService(t, &fakeGeo{})
		req, err := svc.Submit(context.Background(), SubmitInput{
			RequesterID: "c1", ServiceKind: tc.kind, Urgent: tc.urgent,
			Site: models.Coord{Lat: 36.8, Lon: 10.18},
		})
		if err != nil {
			t.Fatalf("%s urgent=%v: %v", tc.kind, tc.urgent, err)
		}
		if req.PriceCents != tc.want || req.UrgencyFeeCents != tc.fee {
			t.Fatalf("%s urgent=%v priced %d (fee %d), want %d (fee %d)",
				tc.kind, tc.urgent, req.PriceCents, req.UrgencyFeeCents, tc.want, tc.fee)
		}
	}
}

func TestSubmitQuotedPriceWins(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeGeo{})
	req, err := svc.Submit(context.Background(), SubmitInput{
		RequesterID: "c1", ServiceKind: "classic", PriceCents: 9900,
		Site: models.Coord{Lat: 36.8, Lon: 10.18},
	})
	if err != nil {
		t.Fatal(err)
	}
	if req.PriceCents != 9900 {
		t.Fatalf("price = %d, want quoted 9900", req.PriceCents)
	}
}

func TestSubmitBroadcastsToAllCandidates(t *testing.T) {
	g := &fakeGeo{candidates: []models.Candidate{
		{ProviderID: "p1", Loc: models.Coord{Lat: 36.81, Lon: 10.19}, DistanceMeters: 1400},
		{ProviderID: "p2", Loc: models.Coord{Lat: 36.83, Lon: 10.20}, DistanceMeters: 3600},
	}}
	svc, store, sink := newTestService(t, g)

	req, err := svc.Submit(context.Background(), SubmitInput{
		RequesterID: "c1", ServiceKind: "classic",
		Site: models.Coord{Lat: 36.80, Lon: 10.18},
	})
	if err != nil {
		t.Fatal(err)
	}
	if req.Status != models.StatusPending {
		t.Fatalf("status = %s, want pending", req.Status)
	}
	if !strings.HasPrefix(req.Reference, "SR") {
		t.Fatalf("reference %q missing prefix", req.Reference)
	}
	if g.gotLat != 36.80 || g.gotLon != 10.18 || g.gotRadius != 10000 || g.gotLimit != 10 {
		t.Fatalf("nearest queried with lat=%v lon=%v radius=%v limit=%d",
			g.gotLat, g.gotLon, g.gotRadius, g.gotLimit)
	}

	intents := collect(t, sink, 2)
	seen := map[string]float64{}
	for _, in := range intents {
		if in.Kind != notify.KindRequestBroadcast {
			t.Fatalf("unexpected intent kind %s", in.Kind)
		}
		p, ok := in.Payload.(notify.BroadcastPayload)
		if !ok {
			t.Fatalf("unexpected payload type %T", in.Payload)
		}
		if p.RequestID != req.ID {
			t.Fatalf("payload request id %s, want %s", p.RequestID, req.ID)
		}
		if p.EtaSeconds <= 0 {
			t.Fatalf("broadcast to %s missing eta", in.Recipient)
		}
		seen[in.Recipient] = p.DistanceMeters
	}
	if seen["p1"] != 1400 || seen["p2"] != 3600 {
		t.Fatalf("distances per recipient = %v", seen)
	}

	if _, err := store.GetRequest(context.Background(), req.ID); err != nil {
		t.Fatalf("request not persisted: %v", err)
	}
}

func TestSubmitZeroCandidatesStaysPending(t *testing.T) {
	svc, store, sink := newTestService(t, &fakeGeo{})
	req, err := svc.Submit(context.Background(), SubmitInput{
		RequesterID: "c1", ServiceKind: "deep",
		Site: models.Coord{Lat: 36.8, Lon: 10.18},
	})
	if err != nil {
		t.Fatalf("zero candidates must not fail submission: %v", err)
	}
	stored, err := store.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.StatusPending {
		t.Fatalf("status = %s, want pending", stored.Status)
	}
	select {
	case in := <-sink.ch:
		t.Fatalf("unexpected intent %v", in)
	case <-time.After(50 * time.Millisecond):
	}
}
