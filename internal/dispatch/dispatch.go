package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/service-dispatch/internal/eta"
	"github.com/example/service-dispatch/internal/geo"
	"github.com/example/service-dispatch/internal/models"
	"github.com/example/service-dispatch/internal/notify"
	"github.com/example/service-dispatch/internal/observability"
	"github.com/example/service-dispatch/internal/storage"
)

// ErrValidation marks malformed input, rejected before any persistence.
var ErrValidation = errors.New("validation failed")

// DefaultBasePrices maps service kinds to their base price in minor units
// when the caller does not quote one.
var DefaultBasePrices = map[string]int64{
	"exterior": 2500,
	"classic":  4000,
	"deep":     7000,
}

// urgencyFeePercent is added on top of the base price for urgent requests.
const urgencyFeePercent = 30

// Parties resolves requester references during validation.
type Parties interface {
	GetRequester(ctx context.Context, id string) (*models.Requester, error)
}

// Service creates pending requests and broadcasts them to nearby
// candidates. Ranking is advisory: every candidate may attempt a claim.
type Service struct {
	Geo          geo.Geo
	Requests     storage.RequestStore
	Parties      Parties
	Emitter      *notify.Emitter
	RadiusMeters float64
	Limit        int

	// Optional travel-time enrichment for broadcast payloads.
	ETAClient       eta.Client
	ETACache        *eta.Cache
	DefaultSpeedMps float64

	BasePrices map[string]int64
	Logger     *slog.Logger
}

// SubmitInput is the inbound request shape. PriceCents zero means "price
// the request from the base table".
type SubmitInput struct {
	RequesterID string       `json:"requester_id"`
	Site        models.Coord `json:"site"`
	ServiceKind string       `json:"service_kind"`
	Urgent      bool         `json:"urgent"`
	PriceCents  int64        `json:"price_cents"`
}

// Submit validates the input, persists the request as pending and fans a
// broadcast intent out to every nearby available provider. Zero candidates
// is not an error: the request stays pending for a later sweep.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.ServiceRequest, error) {
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	price := in.PriceCents
	var urgencyFee int64
	if price == 0 {
		price = s.basePrices()[in.ServiceKind]
	}
	if in.Urgent {
		urgencyFee = price * urgencyFeePercent / 100
		price += urgencyFee
	}

	req := &models.ServiceRequest{
		ID:              uuid.NewString(),
		Reference:       newReference(),
		RequesterID:     in.RequesterID,
		Site:            in.Site,
		ServiceKind:     in.ServiceKind,
		Urgent:          in.Urgent,
		PriceCents:      price,
		UrgencyFeeCents: urgencyFee,
		Status:          models.StatusPending,
		CreatedAt:       time.Now(),
	}
	if err := s.Requests.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("persist request: %w", err)
	}

	candidates := s.Geo.Nearest(req.Site.Lat, req.Site.Lon, s.RadiusMeters, s.Limit)
	observability.DispatchesTotal.Inc()
	observability.BroadcastCandidates.Observe(float64(len(candidates)))

	if len(candidates) == 0 {
		s.Logger.Warn("no candidates in range", "request_id", req.ID, "radius_m", s.RadiusMeters)
		return req, nil
	}
	s.broadcast(req, candidates)
	return req, nil
}

func (s *Service) validate(ctx context.Context, in SubmitInput) error {
	if in.RequesterID == "" {
		return fmt.Errorf("%w: requester_id is required", ErrValidation)
	}
	if in.Site.Lat < -90 || in.Site.Lat > 90 || in.Site.Lon < -180 || in.Site.Lon > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	if in.PriceCents < 0 {
		return fmt.Errorf("%w: price must be non-negative", ErrValidation)
	}
	if in.PriceCents == 0 {
		if _, ok := s.basePrices()[in.ServiceKind]; !ok {
			return fmt.Errorf("%w: unknown service kind %q", ErrValidation, in.ServiceKind)
		}
	}
	if _, err := s.Parties.GetRequester(ctx, in.RequesterID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: unknown requester %s", ErrValidation, in.RequesterID)
		}
		return fmt.Errorf("resolve requester: %w", err)
	}
	return nil
}

// broadcast builds one intent per candidate, with distance and a best-effort
// travel-time estimate, and hands them to the emitter. Not awaited.
func (s *Service) broadcast(req *models.ServiceRequest, candidates []models.Candidate) {
	intents := make([]notify.Intent, 0, len(candidates))
	for _, c := range candidates {
		intents = append(intents, notify.Intent{
			Recipient: c.ProviderID,
			Kind:      notify.KindRequestBroadcast,
			Payload: notify.BroadcastPayload{
				RequestID:      req.ID,
				Reference:      req.Reference,
				ServiceKind:    req.ServiceKind,
				Site:           req.Site,
				PriceCents:     req.PriceCents,
				Urgent:         req.Urgent,
				DistanceMeters: c.DistanceMeters,
				EtaSeconds:     s.estimate(c.Loc, req.Site),
			},
		})
	}
	s.Emitter.Emit(intents)
}

// estimate prefers the cache, then the routing client, then the naive
// straight-line fallback. Routing failures are not worth failing a
// broadcast over.
func (s *Service) estimate(from, to models.Coord) float64 {
	if s.ETACache != nil {
		if v, ok := s.ETACache.Get(from, to); ok {
			return v
		}
	}
	if s.ETAClient != nil {
		if v, err := s.ETAClient.EstimateSeconds(from, to); err == nil {
			if s.ETACache != nil {
				s.ETACache.Set(from, to, v)
			}
			return v
		}
	}
	return eta.EstimateSeconds(from, to, s.DefaultSpeedMps)
}

func (s *Service) basePrices() map[string]int64 {
	if s.BasePrices != nil {
		return s.BasePrices
	}
	return DefaultBasePrices
}

// newReference builds a short human-readable reference like SRMBX41A29F.
func newReference() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	b := make([]byte, 2)
	_, _ = rand.Read(b)
	return "SR" + strings.ToUpper(ts+hex.EncodeToString(b))
}
