package geo

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/service-dispatch/internal/models"
)

// Geo is the position index contract used by the dispatcher and handlers.
// Update applies a provider-reported sample with last-write-wins semantics:
// a sample whose timestamp is not strictly newer than the stored one is
// dropped silently. Nearest returns available providers within radiusMeters,
// ascending by haversine distance, ties broken by provider id.
type Geo interface {
	Update(u models.PositionUpdate)
	Nearest(lat, lon, radiusMeters float64, limit int) []models.Candidate
}

type entry struct {
	loc       models.Coord
	available bool
	ts        time.Time
}

// Index is the in-memory implementation. Writes are independent per provider
// key; reads take only the shared read lock.
type Index struct {
	mu        sync.RWMutex
	providers map[string]entry
}

func NewIndex() *Index {
	return &Index{providers: make(map[string]entry)}
}

func (g *Index) Update(u models.PositionUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.providers[u.ProviderID]; ok && !u.Timestamp.After(prev.ts) {
		return // stale sample, no-op
	}
	g.providers[u.ProviderID] = entry{loc: u.Loc, available: u.Available, ts: u.Timestamp}
}

// naive scan; in prod use geo-hash or H3
func (g *Index) Nearest(lat, lon, radiusMeters float64, limit int) []models.Candidate {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.Candidate, 0, limit)
	for id, e := range g.providers {
		if !e.available {
			continue
		}
		dist := Haversine(lat, lon, e.loc.Lat, e.loc.Lon)
		if dist > radiusMeters {
			continue
		}
		out = append(out, models.Candidate{ProviderID: id, Loc: e.loc, DistanceMeters: dist})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].ProviderID < out[j].ProviderID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
