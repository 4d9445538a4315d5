package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/service-dispatch/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands. Position and metadata
// live in separate keys, so the view is eventually consistent between the
// two writes; stale reads within one update interval are acceptable here.
type RedisGeo struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key, ctx: context.Background()}
}

func (r *RedisGeo) Update(u models.PositionUpdate) {
	// drop samples older than the stored timestamp
	if v, err := r.client.HGet(r.ctx, metaKey(u.ProviderID), "ts").Result(); err == nil {
		if prev, err := strconv.ParseInt(v, 10, 64); err == nil && u.Timestamp.UnixMilli() <= prev {
			return
		}
	}
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: u.Loc.Lon, Latitude: u.Loc.Lat, Name: u.ProviderID}).Result()
	_ = r.client.HSet(r.ctx, metaKey(u.ProviderID), map[string]interface{}{
		"available": strconv.FormatBool(u.Available),
		"ts":        strconv.FormatInt(u.Timestamp.UnixMilli(), 10),
		"updated":   time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) Nearest(lat, lon, radiusMeters float64, limit int) []models.Candidate {
	// over-fetch so that filtering unavailable providers still fills the limit
	res, err := r.client.GeoRadius(r.ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: radiusMeters, Unit: "m", WithCoord: true, WithDist: true, Count: limit * 3, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Candidate, 0, limit)
	for _, g := range res {
		if m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result(); err == nil {
			if m["available"] != "true" {
				continue
			}
		}
		out = append(out, models.Candidate{
			ProviderID:     g.Name,
			Loc:            models.Coord{Lat: g.Latitude, Lon: g.Longitude},
			DistanceMeters: g.Dist,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func metaKey(id string) string { return "provider:meta:" + id }
