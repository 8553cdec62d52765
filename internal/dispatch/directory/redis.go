package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/fieldserve/internal/dispatch/domain"
)

const defaultGeoKeyPrefix = "worker:locs"

// RedisDirectory indexes worker positions with Redis GEO commands and keeps
// worker metadata in hashes, for deployments where dispatch runs on more than
// one instance.
type RedisDirectory struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisDirectory constructs a Redis-backed directory.
func NewRedisDirectory(client redis.Cmdable, keyPrefix string) *RedisDirectory {
	if keyPrefix == "" {
		keyPrefix = defaultGeoKeyPrefix
	}
	return &RedisDirectory{client: client, keyPrefix: keyPrefix}
}

func (r *RedisDirectory) geoKey(category string) string {
	return fmt.Sprintf("%s:%s", r.keyPrefix, category)
}

func (r *RedisDirectory) metaKey(id uuid.UUID) string {
	return fmt.Sprintf("worker:meta:%s", id)
}

// Upsert writes the worker's position into the category geo set and its
// metadata into a hash.
func (r *RedisDirectory) Upsert(ctx context.Context, w domain.Worker) error {
	if err := r.client.GeoAdd(ctx, r.geoKey(w.Category), &redis.GeoLocation{
		Name:      w.ID.String(),
		Longitude: w.Location.Lng,
		Latitude:  w.Location.Lat,
	}).Err(); err != nil {
		return fmt.Errorf("redis geoadd: %w", err)
	}
	fields := map[string]any{
		"name":      w.Name,
		"phone":     w.Phone,
		"category":  w.Category,
		"rating":    w.Rating,
		"available": strconv.FormatBool(w.Available),
	}
	if err := r.client.HSet(ctx, r.metaKey(w.ID), fields).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// SetAvailable flips the worker's availability flag.
func (r *RedisDirectory) SetAvailable(ctx context.Context, id uuid.UUID, available bool) error {
	if err := r.client.HSet(ctx, r.metaKey(id), "available", strconv.FormatBool(available)).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Nearby returns up to limit available workers in the category sorted by
// distance to the origin.
func (r *RedisDirectory) Nearby(ctx context.Context, category string, origin domain.GeoPoint, radiusKM float64, limit int) ([]domain.Worker, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("redis directory not configured")
	}
	locations, err := r.client.GeoSearchLocation(ctx, r.geoKey(category), &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  origin.Lng,
			Latitude:   origin.Lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geosearch: %w", err)
	}

	workers := make([]domain.Worker, 0, len(locations))
	for _, loc := range locations {
		id, err := uuid.Parse(loc.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid worker id in geo set: %s", loc.Name)
		}
		meta, err := r.client.HGetAll(ctx, r.metaKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis hgetall: %w", err)
		}
		if meta["available"] != "true" {
			continue
		}
		rating, _ := strconv.ParseFloat(meta["rating"], 64)
		workers = append(workers, domain.Worker{
			ID:        id,
			Name:      meta["name"],
			Phone:     meta["phone"],
			Category:  category,
			Location:  domain.GeoPoint{Lat: loc.Latitude, Lng: loc.Longitude},
			Rating:    rating,
			Available: true,
		})
	}
	return workers, nil
}

// ListAvailable satisfies domain.WorkerDirectory by searching the whole
// category set around the null island origin with a planet-wide radius. The
// Nearby path should be preferred; this exists so the Redis directory can
// stand in wherever the in-memory one does.
func (r *RedisDirectory) ListAvailable(ctx context.Context, category string) ([]domain.Worker, error) {
	return r.Nearby(ctx, category, domain.GeoPoint{}, 21000, 1000)
}
