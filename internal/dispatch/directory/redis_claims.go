package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultClaimPrefix = "claim:worker:"

// RedisClaimStore coordinates worker claims across instances using Redis
// SETNX semantics. An optional TTL guards against stale claims if a dispatch
// process dies between claiming and releasing.
type RedisClaimStore struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

// NewRedisClaimStore constructs the claim store. A zero ttl means claims
// only go away on explicit Release.
func NewRedisClaimStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisClaimStore {
	if prefix == "" {
		prefix = defaultClaimPrefix
	}
	return &RedisClaimStore{client: client, keyPrefix: prefix, ttl: ttl}
}

// TryClaim attempts to acquire the worker with SET NX. Exactly one concurrent
// caller can win a given worker.
func (r *RedisClaimStore) TryClaim(ctx context.Context, workerID, requestID uuid.UUID) (bool, error) {
	key := r.keyPrefix + workerID.String()
	ok, err := r.client.SetNX(ctx, key, requestID.String(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release removes the claim key.
func (r *RedisClaimStore) Release(ctx context.Context, workerID uuid.UUID) error {
	key := r.keyPrefix + workerID.String()
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
