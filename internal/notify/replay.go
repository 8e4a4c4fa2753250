package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisReplayProtector keeps a short-lived SETNX key per delivery so a
// replayed or double-scheduled delivery posts at most once within the TTL.
type RedisReplayProtector struct {
	Client *redis.Client
}

// Acquire claims the delivery key for ttl. Without a client the guard is a
// no-op and every claim succeeds.
func (r RedisReplayProtector) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	return r.Client.SetNX(ctx, key, "1", ttl).Result()
}

// Release drops the guard key early, freeing the delivery for a retry.
func (r RedisReplayProtector) Release(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}
