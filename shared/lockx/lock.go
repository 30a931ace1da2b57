// Package lockx provides a best-effort redis lock that is held until
// its TTL expires. The scheduler takes one per sweep tick; because the
// lock is never released early, a peer instance whose ticker fires
// later in the same window cannot re-acquire it and re-sweep. Sweep
// jobs stay idempotent regardless.
package lockx

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AcquireTick takes the per-kind scheduler tick lock. The key embeds
// the sweep kind, so different subsystems never contend with each
// other.
func AcquireTick(ctx context.Context, client *redis.Client, kind string, ttl time.Duration) (bool, error) {
	return Acquire(ctx, client, "sched:tick:"+kind, ttl)
}

// Acquire takes key until ttl expires. There is no early release;
// callers size ttl to the window they need exclusive. The stored token
// identifies the holder in redis for operators.
func Acquire(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (bool, error) {
	if client == nil {
		return false, errors.New("redis client not initialized")
	}
	if ttl <= 0 {
		return false, errors.New("ttl must be > 0")
	}
	return client.SetNX(ctx, key, uuid.NewString(), ttl).Result()
}
