package rate

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend counts in a shared Redis so limits hold across processes.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend returns a Backend over the given client.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

// Incr runs INCR and PTTL in one pipelined round trip. The first hit of a
// window (or a key that somehow lost its TTL) gets an expiry of the window
// length so the counter self-clears.
func (b *RedisBackend) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := b.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	count := incr.Val()
	ttl := pttl.Val()

	if count == 1 || ttl < 0 {
		if err := b.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}

	return count, ttl, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (b *RedisBackend) Close() error {
	return nil
}
