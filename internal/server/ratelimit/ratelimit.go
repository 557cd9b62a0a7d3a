// Package ratelimit throttles repeated attempts per key with a Redis
// fixed-window counter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	// Allow counts one attempt for key and reports whether it is within budget.
	Allow(ctx context.Context, key string) (bool, error)
}

type RedisLimiter struct {
	rdb    *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewRedisLimiter(rdb *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "storefront:rl"
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, max: max, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.max <= 0 {
		return true, nil
	}

	k := l.prefix + ":" + key

	// INCR and EXPIRE NX run in one MULTI/EXEC, so a counter is never left
	// without a TTL and later hits do not extend the window.
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}

	return incr.Val() <= int64(l.max), nil
}

// Noop allows everything. Used when no Redis address is configured.
type Noop struct{}

func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }
