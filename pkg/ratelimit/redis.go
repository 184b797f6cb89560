package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed sliding_window.lua
var slidingWindowScript string

// RedisLimiter keeps one sorted set per key in redis, scored by request time
// in milliseconds. Trimming, counting and recording run in a single script so
// concurrent replicas see a consistent count.
type RedisLimiter struct {
	client    redis.UniversalClient
	script    *redis.Script
	limit     int64
	window    time.Duration
	keyPrefix string
	clock     Clock
}

func NewRedisLimiter(client redis.UniversalClient, limit int64, window time.Duration, keyPrefix string) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		script:    redis.NewScript(slidingWindowScript),
		limit:     limit,
		window:    window,
		keyPrefix: keyPrefix,
		clock:     SystemClock{},
	}
}

// WithClock sets a custom clock (for testing)
func (r *RedisLimiter) WithClock(clock Clock) *RedisLimiter {
	r.clock = clock
	return r
}

func (r *RedisLimiter) Check(ctx context.Context, key string) (*Decision, error) {
	now := r.clock.Now()
	member := fmt.Sprintf("%d:%s", now.UnixMilli(), uuid.New().String())

	res, err := r.script.Run(ctx, r.client,
		[]string{r.keyPrefix + key},
		now.UnixMilli(),
		r.window.Milliseconds(),
		r.limit,
		member,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return nil, fmt.Errorf("%w: unexpected script reply %v", ErrStoreUnavailable, res)
	}

	allowed, err1 := toInt64(values[0])
	remaining, err2 := toInt64(values[1])
	resetMillis, err3 := toInt64(values[2])
	for _, e := range []error{err1, err2, err3} {
		if e != nil {
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, e)
		}
	}

	if remaining < 0 {
		remaining = 0
	}

	return &Decision{
		Allowed:   allowed == 1,
		Limit:     r.limit,
		Remaining: remaining,
		Reset:     time.UnixMilli(resetMillis),
	}, nil
}

func toInt64(v interface{}) (int64, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("invalid type assertion to int64: %T", v)
	}
	return n, nil
}
