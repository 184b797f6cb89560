package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrStoreUnavailable wraps failures of the counter store backing a Limiter.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Limiter decides whether one more request for key fits in the current window.
// Implementations must check and consume atomically per key.
type Limiter interface {
	Check(ctx context.Context, key string) (*Decision, error)
}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Reset     time.Time
}

// RetryAfter returns how long a denied client should wait, never less than a second.
func (d *Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.Reset.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait
}

// Headers returns the X-RateLimit-* headers describing d.
func (d *Decision) Headers() map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.FormatInt(d.Limit, 10),
		"X-RateLimit-Remaining": strconv.FormatInt(d.Remaining, 10),
		"X-RateLimit-Reset":     strconv.FormatInt(d.Reset.Unix(), 10),
	}
}

// Clock provides an abstraction for time operations (useful for testing)
type Clock interface {
	Now() time.Time
}

// SystemClock uses the system time
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock returns a settable time. Safe for concurrent use.
type FixedClock struct {
	mu   sync.RWMutex
	time time.Time
}

func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{time: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.time
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = c.time.Add(d)
}

// Config holds configuration for creating a Limiter.
type Config struct {
	Backend         string
	Limit           int64
	Window          time.Duration
	KeyPrefix       string
	CleanupInterval time.Duration
	RedisClient     redis.UniversalClient
}

// New creates the Limiter selected by cfg.Backend. The none backend yields a
// nil Limiter, which callers treat as "rate limiting disabled".
func New(cfg Config) (Limiter, error) {
	if cfg.Backend == "" || cfg.Backend == BackendNone {
		return nil, nil
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", cfg.Limit)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", cfg.Window)
	}

	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryLimiter(cfg.Limit, cfg.Window, cfg.CleanupInterval), nil
	case BackendRedis:
		if cfg.RedisClient == nil {
			return nil, fmt.Errorf("redis backend requires a redis client")
		}
		return NewRedisLimiter(cfg.RedisClient, cfg.Limit, cfg.Window, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s", cfg.Backend)
	}
}
