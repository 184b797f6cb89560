package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterSlidingWindow(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := NewFixedClock(start)
	limiter := NewMemoryLimiter(10, time.Minute, 0).WithClock(clock)
	defer limiter.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		d, err := limiter.Check(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, int64(9-i), d.Remaining)
		clock.Advance(time.Second)
	}

	d, err := limiter.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(0), d.Remaining)
	assert.Equal(t, start.Add(time.Minute), d.Reset)

	// Other clients have their own window
	d, err = limiter.Check(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Once the oldest hit leaves the window one slot frees up
	clock.Set(start.Add(time.Minute))
	d, err = limiter.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestMemoryLimiterCanceledContext(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute, 0)
	defer limiter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := limiter.Check(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLimiterConcurrent(t *testing.T) {
	limiter := NewMemoryLimiter(50, time.Minute, 0)
	defer limiter.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Check(context.Background(), "shared")
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestMemoryLimiterRemoveExpired(t *testing.T) {
	clock := NewFixedClock(time.Unix(1700000000, 0))
	limiter := NewMemoryLimiter(5, time.Minute, 0).WithClock(clock)
	defer limiter.Close()

	_, err := limiter.Check(context.Background(), "idle")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	limiter.removeExpired()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Empty(t, limiter.hits)
}

func TestNewBackends(t *testing.T) {
	l, err := New(Config{Backend: BackendNone})
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = New(Config{Backend: BackendMemory, Limit: 10, Window: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &MemoryLimiter{}, l)
	l.(*MemoryLimiter).Close()

	_, err = New(Config{Backend: BackendRedis, Limit: 10, Window: time.Minute})
	assert.Error(t, err)

	_, err = New(Config{Backend: "leaky", Limit: 10, Window: time.Minute})
	assert.Error(t, err)

	_, err = New(Config{Backend: BackendMemory, Limit: 0, Window: time.Minute})
	assert.Error(t, err)
}

func TestDecisionHeaders(t *testing.T) {
	d := &Decision{Allowed: false, Limit: 10, Remaining: 0, Reset: time.Unix(1700000060, 0)}

	h := d.Headers()
	assert.Equal(t, "10", h["X-RateLimit-Limit"])
	assert.Equal(t, "0", h["X-RateLimit-Remaining"])
	assert.Equal(t, "1700000060", h["X-RateLimit-Reset"])

	assert.Equal(t, 30*time.Second, d.RetryAfter(time.Unix(1700000030, 0)))
	assert.Equal(t, time.Second, d.RetryAfter(time.Unix(1700000100, 0)))
}
