package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a sliding-window log kept in process memory. It suits
// single-instance deployments; counters are not shared between replicas.
type MemoryLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int64
	window    time.Duration
	clock     Clock
	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryLimiter creates an in-memory limiter allowing limit requests per
// window. cleanupInterval of 0 disables the background sweep of idle keys.
func NewMemoryLimiter(limit int64, window, cleanupInterval time.Duration) *MemoryLimiter {
	m := &MemoryLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		clock:  SystemClock{},
		done:   make(chan struct{}),
	}

	if cleanupInterval > 0 {
		m.cleanup = time.NewTicker(cleanupInterval)
		go m.cleanupLoop()
	}

	return m
}

// WithClock sets a custom clock (for testing)
func (m *MemoryLimiter) WithClock(clock Clock) *MemoryLimiter {
	m.clock = clock
	return m
}

func (m *MemoryLimiter) Check(ctx context.Context, key string) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	hits := trimWindow(m.hits[key], now.Add(-m.window))

	if int64(len(hits)) >= m.limit {
		m.hits[key] = hits
		return &Decision{
			Allowed:   false,
			Limit:     m.limit,
			Remaining: 0,
			Reset:     hits[0].Add(m.window),
		}, nil
	}

	hits = append(hits, now)
	m.hits[key] = hits

	return &Decision{
		Allowed:   true,
		Limit:     m.limit,
		Remaining: m.limit - int64(len(hits)),
		Reset:     hits[0].Add(m.window),
	}, nil
}

// trimWindow drops hits at or before cutoff. hits is ordered oldest first.
func trimWindow(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append([]time.Time(nil), hits[i:]...)
}

func (m *MemoryLimiter) cleanupLoop() {
	for {
		select {
		case <-m.cleanup.C:
			m.removeExpired()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryLimiter) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-m.window)
	for key, hits := range m.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(m.hits, key)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		if m.cleanup != nil {
			m.cleanup.Stop()
		}
	})
	return nil
}
