package ratelimit

import (
	"sync"
	"time"
)

// window is the in-memory counter for one key.
type window struct {
	count     int64
	expiresAt time.Time
}

// MemoryLimiter is an in-process fixed-window limiter. Each key gets its own
// counter; a background goroutine periodically evicts windows that have
// expired so idle clients do not accumulate. State is lost on restart.
type MemoryLimiter struct {
	policy          Policy
	cleanupInterval time.Duration
	now             Clock

	mu      sync.Mutex
	windows map[Key]*window
	done    chan struct{}
	closed  bool
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides the time source.
func WithClock(c Clock) MemoryOption {
	return func(m *MemoryLimiter) { m.now = c }
}

// NewMemoryLimiter creates a limiter enforcing policy. A non-positive window
// falls back to DefaultWindow. It starts a background goroutine for
// eviction; call Close to stop it.
func NewMemoryLimiter(policy Policy, cleanupInterval time.Duration, opts ...MemoryOption) *MemoryLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	m := &MemoryLimiter{
		policy:          policy.Normalize(DefaultWindow),
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		windows:         make(map[Key]*window),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.cleanup()
	return m
}

// Policy returns the effective policy.
func (m *MemoryLimiter) Policy() Policy {
	return m.policy
}

// Allow counts one request for key. The first request of a key, or the
// first after its window expired, opens a new window with count 1.
func (m *MemoryLimiter) Allow(key Key) Decision {
	now := m.now()

	m.mu.Lock()
	w, exists := m.windows[key]
	if !exists || !now.Before(w.expiresAt) {
		w = &window{count: 1, expiresAt: now.Add(m.policy.Window)}
		m.windows[key] = w
	} else {
		w.count++
	}
	count, expiresAt := w.count, w.expiresAt
	m.mu.Unlock()

	return decide(m.policy, count, expiresAt, now)
}

// Len returns the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// Close stops the background cleanup goroutine. It is safe to call twice.
func (m *MemoryLimiter) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

// evictExpired removes windows whose expiry has passed. An evicted key is
// indistinguishable from an expired one, so this never changes a decision.
func (m *MemoryLimiter) evictExpired() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, w := range m.windows {
		if !now.Before(w.expiresAt) {
			delete(m.windows, key)
		}
	}
}
