package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps per-key call logs in process. Counts are not shared
// between server instances.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	calls   map[string][]time.Time
	sweepAt time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		calls:  make(map[string][]time.Time),
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := m.now()
	cutoff := now.Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.After(m.sweepAt) {
		m.sweep(cutoff)
		m.sweepAt = now.Add(m.window)
	}

	calls := append(prune(m.calls[key], cutoff), now)
	m.calls[key] = calls
	return len(calls) <= m.limit, nil
}

// sweep forgets keys with no calls left in the window.
func (m *MemoryLimiter) sweep(cutoff time.Time) {
	for k, calls := range m.calls {
		if calls = prune(calls, cutoff); len(calls) == 0 {
			delete(m.calls, k)
		} else {
			m.calls[k] = calls
		}
	}
}
