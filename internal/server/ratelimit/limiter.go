// Package ratelimit caps how many calls one client may make to one method
// within a sliding window. Every call is recorded, rejected ones included,
// so a client that keeps hammering stays blocked until it backs off for a
// full window.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a call under key still fits the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// prune drops the timestamps at or before cutoff. calls is sorted.
func prune(calls []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(calls) && !calls[i].After(cutoff) {
		i++
	}
	return calls[i:]
}
