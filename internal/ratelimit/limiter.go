// Package ratelimit throttles outgoing RPC requests.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter issues permits no faster than a fixed rate.
// It tracks the next free permit time instead of a token bucket, so it never bursts.
// A nil *Limiter never blocks.
type Limiter struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
	rate     float64
}

// New creates a Limiter allowing ratePerSec requests per second.
// A non-positive rate returns nil, which means unlimited.
func New(ratePerSec float64) *Limiter {
	if ratePerSec <= 0 {
		return nil
	}
	return &Limiter{
		next:     time.Now(),
		interval: time.Duration(float64(time.Second) / ratePerSec),
		rate:     ratePerSec,
	}
}

// Wait blocks until a permit is available or ctx is done.
// A cancelled wait hands its slot back when no later permit was issued.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	if l.next.Before(now) {
		l.next = now
	}
	permit := l.next
	l.next = permit.Add(l.interval)
	l.mu.Unlock()

	wait := time.Until(permit)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		l.mu.Lock()
		if l.next.Equal(permit.Add(l.interval)) {
			l.next = permit
		}
		l.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Rate returns the configured requests per second, or 0 for a nil limiter.
func (l *Limiter) Rate() float64 {
	if l == nil {
		return 0
	}
	return l.rate
}
