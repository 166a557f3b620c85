package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// Limiter provides simple time-based rate limiting: at most one action
// per interval. Safe for concurrent use. The orchestrator uses it to
// space out dispatches to the remote host.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed time.Time
}

// New creates a rate limiter with the specified interval. A zero or
// negative interval disables limiting.
func New(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Allow checks if an action is allowed now. Returns true and records
// the action, or false with the remaining wait.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.interval <= 0 {
		return true, 0
	}

	now := time.Now()
	since := now.Sub(l.lastAllowed)
	if since >= l.interval {
		l.lastAllowed = now
		return true, 0
	}
	return false, l.interval - since
}

// Wait blocks until the next action is allowed or the context is
// cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		ok, wait := l.Allow()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Interval returns the configured rate limit interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
