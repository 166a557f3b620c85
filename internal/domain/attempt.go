package domain

import (
	"math/rand"
	"time"
)

// Attempt lifecycle statuses for a single item inside one run.
const (
	AttemptPending           = "pending"
	AttemptDownloading       = "downloading"
	AttemptValidating        = "validating"
	AttemptRetryWait         = "retry_wait"
	AttemptCommitted         = "committed"
	AttemptPermanentlyFailed = "permanently_failed"
)

// DownloadAttempt tracks one item's processing state. It is owned
// exclusively by the orchestrator worker holding the item and is
// discarded once the item reaches a terminal status.
type DownloadAttempt struct {
	ItemID             string
	Backend            string
	Status             string
	TransportAttempts  int
	ValidationAttempts int
	LastError          string
	StartedAt          time.Time
	UpdatedAt          time.Time
}

// NewAttempt creates an attempt record for an item.
func NewAttempt(itemID, backend string) *DownloadAttempt {
	now := time.Now()
	return &DownloadAttempt{
		ItemID:    itemID,
		Backend:   backend,
		Status:    AttemptPending,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the attempt to a new status.
func (a *DownloadAttempt) Transition(status string) {
	a.Status = status
	a.UpdatedAt = time.Now()
}

// RetryPolicy is the retry/backoff configuration consumed by the
// orchestrator. Keeping it a value object makes the backoff schedule
// testable independently of the retry loop.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry; each subsequent
	// retry doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration

	// Jitter adds a uniform random fraction of the computed delay.
	Jitter bool
}

// DefaultRetryPolicy matches the configured defaults: 3 attempts,
// 2s base delay, capped at 5 minutes, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    5 * time.Minute,
		Jitter:      true,
	}
}

// Backoff returns the delay to wait before retry number attempt
// (1-based: attempt 1 is the first retry).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter && d > 0 {
		d += time.Duration(rand.Int63n(int64(d)))
		if p.MaxDelay > 0 && d > p.MaxDelay {
			d = p.MaxDelay
		}
	}
	return d
}

// Exhausted reports whether the given attempt count used up the budget.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
