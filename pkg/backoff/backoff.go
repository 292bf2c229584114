package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Backoff waits with exponential backoff and jitter between attempts.
type Backoff struct {
	// maxAttempts is the maximum number of retries, or zero to retry until
	// the context is cancelled.
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration

	attempts int
	// base is the last backoff without jitter.
	base time.Duration
}

// New creates a backoff starting at minBackoff and doubling after each
// attempt, up to maxBackoff.
func New(maxAttempts int, minBackoff time.Duration, maxBackoff time.Duration) *Backoff {
	return &Backoff{
		maxAttempts: maxAttempts,
		minBackoff:  minBackoff,
		maxBackoff:  maxBackoff,
	}
}

// Wait blocks until the next attempt. Returns false if the maximum number of
// attempts has been reached or ctx is cancelled, so the caller should stop.
func (b *Backoff) Wait(ctx context.Context) bool {
	if b.maxAttempts != 0 && b.attempts >= b.maxAttempts {
		return false
	}
	b.attempts++

	t := time.NewTimer(b.nextWait())
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Attempts returns the number of retries so far.
func (b *Backoff) Attempts() int {
	return b.attempts
}

func (b *Backoff) nextWait() time.Duration {
	if b.base == 0 {
		b.base = b.minBackoff
	} else {
		b.base *= 2
	}
	if b.maxBackoff != 0 && b.base > b.maxBackoff {
		b.base = b.maxBackoff
	}

	// Up to 10% jitter so nodes retrying together spread out.
	return time.Duration(float64(b.base) * (1.0 + rand.Float64()*0.1))
}
