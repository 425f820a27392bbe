package modloader

import (
	"context"
	"time"
)

// Sleeper abstracts the backoff delay between retry attempts so tests can
// substitute virtual time instead of waiting on the wall clock.
type Sleeper interface {
	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err() in
	// the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// realSleeper sleeps on the wall clock. It is the default when no Sleeper is
// injected.
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoffDelay computes the delay before retrying a failed attempt:
// base * 2^(attempt-1), capped at limit. attempt is 1-based.
func backoffDelay(base, limit time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	if delay > limit {
		return limit
	}
	return delay
}
