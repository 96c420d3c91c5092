package convergence

import (
	"context"
	"errors"
	"time"
)

// ErrWaitExhausted is returned when a bounded wait runs out of attempts.
var ErrWaitExhausted = errors.New("wait exhausted")

// WaitUntil polls probe until it reports true, sleeping interval between
// attempts. The probe runs once immediately, then up to maxRetries more
// times after a sleep each, so the total attempt count is maxRetries+1
// and the total wall-clock wait is bounded by maxRetries*interval plus
// probe latency. Fixed interval, no backoff: operator-visible timing
// stays predictable on a slow-booting database.
//
// Returns false on exhaustion or when ctx is cancelled mid-wait.
func WaitUntil(ctx context.Context, probe func(context.Context) bool, maxRetries uint, interval time.Duration, sleep Sleeper) bool {
	if probe(ctx) {
		return true
	}
	for attempt := uint(0); attempt < maxRetries; attempt++ {
		sleep.Sleep(ctx, interval)
		if ctx.Err() != nil {
			return false
		}
		if probe(ctx) {
			return true
		}
	}
	return false
}
