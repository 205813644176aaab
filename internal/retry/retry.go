// Package retry provides exponential backoff for operations that are
// expected to fail transiently, such as probing the SAM bridge while
// the router builds tunnels.
package retry

import (
	"context"
	"time"
)

// Backoff configures the retry schedule.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxAttempts of 0 retries until the context expires.
	MaxAttempts int
}

// Default returns the schedule used for router readiness probing.
func Default() Backoff {
	return Backoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

// Do runs op until it succeeds, the attempt budget is spent, or ctx is
// done.  The last error is returned; ctx errors win when both apply.
func (b Backoff) Do(ctx context.Context, op func(attempt int) error) error {
	delay := b.InitialDelay
	var lastErr error

	for attempt := 1; b.MaxAttempts == 0 || attempt <= b.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = op(attempt); lastErr == nil {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * b.Multiplier)
		if b.MaxDelay > 0 && delay > b.MaxDelay {
			delay = b.MaxDelay
		}
	}
	return lastErr
}
