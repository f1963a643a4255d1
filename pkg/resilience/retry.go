package resilience

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Backoff bounds how often and how far apart a call is repeated
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
}

func DefaultBackoff() Backoff {
	return Backoff{Attempts: 3, Initial: 200 * time.Millisecond, Max: 5 * time.Second, Factor: 2}
}

// wait is the pause after the given zero-based failed attempt
func (b Backoff) wait(attempt int) time.Duration {
	d := float64(b.Initial) * math.Pow(b.Factor, float64(attempt))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, retryable rejects its error, or the
// attempts run out. A nil retryable never repeats. Exhaustion wraps the
// last failure so callers can still inspect it.
func Retry[T any](ctx context.Context, b Backoff, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(b.Attempts, 1)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		switch {
		case err == nil:
			return result, nil
		case retryable == nil || !retryable(err):
			return zero, err
		case attempt+1 >= attempts:
			return zero, fmt.Errorf("giving up after %d attempts: %w", attempts, err)
		}

		timer := time.NewTimer(b.wait(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
