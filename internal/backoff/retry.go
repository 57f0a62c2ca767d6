package backoff

import (
	"context"
	"errors"
	"time"
)

// ErrAttemptsExhausted is returned when every retry attempt has failed with
// a retryable error.
var ErrAttemptsExhausted = errors.New("max retry attempts exhausted")

// Result holds the outcome of a retried operation.
type Result[T any] struct {
	Value    T
	Attempts int
	LastErr  error
}

// Retry executes fn up to maxAttempts times, sleeping between attempts
// according to the policy. A failure for which retryable returns false stops
// immediately; context cancellation is honored both between attempts and
// while sleeping. fn receives the current attempt number (1-indexed).
func Retry[T any](
	ctx context.Context,
	policy Policy,
	maxAttempts int,
	retryable func(error) bool,
	fn func(attempt int) (T, error),
) (Result[T], error) {
	var result Result[T]
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			return result, err
		}

		value, err := fn(attempt)
		if err == nil {
			result.Value = value
			result.LastErr = nil
			return result, nil
		}
		result.LastErr = err

		if retryable != nil && !retryable(err) {
			return result, err
		}
		if attempt < maxAttempts {
			if err := Sleep(ctx, policy.Delay(attempt)); err != nil {
				return result, err
			}
		}
	}
	return result, ErrAttemptsExhausted
}

// Sleep waits for the given duration, returning early with ctx.Err() when
// the context is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
