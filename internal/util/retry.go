package util

import (
	"context"
	"time"
)

// Retry runs fn until it succeeds or maxAttempts is exhausted, doubling the
// pause between attempts starting from baseDelay. The last error is returned
// when every attempt fails. Cancelling the context cuts the backoff short.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		delay := baseDelay << (attempt - 1)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
