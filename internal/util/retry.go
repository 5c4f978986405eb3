package util

import (
	"context"
	"time"
)

// Retry runs fn until it succeeds, making at most maxAttempts tries and
// doubling the wait between tries starting from baseDelay. When every try
// fails the last error is returned. Context cancellation is honored while
// waiting between tries.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		// No backoff sleep after the final attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return err
}
