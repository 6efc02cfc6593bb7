package bithumb

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// withRetry retries fn up to maxAttempts times with a 1s/2s/4s backoff
// schedule, stopping immediately if fn returns a non-retryable
// ExchangeError or ctx is done.
func withRetry(ctx context.Context, maxAttempts int, fn func() error) error {
	b := &backoff.Backoff{
		Min:    1 * time.Second,
		Max:    4 * time.Second,
		Factor: 2,
		Jitter: false,
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if xerr, ok := lastErr.(*ExchangeError); ok && !xerr.Retryable() {
			return lastErr
		}
		if attempt == maxAttempts-1 {
			break
		}
		d := b.Duration()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	return lastErr
}
