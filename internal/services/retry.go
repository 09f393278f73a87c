package services

import (
	"context"
	"time"
)

// MaxRetryDelay caps the exponential backoff used by Retry.
const MaxRetryDelay = 30 * time.Second

// Retry calls fn until it succeeds, returns a non-transient error, or
// attempts are exhausted. The delay doubles after every failed attempt
// starting from base. onRetry, when non-nil, is told about each failure that
// will be retried.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func(attempt int) error, onRetry func(attempt int, err error, delay time.Duration)) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts || !IsTransient(err) || ctx.Err() != nil {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
		delay = min(delay*2, MaxRetryDelay)
	}
	return err
}
