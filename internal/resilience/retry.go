// Package resilience retries transient failures of actor-platform reads
// with doubling backoff, the same pacing the run poller uses.
package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryConfig bounds the retry loop. The delay starts at Backoff and
// doubles after each failed attempt, capped at Cap.
type RetryConfig struct {
	Attempts int
	Backoff  time.Duration
	Cap      time.Duration
}

// DefaultRetryConfig suits the platform's status and dataset endpoints.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts: 3,
		Backoff:  500 * time.Millisecond,
		Cap:      10 * time.Second,
	}
}

// DoVal runs fn until it succeeds, the error is not transient, the
// attempts are spent, or ctx is cancelled. Only idempotent calls belong
// here; the zero value is returned alongside the last error on failure.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.Cap <= 0 {
		cfg.Cap = 10 * time.Second
	}

	var zero T
	var lastErr error
	delay := cfg.Backoff
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) || attempt == cfg.Attempts {
			break
		}

		zap.L().Warn("retrying transient failure",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
		delay = min(delay*2, cfg.Cap)
	}
	return zero, lastErr
}
