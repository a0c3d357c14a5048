// Package retry runs an operation with exponential backoff until it succeeds, fails
// with a non-retryable error, or the context ends.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config defines the backoff schedule. MaxRetries and InitialBackoff must be positive.
type Config struct {
	// MaxRetries is the maximum number of attempts.
	MaxRetries int
	// InitialBackoff is the wait before the second attempt; it doubles per attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the wait. Zero means no cap.
	MaxBackoff time.Duration
	// Jitter in [0,1] adds up to Jitter*backoff, growing with the attempt number.
	Jitter float64
}

// WriteConflicts is the schedule used for DuckDB write conflicts.
var WriteConflicts = Config{
	MaxRetries:     10,
	InitialBackoff: 10 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
	Jitter:         0.1,
}

// ShouldRetryFunc reports whether err is transient. A nil func retries every error.
type ShouldRetryFunc func(error) bool

// Do calls fn until it returns nil or attempts run out. The final error wraps the
// last error returned by fn.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff(cfg, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// backoff returns InitialBackoff * 2^(attempt-1), capped, plus linear jitter.
func backoff(cfg Config, attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1)) * float64(cfg.InitialBackoff))
	if cfg.MaxBackoff > 0 && d > cfg.MaxBackoff {
		d = cfg.MaxBackoff
	}
	if cfg.Jitter > 0 && cfg.MaxRetries > 0 {
		d += time.Duration(float64(d) * cfg.Jitter * float64(attempt) / float64(cfg.MaxRetries))
	}
	return d
}
