// Package retry provides configurable retry logic with exponential backoff for transient failures.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts int
	Delays      []time.Duration
	// Retryable reports whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool
}

// Exponential builds a Config whose delays start at base and double per attempt
func Exponential(maxAttempts int, base time.Duration) Config {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delays := make([]time.Duration, 0, maxAttempts-1)
	delay := base
	for i := 1; i < maxAttempts; i++ {
		delays = append(delays, delay)
		delay *= 2
	}
	return Config{MaxAttempts: maxAttempts, Delays: delays}
}

// WithRetry executes fn with exponential backoff retry logic.
// It will attempt the function up to MaxAttempts times, with delays between attempts.
// An error rejected by Retryable is returned as is, without further attempts.
// If MaxAttempts is exceeded, the last error is returned wrapped with context.
func WithRetry(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		// Apply delay before retry (not before first attempt)
		if attempt > 0 {
			select {
			case <-time.After(cfg.delay(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// delay returns the wait before the given attempt, reusing the last delay when
// the list runs out
func (c Config) delay(attempt int) time.Duration {
	if len(c.Delays) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(c.Delays) {
		idx = len(c.Delays) - 1
	}
	return c.Delays[idx]
}
