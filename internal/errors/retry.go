package errors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reelpipe/internal/logging"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first (default: 3)
	BaseDelay   time.Duration // Linear backoff unit: delay after attempt n is BaseDelay*n (default: 1s)

	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// LinearBackoff returns the wait after the given 1-based attempt failed.
func LinearBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}

// RetryableFunc is one attempt; attempt is 1-based.
type RetryableFunc[T any] func(ctx context.Context, attempt int) (T, error)

// RetryWithResult runs fn until it succeeds or MaxAttempts is reached. Only
// an open breaker or caller cancellation stops it early. Attempts run sequentially. Exhaustion yields a
// *RetryExhaustedError wrapping the last attempt's error.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, fn RetryableFunc[T], logger logging.Logger) (T, error) {
	logger = logging.OrNop(logger)
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if config.BaseDelay < 0 {
		config.BaseDelay = 0
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var zeroValue T
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			logger.Debug("Context cancelled, stopping retries")
			return zeroValue, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("Retry succeeded after %d attempts", attempt)
			}
			return result, nil
		}

		lastErr = err
		logger.Debug("Attempt %d/%d failed (%s): %v", attempt, config.MaxAttempts, GetErrorType(err), err)

		if isTerminal(err) {
			logger.Debug("Error is terminal, stopping retries")
			return zeroValue, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		delay := LinearBackoff(attempt, config.BaseDelay)
		logger.Debug("Waiting %v before next retry", delay)
		if err := sleep(ctx, delay); err != nil {
			logger.Debug("Context cancelled during backoff")
			return zeroValue, fmt.Errorf("context cancelled during retry: %w", err)
		}
	}

	logger.Warn("Max retries (%d) exhausted", config.MaxAttempts)
	return zeroValue, &RetryExhaustedError{Attempts: config.MaxAttempts, Err: lastErr}
}

// isTerminal reports errors that end the loop before MaxAttempts: an open
// breaker admits nothing further and a cancelled caller is gone.
func isTerminal(err error) bool {
	return IsCircuitOpen(err) || errors.Is(err, context.Canceled)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
