package utils

import (
	"fmt"
	"time"
)

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	// Exponential doubles the delay after each failed attempt;
	// otherwise the delay between attempts is constant.
	Exponential bool
	Logger      *Logger
}

// Do executes fn until it succeeds or MaxAttempts is exhausted. The
// returned error wraps the last underlying failure.
func (r *RetryConfig) Do(operationName string, fn func() error) error {
	var lastErr error
	delay := r.Delay

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < r.MaxAttempts {
			if r.Logger != nil {
				r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v — retrying in %v",
					operationName, attempt, r.MaxAttempts, lastErr, delay)
			}
			time.Sleep(delay)
			if r.Exponential {
				delay *= 2
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, r.MaxAttempts, lastErr)
}
