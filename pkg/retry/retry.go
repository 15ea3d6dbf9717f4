// Package retry runs operations again after transient failures. The chain
// and exchange collaborators fail in bursts, so backoff is a fixed delay
// rather than exponential: callers know the cadence their upstream tolerates.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Policy configures a fixed-delay retry loop.
type Policy struct {
	// Delay between attempts.
	Delay time.Duration
	// MaxAttempts caps the total number of attempts. Zero means retry until
	// the context is cancelled.
	MaxAttempts int
	// RetryableFunc decides whether an error is worth another attempt.
	// Nil retries everything.
	RetryableFunc func(error) bool
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy Policy
	logger *zap.Logger
}

// New creates a retrier.
func New(policy Policy, logger *zap.Logger) *Retrier {
	if policy.Delay <= 0 {
		policy.Delay = time.Second
	}
	return &Retrier{policy: policy, logger: logger}
}

// Do executes operation until it succeeds, the error is not retryable, the
// attempt cap is hit, or the context is cancelled.
func (r *Retrier) Do(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Info("operation succeeded after retries", zap.Int("attempt", attempt))
			}
			return nil
		}

		if r.policy.RetryableFunc != nil && !r.policy.RetryableFunc(lastErr) {
			return lastErr
		}
		if r.policy.MaxAttempts > 0 && attempt >= r.policy.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, lastErr)
		}

		r.logger.Debug("retrying operation",
			zap.Error(lastErr),
			zap.Int("attempt", attempt),
			zap.Duration("delay", r.policy.Delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.policy.Delay):
		}
	}
}
