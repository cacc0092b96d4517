package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gojek/heimdall/v7"

	"floraGuardAPI/internal/gamification"
	"floraGuardAPI/internal/observability"
	"floraGuardAPI/internal/pkg/logger"
)

// Retrier re-runs persistence operations with backoff. Invalid input and
// context cancellation are never retried.
type Retrier struct {
	attempts int
	backoff  heimdall.Retriable
	log      *logger.Logger
	metrics  *observability.Metrics
}

// DefaultBackoff waits 50ms, 100ms, 200ms... capped at 2s, with up to 20ms jitter.
func DefaultBackoff() heimdall.Retriable {
	return heimdall.NewRetrier(heimdall.NewExponentialBackoff(50*time.Millisecond, 2*time.Second, 2, 20*time.Millisecond))
}

func NewRetrier(attempts int, backoff heimdall.Retriable, log *logger.Logger, metrics *observability.Metrics) *Retrier {
	if attempts < 1 {
		attempts = 1
	}
	if backoff == nil {
		backoff = heimdall.NewNoRetrier()
	}
	return &Retrier{attempts: attempts, backoff: backoff, log: log, metrics: metrics}
}

// Do runs fn until it succeeds or the attempts are used up. The final error
// wraps ErrPersistence and the last cause. Cancellation is returned as is.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			r.metrics.PersistRetry(op)
			if werr := wait(ctx, r.backoff.NextInterval(attempt-2)); werr != nil {
				return werr
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		r.log.Warn("persistence attempt failed", "operation", op, "attempt", attempt, "error", err)
	}

	r.metrics.PersistFailure(op)
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func retryable(err error) bool {
	return !errors.Is(err, gamification.ErrInvalidInput) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
