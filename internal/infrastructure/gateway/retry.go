package gateway

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/clearvet/screening-backend/internal/infrastructure/config"
)

// retrier reruns provider calls on transient and temporary failures with
// exponential backoff and jitter. Permanent and fatal errors return
// immediately; rate-limited errors honor the server-suggested delay.
type retrier struct {
	cfg config.RetryConfig
}

func newRetrier(cfg config.RetryConfig) *retrier {
	return &retrier{cfg: cfg}
}

// Do runs fn up to MaxAttempts times, sleeping between attempts
func (r *retrier) Do(ctx context.Context, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var provErr *ProviderError
		if !errors.As(err, &provErr) || !provErr.Class().Retryable() {
			return nil, err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := r.backoff(attempt)
		if provErr.Kind == ErrKindRateLimited && provErr.RetryAfter > 0 {
			delay = provErr.RetryAfter
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// backoff computes initial * base^(attempt-1) capped at MaxDelay, scaled by
// jitter in [0.5, 1.5).
func (r *retrier) backoff(attempt int) time.Duration {
	delay := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.Base, float64(attempt-1))
	if capped := float64(r.cfg.MaxDelay); delay > capped {
		delay = capped
	}
	jitter := 0.5 + rand.Float64()
	return time.Duration(delay * jitter)
}
