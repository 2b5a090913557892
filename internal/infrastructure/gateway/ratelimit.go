package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"golang.org/x/time/rate"
)

// WindowCounter counts admissions against a rolling window. Implemented on
// Redis sorted sets in production and in memory for tests.
type WindowCounter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Count(ctx context.Context, key string, window time.Duration) (int64, error)
}

// providerLimiter enforces a provider's rate limits: a token bucket with
// capacity rpm+burst refilled at rpm/60 tokens per second, plus optional
// rolling hour and day windows.
type providerLimiter struct {
	providerID string
	limit      config.ProviderLimit
	bucket     *rate.Limiter
	windows    WindowCounter
}

func newProviderLimiter(providerID string, limit config.ProviderLimit, windows WindowCounter) *providerLimiter {
	return &providerLimiter{
		providerID: providerID,
		limit:      limit,
		bucket:     rate.NewLimiter(rate.Limit(float64(limit.RPM)/60.0), limit.RPM+limit.Burst),
		windows:    windows,
	}
}

// Acquire is non-blocking; it reports whether a token was available
func (l *providerLimiter) Acquire() bool {
	return l.bucket.Allow()
}

// WaitForToken suspends until a token refills or the context is cancelled,
// then enforces the hour and day windows.
func (l *providerLimiter) WaitForToken(ctx context.Context) error {
	if err := l.bucket.Wait(ctx); err != nil {
		return err
	}
	return l.checkWindows(ctx)
}

func (l *providerLimiter) checkWindows(ctx context.Context) error {
	if l.windows == nil {
		return nil
	}
	if l.limit.RPH > 0 {
		count, err := l.windows.Increment(ctx, l.providerID+":hour", time.Hour)
		if err != nil {
			return err
		}
		if count > int64(l.limit.RPH) {
			return &ProviderError{
				ProviderID: l.providerID,
				Kind:       ErrKindRateLimited,
				Detail:     "hourly request window exhausted",
				RetryAfter: time.Hour / time.Duration(l.limit.RPH),
			}
		}
	}
	if l.limit.RPD > 0 {
		count, err := l.windows.Increment(ctx, l.providerID+":day", 24*time.Hour)
		if err != nil {
			return err
		}
		if count > int64(l.limit.RPD) {
			return &ProviderError{
				ProviderID: l.providerID,
				Kind:       ErrKindRateLimited,
				Detail:     "daily request window exhausted",
				RetryAfter: 24 * time.Hour / time.Duration(l.limit.RPD),
			}
		}
	}
	return nil
}

// limiterRegistry hands out one limiter per provider
type limiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*providerLimiter
	cfg      *config.Config
	windows  WindowCounter
}

func newLimiterRegistry(cfg *config.Config, windows WindowCounter) *limiterRegistry {
	return &limiterRegistry{
		limiters: make(map[string]*providerLimiter),
		cfg:      cfg,
		windows:  windows,
	}
}

func (r *limiterRegistry) forProvider(providerID string) *providerLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[providerID]; ok {
		return l
	}
	l := newProviderLimiter(providerID, r.cfg.LimitFor(providerID), r.windows)
	r.limiters[providerID] = l
	return l
}
