package gateway

import (
	"sync"

	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/infrastructure/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// breakerRegistry keeps one circuit breaker per provider. A breaker opens
// after FailureThreshold consecutive failures, moves to half-open after
// RecoveryTimeout and admits at most HalfOpenMaxCalls probes; one probe
// success closes it and resets the counters.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	cfg      config.BreakerConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func newBreakerRegistry(cfg config.BreakerConfig, logger *zap.Logger, m *metrics.Metrics) *breakerRegistry {
	return &breakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

func (r *breakerRegistry) forProvider(providerID string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[providerID]; ok {
		return cb
	}

	threshold := uint32(r.cfg.FailureThreshold)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        providerID,
		MaxRequests: uint32(r.cfg.HalfOpenMaxCalls),
		Timeout:     r.cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Info("circuit breaker transition",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			r.metrics.CircuitTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	r.breakers[providerID] = cb
	return cb
}

// wrapBreakerError converts gobreaker short-circuit errors into the
// provider error taxonomy: an open circuit reads as service_unavailable.
func wrapBreakerError(providerID string, err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return &ProviderError{
			ProviderID: providerID,
			Kind:       ErrKindServiceUnavailable,
			Detail:     "circuit breaker open",
		}
	}
	return err
}
