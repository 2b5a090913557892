package gateway

import (
	"context"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/compliance"
	domainerrors "github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/infrastructure/cache"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/infrastructure/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CodeProvidersExhausted marks the error returned when every prioritized
// provider for a check type has failed. Callers match on the code to report
// the check type unavailable instead of failing the whole investigation.
const CodeProvidersExhausted = "PROVIDERS_EXHAUSTED"

func providersExhaustedError(checkType screening.InformationType) *domainerrors.AppError {
	err := domainerrors.NewProviderError("*", "all providers exhausted for check type "+string(checkType))
	err.Code = CodeProvidersExhausted
	return err
}

// Gateway is the uniform, resilient entry point for outbound provider
// calls. Every call is gated by compliance, served from cache when fresh
// enough, coalesced per fingerprint, rate limited, retried and circuit
// broken: call = breaker(retry(rate_limiter(raw_call))).
type Gateway struct {
	cfg       *config.Config
	providers map[string]Provider
	store     cache.Store
	limiters  *limiterRegistry
	breakers  *breakerRegistry
	retrier   *retrier
	flight    singleflight.Group
	auditLog  *audit.Logger
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// New builds a gateway over the registered providers
func New(
	cfg *config.Config,
	providers []Provider,
	store cache.Store,
	windows WindowCounter,
	auditLog *audit.Logger,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Gateway {
	byID := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byID[p.ID()] = p
	}
	return &Gateway{
		cfg:       cfg,
		providers: byID,
		store:     store,
		limiters:  newLimiterRegistry(cfg, windows),
		breakers:  newBreakerRegistry(cfg.Breaker, logger, m),
		retrier:   newRetrier(cfg.Retry),
		auditLog:  auditLog,
		logger:    logger,
		metrics:   m,
	}
}

// Call executes one provider call under the full resilience stack
func (g *Gateway) Call(
	ctx context.Context,
	rctx values.RequestContext,
	tier screening.Tier,
	rules *compliance.Ruleset,
	providerID string,
	req Request,
) (*Result, error) {
	// Compliance gate: no outbound call may ever be issued for a check type
	// the ruleset does not permit.
	if !rules.IsPermitted(req.CheckType) {
		g.emitAudit(ctx, rctx, audit.EventComplianceBlocked, providerID, string(req.CheckType), "blocked", map[string]interface{}{
			"check_type":   string(req.CheckType),
			"jurisdiction": rules.Jurisdiction,
		})
		return nil, domainerrors.NewComplianceError(string(req.CheckType),
			"check type not permitted by compliance ruleset").
			WithCorrelation(rctx.CorrelationID().String())
	}

	provider, ok := g.providers[providerID]
	if !ok {
		return nil, domainerrors.NewNotFoundError("provider " + providerID)
	}
	if !provider.Supports(req.CheckType) {
		return nil, domainerrors.NewValidationError("UNSUPPORTED_CHECK",
			"provider "+providerID+" does not support "+string(req.CheckType))
	}

	fp, err := g.fingerprint(providerID, req)
	if err != nil {
		return nil, err
	}

	if result, done, err := g.tryCache(ctx, tier, fp, req); done {
		return result, err
	}

	result, err := g.fetch(ctx, rctx, tier, provider, fp, req)
	if err != nil {
		return nil, err
	}

	// A cancelled caller never consumes a late result, but the fetch was
	// cached above so the next request benefits.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return result, nil
}

// CallWithFallback tries the prioritized providers in order, moving to the
// next on retryable exhaustion. Permanent compliance failures abort
// immediately.
func (g *Gateway) CallWithFallback(
	ctx context.Context,
	rctx values.RequestContext,
	tier screening.Tier,
	rules *compliance.Ruleset,
	providerIDs []string,
	req Request,
) (*Result, error) {
	if len(providerIDs) == 0 {
		return nil, providersExhaustedError(req.CheckType)
	}
	var lastErr error
	for i, providerID := range providerIDs {
		result, err := g.Call(ctx, rctx, tier, rules, providerID, req)
		if err == nil {
			return result, nil
		}
		if domainerrors.IsType(err, domainerrors.ErrorTypeCompliance) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if i < len(providerIDs)-1 {
			g.logger.Warn("provider failed, falling back",
				zap.String("provider", providerID),
				zap.String("next", providerIDs[i+1]),
				zap.String("check_type", string(req.CheckType)),
				zap.Error(err))
			g.emitAudit(ctx, rctx, audit.EventProviderFallback, providerID, string(req.CheckType), "fallback", map[string]interface{}{
				"next_provider": providerIDs[i+1],
			})
		}
	}
	g.logger.Error("all providers exhausted",
		zap.String("check_type", string(req.CheckType)),
		zap.Int("providers_tried", len(providerIDs)),
		zap.Error(lastErr))
	return nil, providersExhaustedError(req.CheckType).
		WithCause(lastErr).
		WithCorrelation(rctx.CorrelationID().String())
}

func (g *Gateway) fingerprint(providerID string, req Request) (values.Fingerprint, error) {
	params := make(map[string]string, len(req.Params)+1)
	for k, v := range req.Params {
		params[k] = v
	}
	// Tenant-scoped inputs produce tenant-scoped cache entries.
	if req.TenantScoped {
		params["tenant_id"] = req.TenantID.String()
	}
	return values.ComputeFingerprint(providerID, string(req.CheckType), params)
}

// tryCache returns (result, true, nil) when the cached entry satisfies the
// freshness policy, (nil, false, nil) when a refresh is required.
func (g *Gateway) tryCache(ctx context.Context, tier screening.Tier, fp values.Fingerprint, req Request) (*Result, bool, error) {
	entry, err := g.store.Get(ctx, fp)
	if err != nil {
		g.logger.Warn("cache lookup failed; treating as miss", zap.Error(err))
		return nil, false, nil
	}
	if entry == nil {
		g.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false, nil
	}

	decision := cache.Decide(req.CheckType, tier, entry.Age(time.Now()))
	g.metrics.CacheLookups.WithLabelValues(string(decision)).Inc()
	switch decision {
	case cache.DecisionReturnCached:
		return &Result{
			ProviderID:  entry.ProviderID,
			CheckType:   entry.CheckType,
			Payload:     entry.Payload,
			FromCache:   true,
			RetrievedAt: entry.CachedAt,
		}, true, nil
	case cache.DecisionReturnStale:
		return &Result{
			ProviderID:  entry.ProviderID,
			CheckType:   entry.CheckType,
			Payload:     entry.Payload,
			FromCache:   true,
			Stale:       true,
			RetrievedAt: entry.CachedAt,
		}, true, nil
	default:
		return nil, false, nil
	}
}

// fetch performs the coalesced, resilient provider fetch. At most one
// in-flight fetch runs per (provider, fingerprint); concurrent callers
// await the shared result.
func (g *Gateway) fetch(
	ctx context.Context,
	rctx values.RequestContext,
	tier screening.Tier,
	provider Provider,
	fp values.Fingerprint,
	req Request,
) (*Result, error) {
	key := provider.ID() + ":" + fp.String()
	v, err, _ := g.flight.Do(key, func() (interface{}, error) {
		return g.dispatch(ctx, rctx, provider, fp, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (g *Gateway) dispatch(
	ctx context.Context,
	rctx values.RequestContext,
	provider Provider,
	fp values.Fingerprint,
	req Request,
) (*Result, error) {
	providerID := provider.ID()
	limit := g.cfg.LimitFor(providerID)
	limiter := g.limiters.forProvider(providerID)
	breaker := g.breakers.forProvider(providerID)

	start := time.Now()
	v, err := breaker.Execute(func() (interface{}, error) {
		return g.retrier.Do(ctx, func(ctx context.Context) (*Result, error) {
			if err := limiter.WaitForToken(ctx); err != nil {
				return nil, err
			}
			// An in-flight provider call runs up to its own timeout even if
			// the caller cancels; the caller's result is dropped above.
			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), limit.Timeout)
			defer cancel()
			return provider.Call(callCtx, req)
		})
	})

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	g.metrics.ProviderCalls.WithLabelValues(providerID, outcome).Inc()
	g.metrics.ProviderDuration.WithLabelValues(providerID).Observe(time.Since(start).Seconds())
	g.emitAudit(ctx, rctx, audit.EventProviderCall, providerID, string(req.CheckType), outcome, map[string]interface{}{
		"fingerprint": fp.String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if err != nil {
		return nil, wrapBreakerError(providerID, err)
	}

	result := v.(*Result)
	result.ProviderID = providerID
	result.RetrievedAt = time.Now().UTC()

	if putErr := g.store.Put(ctx, &cache.Entry{
		Fingerprint: fp,
		ProviderID:  providerID,
		CheckType:   req.CheckType,
		Payload:     result.Payload,
		CachedAt:    result.RetrievedAt,
	}); putErr != nil {
		g.logger.Warn("failed to cache provider result",
			zap.String("provider", providerID),
			zap.Error(putErr))
	}
	return result, nil
}

func (g *Gateway) emitAudit(ctx context.Context, rctx values.RequestContext, eventType audit.EventType, targetID, targetType, result string, meta map[string]interface{}) {
	if g.auditLog == nil {
		return
	}
	event, err := audit.NewEvent(eventType, rctx.TenantID(), rctx.CorrelationID(), targetID, targetType, string(eventType))
	if err != nil {
		g.logger.Warn("failed to build audit event", zap.Error(err))
		return
	}
	event.WithResult(result)
	for k, v := range meta {
		event.WithMetadata(k, v)
	}
	if err := g.auditLog.Emit(ctx, event); err != nil {
		g.logger.Warn("failed to emit audit event", zap.Error(err))
	}
}
