// Package investigation runs the iterative Search-Assess-Refine loop per
// information type and orchestrates network expansion across degrees.
package investigation

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/compliance"
	"github.com/clearvet/screening-backend/internal/domain/knowledge"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/infrastructure/gateway"
	"github.com/clearvet/screening-backend/internal/infrastructure/metrics"
	"github.com/clearvet/screening-backend/internal/service/planner"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// SARController drives one info type through search, assess and refine until
// a terminal phase is reached.
type SARController struct {
	cfg      config.InvestigationConfig
	planner  QueryPlanner
	assessor ResultAssessor
	caller   ProviderCaller
	auditLog *audit.Logger
	logger   *zap.Logger
	metrics  *metrics.Metrics
	sem      *semaphore.Weighted // global investigation concurrency
}

// NewSARController wires the loop's collaborators
func NewSARController(
	cfg config.InvestigationConfig,
	queryPlanner QueryPlanner,
	assessor ResultAssessor,
	caller ProviderCaller,
	auditLog *audit.Logger,
	logger *zap.Logger,
	m *metrics.Metrics,
) *SARController {
	limit := cfg.GlobalConcurrencyLimit
	if limit < 1 {
		limit = 1
	}
	return &SARController{
		cfg:      cfg,
		planner:  queryPlanner,
		assessor: assessor,
		caller:   caller,
		auditLog: auditLog,
		logger:   logger,
		metrics:  m,
		sem:      semaphore.NewWeighted(int64(limit)),
	}
}

// Run executes the SAR loop for one information type. The returned state is
// always terminal; only context cancellation aborts with an error.
func (c *SARController) Run(
	ctx context.Context,
	rctx values.RequestContext,
	subject *screening.Subject,
	tier screening.Tier,
	rules *compliance.Ruleset,
	base *knowledge.Base,
	infoType screening.InformationType,
) (*screening.SARState, error) {
	state, err := screening.NewSARState(infoType)
	if err != nil {
		return nil, err
	}

	if !rules.IsPermitted(infoType) {
		c.transition(ctx, rctx, subject, state, screening.SARPhaseCapped, screening.ReasonBlockedByCompliance)
		return state, nil
	}

	executed := planner.NewExecutedSet()
	queries := c.planner.Plan(infoType, subject, rules, tier)
	if len(queries) == 0 {
		c.transition(ctx, rctx, subject, state, screening.SARPhaseCapped, screening.ReasonProvidersExhausted)
		return state, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			if stderrors.Is(err, context.DeadlineExceeded) {
				c.transition(ctx, rctx, subject, state, screening.SARPhaseCapped, screening.ReasonDeadlineExceeded)
				return state, nil
			}
			return state, err
		}

		results, executedCount := c.search(ctx, rctx, subject, tier, rules, queries, executed)
		c.transition(ctx, rctx, subject, state, screening.SARPhaseAssess, "")

		if len(results) == 0 && state.CumulativeFacts() == 0 {
			// Every provider failed and nothing was learned so far.
			c.transition(ctx, rctx, subject, state, screening.SARPhaseCapped, screening.ReasonProvidersExhausted)
			return state, nil
		}

		newFacts, err := c.assessor.Ingest(base, infoType, results)
		if err != nil {
			return state, err
		}
		a := c.assessor.Assess(base, infoType, newFacts, executedCount)

		if err := state.RecordIteration(screening.Iteration{
			Number:          len(state.Iterations) + 1,
			QueriesExecuted: executedCount,
			NewFacts:        newFacts,
			Confidence:      a.Confidence,
			InfoGainRate:    a.InfoGainRate,
			CompletedAt:     time.Now().UTC(),
		}); err != nil {
			return state, err
		}
		c.metrics.SARIterations.WithLabelValues(string(infoType)).Inc()

		threshold, maxIterations := c.thresholds(infoType)
		k := len(state.Iterations)

		switch {
		case a.Confidence >= threshold:
			c.transition(ctx, rctx, subject, state, screening.SARPhaseComplete, screening.ReasonConfidenceThresholdMet)
			return state, nil
		case k >= maxIterations:
			c.transition(ctx, rctx, subject, state, screening.SARPhaseCapped, screening.ReasonMaxIterationsReached)
			return state, nil
		case k >= 2 && (a.InfoGainRate < c.cfg.MinGainThreshold || state.ConfidenceDelta() < c.cfg.MinConfidenceDelta):
			c.transition(ctx, rctx, subject, state, screening.SARPhaseDiminished, screening.ReasonDiminishingReturns)
			return state, nil
		}

		queries = c.planner.Refine(base.Snapshot(infoType), subject, rules, tier, executed)
		if len(queries) == 0 {
			c.transition(ctx, rctx, subject, state, screening.SARPhaseDiminished, screening.ReasonDiminishingReturns)
			return state, nil
		}
		c.transition(ctx, rctx, subject, state, screening.SARPhaseRefine, "")
		c.transition(ctx, rctx, subject, state, screening.SARPhaseSearch, "")
	}
}

// thresholds returns the confidence threshold and iteration cap for an info
// type's phase. Foundation runs stricter and longer.
func (c *SARController) thresholds(infoType screening.InformationType) (float64, int) {
	if infoType.Phase() == screening.PhaseFoundation {
		return c.cfg.FoundationConfidenceThreshold, c.cfg.FoundationMaxIterations
	}
	return c.cfg.ConfidenceThreshold, c.cfg.MaxIterations
}

// search runs one iteration's queries in parallel under the global
// concurrency limit and gathers the successful results. Failures are logged
// and skipped; the iteration proceeds on partial results.
func (c *SARController) search(
	ctx context.Context,
	rctx values.RequestContext,
	subject *screening.Subject,
	tier screening.Tier,
	rules *compliance.Ruleset,
	queries []planner.SearchQuery,
	executed *planner.ExecutedSet,
) ([]*gateway.Result, int) {
	var (
		mu      sync.Mutex
		results []*gateway.Result
	)
	g, gctx := errgroup.WithContext(ctx)

	for _, q := range queries {
		if len(q.Providers) == 0 {
			continue
		}
		executed.Record(string(q.CheckType), q.Params)

		query := q
		g.Go(func() error {
			if err := c.sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer c.sem.Release(1)

			req := gateway.Request{
				CheckType:    query.CheckType,
				Params:       query.Params,
				TenantID:     rctx.TenantID(),
				RedactFields: rules.RedactedFields(query.CheckType),
			}
			if lookback, ok := rules.Lookback(query.CheckType); ok {
				req.Lookback = lookback
			}

			result, err := c.caller.CallWithFallback(gctx, rctx, tier, rules, query.Providers, req)
			if err != nil {
				c.logger.Warn("search query failed",
					zap.String("check_type", string(query.CheckType)),
					zap.String("subject_id", subject.ID.String()),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, len(queries)
}

// transition applies a phase change and emits the audit record. Invalid
// transitions indicate a controller bug and are logged loudly.
func (c *SARController) transition(
	ctx context.Context,
	rctx values.RequestContext,
	subject *screening.Subject,
	state *screening.SARState,
	next screening.SARPhase,
	reason screening.CompletionReason,
) {
	record, err := state.Transition(next, reason)
	if err != nil {
		c.logger.Error("illegal SAR transition",
			zap.String("check_type", string(state.InfoType)),
			zap.String("phase", string(state.Phase)),
			zap.String("next", string(next)),
			zap.Error(err))
		return
	}
	if c.auditLog == nil {
		return
	}
	event, err := audit.NewEvent(audit.EventSARTransition, rctx.TenantID(), rctx.CorrelationID(),
		subject.ID.String(), string(state.InfoType), string(audit.EventSARTransition))
	if err != nil {
		return
	}
	event.WithMetadata("old_phase", string(record.OldPhase)).
		WithMetadata("new_phase", string(record.NewPhase)).
		WithMetadata("reason", string(record.Reason)).
		WithMetadata("iteration", record.Iteration).
		WithMetadata("cumulative_facts", record.CumulativeFacts)
	if err := c.auditLog.Emit(ctx, event); err != nil {
		c.logger.Warn("failed to emit SAR transition event", zap.Error(err))
	}
}
