// Package screening exposes the inbound screening operations: initiate a
// screening for a subject, execute it end to end, query its checkpointed
// state and cancel it. Completed screenings version the entity's risk
// profile and can enroll the entity for ongoing monitoring.
package screening

import (
	"context"
	"sync"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/knowledge"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	screeningdomain "github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/infrastructure/metrics"
	"github.com/clearvet/screening-backend/internal/service/investigation"
	"github.com/clearvet/screening-backend/internal/service/notify"
	"github.com/clearvet/screening-backend/internal/service/risk"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service coordinates one screening from request to versioned profile
type Service struct {
	cfg       config.InvestigationConfig
	evaluator RulesetEvaluator
	resolver  EntityResolver
	inv       Investigator
	assessor  RiskAssessor
	profiles  ProfileStore
	states    StateStore
	enroller  Enroller
	alerts    *notify.Dispatcher
	auditLog  *audit.Logger
	logger    *zap.Logger
	metrics   *metrics.Metrics
	validate  *validator.Validate

	// versionLocks serializes profile writers per entity so versions stay
	// strictly monotonic without gaps.
	versionLocks sync.Map // uuid.UUID -> *sync.Mutex
	cancels      sync.Map // screening ID -> context.CancelFunc
}

// NewService creates the screening service. The enroller and the alert
// dispatcher may be nil when monitoring or notifications are not wired.
func NewService(
	cfg config.InvestigationConfig,
	evaluator RulesetEvaluator,
	resolver EntityResolver,
	inv Investigator,
	riskAssessor RiskAssessor,
	profiles ProfileStore,
	states StateStore,
	enroller Enroller,
	alerts *notify.Dispatcher,
	auditLog *audit.Logger,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		cfg:       cfg,
		evaluator: evaluator,
		resolver:  resolver,
		inv:       inv,
		assessor:  riskAssessor,
		profiles:  profiles,
		states:    states,
		enroller:  enroller,
		alerts:    alerts,
		auditLog:  auditLog,
		logger:    logger,
		metrics:   m,
		validate:  validator.New(),
	}
}

// Initiate validates the request, builds the subject and persists a pending
// screening. Consent is required; D3 requires the Enhanced tier.
func (s *Service) Initiate(ctx context.Context, rctx values.RequestContext, req InitiateRequest) (*screeningdomain.Request, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, errors.NewValidationError("INVALID_REQUEST", err.Error()).
			WithCorrelation(rctx.CorrelationID().String())
	}

	subject, err := screeningdomain.NewSubject(rctx.TenantID(), screeningdomain.Identifiers{
		FullName:       req.FullName,
		DateOfBirth:    req.DateOfBirth,
		SSNHash:        req.SSNHash,
		NationalIDHash: req.NationalIDHash,
		Addresses:      req.Addresses,
	}, req.Jurisdiction, req.Role)
	if err != nil {
		return nil, err
	}

	request, err := screeningdomain.NewRequest(subject, req.Tier, screeningdomain.Degree(req.Degree), req.ConsentRef)
	if err != nil {
		return nil, err
	}

	state := &screeningdomain.State{
		ScreeningID:     request.ScreeningID,
		TenantID:        rctx.TenantID(),
		Status:          screeningdomain.StatusPending,
		CurrentPhase:    screeningdomain.PhaseFoundation,
		ProgressPercent: progressPending,
		Checkpoints:     make(map[screeningdomain.InformationType]string),
		UpdatedAt:       time.Now().UTC(),
	}
	if err := s.states.Save(ctx, state); err != nil {
		return nil, err
	}

	s.logger.Info("screening initiated",
		zap.String("screening_id", request.ScreeningID.String()),
		zap.String("tier", string(request.Tier)),
		zap.String("degree", request.Degree.String()))
	return request, nil
}

// Execute runs a screening end to end under the per-screening deadline and
// returns the versioned profile and risk assessment.
func (s *Service) Execute(ctx context.Context, rctx values.RequestContext, request *screeningdomain.Request) (*Outcome, error) {
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScreeningTimeout)
	defer cancel()
	s.cancels.Store(request.ScreeningID, cancel)
	defer s.cancels.Delete(request.ScreeningID)

	state, err := s.states.Get(ctx, rctx.TenantID(), request.ScreeningID)
	if err != nil {
		return nil, err
	}
	state.Status = screeningdomain.StatusRunning
	state.ProgressPercent = progressRunning
	state.UpdatedAt = time.Now().UTC()
	if err := s.states.Save(ctx, state); err != nil {
		return nil, err
	}
	s.emitScreeningEvent(ctx, rctx, audit.EventScreeningStarted, request)

	outcome, err := s.run(ctx, rctx, request, state)
	if err != nil {
		s.finish(ctx, state, started, err)
		return nil, err
	}
	s.finish(ctx, state, started, nil)
	s.dispatchOutcome(ctx, rctx, outcome)
	return outcome, nil
}

// dispatchOutcome notifies the consumer about a completed screening. Review
// recommendations and adverse action candidates get their own alert kinds.
func (s *Service) dispatchOutcome(ctx context.Context, rctx values.RequestContext, outcome *Outcome) {
	if s.alerts == nil {
		return
	}

	complete := notify.NewAlert(rctx.TenantID(), notify.KindScreeningComplete, notify.SeverityLow)
	complete.ScreeningID = outcome.ScreeningID
	complete.EntityID = outcome.EntityID
	complete.Body["profile_version"] = outcome.Profile.Version
	complete.Body["risk_score"] = outcome.Assessment.FinalScore
	complete.Body["recommendation"] = string(outcome.Assessment.Recommendation)
	s.dispatch(ctx, complete)

	var followup notify.Alert
	switch outcome.Assessment.Recommendation {
	case profile.RiskReview:
		followup = notify.NewAlert(rctx.TenantID(), notify.KindReviewRequired, notify.SeverityMedium)
	case profile.RiskEnhancedReview:
		followup = notify.NewAlert(rctx.TenantID(), notify.KindReviewRequired, notify.SeverityHigh)
	case profile.RiskAdverseActionCandidate:
		followup = notify.NewAlert(rctx.TenantID(), notify.KindAdverseActionPending, notify.SeverityHigh)
	default:
		return
	}
	followup.ScreeningID = outcome.ScreeningID
	followup.EntityID = outcome.EntityID
	followup.Body["risk_score"] = outcome.Assessment.FinalScore
	followup.Body["recommendation"] = string(outcome.Assessment.Recommendation)
	s.dispatch(ctx, followup)
}

func (s *Service) dispatch(ctx context.Context, alert notify.Alert) {
	if err := s.alerts.Dispatch(context.WithoutCancel(ctx), alert); err != nil {
		s.logger.Error("alert dispatch failed",
			zap.String("alert_id", alert.ID.String()),
			zap.String("kind", string(alert.Kind)),
			zap.Error(err))
	}
}

func (s *Service) run(ctx context.Context, rctx values.RequestContext, request *screeningdomain.Request, state *screeningdomain.State) (*Outcome, error) {
	rules, err := s.evaluator.Evaluate(ctx, request.Jurisdiction, request.Role)
	if err != nil {
		return nil, err
	}

	match, err := s.resolver.Resolve(ctx, rctx, request.Subject)
	if err != nil {
		return nil, err
	}

	base := knowledge.NewBase(request.ScreeningID)

	// Types already checkpointed terminal by an earlier execution are not
	// re-investigated; degraded outcomes get another attempt.
	completed := make([]screeningdomain.InformationType, 0, len(state.Checkpoints))
	for infoType, reason := range state.Checkpoints {
		if retryableCheckpoint(screeningdomain.CompletionReason(reason)) {
			continue
		}
		completed = append(completed, infoType)
	}

	// Checkpoints are persisted as each info type reaches its terminal
	// state so a crash mid-investigation does not lose finished work.
	// Types within a phase finish concurrently.
	var cpMu sync.Mutex
	observer := func(infoType screeningdomain.InformationType, st *screeningdomain.SARState) {
		cpMu.Lock()
		defer cpMu.Unlock()
		state.Checkpoints[infoType] = string(st.CompletionReason)
		state.UpdatedAt = time.Now().UTC()
		if err := s.states.Save(ctx, state); err != nil {
			s.logger.Warn("failed to checkpoint screening state",
				zap.String("screening_id", state.ScreeningID.String()),
				zap.String("info_type", string(infoType)),
				zap.Error(err))
		}
	}

	result, err := s.inv.Run(ctx, rctx, request.Subject, request.Tier, request.Degree, rules, base,
		investigation.WithCompletedTypes(completed...),
		investigation.WithTypeObserver(observer))
	if err != nil {
		return nil, err
	}

	for infoType, st := range result.SubjectStates {
		state.Checkpoints[infoType] = string(st.CompletionReason)
	}
	state.CurrentPhase = screeningdomain.PhaseIntelligence
	state.ProgressPercent = progressInvestigated
	state.UpdatedAt = time.Now().UTC()
	if err := s.states.Save(ctx, state); err != nil {
		return nil, err
	}

	assessment, err := s.assessor.Assess(ctx, rctx, request.Role, result)
	if err != nil {
		return nil, err
	}
	state.ProgressPercent = progressRiskAssessed
	state.UpdatedAt = time.Now().UTC()
	if err := s.states.Save(ctx, state); err != nil {
		return nil, err
	}

	versioned, err := s.versionProfile(ctx, rctx, match.Entity.ID, assessment, result.Degraded, result.Graph)
	if err != nil {
		return nil, err
	}

	if s.enroller != nil {
		if _, err := s.enroller.Enroll(ctx, rctx, request.Role, versioned); err != nil {
			s.logger.Warn("monitoring enrollment failed",
				zap.String("entity_id", match.Entity.ID.String()),
				zap.Error(err))
		}
	}

	return &Outcome{
		ScreeningID: request.ScreeningID,
		EntityID:    match.Entity.ID,
		Profile:     versioned,
		Assessment:  assessment,
	}, nil
}

// retryableCheckpoint reports whether a checkpointed terminal reason should
// be re-run on a later execution instead of skipped.
func retryableCheckpoint(reason screeningdomain.CompletionReason) bool {
	switch reason {
	case screeningdomain.ReasonProvidersExhausted, screeningdomain.ReasonDeadlineExceeded:
		return true
	}
	return false
}

// versionProfile writes the next profile version for the entity under the
// per-entity lock.
func (s *Service) versionProfile(ctx context.Context, rctx values.RequestContext, entityID uuid.UUID, assessment *risk.Assessment, degraded bool, graph *profile.EntityGraph) (*profile.Profile, error) {
	lock := s.lockFor(entityID)
	lock.Lock()
	defer lock.Unlock()

	latest, err := s.profiles.LatestVersion(ctx, rctx.TenantID(), entityID)
	if err != nil {
		return nil, err
	}

	p, err := profile.New(entityID, rctx.TenantID(), latest+1, assessment.Findings, assessment.FinalScore, graph)
	if err != nil {
		return nil, err
	}
	if degraded {
		*p = p.MarkDegraded()
	}
	if err := s.profiles.Save(ctx, p); err != nil {
		return nil, err
	}

	s.emitProfileVersioned(ctx, rctx, p)
	return p, nil
}

// VersionProfile writes the next profile version for an entity outside the
// screening flow. Monitoring rechecks version through here so screening and
// recheck writers share the per-entity lock.
func (s *Service) VersionProfile(ctx context.Context, rctx values.RequestContext, entityID uuid.UUID, assessment *risk.Assessment, degraded bool, graph *profile.EntityGraph) (*profile.Profile, error) {
	return s.versionProfile(ctx, rctx, entityID, assessment, degraded, graph)
}

// Get returns the checkpointed state of a screening
func (s *Service) Get(ctx context.Context, rctx values.RequestContext, screeningID uuid.UUID) (*screeningdomain.State, error) {
	return s.states.Get(ctx, rctx.TenantID(), screeningID)
}

// Cancel aborts a pending or running screening
func (s *Service) Cancel(ctx context.Context, rctx values.RequestContext, screeningID uuid.UUID) error {
	state, err := s.states.Get(ctx, rctx.TenantID(), screeningID)
	if err != nil {
		return err
	}
	switch state.Status {
	case screeningdomain.StatusCompleted, screeningdomain.StatusCancelled, screeningdomain.StatusFailed:
		return errors.NewConflictError("screening is already terminal").
			WithCorrelation(rctx.CorrelationID().String())
	}

	if cancel, ok := s.cancels.Load(screeningID); ok {
		cancel.(context.CancelFunc)()
	}

	state.Status = screeningdomain.StatusCancelled
	state.UpdatedAt = time.Now().UTC()
	if err := s.states.Save(ctx, state); err != nil {
		return err
	}

	if s.auditLog != nil {
		event, err := audit.NewEvent(audit.EventScreeningCancelled, rctx.TenantID(), rctx.CorrelationID(),
			screeningID.String(), "screening", string(audit.EventScreeningCancelled))
		if err == nil {
			if emitErr := s.auditLog.Emit(ctx, event); emitErr != nil {
				s.logger.Warn("failed to emit cancellation event", zap.Error(emitErr))
			}
		}
	}
	s.metrics.ScreeningsTotal.WithLabelValues(string(screeningdomain.StatusCancelled)).Inc()
	return nil
}

// finish persists the terminal state and records metrics. A screening that
// was cancelled mid-flight keeps its cancelled status.
func (s *Service) finish(ctx context.Context, state *screeningdomain.State, started time.Time, runErr error) {
	current, err := s.states.Get(context.WithoutCancel(ctx), state.TenantID, state.ScreeningID)
	if err == nil && current.Status == screeningdomain.StatusCancelled {
		return
	}

	if runErr != nil {
		state.Status = screeningdomain.StatusFailed
	} else {
		state.Status = screeningdomain.StatusCompleted
		state.ProgressPercent = progressDone
	}
	state.UpdatedAt = time.Now().UTC()
	if err := s.states.Save(context.WithoutCancel(ctx), state); err != nil {
		s.logger.Error("failed to persist terminal screening state",
			zap.String("screening_id", state.ScreeningID.String()),
			zap.Error(err))
	}

	s.metrics.ScreeningDuration.Observe(time.Since(started).Seconds())
	s.metrics.ScreeningsTotal.WithLabelValues(string(state.Status)).Inc()
}

func (s *Service) lockFor(entityID uuid.UUID) *sync.Mutex {
	lock, _ := s.versionLocks.LoadOrStore(entityID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (s *Service) emitScreeningEvent(ctx context.Context, rctx values.RequestContext, eventType audit.EventType, request *screeningdomain.Request) {
	if s.auditLog == nil {
		return
	}
	event, err := audit.NewEvent(eventType, rctx.TenantID(), rctx.CorrelationID(),
		request.ScreeningID.String(), "screening", string(eventType))
	if err != nil {
		return
	}
	event.WithMetadata("tier", string(request.Tier)).
		WithMetadata("degree", request.Degree.String()).
		WithMetadata("jurisdiction", request.Jurisdiction).
		WithMetadata("role", string(request.Role))
	if err := s.auditLog.Emit(ctx, event); err != nil {
		s.logger.Warn("failed to emit screening event", zap.Error(err))
	}
}

func (s *Service) emitProfileVersioned(ctx context.Context, rctx values.RequestContext, p *profile.Profile) {
	if s.auditLog == nil {
		return
	}
	event, err := audit.NewEvent(audit.EventProfileVersioned, rctx.TenantID(), rctx.CorrelationID(),
		p.EntityID.String(), "profile", string(audit.EventProfileVersioned))
	if err != nil {
		return
	}
	event.WithMetadata("version", p.Version).
		WithMetadata("risk_score", p.RiskScore).
		WithMetadata("risk_level", string(p.RiskLevel)).
		WithMetadata("branch_status", string(p.BranchStatus))
	if err := s.auditLog.Emit(ctx, event); err != nil {
		s.logger.Warn("failed to emit profile version event", zap.Error(err))
	}
}
