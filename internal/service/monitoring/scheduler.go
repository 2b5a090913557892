// Package monitoring schedules periodic re-investigations of monitored
// entities, computes profile deltas against the recorded baseline and emits
// alerts on evolution signals.
package monitoring

import (
	"context"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	monitordomain "github.com/clearvet/screening-backend/internal/domain/monitoring"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/infrastructure/metrics"
	"github.com/clearvet/screening-backend/internal/service/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scheduler pulls due monitoring configurations and dispatches their checks
type Scheduler struct {
	cfg      config.MonitoringConfig
	configs  ConfigStore
	profiles ProfileStore
	executor Executor
	auditLog *audit.Logger
	alerts   *notify.Dispatcher
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewScheduler creates the monitoring scheduler. The alert dispatcher may be
// nil when no notification adapter is configured.
func NewScheduler(
	cfg config.MonitoringConfig,
	configs ConfigStore,
	profiles ProfileStore,
	executor Executor,
	auditLog *audit.Logger,
	alerts *notify.Dispatcher,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		configs:  configs,
		profiles: profiles,
		executor: executor,
		auditLog: auditLog,
		alerts:   alerts,
		logger:   logger,
		metrics:  m,
	}
}

// Run polls for due configurations until the context is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx, time.Now().UTC()); err != nil {
				s.logger.Error("monitoring tick failed", zap.Error(err))
			}
		}
	}
}

// Tick executes one scheduling pass. A failing entity does not block the
// rest of the batch.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	due, err := s.configs.Due(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, mc := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.runOne(ctx, mc, now); err != nil {
			s.logger.Error("monitoring check failed",
				zap.String("entity_id", mc.EntityID.String()),
				zap.String("vigilance", mc.Vigilance.String()),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Scheduler) runOne(ctx context.Context, mc *monitordomain.Config, now time.Time) error {
	rctx, err := values.NewRequestContext(mc.TenantID, mc.Jurisdiction)
	if err != nil {
		return err
	}

	baseline, err := s.profiles.Version(ctx, mc.TenantID, mc.EntityID, mc.BaselineProfileVersion)
	if err != nil {
		return err
	}

	updated, err := s.executor.Execute(ctx, rctx, mc.EntityID, mc.Vigilance.Mode())
	if err != nil {
		return err
	}

	delta, err := profile.ComputeDelta(baseline, updated)
	if err != nil {
		return err
	}

	s.emitExecuted(ctx, rctx, mc, delta)
	for _, signal := range delta.EvolutionSignals {
		s.emitAlert(ctx, rctx, mc, delta, signal)
		s.dispatchAlert(ctx, rctx, mc, delta, signal)
		s.metrics.AlertsEmitted.WithLabelValues(string(signal)).Inc()
	}

	mc.Advance(now, updated.Version, updated.RiskScore)
	return s.configs.Save(ctx, mc)
}

// Enroll starts monitoring an entity from its first completed profile
func (s *Scheduler) Enroll(ctx context.Context, rctx values.RequestContext, role screening.RoleCategory, baseline *profile.Profile) (*monitordomain.Config, error) {
	mc, err := monitordomain.NewConfig(rctx.TenantID(), baseline.EntityID, rctx.Jurisdiction(),
		role, baseline.Version, baseline.RiskScore)
	if err != nil {
		return nil, err
	}
	if err := s.configs.Save(ctx, mc); err != nil {
		return nil, err
	}
	s.logger.Info("entity enrolled for monitoring",
		zap.String("entity_id", mc.EntityID.String()),
		zap.String("vigilance", mc.Vigilance.String()),
		zap.Time("next_check_at", mc.NextCheckAt))
	return mc, nil
}

// Reevaluate adjusts vigilance after a position change
func (s *Scheduler) Reevaluate(ctx context.Context, rctx values.RequestContext, entityID uuid.UUID, role screening.RoleCategory) error {
	mc, err := s.configs.Get(ctx, rctx.TenantID(), entityID)
	if err != nil {
		return err
	}
	baseline, err := s.profiles.Version(ctx, mc.TenantID, mc.EntityID, mc.BaselineProfileVersion)
	if err != nil {
		return err
	}
	mc.Reevaluate(role, baseline.RiskScore, time.Now().UTC())
	return s.configs.Save(ctx, mc)
}

// Resume reactivates monitoring for a rehired entity, re-deriving vigilance
// from the new role and the recorded baseline risk.
func (s *Scheduler) Resume(ctx context.Context, rctx values.RequestContext, entityID uuid.UUID, role screening.RoleCategory) error {
	mc, err := s.configs.Get(ctx, rctx.TenantID(), entityID)
	if err != nil {
		return err
	}
	baseline, err := s.profiles.Version(ctx, mc.TenantID, mc.EntityID, mc.BaselineProfileVersion)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	mc.Resume(now)
	mc.Reevaluate(role, baseline.RiskScore, now)
	if err := s.configs.Save(ctx, mc); err != nil {
		return err
	}
	s.logger.Info("monitoring resumed",
		zap.String("entity_id", entityID.String()),
		zap.String("vigilance", mc.Vigilance.String()))
	return nil
}

// Cancel stops monitoring an entity; used on termination
func (s *Scheduler) Cancel(ctx context.Context, rctx values.RequestContext, entityID uuid.UUID) error {
	mc, err := s.configs.Get(ctx, rctx.TenantID(), entityID)
	if err != nil {
		return err
	}
	mc.Cancel(time.Now().UTC())
	if err := s.configs.Save(ctx, mc); err != nil {
		return err
	}
	s.logger.Info("monitoring cancelled", zap.String("entity_id", entityID.String()))
	return nil
}

func (s *Scheduler) emitExecuted(ctx context.Context, rctx values.RequestContext, mc *monitordomain.Config, delta *profile.Delta) {
	if s.auditLog == nil {
		return
	}
	event, err := audit.NewEvent(audit.EventMonitoringExecuted, rctx.TenantID(), rctx.CorrelationID(),
		mc.EntityID.String(), "entity", string(audit.EventMonitoringExecuted))
	if err != nil {
		return
	}
	event.WithMetadata("vigilance", mc.Vigilance.String()).
		WithMetadata("mode", string(mc.Vigilance.Mode())).
		WithMetadata("baseline_version", delta.OldVersion).
		WithMetadata("new_version", delta.NewVersion).
		WithMetadata("risk_score_change", delta.RiskScoreChange).
		WithMetadata("new_findings", len(delta.NewFindings))
	if err := s.auditLog.Emit(ctx, event); err != nil {
		s.logger.Warn("failed to emit monitoring event", zap.Error(err))
	}
}

func (s *Scheduler) emitAlert(ctx context.Context, rctx values.RequestContext, mc *monitordomain.Config, delta *profile.Delta, signal profile.EvolutionSignal) {
	if s.auditLog == nil {
		return
	}
	event, err := audit.NewEvent(audit.EventAlertGenerated, rctx.TenantID(), rctx.CorrelationID(),
		mc.EntityID.String(), "entity", string(signal))
	if err != nil {
		return
	}
	event.WithMetadata("signal", string(signal)).
		WithMetadata("baseline_version", delta.OldVersion).
		WithMetadata("new_version", delta.NewVersion).
		WithMetadata("risk_score_change", delta.RiskScoreChange)
	if err := s.auditLog.Emit(ctx, event); err != nil {
		s.logger.Warn("failed to emit alert event", zap.Error(err))
	}
	s.logger.Warn("monitoring alert",
		zap.String("entity_id", mc.EntityID.String()),
		zap.String("signal", string(signal)),
		zap.Float64("risk_score_change", delta.RiskScoreChange))
}

// dispatchAlert hands the evolution signal to the notification adapter.
// Escalation and critical surge alerts go out as high severity.
func (s *Scheduler) dispatchAlert(ctx context.Context, rctx values.RequestContext, mc *monitordomain.Config, delta *profile.Delta, signal profile.EvolutionSignal) {
	if s.alerts == nil {
		return
	}
	severity := notify.SeverityMedium
	if signal == profile.SignalRiskEscalation || signal == profile.SignalCriticalFindingsSurge {
		severity = notify.SeverityHigh
	}
	alert := notify.NewAlert(rctx.TenantID(), notify.KindAlertGenerated, severity)
	alert.EntityID = mc.EntityID
	alert.Body["signal"] = string(signal)
	alert.Body["baseline_version"] = delta.OldVersion
	alert.Body["new_version"] = delta.NewVersion
	alert.Body["risk_score_change"] = delta.RiskScoreChange
	if err := s.alerts.Dispatch(ctx, alert); err != nil {
		s.logger.Error("alert dispatch failed",
			zap.String("entity_id", mc.EntityID.String()),
			zap.String("signal", string(signal)),
			zap.Error(err))
	}
}
