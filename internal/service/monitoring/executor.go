package monitoring

import (
	"context"

	"github.com/clearvet/screening-backend/internal/domain/compliance"
	"github.com/clearvet/screening-backend/internal/domain/entity"
	"github.com/clearvet/screening-backend/internal/domain/knowledge"
	monitordomain "github.com/clearvet/screening-backend/internal/domain/monitoring"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/service/investigation"
	"github.com/clearvet/screening-backend/internal/service/risk"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// deltaCheckTypes is the high-risk source subset a delta check is limited to
var deltaCheckTypes = []screening.InformationType{
	screening.InfoSanctions,
	screening.InfoRegulatory,
	screening.InfoAdverseMedia,
}

// EntityStore loads the canonical entity a recheck targets
type EntityStore interface {
	Get(ctx context.Context, tenantID, entityID uuid.UUID) (*entity.Entity, error)
}

// RulesetEvaluator folds jurisdiction rules into the recheck's ruleset
type RulesetEvaluator interface {
	Evaluate(ctx context.Context, jurisdiction string, role screening.RoleCategory) (*compliance.Ruleset, error)
}

// Investigator re-runs the investigation for the monitored entity
type Investigator interface {
	Run(ctx context.Context, rctx values.RequestContext, subject *screening.Subject,
		tier screening.Tier, degree screening.Degree,
		rules *compliance.Ruleset, base *knowledge.Base,
		opts ...investigation.RunOption) (*investigation.Result, error)
}

// RiskAssessor scores the recheck's findings
type RiskAssessor interface {
	Assess(ctx context.Context, rctx values.RequestContext, role screening.RoleCategory,
		inv *investigation.Result) (*risk.Assessment, error)
}

// ProfileVersioner writes the next profile version under the per-entity lock
type ProfileVersioner interface {
	VersionProfile(ctx context.Context, rctx values.RequestContext, entityID uuid.UUID,
		assessment *risk.Assessment, degraded bool, graph *profile.EntityGraph) (*profile.Profile, error)
}

// RecheckExecutor runs a monitoring check as a subject-only investigation
// over the entity's canonical identifiers. Full mode runs every permitted
// check; delta mode restricts the ruleset to the high-risk source subset.
type RecheckExecutor struct {
	configs   ConfigStore
	entities  EntityStore
	evaluator RulesetEvaluator
	inv       Investigator
	assessor  RiskAssessor
	versioner ProfileVersioner
	logger    *zap.Logger
}

// NewRecheckExecutor wires the recheck pipeline
func NewRecheckExecutor(
	configs ConfigStore,
	entities EntityStore,
	evaluator RulesetEvaluator,
	inv Investigator,
	assessor RiskAssessor,
	versioner ProfileVersioner,
	logger *zap.Logger,
) *RecheckExecutor {
	return &RecheckExecutor{
		configs:   configs,
		entities:  entities,
		evaluator: evaluator,
		inv:       inv,
		assessor:  assessor,
		versioner: versioner,
		logger:    logger,
	}
}

// Execute re-investigates a monitored entity and returns the new profile
// version.
func (e *RecheckExecutor) Execute(ctx context.Context, rctx values.RequestContext, entityID uuid.UUID, mode monitordomain.CheckMode) (*profile.Profile, error) {
	mc, err := e.configs.Get(ctx, rctx.TenantID(), entityID)
	if err != nil {
		return nil, err
	}
	ent, err := e.entities.Get(ctx, rctx.TenantID(), entityID)
	if err != nil {
		return nil, err
	}

	rules, err := e.evaluator.Evaluate(ctx, mc.Jurisdiction, mc.Role)
	if err != nil {
		return nil, err
	}
	if mode == monitordomain.CheckDelta {
		rules = rules.Restrict(deltaCheckTypes...)
	}

	// The subject keeps the entity's ID so graph edges from the recheck
	// anchor on the same node as the baseline.
	subject := &screening.Subject{
		ID:           ent.ID,
		TenantID:     ent.TenantID,
		Version:      1,
		Identifiers:  ent.Canonical,
		Jurisdiction: mc.Jurisdiction,
		RoleCategory: mc.Role,
	}

	base := knowledge.NewBase(uuid.New())
	result, err := e.inv.Run(ctx, rctx, subject, screening.TierStandard, screening.DegreeD1, rules, base)
	if err != nil {
		return nil, err
	}

	assessment, err := e.assessor.Assess(ctx, rctx, mc.Role, result)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("monitoring recheck executed",
		zap.String("entity_id", entityID.String()),
		zap.String("mode", string(mode)),
		zap.Float64("score", assessment.FinalScore))
	return e.versioner.VersionProfile(ctx, rctx, entityID, assessment, result.Degraded, result.Graph)
}
