package monitoring_test

import (
	"context"
	"testing"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/compliance"
	"github.com/clearvet/screening-backend/internal/domain/entity"
	"github.com/clearvet/screening-backend/internal/domain/knowledge"
	monitordomain "github.com/clearvet/screening-backend/internal/domain/monitoring"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/service/investigation"
	"github.com/clearvet/screening-backend/internal/service/monitoring"
	"github.com/clearvet/screening-backend/internal/service/risk"
	"github.com/clearvet/screening-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturingInvestigator struct {
	rules   *compliance.Ruleset
	subject *screening.Subject
	degree  screening.Degree
}

func (i *capturingInvestigator) Run(_ context.Context, _ values.RequestContext, subject *screening.Subject,
	_ screening.Tier, degree screening.Degree,
	rules *compliance.Ruleset, base *knowledge.Base,
	_ ...investigation.RunOption) (*investigation.Result, error) {
	i.rules = rules
	i.subject = subject
	i.degree = degree
	return &investigation.Result{
		SubjectStates: make(map[screening.InformationType]*screening.SARState),
		Base:          base,
		Graph:         profile.NewEntityGraph(),
	}, nil
}

type staticAssessor struct {
	assessment *risk.Assessment
}

func (a *staticAssessor) Assess(_ context.Context, _ values.RequestContext, _ screening.RoleCategory,
	_ *investigation.Result) (*risk.Assessment, error) {
	return a.assessment, nil
}

type recordingVersioner struct {
	entityID uuid.UUID
	profile  *profile.Profile
}

func (v *recordingVersioner) VersionProfile(_ context.Context, rctx values.RequestContext, entityID uuid.UUID,
	assessment *risk.Assessment, degraded bool, graph *profile.EntityGraph) (*profile.Profile, error) {
	v.entityID = entityID
	p, err := profile.New(entityID, rctx.TenantID(), 2, assessment.Findings, assessment.FinalScore, graph)
	if err != nil {
		return nil, err
	}
	v.profile = p
	return p, nil
}

func newRecheckFixture(t *testing.T, role screening.RoleCategory) (*monitoring.RecheckExecutor, *capturingInvestigator, *recordingVersioner, values.RequestContext, uuid.UUID) {
	t.Helper()
	tenantID := uuid.New()
	rctx, err := values.NewRequestContext(tenantID, "US-CA")
	require.NoError(t, err)

	ent, err := entity.New(tenantID, uuid.New(), screening.Identifiers{
		FullName:    "Dana Whitfield",
		DateOfBirth: time.Date(1984, 6, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	entities := testutil.NewMemoryEntityStore()
	require.NoError(t, entities.Save(context.Background(), ent))

	configs := newMemoryConfigStore()
	mc, err := monitordomain.NewConfig(tenantID, ent.ID, "US-CA", role, 1, 40)
	require.NoError(t, err)
	require.NoError(t, configs.Save(context.Background(), mc))

	evaluator := compliance.NewEvaluator(&testutil.StaticRuleStore{Rules: []*compliance.Rule{
		testutil.PermitRule("US-CA",
			screening.InfoIdentity, screening.InfoEmployment, screening.InfoCriminal,
			screening.InfoSanctions, screening.InfoRegulatory, screening.InfoAdverseMedia),
	}}, zap.NewNop())

	inv := &capturingInvestigator{}
	versioner := &recordingVersioner{}
	executor := monitoring.NewRecheckExecutor(configs, entities, evaluator, inv,
		&staticAssessor{assessment: &risk.Assessment{FinalScore: 42, Recommendation: profile.RiskReview}},
		versioner, zap.NewNop())
	return executor, inv, versioner, rctx, ent.ID
}

func TestRecheckFullModeRunsAllPermittedChecks(t *testing.T) {
	executor, inv, versioner, rctx, entityID := newRecheckFixture(t, screening.RoleOther)

	p, err := executor.Execute(context.Background(), rctx, entityID, monitordomain.CheckFull)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, entityID, versioner.entityID)
	assert.Equal(t, 2, p.Version)

	require.NotNil(t, inv.rules)
	assert.True(t, inv.rules.IsPermitted(screening.InfoCriminal))
	assert.True(t, inv.rules.IsPermitted(screening.InfoSanctions))
	assert.Equal(t, screening.DegreeD1, inv.degree)
	// the recheck subject is anchored on the entity so graph edges line up
	assert.Equal(t, entityID, inv.subject.ID)
	assert.Equal(t, "Dana Whitfield", inv.subject.Identifiers.FullName)
}

func TestRecheckDeltaModeRestrictsToHighRiskSources(t *testing.T) {
	executor, inv, _, rctx, entityID := newRecheckFixture(t, screening.RoleFinance)

	_, err := executor.Execute(context.Background(), rctx, entityID, monitordomain.CheckDelta)
	require.NoError(t, err)

	require.NotNil(t, inv.rules)
	assert.True(t, inv.rules.IsPermitted(screening.InfoSanctions))
	assert.True(t, inv.rules.IsPermitted(screening.InfoRegulatory))
	assert.True(t, inv.rules.IsPermitted(screening.InfoAdverseMedia))
	assert.False(t, inv.rules.IsPermitted(screening.InfoCriminal))
	assert.False(t, inv.rules.IsPermitted(screening.InfoIdentity))
	assert.False(t, inv.rules.IsPermitted(screening.InfoEmployment))
}

func TestRecheckUnknownEntityFails(t *testing.T) {
	executor, _, _, rctx, _ := newRecheckFixture(t, screening.RoleOther)

	_, err := executor.Execute(context.Background(), rctx, uuid.New(), monitordomain.CheckFull)
	require.Error(t, err)
}
