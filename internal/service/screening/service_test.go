package screening_test

import (
	"context"
	"sync"
	"testing"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/compliance"
	"github.com/clearvet/screening-backend/internal/domain/entity"
	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/knowledge"
	monitordomain "github.com/clearvet/screening-backend/internal/domain/monitoring"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	screeningdomain "github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/infrastructure/metrics"
	"github.com/clearvet/screening-backend/internal/service/entityres"
	"github.com/clearvet/screening-backend/internal/service/investigation"
	"github.com/clearvet/screening-backend/internal/service/notify"
	"github.com/clearvet/screening-backend/internal/service/risk"
	"github.com/clearvet/screening-backend/internal/service/screening"
	"github.com/clearvet/screening-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubEvaluator struct{ rules *compliance.Ruleset }

func (e *stubEvaluator) Evaluate(context.Context, string, screeningdomain.RoleCategory) (*compliance.Ruleset, error) {
	return e.rules, nil
}

type stubResolver struct{ match *entityres.Match }

func (r *stubResolver) Resolve(_ context.Context, _ values.RequestContext, subject *screeningdomain.Subject) (*entityres.Match, error) {
	r.match.Entity.AttachSubject(subject.ID)
	return r.match, nil
}

type stubInvestigator struct {
	result   *investigation.Result
	err      error
	calls    int
	lastOpts *investigation.RunOptions
}

func (i *stubInvestigator) Run(_ context.Context, _ values.RequestContext, _ *screeningdomain.Subject,
	_ screeningdomain.Tier, _ screeningdomain.Degree, _ *compliance.Ruleset, base *knowledge.Base,
	opts ...investigation.RunOption) (*investigation.Result, error) {
	i.calls++
	options := investigation.NewRunOptions(opts...)
	i.lastOpts = options
	if i.err != nil {
		return nil, i.err
	}
	i.result.Base = base
	for t, st := range i.result.SubjectStates {
		if options.Completed[t] || options.Observer == nil {
			continue
		}
		if st.Phase.IsTerminal() {
			options.Observer(t, st)
		}
	}
	return i.result, nil
}

type stubAssessor struct{ assessment *risk.Assessment }

func (a *stubAssessor) Assess(context.Context, values.RequestContext, screeningdomain.RoleCategory, *investigation.Result) (*risk.Assessment, error) {
	return a.assessment, nil
}

type memoryProfileStore struct {
	mu       sync.Mutex
	profiles []*profile.Profile
}

func (s *memoryProfileStore) LatestVersion(_ context.Context, _, entityID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := 0
	for _, p := range s.profiles {
		if p.EntityID == entityID && p.Version > latest {
			latest = p.Version
		}
	}
	return latest, nil
}

func (s *memoryProfileStore) Save(_ context.Context, p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append(s.profiles, p)
	return nil
}

type memoryStateStore struct {
	mu     sync.Mutex
	states map[uuid.UUID]*screeningdomain.State
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{states: make(map[uuid.UUID]*screeningdomain.State)}
}

func (s *memoryStateStore) Get(_ context.Context, tenantID, screeningID uuid.UUID) (*screeningdomain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[screeningID]
	if !ok || state.TenantID != tenantID {
		return nil, errors.NewNotFoundError("screening")
	}
	copied := *state
	return &copied, nil
}

func (s *memoryStateStore) Save(_ context.Context, state *screeningdomain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *state
	s.states[state.ScreeningID] = &copied
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (n *recordingNotifier) Deliver(_ context.Context, alert notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) ofKind(kind notify.Kind) []notify.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Alert
	for _, a := range n.alerts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

type recordingEnroller struct {
	calls    int
	baseline *profile.Profile
}

func (e *recordingEnroller) Enroll(_ context.Context, _ values.RequestContext, _ screeningdomain.RoleCategory, baseline *profile.Profile) (*monitordomain.Config, error) {
	e.calls++
	e.baseline = baseline
	return nil, nil
}

func terminalState(t *testing.T, infoType screeningdomain.InformationType, reason screeningdomain.CompletionReason) *screeningdomain.SARState {
	t.Helper()
	st, err := screeningdomain.NewSARState(infoType)
	require.NoError(t, err)
	_, err = st.Transition(screeningdomain.SARPhaseAssess, "")
	require.NoError(t, err)
	_, err = st.Transition(screeningdomain.SARPhaseComplete, reason)
	require.NoError(t, err)
	return st
}

type fixture struct {
	svc        *screening.Service
	rctx       values.RequestContext
	inv        *stubInvestigator
	profiles   *memoryProfileStore
	states     *memoryStateStore
	enroller   *recordingEnroller
	notifier   *recordingNotifier
	auditStore *testutil.MemoryAuditStore
}

func newFixture(t *testing.T, degraded bool) *fixture {
	t.Helper()
	tenantID := uuid.New()
	rctx, err := values.NewRequestContext(tenantID, "US-CA")
	require.NoError(t, err)

	subjectSeed := uuid.New()
	ent, err := entity.New(tenantID, subjectSeed, screeningdomain.Identifiers{FullName: "John Smith"})
	require.NoError(t, err)

	result := &investigation.Result{
		SubjectStates: map[screeningdomain.InformationType]*screeningdomain.SARState{
			screeningdomain.InfoIdentity: terminalState(t, screeningdomain.InfoIdentity, screeningdomain.ReasonConfidenceThresholdMet),
			screeningdomain.InfoCriminal: terminalState(t, screeningdomain.InfoCriminal, screeningdomain.ReasonMaxIterationsReached),
		},
		Graph:    profile.NewEntityGraph(),
		Degraded: degraded,
	}

	assessment := &risk.Assessment{
		FinalScore:     42,
		BaseScore:      42,
		Recommendation: profile.LevelForScore(42),
	}

	auditLog, auditStore := testutil.NewAuditLogger()
	inv := &stubInvestigator{result: result}
	profiles := &memoryProfileStore{}
	states := newMemoryStateStore()
	enroller := &recordingEnroller{}
	notifier := &recordingNotifier{}

	rules := testutil.PermissiveRuleset(t, "US-CA", screeningdomain.RoleOther, screeningdomain.InfoIdentity)
	svc := screening.NewService(
		config.Defaults().Investigation,
		&stubEvaluator{rules: rules},
		&stubResolver{match: &entityres.Match{Entity: ent}},
		inv,
		&stubAssessor{assessment: assessment},
		profiles, states, enroller,
		notify.NewDispatcher(notifier, 1, 0, zap.NewNop()),
		auditLog, zap.NewNop(), metrics.NewNop(),
	)
	return &fixture{svc: svc, rctx: rctx, inv: inv, profiles: profiles, states: states, enroller: enroller, notifier: notifier, auditStore: auditStore}
}

func validRequest() screening.InitiateRequest {
	return screening.InitiateRequest{
		FullName:     "John Smith",
		Jurisdiction: "US-CA",
		Role:         screeningdomain.RoleOther,
		Tier:         screeningdomain.TierStandard,
		Degree:       1,
		ConsentRef:   "consent-123",
	}
}

func TestInitiate_RequiresConsent(t *testing.T) {
	f := newFixture(t, false)
	req := validRequest()
	req.ConsentRef = ""

	_, err := f.svc.Initiate(context.Background(), f.rctx, req)
	assert.ErrorIs(t, err, errors.ErrConsentMissing)
}

func TestInitiate_D3RequiresEnhancedTier(t *testing.T) {
	f := newFixture(t, false)
	req := validRequest()
	req.Degree = 3

	_, err := f.svc.Initiate(context.Background(), f.rctx, req)
	assert.ErrorIs(t, err, errors.ErrTierDegreeMismatch)

	req.Tier = screeningdomain.TierEnhanced
	_, err = f.svc.Initiate(context.Background(), f.rctx, req)
	assert.NoError(t, err)
}

func TestInitiate_RejectsInvalidRequest(t *testing.T) {
	f := newFixture(t, false)
	req := validRequest()
	req.FullName = ""

	_, err := f.svc.Initiate(context.Background(), f.rctx, req)
	require.Error(t, err)
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.ErrorTypeValidation, appErr.Type)
}

func TestInitiate_PersistsPendingState(t *testing.T) {
	f := newFixture(t, false)

	request, err := f.svc.Initiate(context.Background(), f.rctx, validRequest())
	require.NoError(t, err)

	state, err := f.svc.Get(context.Background(), f.rctx, request.ScreeningID)
	require.NoError(t, err)
	assert.Equal(t, screeningdomain.StatusPending, state.Status)
	assert.Zero(t, state.ProgressPercent)
}

func TestExecute_CompletesAndVersionsProfile(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	request, err := f.svc.Initiate(ctx, f.rctx, validRequest())
	require.NoError(t, err)

	outcome, err := f.svc.Execute(ctx, f.rctx, request)
	require.NoError(t, err)
	require.NotNil(t, outcome.Profile)
	assert.Equal(t, 1, outcome.Profile.Version)
	assert.Equal(t, 42.0, outcome.Profile.RiskScore)
	assert.Equal(t, profile.RiskReview, outcome.Profile.RiskLevel)

	state, err := f.svc.Get(ctx, f.rctx, request.ScreeningID)
	require.NoError(t, err)
	assert.Equal(t, screeningdomain.StatusCompleted, state.Status)
	assert.Equal(t, 100, state.ProgressPercent)
	assert.Equal(t, string(screeningdomain.ReasonConfidenceThresholdMet),
		state.Checkpoints[screeningdomain.InfoIdentity])
	assert.Equal(t, string(screeningdomain.ReasonMaxIterationsReached),
		state.Checkpoints[screeningdomain.InfoCriminal])

	assert.Len(t, f.auditStore.EventsOfType(audit.EventScreeningStarted), 1)
	assert.Len(t, f.auditStore.EventsOfType(audit.EventProfileVersioned), 1)
	assert.Equal(t, 1, f.enroller.calls)

	// a second screening of the same entity versions monotonically
	second, err := f.svc.Initiate(ctx, f.rctx, validRequest())
	require.NoError(t, err)
	outcome2, err := f.svc.Execute(ctx, f.rctx, second)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome2.Profile.Version)
}

func TestExecute_DegradedResultMarksProfile(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	request, err := f.svc.Initiate(ctx, f.rctx, validRequest())
	require.NoError(t, err)

	outcome, err := f.svc.Execute(ctx, f.rctx, request)
	require.NoError(t, err)
	assert.Equal(t, profile.BranchDegraded, outcome.Profile.BranchStatus)
}

func TestExecute_DispatchesOutcomeAlerts(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	request, err := f.svc.Initiate(ctx, f.rctx, validRequest())
	require.NoError(t, err)
	outcome, err := f.svc.Execute(ctx, f.rctx, request)
	require.NoError(t, err)

	complete := f.notifier.ofKind(notify.KindScreeningComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, notify.SeverityLow, complete[0].Severity)
	assert.Equal(t, request.ScreeningID, complete[0].ScreeningID)
	assert.Equal(t, outcome.EntityID, complete[0].EntityID)
	assert.Equal(t, 1, complete[0].Body["profile_version"])

	// the 42 score recommends review
	review := f.notifier.ofKind(notify.KindReviewRequired)
	require.Len(t, review, 1)
	assert.Equal(t, notify.SeverityMedium, review[0].Severity)
	assert.Empty(t, f.notifier.ofKind(notify.KindAdverseActionPending))
}

func TestExecute_FailureMarksStateFailed(t *testing.T) {
	f := newFixture(t, false)
	f.inv.err = errors.NewSystemError("investigation blew up")
	ctx := context.Background()

	request, err := f.svc.Initiate(ctx, f.rctx, validRequest())
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, f.rctx, request)
	require.Error(t, err)

	state, err := f.svc.Get(ctx, f.rctx, request.ScreeningID)
	require.NoError(t, err)
	assert.Equal(t, screeningdomain.StatusFailed, state.Status)
}

func TestCancel_PendingScreening(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	request, err := f.svc.Initiate(ctx, f.rctx, validRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, f.rctx, request.ScreeningID))

	state, err := f.svc.Get(ctx, f.rctx, request.ScreeningID)
	require.NoError(t, err)
	assert.Equal(t, screeningdomain.StatusCancelled, state.Status)
	assert.Len(t, f.auditStore.EventsOfType(audit.EventScreeningCancelled), 1)

	// terminal screenings cannot be cancelled again
	assert.Error(t, f.svc.Cancel(ctx, f.rctx, request.ScreeningID))
}

func TestCancel_UnknownScreening(t *testing.T) {
	f := newFixture(t, false)
	assert.Error(t, f.svc.Cancel(context.Background(), f.rctx, uuid.New()))
}

func TestExecute_HonorsDeadline(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	request, err := f.svc.Initiate(ctx, f.rctx, validRequest())
	require.NoError(t, err)

	// the run context carries the per-screening deadline
	deadlineSeen := false
	svc := rebuildWithInvestigator(t, f, &deadlineCheckingInvestigator{inner: f.inv, sawDeadline: &deadlineSeen})

	_, err = svc.Execute(ctx, f.rctx, request)
	require.NoError(t, err)
	assert.True(t, deadlineSeen)
}

type deadlineCheckingInvestigator struct {
	inner       *stubInvestigator
	sawDeadline *bool
}

func (d *deadlineCheckingInvestigator) Run(ctx context.Context, rctx values.RequestContext, subject *screeningdomain.Subject,
	tier screeningdomain.Tier, degree screeningdomain.Degree, rules *compliance.Ruleset, base *knowledge.Base,
	opts ...investigation.RunOption) (*investigation.Result, error) {
	if _, ok := ctx.Deadline(); ok {
		*d.sawDeadline = true
	}
	return d.inner.Run(ctx, rctx, subject, tier, degree, rules, base, opts...)
}

// checkpointingFailureInvestigator reports one finished type through the
// observer, then fails the investigation.
type checkpointingFailureInvestigator struct {
	state *screeningdomain.SARState
	err   error
}

func (p *checkpointingFailureInvestigator) Run(_ context.Context, _ values.RequestContext, _ *screeningdomain.Subject,
	_ screeningdomain.Tier, _ screeningdomain.Degree, _ *compliance.Ruleset, _ *knowledge.Base,
	opts ...investigation.RunOption) (*investigation.Result, error) {
	options := investigation.NewRunOptions(opts...)
	if options.Observer != nil {
		options.Observer(p.state.InfoType, p.state)
	}
	return nil, p.err
}

func TestExecute_CheckpointSurvivesMidInvestigationFailure(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	request, err := f.svc.Initiate(ctx, f.rctx, validRequest())
	require.NoError(t, err)

	finished := terminalState(t, screeningdomain.InfoIdentity, screeningdomain.ReasonConfidenceThresholdMet)
	svc := rebuildWithInvestigator(t, f, &checkpointingFailureInvestigator{
		state: finished,
		err:   errors.NewSystemError("provider tier outage"),
	})

	_, err = svc.Execute(ctx, f.rctx, request)
	require.Error(t, err)

	state, err := f.svc.Get(ctx, f.rctx, request.ScreeningID)
	require.NoError(t, err)
	assert.Equal(t, screeningdomain.StatusFailed, state.Status)
	assert.Equal(t, string(screeningdomain.ReasonConfidenceThresholdMet),
		state.Checkpoints[screeningdomain.InfoIdentity],
		"type finished before the failure stays checkpointed")
}

func TestExecute_ResumeSkipsCheckpointedTypes(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	request, err := f.svc.Initiate(ctx, f.rctx, validRequest())
	require.NoError(t, err)

	state, err := f.states.Get(ctx, f.rctx.TenantID(), request.ScreeningID)
	require.NoError(t, err)
	state.Checkpoints[screeningdomain.InfoIdentity] = string(screeningdomain.ReasonConfidenceThresholdMet)
	state.Checkpoints[screeningdomain.InfoCriminal] = string(screeningdomain.ReasonProvidersExhausted)
	require.NoError(t, f.states.Save(ctx, state))

	_, err = f.svc.Execute(ctx, f.rctx, request)
	require.NoError(t, err)

	require.NotNil(t, f.inv.lastOpts)
	assert.True(t, f.inv.lastOpts.Completed[screeningdomain.InfoIdentity],
		"type that met its confidence threshold is not re-investigated")
	assert.False(t, f.inv.lastOpts.Completed[screeningdomain.InfoCriminal],
		"exhausted type gets another attempt")
}

func rebuildWithInvestigator(t *testing.T, f *fixture, inv screening.Investigator) *screening.Service {
	t.Helper()
	tenant := f.rctx.TenantID()
	ent, err := entity.New(tenant, uuid.New(), screeningdomain.Identifiers{FullName: "John Smith"})
	require.NoError(t, err)

	auditLog, _ := testutil.NewAuditLogger()
	rules := testutil.PermissiveRuleset(t, "US-CA", screeningdomain.RoleOther, screeningdomain.InfoIdentity)
	return screening.NewService(
		config.Defaults().Investigation,
		&stubEvaluator{rules: rules},
		&stubResolver{match: &entityres.Match{Entity: ent}},
		inv,
		&stubAssessor{assessment: &risk.Assessment{FinalScore: 10, Recommendation: profile.LevelForScore(10)}},
		f.profiles, f.states, nil, nil,
		auditLog, zap.NewNop(), metrics.NewNop(),
	)
}
