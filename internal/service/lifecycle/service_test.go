package lifecycle_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/errors"
	screeningdomain "github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/service/lifecycle"
	"github.com/clearvet/screening-backend/internal/service/screening"
	"github.com/clearvet/screening-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memProcessed struct {
	mu   sync.Mutex
	seen map[uuid.UUID]bool
}

func (s *memProcessed) MarkIfNew(_ context.Context, _ uuid.UUID, eventID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[eventID] {
		return false, nil
	}
	s.seen[eventID] = true
	return true, nil
}

func (s *memProcessed) Unmark(_ context.Context, _ uuid.UUID, eventID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, eventID)
	return nil
}

type memIntakes struct {
	mu      sync.Mutex
	intakes map[string]*lifecycle.Intake
	getErr  error // returned by the next Get, then cleared
}

func (s *memIntakes) Save(_ context.Context, intake *lifecycle.Intake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intakes[intake.SubjectKey] = intake
	return nil
}

func (s *memIntakes) Get(_ context.Context, _ uuid.UUID, subjectKey string) (*lifecycle.Intake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		err := s.getErr
		s.getErr = nil
		return nil, err
	}
	intake, ok := s.intakes[subjectKey]
	if !ok {
		return nil, errors.NewNotFoundError("screening intake")
	}
	return intake, nil
}

func (s *memIntakes) Delete(_ context.Context, _ uuid.UUID, subjectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intakes, subjectKey)
	return nil
}

type stubScreener struct {
	mu        sync.Mutex
	initiated []screening.InitiateRequest
	executed  atomic.Int32
}

func (s *stubScreener) Initiate(_ context.Context, rctx values.RequestContext, req screening.InitiateRequest) (*screeningdomain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initiated = append(s.initiated, req)

	subject, err := screeningdomain.NewSubject(rctx.TenantID(), screeningdomain.Identifiers{FullName: req.FullName}, req.Jurisdiction, req.Role)
	if err != nil {
		return nil, err
	}
	return screeningdomain.NewRequest(subject, req.Tier, screeningdomain.Degree(req.Degree), req.ConsentRef)
}

func (s *stubScreener) Execute(context.Context, values.RequestContext, *screeningdomain.Request) (*screening.Outcome, error) {
	s.executed.Add(1)
	return &screening.Outcome{}, nil
}

type stubVigilance struct {
	reevaluated int
	cancelled   int
	resumed     int
	resumeErr   error
}

func (v *stubVigilance) Reevaluate(context.Context, values.RequestContext, uuid.UUID, screeningdomain.RoleCategory) error {
	v.reevaluated++
	return nil
}

func (v *stubVigilance) Cancel(context.Context, values.RequestContext, uuid.UUID) error {
	v.cancelled++
	return nil
}

func (v *stubVigilance) Resume(context.Context, values.RequestContext, uuid.UUID, screeningdomain.RoleCategory) error {
	if v.resumeErr != nil {
		return v.resumeErr
	}
	v.resumed++
	return nil
}

type fixture struct {
	proc       *lifecycle.Processor
	rctx       values.RequestContext
	screener   *stubScreener
	vigilance  *stubVigilance
	intakes    *memIntakes
	auditStore *testutil.MemoryAuditStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rctx, err := values.NewRequestContext(uuid.New(), "US-CA")
	require.NoError(t, err)

	screener := &stubScreener{}
	vigilance := &stubVigilance{}
	intakes := &memIntakes{intakes: make(map[string]*lifecycle.Intake)}
	auditLog, auditStore := testutil.NewAuditLogger()

	proc := lifecycle.NewProcessor(screener, vigilance,
		&memProcessed{seen: make(map[uuid.UUID]bool)}, intakes, auditLog, zap.NewNop())
	return &fixture{proc: proc, rctx: rctx, screener: screener, vigilance: vigilance, intakes: intakes, auditStore: auditStore}
}

func hireEvent(subjectKey string) lifecycle.Event {
	return lifecycle.Event{
		EventID:    uuid.New(),
		Type:       lifecycle.EventHireInitiated,
		SubjectKey: subjectKey,
		OccurredAt: time.Now().UTC(),
		Screening: &screening.InitiateRequest{
			FullName:     "John Smith",
			Jurisdiction: "US-CA",
			Role:         screeningdomain.RoleOther,
			Tier:         screeningdomain.TierStandard,
			Degree:       1,
		},
	}
}

func TestHandle_HireParksIntakeUntilConsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.proc.Handle(ctx, f.rctx, hireEvent("emp-1")))

	intake, err := f.intakes.Get(ctx, f.rctx.TenantID(), "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "John Smith", intake.Request.FullName)
	assert.Empty(t, f.screener.initiated, "no screening before consent")
}

func TestHandle_ConsentStartsScreening(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.proc.Handle(ctx, f.rctx, hireEvent("emp-1")))
	require.NoError(t, f.proc.Handle(ctx, f.rctx, lifecycle.Event{
		EventID:    uuid.New(),
		Type:       lifecycle.EventConsentGranted,
		SubjectKey: "emp-1",
		ConsentRef: "consent-9",
	}))

	require.Len(t, f.screener.initiated, 1)
	assert.Equal(t, "consent-9", f.screener.initiated[0].ConsentRef)

	_, err := f.intakes.Get(ctx, f.rctx.TenantID(), "emp-1")
	assert.Error(t, err, "intake consumed")

	require.Eventually(t, func() bool {
		return f.screener.executed.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHandle_ConsentRedeliveredAfterTransientFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.proc.Handle(ctx, f.rctx, hireEvent("emp-6")))

	consent := lifecycle.Event{
		EventID:    uuid.New(),
		Type:       lifecycle.EventConsentGranted,
		SubjectKey: "emp-6",
		ConsentRef: "consent-1",
	}

	f.intakes.getErr = errors.NewSystemError("intake store unavailable")
	err := f.proc.Handle(ctx, f.rctx, consent)
	require.Error(t, err)
	require.Empty(t, f.screener.initiated)

	// The failed delivery must not consume the event ID: the redelivery
	// after the outage still starts the screening.
	require.NoError(t, f.proc.Handle(ctx, f.rctx, consent))
	require.Len(t, f.screener.initiated, 1)
	assert.Equal(t, "consent-1", f.screener.initiated[0].ConsentRef)
}

func TestHandle_ConsentWithoutIntakeFails(t *testing.T) {
	f := newFixture(t)

	err := f.proc.Handle(context.Background(), f.rctx, lifecycle.Event{
		EventID:    uuid.New(),
		Type:       lifecycle.EventConsentGranted,
		SubjectKey: "emp-unknown",
		ConsentRef: "consent-9",
	})
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestHandle_DuplicateEventIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := lifecycle.Event{
		EventID:    uuid.New(),
		Type:       lifecycle.EventEmployeeTerminated,
		SubjectKey: "emp-2",
		EntityID:   uuid.New(),
	}
	require.NoError(t, f.proc.Handle(ctx, f.rctx, event))
	require.NoError(t, f.proc.Handle(ctx, f.rctx, event))

	assert.Equal(t, 1, f.vigilance.cancelled)
	assert.Len(t, f.auditStore.EventsOfType(audit.EventLifecycleReceived), 1)
}

func TestHandle_PositionChangeReevaluatesVigilance(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.proc.Handle(context.Background(), f.rctx, lifecycle.Event{
		EventID:    uuid.New(),
		Type:       lifecycle.EventPositionChanged,
		SubjectKey: "emp-3",
		EntityID:   uuid.New(),
		Role:       screeningdomain.RoleEnergy,
	}))
	assert.Equal(t, 1, f.vigilance.reevaluated)
}

func TestHandle_RehireResumesKnownEntity(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.proc.Handle(context.Background(), f.rctx, lifecycle.Event{
		EventID:    uuid.New(),
		Type:       lifecycle.EventRehireInitiated,
		SubjectKey: "emp-4",
		EntityID:   uuid.New(),
		Role:       screeningdomain.RoleFinance,
	}))
	assert.Equal(t, 1, f.vigilance.resumed)
}

func TestHandle_RehireOfUnknownEntityParksIntake(t *testing.T) {
	f := newFixture(t)
	f.vigilance.resumeErr = errors.NewNotFoundError("monitoring config")
	ctx := context.Background()

	event := hireEvent("emp-5")
	event.Type = lifecycle.EventRehireInitiated
	event.EntityID = uuid.New()
	require.NoError(t, f.proc.Handle(ctx, f.rctx, event))

	_, err := f.intakes.Get(ctx, f.rctx.TenantID(), "emp-5")
	assert.NoError(t, err, "rescreen intake parked for consent")
}

func TestHandle_RejectsMalformedEvent(t *testing.T) {
	f := newFixture(t)

	err := f.proc.Handle(context.Background(), f.rctx, lifecycle.Event{Type: lifecycle.EventHireInitiated})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
