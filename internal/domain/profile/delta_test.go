package profile_test

import (
	"testing"

	"github.com/clearvet/screening-backend/internal/domain/finding"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFinding(t *testing.T, category finding.Category, severity finding.Severity, desc string) finding.Finding {
	t.Helper()
	f, err := finding.New(category, severity, desc, []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	return *f
}

func newProfile(t *testing.T, entityID uuid.UUID, version int, findings []finding.Finding, score float64, graph *profile.EntityGraph) *profile.Profile {
	t.Helper()
	p, err := profile.New(entityID, uuid.New(), version, findings, score, graph)
	require.NoError(t, err)
	return p
}

func TestComputeDelta_IdenticalProfilesYieldEmptyDelta(t *testing.T) {
	entityID := uuid.New()
	findings := []finding.Finding{
		newFinding(t, finding.CategoryCriminal, finding.SeverityHigh, "felony conviction within lookback"),
		newFinding(t, finding.CategoryFinancial, finding.SeverityLow, "minor civil judgment"),
	}
	graph := profile.NewEntityGraph()
	graph.AddEdge(profile.Edge{From: entityID, To: uuid.New(), ConnectionType: "employer", Strength: 0.8})

	old := newProfile(t, entityID, 1, findings, 42, graph)
	cur := newProfile(t, entityID, 2, findings, 42, graph)

	d, err := profile.ComputeDelta(old, cur)
	require.NoError(t, err)

	assert.True(t, d.IsEmpty())
	assert.Empty(t, d.EvolutionSignals)
	assert.Equal(t, 1, d.OldVersion)
	assert.Equal(t, 2, d.NewVersion)
}

func TestComputeDelta_ReversalMirrorsFindingsAndNegatesScore(t *testing.T) {
	entityID := uuid.New()
	shared := newFinding(t, finding.CategoryRegulatory, finding.SeverityMedium, "license lapse")
	appeared := newFinding(t, finding.CategoryCriminal, finding.SeverityHigh, "new arrest record")
	vanished := newFinding(t, finding.CategoryFinancial, finding.SeverityLow, "lien released")

	old := newProfile(t, entityID, 1, []finding.Finding{shared, vanished}, 30, nil)
	cur := newProfile(t, entityID, 2, []finding.Finding{shared, appeared}, 55, nil)

	forward, err := profile.ComputeDelta(old, cur)
	require.NoError(t, err)
	reverse, err := profile.ComputeDelta(cur, old)
	require.NoError(t, err)

	require.Len(t, forward.NewFindings, 1)
	assert.Equal(t, appeared.ID, forward.NewFindings[0].ID)
	require.Len(t, forward.ResolvedFindings, 1)
	assert.Equal(t, vanished.ID, forward.ResolvedFindings[0].ID)

	require.Len(t, reverse.NewFindings, 1)
	assert.Equal(t, vanished.ID, reverse.NewFindings[0].ID)
	require.Len(t, reverse.ResolvedFindings, 1)
	assert.Equal(t, appeared.ID, reverse.ResolvedFindings[0].ID)

	assert.Equal(t, 25.0, forward.RiskScoreChange)
	assert.Equal(t, -forward.RiskScoreChange, reverse.RiskScoreChange)
}

func TestComputeDelta_SeverityChangeIsTrackedNotDuplicated(t *testing.T) {
	entityID := uuid.New()
	before := newFinding(t, finding.CategoryCriminal, finding.SeverityMedium, "pending charge")
	after := before
	after.Severity = finding.SeverityHigh

	old := newProfile(t, entityID, 1, []finding.Finding{before}, 40, nil)
	cur := newProfile(t, entityID, 2, []finding.Finding{after}, 40, nil)

	d, err := profile.ComputeDelta(old, cur)
	require.NoError(t, err)

	assert.Empty(t, d.NewFindings)
	assert.Empty(t, d.ResolvedFindings)
	require.Len(t, d.ChangedFindings, 1)
	assert.Equal(t, finding.SeverityMedium, d.ChangedFindings[0].Old.Severity)
	assert.Equal(t, finding.SeverityHigh, d.ChangedFindings[0].New.Severity)
	assert.False(t, d.IsEmpty())
}

func TestComputeDelta_SignalThresholds(t *testing.T) {
	entityID := uuid.New()

	t.Run("risk escalation above thirty points", func(t *testing.T) {
		old := newProfile(t, entityID, 1, nil, 10, nil)
		cur := newProfile(t, entityID, 2, nil, 45, nil)

		d, err := profile.ComputeDelta(old, cur)
		require.NoError(t, err)
		assert.True(t, d.HasSignal(profile.SignalRiskEscalation))
	})

	t.Run("no escalation at exactly thirty points", func(t *testing.T) {
		old := newProfile(t, entityID, 1, nil, 10, nil)
		cur := newProfile(t, entityID, 2, nil, 40, nil)

		d, err := profile.ComputeDelta(old, cur)
		require.NoError(t, err)
		assert.False(t, d.HasSignal(profile.SignalRiskEscalation))
	})

	t.Run("critical findings surge", func(t *testing.T) {
		var criticals []finding.Finding
		for i := 0; i < 3; i++ {
			criticals = append(criticals, newFinding(t, finding.CategoryCriminal, finding.SeverityCritical, "sanctions list match"))
		}
		old := newProfile(t, entityID, 1, nil, 50, nil)
		cur := newProfile(t, entityID, 2, criticals, 50, nil)

		d, err := profile.ComputeDelta(old, cur)
		require.NoError(t, err)
		assert.True(t, d.HasSignal(profile.SignalCriticalFindingsSurge))
	})

	t.Run("network expansion", func(t *testing.T) {
		graph := profile.NewEntityGraph()
		for i := 0; i < 11; i++ {
			graph.AddEdge(profile.Edge{From: entityID, To: uuid.New(), ConnectionType: "associate", Strength: 0.5})
		}
		old := newProfile(t, entityID, 1, nil, 50, nil)
		cur := newProfile(t, entityID, 2, nil, 50, graph)

		d, err := profile.ComputeDelta(old, cur)
		require.NoError(t, err)
		assert.Len(t, d.ConnectionChanges, 11)
		assert.True(t, d.HasSignal(profile.SignalNetworkExpansion))
	})
}

func TestComputeDelta_RejectsMismatchedEntities(t *testing.T) {
	old := newProfile(t, uuid.New(), 1, nil, 10, nil)
	cur := newProfile(t, uuid.New(), 2, nil, 10, nil)

	_, err := profile.ComputeDelta(old, cur)
	assert.Error(t, err)

	_, err = profile.ComputeDelta(nil, cur)
	assert.Error(t, err)
}
