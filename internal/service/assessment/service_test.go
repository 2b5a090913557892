package assessment

import (
	"testing"

	"github.com/clearvet/screening-backend/internal/domain/knowledge"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/gateway"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func payloadResult(providerID string, payload string) *gateway.Result {
	return &gateway.Result{ProviderID: providerID, Payload: []byte(payload)}
}

func TestIngest_ExtractsFacts(t *testing.T) {
	a := New(zap.NewNop())
	base := knowledge.NewBase(uuid.New())

	added, err := a.Ingest(base, screening.InfoIdentity, []*gateway.Result{
		payloadResult("id-verify", `{"records":[
			{"field":"name","value":"Alice Morgan","authoritative":true},
			{"field":"dob","value":"1985-03-12"}
		]}`),
		payloadResult("broken", `not json`),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, added)

	name, ok := base.PrimaryName()
	require.True(t, ok)
	assert.Equal(t, "Alice Morgan", name)
}

func TestDetectInconsistencies_ClaimContradiction(t *testing.T) {
	a := New(zap.NewNop())
	base := knowledge.NewBase(uuid.New())

	_, err := a.Ingest(base, screening.InfoIdentity, []*gateway.Result{
		payloadResult("provider-a", `{"records":[{"field":"dob","value":"1985-03-12"}]}`),
		payloadResult("provider-b", `{"records":[{"field":"dob","value":"1983-07-01"}]}`),
	})
	require.NoError(t, err)

	detected, err := a.DetectInconsistencies(base, screening.InfoIdentity)
	require.NoError(t, err)
	assert.Equal(t, 1, detected)

	open := base.OpenInconsistencies()
	require.Len(t, open, 1)
	assert.Equal(t, knowledge.InconsistencyIdentifierMismatch, open[0].Kind)

	// Re-running detection must not duplicate the record.
	detected, err = a.DetectInconsistencies(base, screening.InfoIdentity)
	require.NoError(t, err)
	assert.Zero(t, detected)
}

func TestDetectInconsistencies_SameProviderDisagreementIgnored(t *testing.T) {
	a := New(zap.NewNop())
	base := knowledge.NewBase(uuid.New())

	_, err := a.Ingest(base, screening.InfoEmployment, []*gateway.Result{
		payloadResult("hr-verify", `{"records":[
			{"field":"title","value":"Engineer"},
			{"field":"title","value":"Senior Engineer"}
		]}`),
	})
	require.NoError(t, err)

	detected, err := a.DetectInconsistencies(base, screening.InfoEmployment)
	require.NoError(t, err)
	assert.Zero(t, detected, "a single source disagreeing with itself is not a cross-source contradiction")
}

func TestIngest_ClassifiesSelfReportedRecords(t *testing.T) {
	a := New(zap.NewNop())
	base := knowledge.NewBase(uuid.New())

	_, err := a.Ingest(base, screening.InfoEducation, []*gateway.Result{
		payloadResult("resume-parse", `{"records":[{"field":"degree","value":"PhD Computer Science","self_reported":true}]}`),
		payloadResult("registry", `{"records":[{"field":"degree","value":"BSc Computer Science","authoritative":true}]}`),
	})
	require.NoError(t, err)

	classes := map[string]knowledge.SourceClass{}
	for _, f := range base.AllFacts() {
		classes[f.SourceID] = f.SourceClass
	}
	assert.Equal(t, knowledge.SourceSelfReport, classes["resume-parse"])
	assert.Equal(t, knowledge.SourceAuthoritative, classes["registry"])
}

func TestDetectInconsistencies_CredentialInflation(t *testing.T) {
	a := New(zap.NewNop())
	base := knowledge.NewBase(uuid.New())

	// A degree claim echoed from the subject's resume contradicts the
	// authoritative registry record.
	_, err := a.Ingest(base, screening.InfoEducation, []*gateway.Result{
		payloadResult("resume-parse", `{"records":[{"field":"degree","value":"PhD Computer Science","self_reported":true}]}`),
		payloadResult("registry", `{"records":[{"field":"degree","value":"BSc Computer Science","authoritative":true}]}`),
	})
	require.NoError(t, err)

	detected, err := a.DetectInconsistencies(base, screening.InfoEducation)
	require.NoError(t, err)
	require.Equal(t, 1, detected)
	assert.Equal(t, knowledge.InconsistencyCredentialInflation, base.OpenInconsistencies()[0].Kind)
}

func TestDetectInconsistencies_DegreeDisputeBetweenProvidersIsContradiction(t *testing.T) {
	a := New(zap.NewNop())
	base := knowledge.NewBase(uuid.New())

	_, err := a.Ingest(base, screening.InfoEducation, []*gateway.Result{
		payloadResult("registry-a", `{"records":[{"field":"degree","value":"PhD Computer Science"}]}`),
		payloadResult("registry-b", `{"records":[{"field":"degree","value":"BSc Computer Science"}]}`),
	})
	require.NoError(t, err)

	detected, err := a.DetectInconsistencies(base, screening.InfoEducation)
	require.NoError(t, err)
	require.Equal(t, 1, detected)
	assert.Equal(t, knowledge.InconsistencyContradiction, base.OpenInconsistencies()[0].Kind,
		"inflation needs a self-reported side")
}

func TestDetectInconsistencies_TimelineImpossibility(t *testing.T) {
	a := New(zap.NewNop())
	base := knowledge.NewBase(uuid.New())

	_, err := a.Ingest(base, screening.InfoEmployment, []*gateway.Result{
		payloadResult("hr-verify", `{"records":[
			{"field":"period_start","value":"2021-06-01","claim":"acme"},
			{"field":"period_end","value":"2019-01-15","claim":"acme"}
		]}`),
	})
	require.NoError(t, err)

	detected, err := a.DetectInconsistencies(base, screening.InfoEmployment)
	require.NoError(t, err)
	require.Equal(t, 1, detected)
	assert.Equal(t, knowledge.InconsistencyTimeline, base.OpenInconsistencies()[0].Kind)
}

func TestAssess_CorroboratedIdentityClearsThreshold(t *testing.T) {
	a := New(zap.NewNop())
	base := knowledge.NewBase(uuid.New())

	records := `{"records":[
		{"field":"name","value":"Alice Morgan"},
		{"field":"dob","value":"1985-03-12"},
		{"field":"address","value":"12 Oak St Sacramento CA"},
		{"field":"ssn_hash","value":"ab12cd"}
	]}`
	added, err := a.Ingest(base, screening.InfoIdentity, []*gateway.Result{
		payloadResult("provider-a", records),
		payloadResult("provider-b", records),
	})
	require.NoError(t, err)

	result := a.Assess(base, screening.InfoIdentity, added, 2)
	assert.GreaterOrEqual(t, result.Confidence, 0.90, "fully corroborated identity must clear the foundation threshold")
	assert.Zero(t, result.OpenGaps)
	assert.Equal(t, 4.0, result.InfoGainRate)
}

func TestAssess_SingleSourceLeavesCorroborationGaps(t *testing.T) {
	a := New(zap.NewNop())
	base := knowledge.NewBase(uuid.New())

	added, err := a.Ingest(base, screening.InfoIdentity, []*gateway.Result{
		payloadResult("provider-a", `{"records":[{"field":"name","value":"Alice Morgan"}]}`),
	})
	require.NoError(t, err)

	result := a.Assess(base, screening.InfoIdentity, added, 1)
	assert.Less(t, result.Confidence, 0.90)
	assert.Equal(t, 4, result.OpenGaps, "three unfilled slots plus one single-source slot")

	snap := base.Snapshot(screening.InfoIdentity)
	kinds := map[string]knowledge.GapKind{}
	for _, g := range snap.Gaps {
		kinds[g.Field] = g.Kind
	}
	assert.Equal(t, knowledge.GapCorroboration, kinds["name"])
	assert.Equal(t, knowledge.GapMissingFundamental, kinds["dob"])
}

func TestAssess_ConfidenceMonotoneWithoutNewContradictions(t *testing.T) {
	a := New(zap.NewNop())
	base := knowledge.NewBase(uuid.New())

	added, err := a.Ingest(base, screening.InfoCriminal, []*gateway.Result{
		payloadResult("county-a", `{"records":[{"field":"record_status","value":"clear"}]}`),
	})
	require.NoError(t, err)
	first := a.Assess(base, screening.InfoCriminal, added, 1)

	added, err = a.Ingest(base, screening.InfoCriminal, []*gateway.Result{
		payloadResult("county-b", `{"records":[
			{"field":"record_status","value":"clear"},
			{"field":"disposition","value":"none"}
		]}`),
	})
	require.NoError(t, err)
	second := a.Assess(base, screening.InfoCriminal, added, 1)

	assert.GreaterOrEqual(t, second.Confidence, first.Confidence)
}

func TestAssess_InconsistencyPenalizesConfidence(t *testing.T) {
	a := New(zap.NewNop())

	clean := knowledge.NewBase(uuid.New())
	_, err := a.Ingest(clean, screening.InfoIdentity, []*gateway.Result{
		payloadResult("provider-a", `{"records":[{"field":"dob","value":"1985-03-12"}]}`),
		payloadResult("provider-b", `{"records":[{"field":"dob","value":"1985-03-12"}]}`),
	})
	require.NoError(t, err)
	cleanScore := a.Assess(clean, screening.InfoIdentity, 2, 2).Confidence

	conflicted := knowledge.NewBase(uuid.New())
	_, err = a.Ingest(conflicted, screening.InfoIdentity, []*gateway.Result{
		payloadResult("provider-a", `{"records":[{"field":"dob","value":"1985-03-12"}]}`),
		payloadResult("provider-b", `{"records":[{"field":"dob","value":"1983-07-01"}]}`),
	})
	require.NoError(t, err)
	conflictedScore := a.Assess(conflicted, screening.InfoIdentity, 2, 2).Confidence

	assert.Less(t, conflictedScore, cleanScore)
}
