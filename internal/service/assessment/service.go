// Package assessment ingests provider results into the knowledge base,
// detects inconsistencies between accumulated facts and scores per-type
// confidence after each iteration.
package assessment

import (
	"encoding/json"
	"fmt"
	"time"

	domainerrors "github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/knowledge"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/infrastructure/gateway"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	coverageWeight       = 0.55
	corroborationWeight  = 0.25
	recencyWeight        = 0.20
	inconsistencyPenalty = 0.10
	maxPenalty           = 0.30
)

// Assessor turns raw provider results into facts and assessments
type Assessor struct {
	logger *zap.Logger
}

// New creates an assessor
func New(logger *zap.Logger) *Assessor {
	return &Assessor{logger: logger}
}

// Ingest extracts facts from provider results and commits them to the
// knowledge base under the info type's write lock. It returns the number of
// facts added.
func (a *Assessor) Ingest(base *knowledge.Base, infoType screening.InformationType, results []*gateway.Result) (int, error) {
	lock := base.TypeLock(infoType)
	lock.Lock()
	defer lock.Unlock()

	added := 0
	for _, result := range results {
		if result == nil {
			continue
		}
		var wire payloadWire
		if err := json.Unmarshal(result.Payload, &wire); err != nil {
			a.logger.Warn("dropping undecodable provider payload",
				zap.String("provider", result.ProviderID),
				zap.String("check_type", string(infoType)),
				zap.Error(err))
			continue
		}
		for _, rec := range wire.Records {
			if rec.Field == "" || rec.Value == "" {
				continue
			}
			class := knowledge.SourceCorroborated
			switch {
			case rec.Authoritative:
				class = knowledge.SourceAuthoritative
			case rec.SelfReported:
				class = knowledge.SourceSelfReport
			}
			confidence := rec.Confidence
			if confidence == 0 {
				confidence = 0.8
			}
			if _, err := base.AddFact(knowledge.Fact{
				InfoType:     infoType,
				Claim:        rec.Claim,
				Field:        rec.Field,
				Value:        rec.Value,
				SourceID:     result.ProviderID,
				SourceClass:  class,
				EvidenceRefs: rec.EvidenceRefs,
				Confidence:   confidence,
				EffectiveAt:  rec.EffectiveAt,
			}); err != nil {
				return added, domainerrors.Wrap(err, "committing extracted fact")
			}
			added++
		}
	}
	return added, nil
}

// DetectInconsistencies compares accumulated facts for one info type and
// records new contradictions. Previously detected pairs are not repeated.
func (a *Assessor) DetectInconsistencies(base *knowledge.Base, infoType screening.InformationType) (int, error) {
	snap := base.Snapshot(infoType)

	known := make(map[string]bool)
	for _, inc := range snap.Inconsistencies {
		known[pairKey(inc.FactIDs)] = true
	}

	detected := 0
	byField := make(map[string][]knowledge.Fact)
	for _, f := range snap.Facts {
		byField[f.Field] = append(byField[f.Field], f)
	}

	for field, facts := range byField {
		for i := 0; i < len(facts); i++ {
			for j := i + 1; j < len(facts); j++ {
				fi, fj := facts[i], facts[j]
				if fi.SourceID == fj.SourceID {
					continue
				}
				if values.NormalizeQueryInput(fi.Value) == values.NormalizeQueryInput(fj.Value) {
					continue
				}
				key := pairKey([]uuid.UUID{fi.ID, fj.ID})
				if known[key] {
					continue
				}
				known[key] = true
				if _, err := base.AddInconsistency(knowledge.Inconsistency{
					InfoType: infoType,
					Kind:     contradictionKind(field, fi, fj),
					FactIDs:  []uuid.UUID{fi.ID, fj.ID},
					Detail:   fmt.Sprintf("%s: %q vs %q", field, fi.Value, fj.Value),
				}); err != nil {
					return detected, err
				}
				detected++
			}
		}
	}

	n, err := a.detectTimelineImpossibilities(base, snap, known)
	if err != nil {
		return detected, err
	}
	return detected + n, nil
}

// detectTimelineImpossibilities flags period claims whose end precedes their
// start. Periods pair by the claim label.
func (a *Assessor) detectTimelineImpossibilities(base *knowledge.Base, snap knowledge.Snapshot, known map[string]bool) (int, error) {
	starts := make(map[string]knowledge.Fact)
	ends := make(map[string]knowledge.Fact)
	for _, f := range snap.Facts {
		switch f.Field {
		case "period_start":
			starts[f.Claim] = f
		case "period_end":
			ends[f.Claim] = f
		}
	}

	detected := 0
	for claim, start := range starts {
		end, ok := ends[claim]
		if !ok {
			continue
		}
		startAt, err1 := time.Parse("2006-01-02", start.Value)
		endAt, err2 := time.Parse("2006-01-02", end.Value)
		if err1 != nil || err2 != nil || !endAt.Before(startAt) {
			continue
		}
		key := pairKey([]uuid.UUID{start.ID, end.ID})
		if known[key] {
			continue
		}
		known[key] = true
		if _, err := base.AddInconsistency(knowledge.Inconsistency{
			InfoType: snap.InfoType,
			Kind:     knowledge.InconsistencyTimeline,
			FactIDs:  []uuid.UUID{start.ID, end.ID},
			Detail:   fmt.Sprintf("%s: period ends %s before it starts %s", claim, end.Value, start.Value),
		}); err != nil {
			return detected, err
		}
		detected++
	}
	return detected, nil
}

// Assess recomputes gaps and confidence for one info type after an
// iteration's results were ingested.
func (a *Assessor) Assess(base *knowledge.Base, infoType screening.InformationType, newFacts, queriesExecuted int) Assessment {
	newInconsistencies, err := a.DetectInconsistencies(base, infoType)
	if err != nil {
		a.logger.Warn("inconsistency detection failed",
			zap.String("check_type", string(infoType)),
			zap.Error(err))
	}

	a.recomputeGaps(base, infoType)
	snap := base.Snapshot(infoType)

	gain := 0.0
	if queriesExecuted > 0 {
		gain = float64(newFacts) / float64(queriesExecuted)
	}

	return Assessment{
		InfoType:           infoType,
		Confidence:         a.confidence(snap),
		NewFacts:           newFacts,
		QueriesExecuted:    queriesExecuted,
		InfoGainRate:       gain,
		OpenGaps:           len(snap.Gaps),
		NewInconsistencies: newInconsistencies,
	}
}

// recomputeGaps refreshes the gap set: unfilled expected slots are missing
// fundamentals or corroboration targets; single-source slots still need
// corroboration.
func (a *Assessor) recomputeGaps(base *knowledge.Base, infoType screening.InformationType) {
	snap := base.Snapshot(infoType)
	sources := slotSources(snap.Facts)

	for _, slot := range expectedSlots[infoType] {
		switch {
		case len(sources[slot]) == 0:
			kind := knowledge.GapCorroboration
			if fundamentalSlots[slot] {
				kind = knowledge.GapMissingFundamental
			}
			base.SetGap(knowledge.Gap{InfoType: infoType, Field: slot, Kind: kind, Detail: "slot unfilled"})
		case len(sources[slot]) == 1 && !authoritativeSlot(snap.Facts, slot):
			base.SetGap(knowledge.Gap{InfoType: infoType, Field: slot, Kind: knowledge.GapCorroboration, Detail: "single source"})
		default:
			base.ClearGap(infoType, slot)
		}
	}
}

// confidence scores one info type in [0,1] from slot coverage, multi-source
// corroboration, recency and open inconsistencies. It is non-decreasing
// across iterations unless a new inconsistency lands.
func (a *Assessor) confidence(snap knowledge.Snapshot) float64 {
	slots := expectedSlots[snap.InfoType]
	if len(slots) == 0 {
		return 0
	}
	sources := slotSources(snap.Facts)

	filled, corroborated := 0, 0
	for _, slot := range slots {
		switch {
		case len(sources[slot]) >= 2:
			filled++
			corroborated++
		case len(sources[slot]) == 1:
			filled++
			if authoritativeSlot(snap.Facts, slot) {
				corroborated++
			}
		}
	}

	coverage := float64(filled) / float64(len(slots))
	corroboration := float64(corroborated) / float64(len(slots))

	penalty := 0.0
	for _, inc := range snap.Inconsistencies {
		if inc.Status == knowledge.ReconciliationOpen {
			penalty += inconsistencyPenalty
		}
	}
	if penalty > maxPenalty {
		penalty = maxPenalty
	}

	score := coverageWeight*coverage + corroborationWeight*corroboration + recencyWeight*recency(snap.Facts) - penalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// recency scores how current the accumulated facts are; results under 30
// days old score full, decaying by half per year beyond that.
func recency(facts []knowledge.Fact) float64 {
	if len(facts) == 0 {
		return 0
	}
	var newest time.Time
	for _, f := range facts {
		if f.DiscoveredAt.After(newest) {
			newest = f.DiscoveredAt
		}
	}
	age := time.Since(newest)
	if age <= 30*24*time.Hour {
		return 1
	}
	years := age.Hours() / (365 * 24)
	return 1 / (1 + years)
}

func slotSources(facts []knowledge.Fact) map[string]map[string]bool {
	sources := make(map[string]map[string]bool)
	for _, f := range facts {
		if sources[f.Field] == nil {
			sources[f.Field] = make(map[string]bool)
		}
		sources[f.Field][f.SourceID] = true
	}
	return sources
}

func authoritativeSlot(facts []knowledge.Fact, slot string) bool {
	for _, f := range facts {
		if f.Field == slot && f.SourceClass == knowledge.SourceAuthoritative {
			return true
		}
	}
	return false
}

func contradictionKind(field string, fi, fj knowledge.Fact) knowledge.InconsistencyKind {
	switch field {
	case "dob", "ssn_hash", "national_id_hash":
		return knowledge.InconsistencyIdentifierMismatch
	case "degree":
		if fi.SourceClass == knowledge.SourceSelfReport || fj.SourceClass == knowledge.SourceSelfReport {
			return knowledge.InconsistencyCredentialInflation
		}
	}
	return knowledge.InconsistencyContradiction
}

// pairKey gives an order-independent identity for a fact pair
func pairKey(ids []uuid.UUID) string {
	if len(ids) == 2 && ids[1].String() < ids[0].String() {
		return ids[1].String() + ":" + ids[0].String()
	}
	key := ""
	for _, id := range ids {
		key += id.String() + ":"
	}
	return key
}
