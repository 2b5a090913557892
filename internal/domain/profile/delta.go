package profile

import (
	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/finding"
	"github.com/google/uuid"
)

// EvolutionSignal names a pattern detected on a profile delta
type EvolutionSignal string

const (
	SignalRiskEscalation        EvolutionSignal = "risk_escalation"
	SignalNetworkExpansion      EvolutionSignal = "network_expansion"
	SignalCriticalFindingsSurge EvolutionSignal = "critical_findings_surge"
)

const (
	maxRiskScore = 100.0

	// thresholds for evolution signal derivation
	escalationFraction    = 0.30
	expansionConnections  = 10
	criticalSurgeFindings = 3
)

// ChangedFinding pairs the old and new state of a finding whose severity or
// supporting facts changed between versions.
type ChangedFinding struct {
	Old finding.Finding `json:"old"`
	New finding.Finding `json:"new"`
}

// Delta is the structured difference between two profile versions
type Delta struct {
	EntityID          uuid.UUID         `json:"entity_id"`
	OldVersion        int               `json:"old_version"`
	NewVersion        int               `json:"new_version"`
	NewFindings       []finding.Finding `json:"new_findings"`
	ResolvedFindings  []finding.Finding `json:"resolved_findings"`
	ChangedFindings   []ChangedFinding  `json:"changed_findings"`
	RiskScoreChange   float64           `json:"risk_score_change"`
	ConnectionChanges []Edge            `json:"connection_changes"`
	EvolutionSignals  []EvolutionSignal `json:"evolution_signals"`
}

// IsEmpty reports whether the two versions are materially identical
func (d *Delta) IsEmpty() bool {
	return len(d.NewFindings) == 0 &&
		len(d.ResolvedFindings) == 0 &&
		len(d.ChangedFindings) == 0 &&
		d.RiskScoreChange == 0 &&
		len(d.ConnectionChanges) == 0
}

// HasSignal reports whether a named signal was derived
func (d *Delta) HasSignal(sig EvolutionSignal) bool {
	for _, s := range d.EvolutionSignals {
		if s == sig {
			return true
		}
	}
	return false
}

// ComputeDelta compares two versions of the same entity's profile by
// finding ID. new = in new minus old; resolved = in old minus new;
// changed = same ID with differing severity or supporting facts.
func ComputeDelta(old, new *Profile) (*Delta, error) {
	if old == nil || new == nil {
		return nil, errors.NewValidationError("MISSING_PROFILE", "delta requires two profiles")
	}
	if old.EntityID != new.EntityID {
		return nil, errors.NewValidationError("ENTITY_MISMATCH", "delta requires profiles of the same entity")
	}

	d := &Delta{
		EntityID:   old.EntityID,
		OldVersion: old.Version,
		NewVersion: new.Version,
	}

	oldByID := make(map[uuid.UUID]finding.Finding, len(old.Findings))
	for _, f := range old.Findings {
		oldByID[f.ID] = f
	}
	newByID := make(map[uuid.UUID]finding.Finding, len(new.Findings))
	for _, f := range new.Findings {
		newByID[f.ID] = f
	}

	for _, f := range new.Findings {
		prev, existed := oldByID[f.ID]
		if !existed {
			d.NewFindings = append(d.NewFindings, f)
			continue
		}
		if prev.Severity != f.Severity || !sameFactSet(prev.SupportingFacts, f.SupportingFacts) {
			d.ChangedFindings = append(d.ChangedFindings, ChangedFinding{Old: prev, New: f})
		}
	}
	for _, f := range old.Findings {
		if _, still := newByID[f.ID]; !still {
			d.ResolvedFindings = append(d.ResolvedFindings, f)
		}
	}

	d.RiskScoreChange = new.RiskScore - old.RiskScore
	d.ConnectionChanges = connectionDiff(old.Connections, new.Connections)
	d.EvolutionSignals = deriveSignals(d)
	return d, nil
}

func sameFactSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uuid.UUID]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

func connectionDiff(old, new []Edge) []Edge {
	var added []Edge
	for _, e := range new {
		found := false
		for _, o := range old {
			if sameEdge(o, e) {
				found = true
				break
			}
		}
		if !found {
			added = append(added, e)
		}
	}
	return added
}

func deriveSignals(d *Delta) []EvolutionSignal {
	var signals []EvolutionSignal

	if d.RiskScoreChange > escalationFraction*maxRiskScore {
		signals = append(signals, SignalRiskEscalation)
	}
	if len(d.ConnectionChanges) > expansionConnections {
		signals = append(signals, SignalNetworkExpansion)
	}

	criticalNew := 0
	for _, f := range d.NewFindings {
		if f.Severity == finding.SeverityCritical {
			criticalNew++
		}
	}
	if criticalNew >= criticalSurgeFindings {
		signals = append(signals, SignalCriticalFindingsSurge)
	}
	return signals
}
