package screening

import (
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
)

// SARPhase is the phase of one Search-Assess-Refine loop. Transitions are
// one-way toward a terminal phase; once terminal, no further iterations run.
type SARPhase string

const (
	SARPhaseSearch     SARPhase = "search"
	SARPhaseAssess     SARPhase = "assess"
	SARPhaseRefine     SARPhase = "refine"
	SARPhaseComplete   SARPhase = "complete"
	SARPhaseCapped     SARPhase = "capped"
	SARPhaseDiminished SARPhase = "diminished"
)

// IsTerminal reports whether the phase is absorbing
func (p SARPhase) IsTerminal() bool {
	switch p {
	case SARPhaseComplete, SARPhaseCapped, SARPhaseDiminished:
		return true
	}
	return false
}

// CompletionReason explains why a SAR loop reached its terminal phase
type CompletionReason string

const (
	ReasonConfidenceThresholdMet CompletionReason = "confidence_threshold_met"
	ReasonMaxIterationsReached   CompletionReason = "max_iterations_reached"
	ReasonDiminishingReturns     CompletionReason = "diminishing_returns"
	ReasonDeadlineExceeded       CompletionReason = "deadline_exceeded"
	ReasonProvidersExhausted     CompletionReason = "providers_exhausted"
	ReasonBlockedByCompliance    CompletionReason = "blocked_by_compliance"
)

// Iteration records one completed SAR iteration
type Iteration struct {
	Number          int       `json:"number"`
	QueriesExecuted int       `json:"queries_executed"`
	NewFacts        int       `json:"new_facts"`
	Confidence      float64   `json:"confidence"`
	InfoGainRate    float64   `json:"info_gain_rate"`
	CompletedAt     time.Time `json:"completed_at"`
}

// PhaseTransition is emitted on every SAR phase change for auditing
type PhaseTransition struct {
	InfoType        InformationType  `json:"info_type"`
	OldPhase        SARPhase         `json:"old_phase"`
	NewPhase        SARPhase         `json:"new_phase"`
	Reason          CompletionReason `json:"reason,omitempty"`
	Iteration       int              `json:"iteration"`
	CumulativeFacts int              `json:"cumulative_facts"`
}

// SARState tracks one information type's loop through the state machine
type SARState struct {
	InfoType         InformationType  `json:"info_type"`
	Phase            SARPhase         `json:"phase"`
	Iterations       []Iteration      `json:"iterations"`
	FinalConfidence  float64          `json:"final_confidence"`
	CompletionReason CompletionReason `json:"completion_reason,omitempty"`
	cumulativeFacts  int
}

// NewSARState starts a loop in the search phase
func NewSARState(infoType InformationType) (*SARState, error) {
	if !infoType.IsValid() {
		return nil, errors.NewValidationError("INVALID_INFO_TYPE", "unknown information type")
	}
	return &SARState{
		InfoType:   infoType,
		Phase:      SARPhaseSearch,
		Iterations: make([]Iteration, 0, 4),
	}, nil
}

// validNext enumerates the legal transitions of the state machine
var validNext = map[SARPhase][]SARPhase{
	SARPhaseSearch: {SARPhaseAssess, SARPhaseCapped},
	SARPhaseAssess: {SARPhaseRefine, SARPhaseComplete, SARPhaseCapped, SARPhaseDiminished},
	SARPhaseRefine: {SARPhaseSearch, SARPhaseCapped},
}

// Transition moves the loop to the next phase, returning the audit record.
// Terminal phases are absorbing: any transition out of them is rejected.
func (s *SARState) Transition(next SARPhase, reason CompletionReason) (*PhaseTransition, error) {
	if s.Phase.IsTerminal() {
		return nil, errors.NewConflictError("SAR state is terminal; no further transitions allowed")
	}
	allowed := false
	for _, p := range validNext[s.Phase] {
		if p == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, errors.NewValidationError("INVALID_TRANSITION",
			string(s.Phase)+" -> "+string(next)+" is not a legal SAR transition")
	}
	if next.IsTerminal() && reason == "" {
		return nil, errors.NewValidationError("MISSING_REASON", "terminal transitions require a completion reason")
	}

	old := s.Phase
	s.Phase = next
	if next.IsTerminal() {
		s.CompletionReason = reason
		if n := len(s.Iterations); n > 0 {
			s.FinalConfidence = s.Iterations[n-1].Confidence
		}
	}
	return &PhaseTransition{
		InfoType:        s.InfoType,
		OldPhase:        old,
		NewPhase:        next,
		Reason:          reason,
		Iteration:       len(s.Iterations),
		CumulativeFacts: s.cumulativeFacts,
	}, nil
}

// RecordIteration appends a completed iteration. Iterations are strictly
// ordered; the iteration number must be the next in sequence.
func (s *SARState) RecordIteration(it Iteration) error {
	if s.Phase.IsTerminal() {
		return errors.NewConflictError("cannot record iterations on a terminal SAR state")
	}
	if it.Number != len(s.Iterations)+1 {
		return errors.NewValidationError("ITERATION_OUT_OF_ORDER", "iteration numbers must be sequential")
	}
	s.Iterations = append(s.Iterations, it)
	s.cumulativeFacts += it.NewFacts
	return nil
}

// LastIteration returns the most recent iteration, if any
func (s *SARState) LastIteration() (Iteration, bool) {
	if len(s.Iterations) == 0 {
		return Iteration{}, false
	}
	return s.Iterations[len(s.Iterations)-1], true
}

// ConfidenceDelta is the confidence change of the latest iteration relative
// to the one before it. With fewer than two iterations the delta is the
// latest confidence itself.
func (s *SARState) ConfidenceDelta() float64 {
	n := len(s.Iterations)
	switch n {
	case 0:
		return 0
	case 1:
		return s.Iterations[0].Confidence
	default:
		return s.Iterations[n-1].Confidence - s.Iterations[n-2].Confidence
	}
}

// CumulativeFacts is the total number of facts gathered across iterations
func (s *SARState) CumulativeFacts() int { return s.cumulativeFacts }
