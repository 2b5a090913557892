package audit

import (
	"fmt"
	"sort"
)

// BreakType categorizes a detected chain break
type BreakType string

const (
	BreakHashMismatch  BreakType = "hash_mismatch"
	BreakSequenceGap   BreakType = "sequence_gap"
	BreakTampered      BreakType = "tampered_event"
	BreakUnsealedEvent BreakType = "unsealed_event"
)

// ChainBreak describes one point where tamper detection fired
type ChainBreak struct {
	EventID     string    `json:"event_id"`
	SequenceNum int64     `json:"sequence_num"`
	Type        BreakType `json:"type"`
	Description string    `json:"description"`
}

// VerificationResult summarizes a chain verification pass
type VerificationResult struct {
	IsValid        bool          `json:"is_valid"`
	EventsVerified int           `json:"events_verified"`
	Breaks         []*ChainBreak `json:"breaks,omitempty"`
}

// VerifyChain checks hash chain integrity for one tenant's events. Events
// are sorted by sequence number; each event's previous hash must match the
// hash of its predecessor, and every stored hash must recompute identically.
func VerifyChain(events []*Event) (*VerificationResult, error) {
	result := &VerificationResult{IsValid: true}
	if len(events) == 0 {
		return result, nil
	}

	sorted := make([]*Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SequenceNum < sorted[j].SequenceNum
	})

	var previousHash string
	for i, e := range sorted {
		result.EventsVerified++

		if !e.IsSealed() || e.EventHash == "" {
			result.IsValid = false
			result.Breaks = append(result.Breaks, &ChainBreak{
				EventID:     e.ID.String(),
				SequenceNum: e.SequenceNum,
				Type:        BreakUnsealedEvent,
				Description: "event has no computed hash",
			})
			continue
		}

		if i > 0 && e.SequenceNum != sorted[i-1].SequenceNum+1 {
			result.IsValid = false
			result.Breaks = append(result.Breaks, &ChainBreak{
				EventID:     e.ID.String(),
				SequenceNum: e.SequenceNum,
				Type:        BreakSequenceGap,
				Description: fmt.Sprintf("expected sequence %d, got %d", sorted[i-1].SequenceNum+1, e.SequenceNum),
			})
		}

		if e.PreviousHash != previousHash {
			result.IsValid = false
			result.Breaks = append(result.Breaks, &ChainBreak{
				EventID:     e.ID.String(),
				SequenceNum: e.SequenceNum,
				Type:        BreakHashMismatch,
				Description: "previous hash does not match predecessor",
			})
		}

		recomputed, err := e.recomputeHash()
		if err != nil {
			return nil, err
		}
		if recomputed != e.EventHash {
			result.IsValid = false
			result.Breaks = append(result.Breaks, &ChainBreak{
				EventID:     e.ID.String(),
				SequenceNum: e.SequenceNum,
				Type:        BreakTampered,
				Description: "stored hash does not match recomputed hash",
			})
		}

		previousHash = e.EventHash
	}
	return result, nil
}
