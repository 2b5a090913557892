package assessment

import (
	"time"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// payloadWire is the structured form every provider adapter normalizes its
// raw response into before it reaches the assessor.
type payloadWire struct {
	Records []recordWire `json:"records"`
}

// recordWire is one extracted claim from a provider payload. SelfReported
// marks records the provider merely echoes from subject-supplied material
// (resumes, application forms) rather than verifies.
type recordWire struct {
	Field         string    `json:"field"`
	Value         string    `json:"value"`
	Claim         string    `json:"claim,omitempty"`
	Confidence    float64   `json:"confidence,omitempty"`
	EffectiveAt   time.Time `json:"effective_at,omitempty"`
	EvidenceRefs  []string  `json:"evidence_refs,omitempty"`
	Authoritative bool      `json:"authoritative,omitempty"`
	SelfReported  bool      `json:"self_reported,omitempty"`
}

// Assessment is the outcome of assessing one iteration of one info type
type Assessment struct {
	InfoType        screening.InformationType
	Confidence      float64
	NewFacts        int
	QueriesExecuted int
	InfoGainRate    float64 // new facts per executed query this iteration
	OpenGaps        int
	NewInconsistencies int
}

// expectedSlots names the semantic fields a complete result set fills for
// each information type. Coverage is measured against these.
var expectedSlots = map[screening.InformationType][]string{
	screening.InfoIdentity:         {"name", "dob", "address", "ssn_hash"},
	screening.InfoEmployment:       {"employer", "title", "period_start", "period_end"},
	screening.InfoEducation:        {"institution", "degree", "graduation_year"},
	screening.InfoCriminal:         {"record_status", "disposition"},
	screening.InfoCivil:            {"record_status"},
	screening.InfoFinancial:        {"credit_status", "delinquencies"},
	screening.InfoLicenses:         {"license_status"},
	screening.InfoRegulatory:       {"regulatory_status"},
	screening.InfoSanctions:        {"sanctions_status"},
	screening.InfoAdverseMedia:     {"media_mentions"},
	screening.InfoDigitalFootprint: {"online_presence"},
}

// fundamentalSlots marks the slots whose absence is a missing-fundamental
// gap rather than a corroboration gap.
var fundamentalSlots = map[string]bool{
	"name":             true,
	"dob":              true,
	"record_status":    true,
	"sanctions_status": true,
	"employer":         true,
	"institution":      true,
}
