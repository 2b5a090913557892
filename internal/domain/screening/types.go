package screening

import (
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/google/uuid"
)

// Tier is the service level controlling provider availability, cache
// freshness strictness and D3 availability.
type Tier string

const (
	TierStandard Tier = "standard"
	TierEnhanced Tier = "enhanced"
)

// Degree is the depth of network expansion from the primary subject.
type Degree int

const (
	DegreeD1 Degree = 1 // subject only
	DegreeD2 Degree = 2 // direct connections
	DegreeD3 Degree = 3 // two hops, Enhanced tier only
)

func (d Degree) String() string {
	switch d {
	case DegreeD1:
		return "D1"
	case DegreeD2:
		return "D2"
	case DegreeD3:
		return "D3"
	default:
		return "unknown"
	}
}

// RoleCategory groups subject roles for compliance and vigilance mapping.
type RoleCategory string

const (
	RoleGovernment RoleCategory = "government"
	RoleEnergy     RoleCategory = "energy"
	RoleFinance    RoleCategory = "finance"
	RoleOther      RoleCategory = "other"
)

// InformationType is the closed enumeration of investigable information
// types, partitioned into three ordered phases.
type InformationType string

const (
	InfoIdentity   InformationType = "identity"
	InfoEmployment InformationType = "employment"
	InfoEducation  InformationType = "education"

	InfoCriminal   InformationType = "criminal"
	InfoCivil      InformationType = "civil"
	InfoFinancial  InformationType = "financial"
	InfoLicenses   InformationType = "licenses"
	InfoRegulatory InformationType = "regulatory"
	InfoSanctions  InformationType = "sanctions"

	InfoAdverseMedia     InformationType = "adverse_media"
	InfoDigitalFootprint InformationType = "digital_footprint"
)

// InfoPhase orders information types: Foundation completes before Records,
// Records before Intelligence.
type InfoPhase int

const (
	PhaseFoundation InfoPhase = iota
	PhaseRecords
	PhaseIntelligence
)

func (p InfoPhase) String() string {
	switch p {
	case PhaseFoundation:
		return "foundation"
	case PhaseRecords:
		return "records"
	case PhaseIntelligence:
		return "intelligence"
	default:
		return "unknown"
	}
}

var phaseOfType = map[InformationType]InfoPhase{
	InfoIdentity:         PhaseFoundation,
	InfoEmployment:       PhaseFoundation,
	InfoEducation:        PhaseFoundation,
	InfoCriminal:         PhaseRecords,
	InfoCivil:            PhaseRecords,
	InfoFinancial:        PhaseRecords,
	InfoLicenses:         PhaseRecords,
	InfoRegulatory:       PhaseRecords,
	InfoSanctions:        PhaseRecords,
	InfoAdverseMedia:     PhaseIntelligence,
	InfoDigitalFootprint: PhaseIntelligence,
}

// Phase returns the investigation phase an information type belongs to
func (t InformationType) Phase() InfoPhase {
	return phaseOfType[t]
}

// IsValid reports whether the type is part of the closed enumeration
func (t InformationType) IsValid() bool {
	_, ok := phaseOfType[t]
	return ok
}

// TypesForPhase lists the information types of one phase in stable order
func TypesForPhase(phase InfoPhase) []InformationType {
	switch phase {
	case PhaseFoundation:
		return []InformationType{InfoIdentity, InfoEmployment, InfoEducation}
	case PhaseRecords:
		return []InformationType{InfoCriminal, InfoCivil, InfoFinancial, InfoLicenses, InfoRegulatory, InfoSanctions}
	case PhaseIntelligence:
		return []InformationType{InfoAdverseMedia, InfoDigitalFootprint}
	default:
		return nil
	}
}

// AllInformationTypes lists every information type in phase order
func AllInformationTypes() []InformationType {
	out := make([]InformationType, 0, len(phaseOfType))
	for _, p := range []InfoPhase{PhaseFoundation, PhaseRecords, PhaseIntelligence} {
		out = append(out, TypesForPhase(p)...)
	}
	return out
}

// Address is a structured postal address claim
type Address struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Identifiers holds the identifying claims attached to a subject. Sensitive
// identifiers are stored only as hashes.
type Identifiers struct {
	FullName       string    `json:"full_name"`
	DateOfBirth    time.Time `json:"date_of_birth"`
	SSNHash        string    `json:"ssn_hash,omitempty"`
	NationalIDHash string    `json:"national_id_hash,omitempty"`
	Addresses      []Address `json:"addresses,omitempty"`
}

// Subject is an immutable screening subject; updates create new versions.
type Subject struct {
	ID           uuid.UUID    `json:"id"`
	TenantID     uuid.UUID    `json:"tenant_id"`
	Version      int          `json:"version"`
	Identifiers  Identifiers  `json:"identifiers"`
	Jurisdiction string       `json:"jurisdiction"`
	RoleCategory RoleCategory `json:"role_category"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NewSubject creates a validated first version of a subject
func NewSubject(tenantID uuid.UUID, ids Identifiers, jurisdiction string, role RoleCategory) (*Subject, error) {
	if tenantID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_TENANT", "subject requires a tenant")
	}
	if ids.FullName == "" {
		return nil, errors.NewValidationError("MISSING_NAME", "subject requires a full name")
	}
	if jurisdiction == "" {
		return nil, errors.NewValidationError("MISSING_JURISDICTION", "subject requires a jurisdiction")
	}
	return &Subject{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Version:      1,
		Identifiers:  ids,
		Jurisdiction: jurisdiction,
		RoleCategory: role,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// NextVersion returns a new subject version carrying updated identifiers.
// The receiver is not modified.
func (s *Subject) NextVersion(ids Identifiers) *Subject {
	next := *s
	next.Version = s.Version + 1
	next.Identifiers = ids
	next.CreatedAt = time.Now().UTC()
	return &next
}

// Status of a screening over its lifetime
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Request is a validated screening request
type Request struct {
	ScreeningID  uuid.UUID    `json:"screening_id"`
	Subject      *Subject     `json:"subject"`
	Tier         Tier         `json:"tier"`
	Degree       Degree       `json:"degree"`
	ConsentRef   string       `json:"consent_ref"`
	Jurisdiction string       `json:"jurisdiction"`
	Role         RoleCategory `json:"role"`
	RequestedAt  time.Time    `json:"requested_at"`
}

// NewRequest validates the tier/degree/consent preconditions and returns the
// request with a fresh screening ID.
func NewRequest(subject *Subject, tier Tier, degree Degree, consentRef string) (*Request, error) {
	if subject == nil {
		return nil, errors.NewValidationError("MISSING_SUBJECT", "screening requires a subject")
	}
	if consentRef == "" {
		return nil, errors.ErrConsentMissing
	}
	if degree == DegreeD3 && tier != TierEnhanced {
		return nil, errors.ErrTierDegreeMismatch
	}
	if degree < DegreeD1 || degree > DegreeD3 {
		return nil, errors.NewValidationError("INVALID_DEGREE", "degree must be D1, D2 or D3")
	}
	return &Request{
		ScreeningID:  uuid.New(),
		Subject:      subject,
		Tier:         tier,
		Degree:       degree,
		ConsentRef:   consentRef,
		Jurisdiction: subject.Jurisdiction,
		Role:         subject.RoleCategory,
		RequestedAt:  time.Now().UTC(),
	}, nil
}

// State is the persisted screening state, sufficient to resume after a
// process restart from the last terminal info-type boundary.
type State struct {
	ScreeningID     uuid.UUID                  `json:"screening_id"`
	TenantID        uuid.UUID                  `json:"tenant_id"`
	Status          Status                     `json:"status"`
	CurrentPhase    InfoPhase                  `json:"current_phase"`
	ProgressPercent int                        `json:"progress_percent"`
	Checkpoints     map[InformationType]string `json:"checkpoints"` // terminal completion reason per finished type
	UpdatedAt       time.Time                  `json:"updated_at"`
}
