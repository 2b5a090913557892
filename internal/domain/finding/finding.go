package finding

import (
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/google/uuid"
)

// Category classifies what a finding is about
type Category string

const (
	CategoryCriminal     Category = "criminal"
	CategoryFinancial    Category = "financial"
	CategoryRegulatory   Category = "regulatory"
	CategoryReputation   Category = "reputation"
	CategoryVerification Category = "verification"
	CategoryBehavioral   Category = "behavioral"
	CategoryNetwork      Category = "network"
)

// IsValid reports whether the category is part of the closed set
func (c Category) IsValid() bool {
	switch c {
	case CategoryCriminal, CategoryFinancial, CategoryRegulatory,
		CategoryReputation, CategoryVerification, CategoryBehavioral, CategoryNetwork:
		return true
	}
	return false
}

// Severity orders findings from low to critical
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Weight maps severity onto the numeric scale used by risk aggregation:
// LOW=10, MEDIUM=25, HIGH=50, CRITICAL=100.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 10
	case SeverityMedium:
		return 25
	case SeverityHigh:
		return 50
	case SeverityCritical:
		return 100
	default:
		return 0
	}
}

// Finding is an immutable risk-relevant observation backed by facts
type Finding struct {
	ID              uuid.UUID   `json:"id"`
	Category        Category    `json:"category"`
	Subcategory     string      `json:"subcategory,omitempty"`
	Severity        Severity    `json:"severity"`
	Date            time.Time   `json:"date"`
	Description     string      `json:"description"`
	SupportingFacts []uuid.UUID `json:"supporting_facts"`
	RelevanceToRole float64     `json:"relevance_to_role"`
}

// New creates a validated finding. Every finding must carry a category, a
// severity and at least one supporting fact.
func New(category Category, severity Severity, description string, supportingFacts []uuid.UUID) (*Finding, error) {
	if !category.IsValid() {
		return nil, errors.NewValidationError("INVALID_CATEGORY", "finding category is not recognized")
	}
	if severity < SeverityLow || severity > SeverityCritical {
		return nil, errors.NewValidationError("INVALID_SEVERITY", "finding severity out of range")
	}
	if description == "" {
		return nil, errors.NewValidationError("MISSING_DESCRIPTION", "finding requires a description")
	}
	if len(supportingFacts) == 0 {
		return nil, errors.NewValidationError("NO_SUPPORTING_FACTS", "finding requires at least one supporting fact")
	}
	return &Finding{
		ID:              uuid.New(),
		Category:        category,
		Severity:        severity,
		Date:            time.Now().UTC(),
		Description:     description,
		SupportingFacts: supportingFacts,
		RelevanceToRole: 1.0,
	}, nil
}

var idNamespace = uuid.MustParse("9c1b5e7a-2d4f-4a8b-b6c3-e1f0a9d8c7b6")

// WithDeterministicID returns a copy whose ID derives from the finding's
// semantic identity. Identical evidence yields identical IDs across runs,
// which profile deltas rely on.
func (f Finding) WithDeterministicID() Finding {
	f.ID = uuid.NewSHA1(idNamespace, []byte(string(f.Category)+"|"+f.Subcategory+"|"+f.Description))
	return f
}

// WithRelevance returns a copy with role relevance clamped to [0,1]
func (f Finding) WithRelevance(relevance float64) Finding {
	if relevance < 0 {
		relevance = 0
	}
	if relevance > 1 {
		relevance = 1
	}
	f.RelevanceToRole = relevance
	return f
}

// WithDate returns a copy dated at the underlying event time
func (f Finding) WithDate(date time.Time) Finding {
	f.Date = date
	return f
}

// WithSubcategory returns a copy with a finer-grained label
func (f Finding) WithSubcategory(sub string) Finding {
	f.Subcategory = sub
	return f
}
