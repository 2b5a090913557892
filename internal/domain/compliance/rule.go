package compliance

import (
	"encoding/json"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/google/uuid"
)

// RuleType discriminates the rule_logic payload
type RuleType string

const (
	RuleCheckPermitted     RuleType = "check_permitted"
	RuleLookbackLimit      RuleType = "lookback_limit"
	RuleRedactionRequired  RuleType = "redaction_required"
	RuleConsentRequired    RuleType = "consent_required"
	RuleDisclosureRequired RuleType = "disclosure_required"
	RuleRetentionLimit     RuleType = "retention_limit"
)

// ConsentScope orders consent requirements: basic < enhanced < premium.
// Folding escalates, never relaxes.
type ConsentScope int

const (
	ConsentBasic ConsentScope = iota
	ConsentEnhanced
	ConsentPremium
)

func (s ConsentScope) String() string {
	switch s {
	case ConsentBasic:
		return "basic"
	case ConsentEnhanced:
		return "enhanced"
	case ConsentPremium:
		return "premium"
	default:
		return "unknown"
	}
}

// ParseConsentScope maps the wire form onto the ordering
func ParseConsentScope(s string) (ConsentScope, error) {
	switch s {
	case "basic":
		return ConsentBasic, nil
	case "enhanced":
		return ConsentEnhanced, nil
	case "premium":
		return ConsentPremium, nil
	default:
		return ConsentBasic, errors.NewValidationError("INVALID_CONSENT_SCOPE", "unknown consent scope: "+s)
	}
}

// RuleLogic is the tagged payload variant carried by a rule. Exactly one
// variant is populated, selected by the rule type; payloads are never kept
// as free-form maps after parse.
type RuleLogic struct {
	CheckPermitted *CheckPermittedLogic `json:"check_permitted,omitempty"`
	Lookback       *LookbackLogic       `json:"lookback,omitempty"`
	Redaction      *RedactionLogic      `json:"redaction,omitempty"`
	Consent        *ConsentLogic        `json:"consent,omitempty"`
	Disclosure     *DisclosureLogic     `json:"disclosure,omitempty"`
	Retention      *RetentionLogic      `json:"retention,omitempty"`
}

// CheckPermittedLogic grants one or more check types
type CheckPermittedLogic struct {
	CheckTypes []screening.InformationType `json:"check_types"`
}

// LookbackLogic caps how far back a check may look
type LookbackLogic struct {
	CheckType screening.InformationType `json:"check_type"`
	Limit     time.Duration             `json:"limit"`
}

// RedactionLogic names fields that must be redacted from results
type RedactionLogic struct {
	CheckType screening.InformationType `json:"check_type"`
	Fields    []string                  `json:"fields"`
}

// ConsentLogic escalates the required consent scope
type ConsentLogic struct {
	Scope ConsentScope `json:"scope"`
}

// DisclosureLogic requires a disclosure text before screening
type DisclosureLogic struct {
	DisclosureID string `json:"disclosure_id"`
	Description  string `json:"description"`
}

// RetentionLogic caps how long results may be retained
type RetentionLogic struct {
	Limit time.Duration `json:"limit"`
}

// Rule is one jurisdiction (+optional role) compliance rule.
// Most-restrictive wins when rules conflict.
type Rule struct {
	ID           uuid.UUID               `json:"id"`
	Jurisdiction string                  `json:"jurisdiction"`
	RoleCategory *screening.RoleCategory `json:"role_category,omitempty"` // nil applies to all roles
	Type         RuleType                `json:"rule_type"`
	Logic        RuleLogic               `json:"rule_logic"`
	Active       bool                    `json:"active"`
	Priority     int                     `json:"priority"`
	CreatedAt    time.Time               `json:"created_at"`
}

// Validate checks the rule carries exactly the logic variant its type names
func (r *Rule) Validate() error {
	if r.Jurisdiction == "" {
		return errors.NewValidationError("MISSING_JURISDICTION", "rule requires a jurisdiction")
	}
	switch r.Type {
	case RuleCheckPermitted:
		if r.Logic.CheckPermitted == nil || len(r.Logic.CheckPermitted.CheckTypes) == 0 {
			return errors.NewValidationError("MISSING_LOGIC", "check_permitted rule requires check types")
		}
		for _, t := range r.Logic.CheckPermitted.CheckTypes {
			if !t.IsValid() {
				return errors.NewValidationError("INVALID_CHECK_TYPE", "unknown check type: "+string(t))
			}
		}
	case RuleLookbackLimit:
		if r.Logic.Lookback == nil || r.Logic.Lookback.Limit <= 0 {
			return errors.NewValidationError("MISSING_LOGIC", "lookback rule requires a positive limit")
		}
		if !r.Logic.Lookback.CheckType.IsValid() {
			return errors.NewValidationError("INVALID_CHECK_TYPE", "lookback rule names an unknown check type")
		}
	case RuleRedactionRequired:
		if r.Logic.Redaction == nil || len(r.Logic.Redaction.Fields) == 0 {
			return errors.NewValidationError("MISSING_LOGIC", "redaction rule requires field names")
		}
	case RuleConsentRequired:
		if r.Logic.Consent == nil {
			return errors.NewValidationError("MISSING_LOGIC", "consent rule requires a scope")
		}
	case RuleDisclosureRequired:
		if r.Logic.Disclosure == nil || r.Logic.Disclosure.DisclosureID == "" {
			return errors.NewValidationError("MISSING_LOGIC", "disclosure rule requires a disclosure ID")
		}
	case RuleRetentionLimit:
		if r.Logic.Retention == nil || r.Logic.Retention.Limit <= 0 {
			return errors.NewValidationError("MISSING_LOGIC", "retention rule requires a positive limit")
		}
	default:
		return errors.NewValidationError("INVALID_RULE_TYPE", "unknown rule type: "+string(r.Type))
	}
	return nil
}

// ruleWire is the persisted JSON form: rule_logic arrives as a raw payload
// decoded into the variant selected by rule_type.
type ruleWire struct {
	ID           uuid.UUID               `json:"id"`
	Jurisdiction string                  `json:"jurisdiction"`
	RoleCategory *screening.RoleCategory `json:"role_category,omitempty"`
	Type         RuleType                `json:"rule_type"`
	Logic        json.RawMessage         `json:"rule_logic"`
	Active       bool                    `json:"active"`
	Priority     int                     `json:"priority"`
	CreatedAt    time.Time               `json:"created_at"`
}

// UnmarshalJSON decodes rule_logic into the variant keyed by rule_type
func (r *Rule) UnmarshalJSON(data []byte) error {
	var w ruleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.NewValidationError("MALFORMED_RULE", "rule JSON could not be decoded").WithCause(err)
	}
	r.ID = w.ID
	r.Jurisdiction = w.Jurisdiction
	r.RoleCategory = w.RoleCategory
	r.Type = w.Type
	r.Active = w.Active
	r.Priority = w.Priority
	r.CreatedAt = w.CreatedAt

	if len(w.Logic) == 0 {
		return errors.NewValidationError("MISSING_LOGIC", "rule carries no logic payload")
	}
	var decodeErr error
	switch w.Type {
	case RuleCheckPermitted:
		var l CheckPermittedLogic
		decodeErr = json.Unmarshal(w.Logic, &l)
		r.Logic = RuleLogic{CheckPermitted: &l}
	case RuleLookbackLimit:
		var l LookbackLogic
		decodeErr = json.Unmarshal(w.Logic, &l)
		r.Logic = RuleLogic{Lookback: &l}
	case RuleRedactionRequired:
		var l RedactionLogic
		decodeErr = json.Unmarshal(w.Logic, &l)
		r.Logic = RuleLogic{Redaction: &l}
	case RuleConsentRequired:
		var l ConsentLogic
		decodeErr = json.Unmarshal(w.Logic, &l)
		r.Logic = RuleLogic{Consent: &l}
	case RuleDisclosureRequired:
		var l DisclosureLogic
		decodeErr = json.Unmarshal(w.Logic, &l)
		r.Logic = RuleLogic{Disclosure: &l}
	case RuleRetentionLimit:
		var l RetentionLogic
		decodeErr = json.Unmarshal(w.Logic, &l)
		r.Logic = RuleLogic{Retention: &l}
	default:
		return errors.NewValidationError("INVALID_RULE_TYPE", "unknown rule type: "+string(w.Type))
	}
	if decodeErr != nil {
		return errors.NewValidationError("MALFORMED_LOGIC", "rule logic payload could not be decoded").WithCause(decodeErr)
	}
	return r.Validate()
}
