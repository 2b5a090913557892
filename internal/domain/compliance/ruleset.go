package compliance

import (
	"time"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// Redaction is one applied redaction requirement
type Redaction struct {
	CheckType screening.InformationType `json:"check_type"`
	Fields    []string                  `json:"fields"`
}

// Disclosure is one applied disclosure requirement
type Disclosure struct {
	DisclosureID string `json:"disclosure_id"`
	Description  string `json:"description"`
}

// Ruleset is the evaluated compliance outcome for one (jurisdiction, role)
// tuple. When no rules load, the ruleset is empty-permissive-false: nothing
// is permitted. It never fails open.
type Ruleset struct {
	Jurisdiction string
	RoleCategory screening.RoleCategory

	permitted      map[screening.InformationType]bool
	lookbackLimits map[screening.InformationType]time.Duration
	redactions     []Redaction
	disclosures    []Disclosure
	consentScope   ConsentScope
	retentionLimit time.Duration
}

// NewRuleset returns a deny-all ruleset for the tuple
func NewRuleset(jurisdiction string, role screening.RoleCategory) *Ruleset {
	return &Ruleset{
		Jurisdiction:   jurisdiction,
		RoleCategory:   role,
		permitted:      make(map[screening.InformationType]bool),
		lookbackLimits: make(map[screening.InformationType]time.Duration),
		consentScope:   ConsentBasic,
	}
}

// IsPermitted reports whether a check type may run. Unknown or unlisted
// types are not permitted.
func (rs *Ruleset) IsPermitted(checkType screening.InformationType) bool {
	return rs.permitted[checkType]
}

// Lookback returns the lookback cap for a check type, if one applies
func (rs *Ruleset) Lookback(checkType screening.InformationType) (time.Duration, bool) {
	d, ok := rs.lookbackLimits[checkType]
	return d, ok
}

// PermittedChecks lists the permitted check types in phase order
func (rs *Ruleset) PermittedChecks() []screening.InformationType {
	var out []screening.InformationType
	for _, t := range screening.AllInformationTypes() {
		if rs.permitted[t] {
			out = append(out, t)
		}
	}
	return out
}

// Restrict returns a copy whose permitted set is intersected with the given
// types. Lookbacks, redactions and the other obligations carry over; delta
// monitoring checks use this to stay within the high-risk source subset.
func (rs *Ruleset) Restrict(types ...screening.InformationType) *Ruleset {
	out := *rs
	out.permitted = make(map[screening.InformationType]bool, len(types))
	for _, t := range types {
		if rs.permitted[t] {
			out.permitted[t] = true
		}
	}
	return &out
}

// Redactions returns the accumulated redaction requirements
func (rs *Ruleset) Redactions() []Redaction { return rs.redactions }

// RedactedFields returns the union of redacted fields for one check type.
// Equal-lookback rules with different redactions merge rather than pick-first.
func (rs *Ruleset) RedactedFields(checkType screening.InformationType) []string {
	seen := make(map[string]bool)
	var out []string
	for _, red := range rs.redactions {
		if red.CheckType != checkType {
			continue
		}
		for _, f := range red.Fields {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// Disclosures returns the accumulated disclosure requirements
func (rs *Ruleset) Disclosures() []Disclosure { return rs.disclosures }

// ConsentScope returns the escalated consent scope
func (rs *Ruleset) ConsentScope() ConsentScope { return rs.consentScope }

// RetentionLimit returns the tightest retention cap, zero when none applies
func (rs *Ruleset) RetentionLimit() time.Duration { return rs.retentionLimit }

// apply folds one rule into the ruleset. Callers pass rules sorted by
// priority ascending; folding is most-restrictive-wins.
func (rs *Ruleset) apply(r *Rule) {
	switch r.Type {
	case RuleCheckPermitted:
		for _, t := range r.Logic.CheckPermitted.CheckTypes {
			rs.permitted[t] = true
		}
	case RuleLookbackLimit:
		l := r.Logic.Lookback
		if existing, ok := rs.lookbackLimits[l.CheckType]; !ok || l.Limit < existing {
			rs.lookbackLimits[l.CheckType] = l.Limit
		}
	case RuleRedactionRequired:
		rs.redactions = append(rs.redactions, Redaction{
			CheckType: r.Logic.Redaction.CheckType,
			Fields:    r.Logic.Redaction.Fields,
		})
	case RuleConsentRequired:
		if r.Logic.Consent.Scope > rs.consentScope {
			rs.consentScope = r.Logic.Consent.Scope
		}
	case RuleDisclosureRequired:
		rs.disclosures = append(rs.disclosures, Disclosure{
			DisclosureID: r.Logic.Disclosure.DisclosureID,
			Description:  r.Logic.Disclosure.Description,
		})
	case RuleRetentionLimit:
		l := r.Logic.Retention.Limit
		if rs.retentionLimit == 0 || l < rs.retentionLimit {
			rs.retentionLimit = l
		}
	}
}
