package risk

import (
	"github.com/clearvet/screening-backend/internal/domain/finding"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// Assessment is the consolidated risk outcome for one investigation
type Assessment struct {
	FinalScore        float64           `json:"final_score"`
	BaseScore         float64           `json:"base_score"`
	PatternAdjustment float64           `json:"pattern_adjustment"`
	AnomalyAdjustment float64           `json:"anomaly_adjustment"`
	NetworkAdjustment float64           `json:"network_adjustment"`
	Recommendation    profile.RiskLevel `json:"recommendation"`
	Findings          []finding.Finding `json:"findings"`
	Anomalies         []string          `json:"anomalies,omitempty"`
	Patterns          []string          `json:"patterns,omitempty"`
}

// severityRules is the rule table tried before any assisted classification.
// Subcategories not listed fall through to the keyword classifier's default.
var severityRules = map[string]finding.Severity{
	"felony_conviction":      finding.SeverityCritical,
	"misdemeanor":            finding.SeverityMedium,
	"sanctions_match":        finding.SeverityCritical,
	"regulatory_action":      finding.SeverityHigh,
	"license_revoked":        finding.SeverityHigh,
	"civil_judgment":         finding.SeverityMedium,
	"delinquency":            finding.SeverityMedium,
	"bankruptcy":             finding.SeverityMedium,
	"adverse_media":          finding.SeverityMedium,
	"employment_gap":         finding.SeverityLow,
	"identity_mismatch":      finding.SeverityHigh,
	"credential_inflation":   finding.SeverityHigh,
	"timeline_impossibility": finding.SeverityMedium,
	"claim_contradiction":    finding.SeverityLow,
}

// roleRelevance weights finding categories against the subject's role.
// Unlisted pairs default to 0.7.
var roleRelevance = map[screening.RoleCategory]map[finding.Category]float64{
	screening.RoleGovernment: {
		finding.CategoryCriminal:   1.0,
		finding.CategoryRegulatory: 0.9,
		finding.CategoryBehavioral: 0.9,
		finding.CategoryFinancial:  0.8,
	},
	screening.RoleFinance: {
		finding.CategoryFinancial:  1.0,
		finding.CategoryRegulatory: 1.0,
		finding.CategoryCriminal:   0.9,
	},
	screening.RoleEnergy: {
		finding.CategoryCriminal:   1.0,
		finding.CategoryRegulatory: 1.0,
		finding.CategoryNetwork:    0.9,
	},
	screening.RoleOther: {
		finding.CategoryCriminal:     0.9,
		finding.CategoryVerification: 0.8,
	},
}

func relevanceFor(role screening.RoleCategory, category finding.Category) float64 {
	if byCategory, ok := roleRelevance[role]; ok {
		if r, ok := byCategory[category]; ok {
			return r
		}
	}
	return 0.7
}

// connectionWeight scales network risk by how close the connection is
var connectionWeight = map[string]float64{
	"employer":  1.0,
	"associate": 0.8,
	"address":   0.4,
}
