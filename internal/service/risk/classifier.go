package risk

import (
	"strings"

	"github.com/clearvet/screening-backend/internal/domain/finding"
)

// categoryKeywords drives rule-based classification and the coverage score
// used to validate externally assigned categories.
var categoryKeywords = map[finding.Category][]string{
	finding.CategoryCriminal:   {"conviction", "felony", "misdemeanor", "arrest", "offense", "charge"},
	finding.CategoryFinancial:  {"bankrupt", "delinquen", "debt", "credit", "lien", "default"},
	finding.CategoryRegulatory: {"sanction", "watchlist", "regulator", "license", "violation", "debar"},
	finding.CategoryReputation: {"media", "news", "reputation", "scandal", "allegation"},
	finding.CategoryBehavioral: {"inflation", "fabricat", "decepti", "misrepresent"},
	finding.CategoryNetwork:    {"associate", "affiliat", "network", "connection"},
}

// Classify assigns a category by keyword match, falling back to
// verification when nothing matches.
func Classify(text string) finding.Category {
	lowered := strings.ToLower(text)
	best := finding.CategoryVerification
	bestHits := 0
	for _, category := range []finding.Category{
		finding.CategoryCriminal, finding.CategoryFinancial, finding.CategoryRegulatory,
		finding.CategoryReputation, finding.CategoryBehavioral, finding.CategoryNetwork,
	} {
		hits := 0
		for _, kw := range categoryKeywords[category] {
			if strings.Contains(lowered, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = category
			bestHits = hits
		}
	}
	return best
}

// CoverageScore measures how well a proposed category's keywords cover the
// text, in [0,1]. Used to validate assisted classifications before trusting
// them over the rule table.
func CoverageScore(category finding.Category, text string) float64 {
	keywords := categoryKeywords[category]
	if len(keywords) == 0 {
		return 0
	}
	lowered := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// severityFor resolves severity from the rule table first; unmatched
// subcategories get a conservative default by category.
func severityFor(subcategory string, category finding.Category) finding.Severity {
	if sev, ok := severityRules[subcategory]; ok {
		return sev
	}
	switch category {
	case finding.CategoryCriminal, finding.CategoryRegulatory:
		return finding.SeverityHigh
	case finding.CategoryVerification:
		return finding.SeverityLow
	default:
		return finding.SeverityMedium
	}
}
