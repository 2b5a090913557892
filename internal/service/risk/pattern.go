package risk

import (
	"sort"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/finding"
)

const (
	escalationAdjustment  = 10.0
	frequencyAdjustment   = 5.0
	crossDomainAdjustment = 5.0

	frequencyFloor   = 5
	crossDomainFloor = 3
)

// recognizePatterns scores pattern adjustments over the finding set:
// severity escalation over time, frequency anomalies and cross-domain
// clustering.
func recognizePatterns(findings []finding.Finding) (float64, []string) {
	var (
		adjustment float64
		labels     []string
	)

	if hasEscalation(findings) {
		adjustment += escalationAdjustment
		labels = append(labels, "escalation")
	}

	recent := 0
	cutoff := time.Now().Add(-365 * 24 * time.Hour)
	for _, f := range findings {
		if f.Date.After(cutoff) {
			recent++
		}
	}
	if recent >= frequencyFloor {
		adjustment += frequencyAdjustment
		labels = append(labels, "frequency_anomaly")
	}

	categories := make(map[finding.Category]bool)
	for _, f := range findings {
		categories[f.Category] = true
	}
	if len(categories) >= crossDomainFloor {
		adjustment += crossDomainAdjustment
		labels = append(labels, "cross_domain_clustering")
	}
	return adjustment, labels
}

// hasEscalation reports whether dated findings trend upward in severity:
// at least three findings whose severity never decreases over time and
// strictly increases overall.
func hasEscalation(findings []finding.Finding) bool {
	var dated []finding.Finding
	for _, f := range findings {
		if !f.Date.IsZero() {
			dated = append(dated, f)
		}
	}
	if len(dated) < 3 {
		return false
	}
	sort.SliceStable(dated, func(i, j int) bool { return dated[i].Date.Before(dated[j].Date) })

	for i := 1; i < len(dated); i++ {
		if dated[i].Severity < dated[i-1].Severity {
			return false
		}
	}
	return dated[len(dated)-1].Severity > dated[0].Severity
}
