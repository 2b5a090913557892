package risk

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/clearvet/screening-backend/internal/domain/finding"
	"github.com/clearvet/screening-backend/internal/domain/knowledge"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/google/uuid"
)

// BuildFindings derives findings from a knowledge base's facts and open
// inconsistencies. Output is deduplicated and deterministically ordered so
// identical evidence always produces identical findings.
func BuildFindings(base *knowledge.Base, role screening.RoleCategory) []finding.Finding {
	byID := make(map[uuid.UUID]finding.Finding)

	for _, f := range base.AllFacts() {
		candidate, ok := findingFromFact(f)
		if !ok {
			continue
		}
		candidate = candidate.WithRelevance(relevanceFor(role, candidate.Category)).WithDeterministicID()
		if existing, dup := byID[candidate.ID]; dup {
			existing.SupportingFacts = append(existing.SupportingFacts, f.ID)
			byID[candidate.ID] = existing
			continue
		}
		byID[candidate.ID] = candidate
	}

	for _, inc := range base.OpenInconsistencies() {
		candidate, ok := findingFromInconsistency(inc)
		if !ok {
			continue
		}
		candidate = candidate.WithRelevance(relevanceFor(role, candidate.Category)).WithDeterministicID()
		if _, dup := byID[candidate.ID]; !dup {
			byID[candidate.ID] = candidate
		}
	}

	out := make([]finding.Finding, 0, len(byID))
	for _, f := range byID {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Subcategory != out[j].Subcategory {
			return out[i].Subcategory < out[j].Subcategory
		}
		return out[i].Description < out[j].Description
	})
	return out
}

func findingFromFact(f knowledge.Fact) (finding.Finding, bool) {
	value := strings.ToLower(strings.TrimSpace(f.Value))
	var (
		category    finding.Category
		subcategory string
		description string
	)

	switch f.Field {
	case "record_status":
		switch {
		case strings.Contains(value, "felony"):
			category, subcategory = finding.CategoryCriminal, "felony_conviction"
		case strings.Contains(value, "misdemeanor"):
			category, subcategory = finding.CategoryCriminal, "misdemeanor"
		case strings.Contains(value, "judgment"):
			category, subcategory = finding.CategoryFinancial, "civil_judgment"
		default:
			return finding.Finding{}, false
		}
		description = fmt.Sprintf("%s record: %s", f.InfoType, f.Value)
	case "sanctions_status":
		if value == "" || value == "clear" || value == "none" {
			return finding.Finding{}, false
		}
		category, subcategory = finding.CategoryRegulatory, "sanctions_match"
		description = "sanctions screening match: " + f.Value
	case "regulatory_status":
		if !strings.Contains(value, "action") && !strings.Contains(value, "violation") && !strings.Contains(value, "debar") {
			return finding.Finding{}, false
		}
		category, subcategory = finding.CategoryRegulatory, "regulatory_action"
		description = "regulatory action on record: " + f.Value
	case "license_status":
		if !strings.Contains(value, "revoked") && !strings.Contains(value, "suspended") {
			return finding.Finding{}, false
		}
		category, subcategory = finding.CategoryRegulatory, "license_revoked"
		description = "professional license " + f.Value
	case "credit_status":
		if !strings.Contains(value, "bankrupt") {
			return finding.Finding{}, false
		}
		category, subcategory = finding.CategoryFinancial, "bankruptcy"
		description = "bankruptcy on record"
	case "delinquencies":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return finding.Finding{}, false
		}
		category, subcategory = finding.CategoryFinancial, "delinquency"
		description = fmt.Sprintf("%d delinquent accounts reported", n)
	case "media_mentions":
		if value == "" || value == "none" {
			return finding.Finding{}, false
		}
		category, subcategory = finding.CategoryReputation, "adverse_media"
		description = "adverse media coverage: " + f.Value
	default:
		return finding.Finding{}, false
	}

	built, err := finding.New(category, severityFor(subcategory, category), description, []uuid.UUID{f.ID})
	if err != nil {
		return finding.Finding{}, false
	}
	out := built.WithSubcategory(subcategory)
	if !f.EffectiveAt.IsZero() {
		out = out.WithDate(f.EffectiveAt)
	}
	return out, true
}

func findingFromInconsistency(inc knowledge.Inconsistency) (finding.Finding, bool) {
	var (
		category    finding.Category
		subcategory string
	)
	switch inc.Kind {
	case knowledge.InconsistencyTimeline:
		category, subcategory = finding.CategoryVerification, "timeline_impossibility"
	case knowledge.InconsistencyCredentialInflation:
		category, subcategory = finding.CategoryBehavioral, "credential_inflation"
	case knowledge.InconsistencyIdentifierMismatch:
		category, subcategory = finding.CategoryVerification, "identity_mismatch"
	case knowledge.InconsistencyContradiction:
		category, subcategory = finding.CategoryVerification, "claim_contradiction"
	default:
		return finding.Finding{}, false
	}

	built, err := finding.New(category, severityFor(subcategory, category),
		fmt.Sprintf("unresolved %s: %s", inc.Kind, inc.Detail), inc.FactIDs)
	if err != nil {
		return finding.Finding{}, false
	}
	return built.WithSubcategory(subcategory), true
}
