package planner

import (
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// QueryPurpose distinguishes planned first-pass queries from refinement
type QueryPurpose string

const (
	PurposeInitial       QueryPurpose = "initial"
	PurposeGapFill       QueryPurpose = "gap_fill"
	PurposeCorroboration QueryPurpose = "corroboration"
)

// SearchQuery is one planned provider query, bound to a prioritized provider
// list by the data source resolver. The gateway walks the list on failure.
type SearchQuery struct {
	CheckType screening.InformationType
	Params    map[string]string
	Providers []string
	Purpose   QueryPurpose
}

// DataSource describes one provider's coverage. Sources with an empty tier or
// jurisdiction list cover all tiers or jurisdictions.
type DataSource struct {
	ProviderID    string
	CheckTypes    []screening.InformationType
	Tiers         []screening.Tier
	Jurisdictions []string
	Priority      int // lower tries first
}

func (s DataSource) covers(checkType screening.InformationType, tier screening.Tier, jurisdiction string) bool {
	found := false
	for _, t := range s.CheckTypes {
		if t == checkType {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if len(s.Tiers) > 0 {
		found = false
		for _, t := range s.Tiers {
			if t == tier {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(s.Jurisdictions) > 0 {
		found = false
		for _, j := range s.Jurisdictions {
			if j == jurisdiction {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
