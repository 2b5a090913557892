package planner

import (
	"sort"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// DataSourceResolver maps a check type onto the prioritized provider list
// available for a tier and jurisdiction.
type DataSourceResolver interface {
	Resolve(checkType screening.InformationType, tier screening.Tier, jurisdiction string) []string
}

// StaticResolver resolves from a fixed data source registry
type StaticResolver struct {
	sources []DataSource
}

// NewStaticResolver builds a resolver over the registered sources
func NewStaticResolver(sources []DataSource) *StaticResolver {
	return &StaticResolver{sources: sources}
}

// Resolve returns matching provider IDs ordered by ascending priority
func (r *StaticResolver) Resolve(checkType screening.InformationType, tier screening.Tier, jurisdiction string) []string {
	var matched []DataSource
	for _, s := range r.sources {
		if s.covers(checkType, tier, jurisdiction) {
			matched = append(matched, s)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority < matched[j].Priority
	})

	out := make([]string, 0, len(matched))
	for _, s := range matched {
		out = append(out, s.ProviderID)
	}
	return out
}
