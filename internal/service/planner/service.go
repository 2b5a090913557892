// Package planner turns an investigation's state into concrete provider
// queries: initial queries per information type, then gap-targeted
// refinement queries between iterations.
package planner

import (
	"sort"
	"strings"

	"github.com/clearvet/screening-backend/internal/domain/compliance"
	"github.com/clearvet/screening-backend/internal/domain/knowledge"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"go.uber.org/zap"
)

// Planner yields search queries for one information type at a time
type Planner struct {
	resolver DataSourceResolver
	logger   *zap.Logger
}

// New creates a planner over a data source resolver
func New(resolver DataSourceResolver, logger *zap.Logger) *Planner {
	return &Planner{resolver: resolver, logger: logger}
}

// Plan yields the initial queries for one information type. An unpermitted
// type yields nothing; the caller marks it blocked. Queries with no covering
// provider are dropped.
func (p *Planner) Plan(
	infoType screening.InformationType,
	subject *screening.Subject,
	rules *compliance.Ruleset,
	tier screening.Tier,
) []SearchQuery {
	if !rules.IsPermitted(infoType) {
		return nil
	}

	providers := p.resolver.Resolve(infoType, tier, subject.Jurisdiction)
	if len(providers) == 0 {
		p.logger.Warn("no data source covers check type",
			zap.String("check_type", string(infoType)),
			zap.String("jurisdiction", subject.Jurisdiction),
			zap.String("tier", string(tier)))
		return nil
	}

	return []SearchQuery{{
		CheckType: infoType,
		Params:    subjectParams(infoType, subject),
		Providers: providers,
		Purpose:   PurposeInitial,
	}}
}

// Refine generates follow-up queries from the assessment's gaps. Missing
// fundamentals are planned before corroboration gaps; queries already
// executed are deduplicated by (check type, normalized params).
func (p *Planner) Refine(
	snap knowledge.Snapshot,
	subject *screening.Subject,
	rules *compliance.Ruleset,
	tier screening.Tier,
	executed *ExecutedSet,
) []SearchQuery {
	if !rules.IsPermitted(snap.InfoType) || len(snap.Gaps) == 0 {
		return nil
	}
	providers := p.resolver.Resolve(snap.InfoType, tier, subject.Jurisdiction)
	if len(providers) == 0 {
		return nil
	}

	gaps := append([]knowledge.Gap(nil), snap.Gaps...)
	sort.SliceStable(gaps, func(i, j int) bool {
		return gapRank(gaps[i].Kind) < gapRank(gaps[j].Kind)
	})

	var queries []SearchQuery
	for _, gap := range gaps {
		params := subjectParams(snap.InfoType, subject)
		params["target_field"] = gap.Field
		if executed != nil && executed.Seen(string(snap.InfoType), params) {
			continue
		}
		purpose := PurposeGapFill
		if gap.Kind == knowledge.GapCorroboration {
			purpose = PurposeCorroboration
		}
		queries = append(queries, SearchQuery{
			CheckType: snap.InfoType,
			Params:    params,
			Providers: providers,
			Purpose:   purpose,
		})
	}
	return queries
}

func gapRank(k knowledge.GapKind) int {
	if k == knowledge.GapMissingFundamental {
		return 0
	}
	return 1
}

// subjectParams builds the provider query parameters for one check type.
// Sensitive identifiers are passed only as hashes and only where the check
// needs them.
func subjectParams(infoType screening.InformationType, subject *screening.Subject) map[string]string {
	ids := subject.Identifiers
	params := map[string]string{
		"name": ids.FullName,
	}
	if !ids.DateOfBirth.IsZero() {
		params["dob"] = ids.DateOfBirth.Format("2006-01-02")
	}
	if len(ids.Addresses) > 0 {
		addr := ids.Addresses[0]
		params["address"] = strings.TrimSpace(strings.Join([]string{addr.Line1, addr.City, addr.Region, addr.Country}, " "))
	}
	if infoType == screening.InfoIdentity && ids.SSNHash != "" {
		params["ssn_hash"] = ids.SSNHash
	}
	return params
}

// ExecutedSet tracks queries already issued within one SAR loop so the
// refiner never repeats them. Queries are keyed by check type and normalized
// params only: a query served by a fallback provider is still the same query.
type ExecutedSet struct {
	seen map[string]bool
}

// NewExecutedSet creates an empty dedup set
func NewExecutedSet() *ExecutedSet {
	return &ExecutedSet{seen: make(map[string]bool)}
}

// Record marks a query executed and reports whether it was new
func (s *ExecutedSet) Record(checkType string, params map[string]string) bool {
	key := s.key(checkType, params)
	if s.seen[key] {
		return false
	}
	s.seen[key] = true
	return true
}

// Seen reports whether an identical query was already executed
func (s *ExecutedSet) Seen(checkType string, params map[string]string) bool {
	return s.seen[s.key(checkType, params)]
}

func (s *ExecutedSet) key(checkType string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(checkType)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(values.NormalizeQueryInput(params[k]))
	}
	return b.String()
}
