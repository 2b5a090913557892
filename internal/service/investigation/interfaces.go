package investigation

import (
	"context"

	"github.com/clearvet/screening-backend/internal/domain/compliance"
	"github.com/clearvet/screening-backend/internal/domain/knowledge"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/infrastructure/gateway"
	"github.com/clearvet/screening-backend/internal/service/assessment"
	"github.com/clearvet/screening-backend/internal/service/planner"
)

// QueryPlanner yields initial and refinement queries for one info type
type QueryPlanner interface {
	Plan(infoType screening.InformationType, subject *screening.Subject, rules *compliance.Ruleset, tier screening.Tier) []planner.SearchQuery
	Refine(snap knowledge.Snapshot, subject *screening.Subject, rules *compliance.Ruleset, tier screening.Tier, executed *planner.ExecutedSet) []planner.SearchQuery
}

// ResultAssessor ingests provider results and scores the accumulated state
type ResultAssessor interface {
	Ingest(base *knowledge.Base, infoType screening.InformationType, results []*gateway.Result) (int, error)
	Assess(base *knowledge.Base, infoType screening.InformationType, newFacts, queriesExecuted int) assessment.Assessment
}

// ProviderCaller executes a query against a prioritized provider list
type ProviderCaller interface {
	CallWithFallback(ctx context.Context, rctx values.RequestContext, tier screening.Tier, rules *compliance.Ruleset, providerIDs []string, req gateway.Request) (*gateway.Result, error)
}
