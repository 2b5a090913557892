package screening

import (
	"context"

	"github.com/clearvet/screening-backend/internal/domain/compliance"
	"github.com/clearvet/screening-backend/internal/domain/knowledge"
	monitordomain "github.com/clearvet/screening-backend/internal/domain/monitoring"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	screeningdomain "github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/service/entityres"
	"github.com/clearvet/screening-backend/internal/service/investigation"
	"github.com/clearvet/screening-backend/internal/service/risk"
	"github.com/google/uuid"
)

// RulesetEvaluator folds jurisdiction rules into a per-screening ruleset
type RulesetEvaluator interface {
	Evaluate(ctx context.Context, jurisdiction string, role screeningdomain.RoleCategory) (*compliance.Ruleset, error)
}

// EntityResolver maps the subject claim onto a canonical entity
type EntityResolver interface {
	Resolve(ctx context.Context, rctx values.RequestContext, subject *screeningdomain.Subject) (*entityres.Match, error)
}

// Investigator runs the degree-ordered investigation for a subject
type Investigator interface {
	Run(ctx context.Context, rctx values.RequestContext, subject *screeningdomain.Subject,
		tier screeningdomain.Tier, degree screeningdomain.Degree,
		rules *compliance.Ruleset, base *knowledge.Base,
		opts ...investigation.RunOption) (*investigation.Result, error)
}

// RiskAssessor consolidates an investigation into a scored assessment
type RiskAssessor interface {
	Assess(ctx context.Context, rctx values.RequestContext, role screeningdomain.RoleCategory,
		inv *investigation.Result) (*risk.Assessment, error)
}

// ProfileStore persists versioned profiles. Versions are strictly monotonic
// per entity with no gaps; the service serializes writers per entity.
type ProfileStore interface {
	// LatestVersion returns the highest stored version for the entity, or
	// zero when no profile exists yet.
	LatestVersion(ctx context.Context, tenantID, entityID uuid.UUID) (int, error)
	Save(ctx context.Context, p *profile.Profile) error
}

// StateStore persists checkpointed screening state
type StateStore interface {
	Get(ctx context.Context, tenantID, screeningID uuid.UUID) (*screeningdomain.State, error)
	Save(ctx context.Context, state *screeningdomain.State) error
}

// Enroller starts ongoing monitoring from a completed baseline profile
type Enroller interface {
	Enroll(ctx context.Context, rctx values.RequestContext, role screeningdomain.RoleCategory,
		baseline *profile.Profile) (*monitordomain.Config, error)
}
