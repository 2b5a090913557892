package lifecycle

import (
	"context"

	screeningdomain "github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/service/screening"
	"github.com/google/uuid"
)

// Screener starts screenings for consented subjects
type Screener interface {
	Initiate(ctx context.Context, rctx values.RequestContext, req screening.InitiateRequest) (*screeningdomain.Request, error)
	Execute(ctx context.Context, rctx values.RequestContext, request *screeningdomain.Request) (*screening.Outcome, error)
}

// VigilanceManager adjusts ongoing monitoring on role changes, terminations
// and rehires.
type VigilanceManager interface {
	Reevaluate(ctx context.Context, rctx values.RequestContext, entityID uuid.UUID, role screeningdomain.RoleCategory) error
	Cancel(ctx context.Context, rctx values.RequestContext, entityID uuid.UUID) error
	Resume(ctx context.Context, rctx values.RequestContext, entityID uuid.UUID, role screeningdomain.RoleCategory) error
}

// ProcessedStore tracks handled event IDs for idempotency
type ProcessedStore interface {
	// MarkIfNew records the event ID and reports true when it was not seen
	// before. The check and record are atomic.
	MarkIfNew(ctx context.Context, tenantID, eventID uuid.UUID) (bool, error)

	// Unmark releases an event ID whose processing failed so a redelivery
	// is treated as fresh.
	Unmark(ctx context.Context, tenantID, eventID uuid.UUID) error
}

// IntakeStore holds screening intakes awaiting consent
type IntakeStore interface {
	Save(ctx context.Context, intake *Intake) error
	Get(ctx context.Context, tenantID uuid.UUID, subjectKey string) (*Intake, error)
	Delete(ctx context.Context, tenantID uuid.UUID, subjectKey string) error
}
