package entityres

import (
	"context"

	"github.com/clearvet/screening-backend/internal/domain/entity"
	"github.com/google/uuid"
)

// Store persists entities and their merge/split operation records. All
// lookups are tenant scoped.
type Store interface {
	// Get loads an entity by ID, returning a not-found error when absent
	Get(ctx context.Context, tenantID, entityID uuid.UUID) (*entity.Entity, error)

	// FindByIdentifierHash looks up an entity by a canonical identifier hash
	// (SSN or national ID). A miss returns (nil, nil).
	FindByIdentifierHash(ctx context.Context, tenantID uuid.UUID, hash string) (*entity.Entity, error)

	// ListByTenant returns every entity of a tenant for fuzzy candidate scoring
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*entity.Entity, error)

	Save(ctx context.Context, e *entity.Entity) error

	SaveOperation(ctx context.Context, op *entity.Operation) error
	GetOperation(ctx context.Context, tenantID, operationID uuid.UUID) (*entity.Operation, error)
}
