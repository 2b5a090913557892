package entity

import (
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/google/uuid"
)

// Entity is the resolved canonical representation of a real person or
// organization. Multiple subjects may reference the same entity; a subject
// references exactly one entity at a time.
type Entity struct {
	ID          uuid.UUID             `json:"id"`
	TenantID    uuid.UUID             `json:"tenant_id"`
	Canonical   screening.Identifiers `json:"canonical"`
	SubjectIDs  []uuid.UUID           `json:"subject_ids"`
	ScreeningIDs []uuid.UUID          `json:"screening_ids"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// New creates an entity seeded from one subject's identifiers
func New(tenantID uuid.UUID, subjectID uuid.UUID, ids screening.Identifiers) (*Entity, error) {
	if tenantID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_TENANT", "entity requires a tenant")
	}
	now := time.Now().UTC()
	return &Entity{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Canonical:  ids,
		SubjectIDs: []uuid.UUID{subjectID},
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// AttachSubject links another subject that resolved to this entity
func (e *Entity) AttachSubject(subjectID uuid.UUID) {
	for _, id := range e.SubjectIDs {
		if id == subjectID {
			return
		}
	}
	e.SubjectIDs = append(e.SubjectIDs, subjectID)
	e.UpdatedAt = time.Now().UTC()
}

// AttachScreening links a screening executed against this entity
func (e *Entity) AttachScreening(screeningID uuid.UUID) {
	for _, id := range e.ScreeningIDs {
		if id == screeningID {
			return
		}
	}
	e.ScreeningIDs = append(e.ScreeningIDs, screeningID)
	e.UpdatedAt = time.Now().UTC()
}

// OperationType labels a recorded merge or split
type OperationType string

const (
	OperationMerge OperationType = "merge"
	OperationSplit OperationType = "split"
)

// Operation is the audit record of a merge or split. Merges are reversible
// until confirmed.
type Operation struct {
	ID             uuid.UUID     `json:"id"`
	Type           OperationType `json:"type"`
	SourceEntityID uuid.UUID     `json:"source_entity_id"`
	TargetEntityID uuid.UUID     `json:"target_entity_id"`
	MovedScreenings []uuid.UUID  `json:"moved_screenings"`
	Confirmed      bool          `json:"confirmed"`
	Reversed       bool          `json:"reversed"`
	PerformedBy    string        `json:"performed_by"`
	PerformedAt    time.Time     `json:"performed_at"`
}

// NewOperation records a merge or split between two entities
func NewOperation(opType OperationType, source, target uuid.UUID, moved []uuid.UUID, performedBy string) (*Operation, error) {
	if source == uuid.Nil || target == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ENTITY", "operation requires source and target entities")
	}
	if source == target {
		return nil, errors.NewValidationError("SELF_OPERATION", "source and target must differ")
	}
	return &Operation{
		ID:              uuid.New(),
		Type:            opType,
		SourceEntityID:  source,
		TargetEntityID:  target,
		MovedScreenings: moved,
		PerformedBy:     performedBy,
		PerformedAt:     time.Now().UTC(),
	}, nil
}

// Confirm makes the operation permanent
func (o *Operation) Confirm() {
	o.Confirmed = true
}

// Reverse undoes an unconfirmed merge
func (o *Operation) Reverse() error {
	if o.Confirmed {
		return errors.NewConflictError("confirmed operations cannot be reversed")
	}
	if o.Reversed {
		return errors.NewConflictError("operation already reversed")
	}
	o.Reversed = true
	return nil
}
