package database

import (
	"context"
	"encoding/json"
	goerrors "errors"

	"github.com/clearvet/screening-backend/internal/domain/entity"
	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntityRepository persists resolved entities and their merge/split
// operation records; implements the resolver's Store.
type EntityRepository struct {
	db *pgxpool.Pool
}

// NewEntityRepository creates the entity repository
func NewEntityRepository(db *pgxpool.Pool) *EntityRepository {
	return &EntityRepository{db: db}
}

const selectEntities = `
	SELECT id, tenant_id, canonical, subject_ids, screening_ids, created_at, updated_at
	FROM entities`

// Get loads an entity by ID
func (r *EntityRepository) Get(ctx context.Context, tenantID, entityID uuid.UUID) (*entity.Entity, error) {
	const query = selectEntities + `
		WHERE tenant_id = $1 AND id = $2`

	e, err := scanEntity(r.db.QueryRow(ctx, query, tenantID, entityID))
	if goerrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFoundError("entity")
	}
	return e, err
}

// FindByIdentifierHash looks up an entity whose canonical SSN or national ID
// hash matches. A miss returns (nil, nil).
func (r *EntityRepository) FindByIdentifierHash(ctx context.Context, tenantID uuid.UUID, hash string) (*entity.Entity, error) {
	const query = selectEntities + `
		WHERE tenant_id = $1
		  AND (canonical->>'ssn_hash' = $2 OR canonical->>'national_id_hash' = $2)
		ORDER BY updated_at DESC
		LIMIT 1`

	e, err := scanEntity(r.db.QueryRow(ctx, query, tenantID, hash))
	if goerrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// ListByTenant returns every entity of a tenant for fuzzy candidate scoring
func (r *EntityRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*entity.Entity, error) {
	const query = selectEntities + `
		WHERE tenant_id = $1`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, errors.NewSystemError("failed to query entities").WithCause(err)
	}
	defer rows.Close()

	var entities []*entity.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSystemError("failed to iterate entities").WithCause(err)
	}
	return entities, nil
}

// Save upserts the entity
func (r *EntityRepository) Save(ctx context.Context, e *entity.Entity) error {
	canonical, err := json.Marshal(e.Canonical)
	if err != nil {
		return errors.NewSystemError("failed to marshal canonical identifiers").WithCause(err)
	}
	subjects, err := json.Marshal(e.SubjectIDs)
	if err != nil {
		return errors.NewSystemError("failed to marshal subject IDs").WithCause(err)
	}
	screenings, err := json.Marshal(e.ScreeningIDs)
	if err != nil {
		return errors.NewSystemError("failed to marshal screening IDs").WithCause(err)
	}

	const query = `
		INSERT INTO entities (
			id, tenant_id, canonical, subject_ids, screening_ids, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			canonical = EXCLUDED.canonical,
			subject_ids = EXCLUDED.subject_ids,
			screening_ids = EXCLUDED.screening_ids,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		e.ID, e.TenantID, canonical, subjects, screenings, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return errors.NewSystemError("failed to save entity").WithCause(err)
	}
	return nil
}

// SaveOperation upserts a merge/split record; the tenant is derived from the
// source entity.
func (r *EntityRepository) SaveOperation(ctx context.Context, op *entity.Operation) error {
	moved, err := json.Marshal(op.MovedScreenings)
	if err != nil {
		return errors.NewSystemError("failed to marshal moved screenings").WithCause(err)
	}

	const query = `
		INSERT INTO entity_operations (
			id, tenant_id, type, source_entity_id, target_entity_id,
			moved_screenings, confirmed, reversed, performed_by, performed_at
		)
		SELECT $1, e.tenant_id, $2, $3, $4, $5, $6, $7, $8, $9
		FROM entities e WHERE e.id = $3
		ON CONFLICT (id) DO UPDATE SET
			confirmed = EXCLUDED.confirmed,
			reversed = EXCLUDED.reversed`

	_, err = r.db.Exec(ctx, query,
		op.ID, string(op.Type), op.SourceEntityID, op.TargetEntityID,
		moved, op.Confirmed, op.Reversed, op.PerformedBy, op.PerformedAt,
	)
	if err != nil {
		return errors.NewSystemError("failed to save entity operation").WithCause(err)
	}
	return nil
}

// GetOperation loads a recorded merge/split by ID
func (r *EntityRepository) GetOperation(ctx context.Context, tenantID, operationID uuid.UUID) (*entity.Operation, error) {
	const query = `
		SELECT id, type, source_entity_id, target_entity_id, moved_screenings,
		       confirmed, reversed, performed_by, performed_at
		FROM entity_operations
		WHERE tenant_id = $1 AND id = $2`

	var (
		op        entity.Operation
		opType    string
		movedJSON []byte
	)
	err := r.db.QueryRow(ctx, query, tenantID, operationID).Scan(
		&op.ID, &opType, &op.SourceEntityID, &op.TargetEntityID, &movedJSON,
		&op.Confirmed, &op.Reversed, &op.PerformedBy, &op.PerformedAt,
	)
	if goerrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFoundError("entity operation")
	}
	if err != nil {
		return nil, errors.NewSystemError("failed to load entity operation").WithCause(err)
	}
	op.Type = entity.OperationType(opType)
	if len(movedJSON) > 0 {
		if err := json.Unmarshal(movedJSON, &op.MovedScreenings); err != nil {
			return nil, errors.NewSystemError("failed to decode moved screenings").WithCause(err)
		}
	}
	return &op, nil
}

func scanEntity(row rowScanner) (*entity.Entity, error) {
	var (
		e              entity.Entity
		canonicalJSON  []byte
		subjectsJSON   []byte
		screeningsJSON []byte
	)
	err := row.Scan(
		&e.ID, &e.TenantID, &canonicalJSON, &subjectsJSON, &screeningsJSON,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if goerrors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.NewSystemError("failed to scan entity").WithCause(err)
	}

	var canonical screening.Identifiers
	if len(canonicalJSON) > 0 {
		if err := json.Unmarshal(canonicalJSON, &canonical); err != nil {
			return nil, errors.NewSystemError("failed to decode canonical identifiers").WithCause(err)
		}
	}
	e.Canonical = canonical
	if len(subjectsJSON) > 0 {
		if err := json.Unmarshal(subjectsJSON, &e.SubjectIDs); err != nil {
			return nil, errors.NewSystemError("failed to decode subject IDs").WithCause(err)
		}
	}
	if len(screeningsJSON) > 0 {
		if err := json.Unmarshal(screeningsJSON, &e.ScreeningIDs); err != nil {
			return nil, errors.NewSystemError("failed to decode screening IDs").WithCause(err)
		}
	}
	return &e, nil
}
