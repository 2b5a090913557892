package database

import (
	"context"
	"encoding/json"
	goerrors "errors"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/service/lifecycle"
	"github.com/clearvet/screening-backend/internal/service/screening"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LifecycleRepository backs HR event processing: idempotency bookkeeping and
// consent-pending intakes. Implements both ProcessedStore and IntakeStore.
type LifecycleRepository struct {
	db *pgxpool.Pool
}

// NewLifecycleRepository creates the lifecycle repository
func NewLifecycleRepository(db *pgxpool.Pool) *LifecycleRepository {
	return &LifecycleRepository{db: db}
}

// MarkIfNew records the event ID and reports true when it was not seen
// before. ON CONFLICT DO NOTHING makes the check-and-record atomic.
func (r *LifecycleRepository) MarkIfNew(ctx context.Context, tenantID, eventID uuid.UUID) (bool, error) {
	const query = `
		INSERT INTO processed_events (tenant_id, event_id, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tenant_id, event_id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, tenantID, eventID)
	if err != nil {
		return false, errors.NewSystemError("failed to record processed event").WithCause(err)
	}
	return tag.RowsAffected() > 0, nil
}

// Unmark releases an event ID whose processing failed so a redelivery is
// treated as fresh.
func (r *LifecycleRepository) Unmark(ctx context.Context, tenantID, eventID uuid.UUID) error {
	const query = `
		DELETE FROM processed_events
		WHERE tenant_id = $1 AND event_id = $2`

	if _, err := r.db.Exec(ctx, query, tenantID, eventID); err != nil {
		return errors.NewSystemError("failed to release processed event").WithCause(err)
	}
	return nil
}

// Save parks an intake awaiting consent, replacing any prior intake for the
// same subject key.
func (r *LifecycleRepository) Save(ctx context.Context, intake *lifecycle.Intake) error {
	request, err := json.Marshal(intake.Request)
	if err != nil {
		return errors.NewSystemError("failed to marshal intake request").WithCause(err)
	}

	const query = `
		INSERT INTO screening_intakes (tenant_id, subject_key, request, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, subject_key) DO UPDATE SET
			request = EXCLUDED.request,
			received_at = EXCLUDED.received_at`

	_, err = r.db.Exec(ctx, query, intake.TenantID, intake.SubjectKey, request, intake.ReceivedAt)
	if err != nil {
		return errors.NewSystemError("failed to save intake").WithCause(err)
	}
	return nil
}

// Get loads the parked intake for a subject key
func (r *LifecycleRepository) Get(ctx context.Context, tenantID uuid.UUID, subjectKey string) (*lifecycle.Intake, error) {
	const query = `
		SELECT tenant_id, subject_key, request, received_at
		FROM screening_intakes
		WHERE tenant_id = $1 AND subject_key = $2`

	var (
		intake      lifecycle.Intake
		requestJSON []byte
	)
	err := r.db.QueryRow(ctx, query, tenantID, subjectKey).Scan(
		&intake.TenantID, &intake.SubjectKey, &requestJSON, &intake.ReceivedAt,
	)
	if goerrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFoundError("screening intake")
	}
	if err != nil {
		return nil, errors.NewSystemError("failed to load intake").WithCause(err)
	}

	var request screening.InitiateRequest
	if err := json.Unmarshal(requestJSON, &request); err != nil {
		return nil, errors.NewSystemError("failed to decode intake request").WithCause(err)
	}
	intake.Request = request
	return &intake, nil
}

// Delete removes a consumed intake
func (r *LifecycleRepository) Delete(ctx context.Context, tenantID uuid.UUID, subjectKey string) error {
	const query = `
		DELETE FROM screening_intakes
		WHERE tenant_id = $1 AND subject_key = $2`

	if _, err := r.db.Exec(ctx, query, tenantID, subjectKey); err != nil {
		return errors.NewSystemError("failed to delete intake").WithCause(err)
	}
	return nil
}
