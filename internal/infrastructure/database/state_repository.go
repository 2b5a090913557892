package database

import (
	"context"
	"encoding/json"
	goerrors "errors"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StateRepository persists checkpointed screening state; implements the
// screening service's StateStore.
type StateRepository struct {
	db *pgxpool.Pool
}

// NewStateRepository creates the screening state repository
func NewStateRepository(db *pgxpool.Pool) *StateRepository {
	return &StateRepository{db: db}
}

// Get loads the state of one screening
func (r *StateRepository) Get(ctx context.Context, tenantID, screeningID uuid.UUID) (*screening.State, error) {
	const query = `
		SELECT screening_id, tenant_id, status, current_phase, progress_percent,
		       checkpoints, updated_at
		FROM screening_states
		WHERE tenant_id = $1 AND screening_id = $2`

	var (
		state           screening.State
		status          string
		phase           int
		checkpointsJSON []byte
	)
	err := r.db.QueryRow(ctx, query, tenantID, screeningID).Scan(
		&state.ScreeningID, &state.TenantID, &status, &phase,
		&state.ProgressPercent, &checkpointsJSON, &state.UpdatedAt,
	)
	if goerrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFoundError("screening")
	}
	if err != nil {
		return nil, errors.NewSystemError("failed to load screening state").WithCause(err)
	}

	state.Status = screening.Status(status)
	state.CurrentPhase = screening.InfoPhase(phase)
	state.Checkpoints = make(map[screening.InformationType]string)
	if len(checkpointsJSON) > 0 {
		if err := json.Unmarshal(checkpointsJSON, &state.Checkpoints); err != nil {
			return nil, errors.NewSystemError("failed to decode checkpoints").WithCause(err)
		}
	}
	return &state, nil
}

// Save upserts the screening state keyed by (tenant_id, screening_id)
func (r *StateRepository) Save(ctx context.Context, state *screening.State) error {
	checkpoints, err := json.Marshal(state.Checkpoints)
	if err != nil {
		return errors.NewSystemError("failed to marshal checkpoints").WithCause(err)
	}

	const query = `
		INSERT INTO screening_states (
			screening_id, tenant_id, status, current_phase, progress_percent,
			checkpoints, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, screening_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_phase = EXCLUDED.current_phase,
			progress_percent = EXCLUDED.progress_percent,
			checkpoints = EXCLUDED.checkpoints,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		state.ScreeningID, state.TenantID, string(state.Status), int(state.CurrentPhase),
		state.ProgressPercent, checkpoints, state.UpdatedAt,
	)
	if err != nil {
		return errors.NewSystemError("failed to save screening state").WithCause(err)
	}
	return nil
}
