package database

import (
	"context"
	goerrors "errors"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/monitoring"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitoringRepository persists per-entity monitoring configurations;
// implements the scheduler's ConfigStore.
type MonitoringRepository struct {
	db *pgxpool.Pool
}

// NewMonitoringRepository creates the monitoring configuration repository
func NewMonitoringRepository(db *pgxpool.Pool) *MonitoringRepository {
	return &MonitoringRepository{db: db}
}

const selectConfigs = `
	SELECT entity_id, tenant_id, jurisdiction, role, vigilance,
	       baseline_profile_version, next_check_at, active, created_at, updated_at
	FROM monitoring_configs`

// Due returns up to limit active configurations whose next check time has
// passed, soonest first.
func (r *MonitoringRepository) Due(ctx context.Context, now time.Time, limit int) ([]*monitoring.Config, error) {
	const query = selectConfigs + `
		WHERE active AND next_check_at <= $1
		ORDER BY next_check_at
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, errors.NewSystemError("failed to query due monitoring configs").WithCause(err)
	}
	defer rows.Close()

	var configs []*monitoring.Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSystemError("failed to iterate monitoring configs").WithCause(err)
	}
	return configs, nil
}

// Get loads the configuration for one monitored entity
func (r *MonitoringRepository) Get(ctx context.Context, tenantID, entityID uuid.UUID) (*monitoring.Config, error) {
	const query = selectConfigs + `
		WHERE tenant_id = $1 AND entity_id = $2`

	cfg, err := scanConfig(r.db.QueryRow(ctx, query, tenantID, entityID))
	if goerrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFoundError("monitoring config")
	}
	return cfg, err
}

// Save upserts the configuration keyed by (tenant_id, entity_id)
func (r *MonitoringRepository) Save(ctx context.Context, cfg *monitoring.Config) error {
	const query = `
		INSERT INTO monitoring_configs (
			entity_id, tenant_id, jurisdiction, role, vigilance,
			baseline_profile_version, next_check_at, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, entity_id) DO UPDATE SET
			jurisdiction = EXCLUDED.jurisdiction,
			role = EXCLUDED.role,
			vigilance = EXCLUDED.vigilance,
			baseline_profile_version = EXCLUDED.baseline_profile_version,
			next_check_at = EXCLUDED.next_check_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		cfg.EntityID, cfg.TenantID, cfg.Jurisdiction, string(cfg.Role), int(cfg.Vigilance),
		cfg.BaselineProfileVersion, cfg.NextCheckAt, cfg.Active, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return errors.NewSystemError("failed to save monitoring config").WithCause(err)
	}
	return nil
}

func scanConfig(row rowScanner) (*monitoring.Config, error) {
	var (
		cfg       monitoring.Config
		role      string
		vigilance int
	)
	err := row.Scan(
		&cfg.EntityID, &cfg.TenantID, &cfg.Jurisdiction, &role, &vigilance,
		&cfg.BaselineProfileVersion, &cfg.NextCheckAt, &cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if goerrors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.NewSystemError("failed to scan monitoring config").WithCause(err)
	}
	cfg.Role = screening.RoleCategory(role)
	cfg.Vigilance = monitoring.Vigilance(vigilance)
	return &cfg, nil
}
