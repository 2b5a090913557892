package database

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/finding"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository persists versioned risk profiles. Serves both the
// screening service (latest version, save) and the monitoring scheduler
// (baseline lookup by version).
type ProfileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository creates the profile repository
func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// LatestVersion returns the highest stored version for an entity, zero when
// none exists.
func (r *ProfileRepository) LatestVersion(ctx context.Context, tenantID, entityID uuid.UUID) (int, error) {
	const query = `
		SELECT COALESCE(MAX(version), 0)
		FROM profiles
		WHERE tenant_id = $1 AND entity_id = $2`

	var version int
	if err := r.db.QueryRow(ctx, query, tenantID, entityID).Scan(&version); err != nil {
		return 0, errors.NewSystemError("failed to query latest profile version").WithCause(err)
	}
	return version, nil
}

// Save inserts a profile version. The unique constraint on
// (tenant_id, entity_id, version) backs the no-gaps guarantee.
func (r *ProfileRepository) Save(ctx context.Context, p *profile.Profile) error {
	findings, err := json.Marshal(p.Findings)
	if err != nil {
		return errors.NewSystemError("failed to marshal findings").WithCause(err)
	}
	connections, err := json.Marshal(p.Connections)
	if err != nil {
		return errors.NewSystemError("failed to marshal connections").WithCause(err)
	}

	const query = `
		INSERT INTO profiles (
			id, entity_id, tenant_id, version, findings, risk_score, risk_level,
			connections, branch_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		p.ID, p.EntityID, p.TenantID, p.Version, findings,
		p.RiskScore, string(p.RiskLevel), connections, string(p.BranchStatus), p.CreatedAt,
	)
	if err != nil {
		return errors.NewSystemError("failed to save profile").WithCause(err)
	}
	return nil
}

// Version loads one profile version for an entity
func (r *ProfileRepository) Version(ctx context.Context, tenantID, entityID uuid.UUID, version int) (*profile.Profile, error) {
	const query = `
		SELECT id, entity_id, tenant_id, version, findings, risk_score, risk_level,
		       connections, branch_status, created_at
		FROM profiles
		WHERE tenant_id = $1 AND entity_id = $2 AND version = $3`

	var (
		p                 profile.Profile
		findingsJSON      []byte
		connectionsJSON   []byte
		riskLevel, status string
		createdAt         time.Time
	)
	err := r.db.QueryRow(ctx, query, tenantID, entityID, version).Scan(
		&p.ID, &p.EntityID, &p.TenantID, &p.Version, &findingsJSON,
		&p.RiskScore, &riskLevel, &connectionsJSON, &status, &createdAt,
	)
	if goerrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFoundError("profile version")
	}
	if err != nil {
		return nil, errors.NewSystemError("failed to load profile").WithCause(err)
	}

	if len(findingsJSON) > 0 {
		var findings []finding.Finding
		if err := json.Unmarshal(findingsJSON, &findings); err != nil {
			return nil, errors.NewSystemError("failed to decode findings").WithCause(err)
		}
		p.Findings = findings
	}

	graph := profile.NewEntityGraph()
	if len(connectionsJSON) > 0 {
		var edges []profile.Edge
		if err := json.Unmarshal(connectionsJSON, &edges); err != nil {
			return nil, errors.NewSystemError("failed to decode connections").WithCause(err)
		}
		for _, e := range edges {
			graph.AddEdge(e)
		}
		p.Connections = edges
	}
	p.Graph = graph
	p.RiskLevel = profile.RiskLevel(riskLevel)
	p.BranchStatus = profile.BranchStatus(status)
	p.CreatedAt = createdAt
	return &p, nil
}
