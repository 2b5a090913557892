package database

import (
	"context"
	"encoding/json"
	goerrors "errors"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code for unique constraint breaks
const uniqueViolation = "23505"

// AuditStore persists the hash-chained audit log; implements audit.Store.
// A unique constraint on (tenant_id, sequence_num) guarantees no two writers
// can fork a tenant's chain.
type AuditStore struct {
	db *pgxpool.Pool
}

// NewAuditStore creates the audit event store
func NewAuditStore(db *pgxpool.Pool) *AuditStore {
	return &AuditStore{db: db}
}

// Append stores a sealed event
func (s *AuditStore) Append(ctx context.Context, event *audit.Event) error {
	if !event.IsSealed() {
		return errors.NewValidationError("UNSEALED_EVENT", "only sealed events may be appended")
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return errors.NewSystemError("failed to marshal event metadata").WithCause(err)
	}

	const query = `
		INSERT INTO audit_events (
			id, tenant_id, correlation_id, sequence_num, timestamp, timestamp_nano,
			type, action, result, target_id, target_type, metadata,
			previous_hash, event_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = s.db.Exec(ctx, query,
		event.ID, event.TenantID, event.CorrelationID, event.SequenceNum,
		event.Timestamp, event.TimestampNano,
		string(event.Type), event.Action, event.Result,
		event.TargetID, event.TargetType, metadata,
		event.PreviousHash, event.EventHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if goerrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return errors.NewConflictError("audit sequence number already exists")
		}
		return errors.NewSystemError("failed to append audit event").WithCause(err)
	}
	return nil
}

// LastForTenant returns the most recent event for a tenant, nil on an empty
// chain.
func (s *AuditStore) LastForTenant(ctx context.Context, tenantID uuid.UUID) (*audit.Event, error) {
	const query = selectEvents + `
		WHERE tenant_id = $1
		ORDER BY sequence_num DESC
		LIMIT 1`

	event, err := s.scanOne(s.db.QueryRow(ctx, query, tenantID))
	if goerrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// ChainForTenant returns a tenant's events ordered by sequence number
func (s *AuditStore) ChainForTenant(ctx context.Context, tenantID uuid.UUID) ([]*audit.Event, error) {
	const query = selectEvents + `
		WHERE tenant_id = $1
		ORDER BY sequence_num`

	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, errors.NewSystemError("failed to query audit chain").WithCause(err)
	}
	defer rows.Close()

	var events []*audit.Event
	for rows.Next() {
		event, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSystemError("failed to iterate audit chain").WithCause(err)
	}
	return events, nil
}

const selectEvents = `
	SELECT id, tenant_id, correlation_id, sequence_num, timestamp, timestamp_nano,
	       type, action, result, target_id, target_type, metadata,
	       previous_hash, event_hash
	FROM audit_events`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *AuditStore) scanOne(row rowScanner) (*audit.Event, error) {
	var (
		event     audit.Event
		eventType string
		metadata  []byte
	)
	err := row.Scan(
		&event.ID, &event.TenantID, &event.CorrelationID, &event.SequenceNum,
		&event.Timestamp, &event.TimestampNano,
		&eventType, &event.Action, &event.Result,
		&event.TargetID, &event.TargetType, &metadata,
		&event.PreviousHash, &event.EventHash,
	)
	if err != nil {
		if goerrors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.NewSystemError("failed to scan audit event").WithCause(err)
	}
	event.Type = audit.EventType(eventType)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, errors.NewSystemError("failed to decode event metadata").WithCause(err)
		}
	}
	event.Restore()
	return &event, nil
}
