package audit

import (
	"context"
	"sync"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists audit events append-only
type Store interface {
	// Append stores a sealed event
	Append(ctx context.Context, event *Event) error
	// LastForTenant returns the most recent event for a tenant, nil when the
	// chain is empty.
	LastForTenant(ctx context.Context, tenantID uuid.UUID) (*Event, error)
	// ChainForTenant returns a tenant's events ordered by sequence number
	ChainForTenant(ctx context.Context, tenantID uuid.UUID) ([]*Event, error)
}

// Logger appends hash-chained audit events. Per-tenant chain heads are
// guarded so concurrent emitters never fork a chain.
type Logger struct {
	store  Store
	logger *zap.Logger

	mu    sync.Mutex
	heads map[uuid.UUID]chainHead
}

type chainHead struct {
	sequence int64
	hash     string
	loaded   bool
}

// NewLogger creates an audit logger over a store
func NewLogger(store Store, logger *zap.Logger) *Logger {
	return &Logger{
		store:  store,
		logger: logger,
		heads:  make(map[uuid.UUID]chainHead),
	}
}

// Emit seals the event against the tenant's chain head and appends it
func (l *Logger) Emit(ctx context.Context, event *Event) error {
	if event == nil {
		return errors.NewValidationError("NIL_EVENT", "audit event cannot be nil")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	head, ok := l.heads[event.TenantID]
	if !ok || !head.loaded {
		last, err := l.store.LastForTenant(ctx, event.TenantID)
		if err != nil {
			return errors.Wrap(err, "loading audit chain head")
		}
		if last != nil {
			head = chainHead{sequence: last.SequenceNum, hash: last.EventHash, loaded: true}
		} else {
			head = chainHead{loaded: true}
		}
	}

	if err := event.Seal(head.sequence+1, head.hash); err != nil {
		return err
	}
	if err := l.store.Append(ctx, event); err != nil {
		return errors.Wrap(err, "appending audit event")
	}

	l.heads[event.TenantID] = chainHead{sequence: event.SequenceNum, hash: event.EventHash, loaded: true}

	l.logger.Debug("audit event emitted",
		zap.String("type", string(event.Type)),
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("correlation_id", event.CorrelationID.String()),
		zap.Int64("sequence", event.SequenceNum))
	return nil
}

// Verify runs tamper detection over one tenant's chain
func (l *Logger) Verify(ctx context.Context, tenantID uuid.UUID) (*VerificationResult, error) {
	events, err := l.store.ChainForTenant(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "loading audit chain")
	}
	return VerifyChain(events)
}
