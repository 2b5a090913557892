package values

import (
	"context"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/google/uuid"
)

// RequestContext carries the immutable per-request metadata threaded through
// every operation. Fields are unexported; the value cannot change after
// construction.
type RequestContext struct {
	correlationID uuid.UUID
	tenantID      uuid.UUID
	userID        *uuid.UUID
	jurisdiction  string
	timestamp     time.Time
	auditMeta     map[string]string
}

// NewRequestContext creates a validated request context
func NewRequestContext(tenantID uuid.UUID, jurisdiction string) (RequestContext, error) {
	if tenantID == uuid.Nil {
		return RequestContext{}, errors.NewValidationError("MISSING_TENANT", "tenant ID is required")
	}
	if jurisdiction == "" {
		return RequestContext{}, errors.NewValidationError("MISSING_JURISDICTION", "jurisdiction is required")
	}
	return RequestContext{
		correlationID: uuid.New(),
		tenantID:      tenantID,
		jurisdiction:  jurisdiction,
		timestamp:     time.Now().UTC(),
	}, nil
}

// WithUser returns a copy carrying the acting user
func (rc RequestContext) WithUser(userID uuid.UUID) RequestContext {
	rc.userID = &userID
	return rc
}

// WithAuditMeta returns a copy carrying additional audit metadata. The
// incoming map is copied so the context stays immutable.
func (rc RequestContext) WithAuditMeta(meta map[string]string) RequestContext {
	copied := make(map[string]string, len(meta))
	for k, v := range meta {
		copied[k] = v
	}
	rc.auditMeta = copied
	return rc
}

func (rc RequestContext) CorrelationID() uuid.UUID { return rc.correlationID }
func (rc RequestContext) TenantID() uuid.UUID      { return rc.tenantID }
func (rc RequestContext) Jurisdiction() string     { return rc.jurisdiction }
func (rc RequestContext) Timestamp() time.Time     { return rc.timestamp }

func (rc RequestContext) UserID() (uuid.UUID, bool) {
	if rc.userID == nil {
		return uuid.Nil, false
	}
	return *rc.userID, true
}

func (rc RequestContext) AuditMeta() map[string]string {
	copied := make(map[string]string, len(rc.auditMeta))
	for k, v := range rc.auditMeta {
		copied[k] = v
	}
	return copied
}

type requestContextKey struct{}

// WithContext attaches the request context to a context.Context
func WithContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext extracts the request context, reporting whether one was set
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}
