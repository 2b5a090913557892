package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/google/uuid"
)

// ErrorKind is the provider-reported failure category
type ErrorKind string

const (
	ErrKindRateLimited        ErrorKind = "rate_limited"
	ErrKindAuth               ErrorKind = "auth"
	ErrKindInvalidRequest     ErrorKind = "invalid_request"
	ErrKindTimeout            ErrorKind = "timeout"
	ErrKindServiceUnavailable ErrorKind = "service_unavailable"
	ErrKindData               ErrorKind = "data"
)

// ErrorClass drives retry policy: transient and temporary errors are
// retried, permanent and fatal never are.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassTemporary ErrorClass = "temporary"
	ClassPermanent ErrorClass = "permanent"
	ClassFatal     ErrorClass = "fatal"
)

// Class maps an error kind onto its retry class
func (k ErrorKind) Class() ErrorClass {
	switch k {
	case ErrKindTimeout, ErrKindServiceUnavailable:
		return ClassTransient
	case ErrKindRateLimited:
		return ClassTemporary
	case ErrKindInvalidRequest, ErrKindData:
		return ClassPermanent
	case ErrKindAuth:
		return ClassFatal
	default:
		return ClassPermanent
	}
}

// Retryable reports whether the class allows another attempt
func (c ErrorClass) Retryable() bool {
	return c == ClassTransient || c == ClassTemporary
}

// ProviderError is the tagged failure result of a provider call
type ProviderError struct {
	ProviderID string
	Kind       ErrorKind
	Detail     string
	RetryAfter time.Duration // server-suggested delay on rate_limited
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s (%s)", e.ProviderID, e.Detail, e.Kind)
}

// Class returns the retry class of the error
func (e *ProviderError) Class() ErrorClass {
	return e.Kind.Class()
}

// Request is one outbound provider query. TenantScoped marks queries whose
// inputs are tenant-specific; their cache fingerprints fold in the tenant so
// entries are never shared across tenants.
type Request struct {
	CheckType    screening.InformationType
	Params       map[string]string
	TenantID     uuid.UUID
	TenantScoped bool
	Lookback     time.Duration // compliance lookback cap, zero when unlimited
	RedactFields []string      // fields the provider result must drop
}

// Result is the outcome of a provider call, possibly served from cache
type Result struct {
	ProviderID  string
	CheckType   screening.InformationType
	Payload     []byte
	FromCache   bool
	Stale       bool
	RetrievedAt time.Time
}

// Provider is the capability interface implemented by provider adapters.
// A provider implements only the check types it supports; the gateway
// dispatches by check type.
type Provider interface {
	ID() string
	Supports(checkType screening.InformationType) bool
	Call(ctx context.Context, req Request) (*Result, error)
}
