package audit

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/google/uuid"
)

// EventType classifies audit events by their emitting component
type EventType string

const (
	EventSARTransition      EventType = "sar.transition"
	EventComplianceGate     EventType = "compliance.gate"
	EventComplianceBlocked  EventType = "compliance.blocked"
	EventProviderCall       EventType = "provider.call"
	EventProviderFallback   EventType = "provider.fallback"
	EventCircuitTransition  EventType = "provider.circuit_transition"
	EventRiskAssessed       EventType = "risk.assessed"
	EventProfileVersioned   EventType = "profile.versioned"
	EventMonitoringExecuted EventType = "monitoring.executed"
	EventAlertGenerated     EventType = "monitoring.alert"
	EventScreeningStarted   EventType = "screening.started"
	EventScreeningCancelled EventType = "screening.cancelled"
	EventEntityOperation    EventType = "entity.operation"
	EventLifecycleReceived  EventType = "lifecycle.received"
)

// Event is an immutable, hash-chained audit log entry. Events for one
// tenant form a totally ordered chain: each event's hash covers the hash of
// the previous event for that tenant.
type Event struct {
	ID            uuid.UUID `json:"id"`
	SequenceNum   int64     `json:"sequence_num"`
	TenantID      uuid.UUID `json:"tenant_id"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
	TimestampNano int64     `json:"timestamp_nano"`

	Type   EventType `json:"type"`
	Action string    `json:"action"`
	Result string    `json:"result"` // success, failure, partial

	TargetID   string `json:"target_id"`
	TargetType string `json:"target_type"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	PreviousHash string `json:"previous_hash"`
	EventHash    string `json:"event_hash"`

	immutable bool
}

// NewEvent creates an audit event pending hash computation
func NewEvent(eventType EventType, tenantID, correlationID uuid.UUID, targetID, targetType, action string) (*Event, error) {
	if eventType == "" {
		return nil, errors.NewValidationError("MISSING_EVENT_TYPE", "audit event requires a type")
	}
	if tenantID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_TENANT", "audit event requires a tenant")
	}
	if targetID == "" {
		return nil, errors.NewValidationError("MISSING_TARGET", "audit event requires a target")
	}
	now := time.Now().UTC()
	return &Event{
		ID:            uuid.New(),
		TenantID:      tenantID,
		CorrelationID: correlationID,
		Timestamp:     now,
		TimestampNano: now.UnixNano(),
		Type:          eventType,
		Action:        action,
		Result:        "success",
		TargetID:      targetID,
		TargetType:    targetType,
		Metadata:      make(map[string]interface{}),
	}, nil
}

// WithMetadata attaches context before the event is sealed
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if !e.immutable {
		e.Metadata[key] = value
	}
	return e
}

// WithResult overrides the default success result before sealing
func (e *Event) WithResult(result string) *Event {
	if !e.immutable {
		e.Result = result
	}
	return e
}

// Seal assigns the sequence number, links the previous hash and computes the
// event hash. The event is immutable afterwards.
func (e *Event) Seal(sequenceNum int64, previousHash string) error {
	if e.immutable {
		return errors.NewConflictError("audit event is already sealed")
	}
	e.SequenceNum = sequenceNum
	e.PreviousHash = previousHash

	hashData := map[string]interface{}{
		"id":             e.ID.String(),
		"sequence_num":   e.SequenceNum,
		"tenant_id":      e.TenantID.String(),
		"correlation_id": e.CorrelationID.String(),
		"timestamp_nano": e.TimestampNano,
		"type":           string(e.Type),
		"action":         e.Action,
		"result":         e.Result,
		"target_id":      e.TargetID,
		"previous_hash":  e.PreviousHash,
	}
	jsonBytes, err := json.Marshal(hashData)
	if err != nil {
		return errors.NewSystemError("failed to marshal audit hash data").WithCause(err)
	}
	sum := sha256.Sum256(jsonBytes)
	e.EventHash = fmt.Sprintf("%x", sum)
	e.immutable = true
	return nil
}

// IsSealed reports whether the event hash has been computed
func (e *Event) IsSealed() bool { return e.immutable }

// Restore marks an event rehydrated from storage as sealed. Events without a
// stored hash stay unsealed and fail chain verification.
func (e *Event) Restore() {
	if e.EventHash != "" {
		e.immutable = true
	}
}

// recomputeHash recalculates the hash without mutating the event; used by
// chain verification.
func (e *Event) recomputeHash() (string, error) {
	hashData := map[string]interface{}{
		"id":             e.ID.String(),
		"sequence_num":   e.SequenceNum,
		"tenant_id":      e.TenantID.String(),
		"correlation_id": e.CorrelationID.String(),
		"timestamp_nano": e.TimestampNano,
		"type":           string(e.Type),
		"action":         e.Action,
		"result":         e.Result,
		"target_id":      e.TargetID,
		"previous_hash":  e.PreviousHash,
	}
	jsonBytes, err := json.Marshal(hashData)
	if err != nil {
		return "", errors.NewSystemError("failed to marshal audit hash data").WithCause(err)
	}
	sum := sha256.Sum256(jsonBytes)
	return fmt.Sprintf("%x", sum), nil
}
