package lifecycle

import (
	"time"

	screeningdomain "github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/service/screening"
	"github.com/google/uuid"
)

// EventType enumerates the inbound HR lifecycle events
type EventType string

const (
	EventHireInitiated      EventType = "hire_initiated"
	EventConsentGranted     EventType = "consent_granted"
	EventPositionChanged    EventType = "position_changed"
	EventEmployeeTerminated EventType = "employee_terminated"
	EventRehireInitiated    EventType = "rehire_initiated"
)

// Event is a structured lifecycle event. Payload parsing happens upstream;
// the processor receives already-typed fields. EventID is the idempotency
// key: redelivery of a processed event is a no-op.
type Event struct {
	EventID    uuid.UUID `json:"event_id" validate:"required"`
	Type       EventType `json:"type" validate:"required,oneof=hire_initiated consent_granted position_changed employee_terminated rehire_initiated"`
	SubjectKey string    `json:"subject_key" validate:"required"`
	OccurredAt time.Time `json:"occurred_at"`

	// hire_initiated and rehire_initiated carry the screening intake
	Screening *screening.InitiateRequest `json:"screening,omitempty"`

	// consent_granted carries the consent reference
	ConsentRef string `json:"consent_ref,omitempty"`

	// position_changed, employee_terminated and rehire_initiated address a
	// known entity
	EntityID uuid.UUID                    `json:"entity_id,omitempty"`
	Role     screeningdomain.RoleCategory `json:"role,omitempty"`
}

// Intake is a screening request waiting for consent, keyed by subject
type Intake struct {
	TenantID   uuid.UUID                 `json:"tenant_id"`
	SubjectKey string                    `json:"subject_key"`
	Request    screening.InitiateRequest `json:"request"`
	ReceivedAt time.Time                 `json:"received_at"`
}
