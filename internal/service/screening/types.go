package screening

import (
	"time"

	"github.com/clearvet/screening-backend/internal/domain/profile"
	screeningdomain "github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/service/risk"
	"github.com/google/uuid"
)

// InitiateRequest is the validated inbound request to start a screening
type InitiateRequest struct {
	FullName       string                       `json:"full_name" validate:"required"`
	DateOfBirth    time.Time                    `json:"date_of_birth"`
	SSNHash        string                       `json:"ssn_hash"`
	NationalIDHash string                       `json:"national_id_hash"`
	Addresses      []screeningdomain.Address    `json:"addresses"`
	Jurisdiction   string                       `json:"jurisdiction" validate:"required"`
	Role           screeningdomain.RoleCategory `json:"role" validate:"required,oneof=government energy finance other"`
	Tier           screeningdomain.Tier         `json:"tier" validate:"required,oneof=standard enhanced"`
	Degree         int                          `json:"degree" validate:"required,gte=1,lte=3"`
	ConsentRef     string                       `json:"consent_ref"`
}

// Outcome bundles everything a completed screening produced
type Outcome struct {
	ScreeningID uuid.UUID        `json:"screening_id"`
	EntityID    uuid.UUID        `json:"entity_id"`
	Profile     *profile.Profile `json:"profile"`
	Assessment  *risk.Assessment `json:"assessment"`
}

// progress milestones persisted as the screening advances
const (
	progressPending      = 0
	progressRunning      = 10
	progressInvestigated = 70
	progressRiskAssessed = 90
	progressDone         = 100
)
