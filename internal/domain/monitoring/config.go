// Package monitoring holds the ongoing-vigilance domain model: vigilance
// levels, their cadences and the per-entity monitoring configuration.
package monitoring

import (
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/google/uuid"
)

// Vigilance is the monitoring intensity level. Higher levels check more often.
type Vigilance int

const (
	VigilanceV1 Vigilance = iota + 1 // annual full rerun
	VigilanceV2                      // monthly delta check
	VigilanceV3                      // bi-monthly full rerun
)

func (v Vigilance) String() string {
	switch v {
	case VigilanceV1:
		return "V1"
	case VigilanceV2:
		return "V2"
	case VigilanceV3:
		return "V3"
	default:
		return "unknown"
	}
}

// CheckMode distinguishes a full re-investigation from a delta-only check
// against the high-risk source subset.
type CheckMode string

const (
	CheckFull  CheckMode = "full"
	CheckDelta CheckMode = "delta"
)

// Interval returns the scheduling cadence for a vigilance level
func (v Vigilance) Interval() time.Duration {
	switch v {
	case VigilanceV2:
		return 30 * 24 * time.Hour
	case VigilanceV3:
		return 15 * 24 * time.Hour
	default:
		return 365 * 24 * time.Hour
	}
}

// Mode returns the check depth for a vigilance level
func (v Vigilance) Mode() CheckMode {
	if v == VigilanceV2 {
		return CheckDelta
	}
	return CheckFull
}

// ForRole maps a role category onto its default vigilance level
func ForRole(role screening.RoleCategory) Vigilance {
	switch role {
	case screening.RoleEnergy:
		return VigilanceV3
	case screening.RoleGovernment, screening.RoleFinance:
		return VigilanceV2
	default:
		return VigilanceV1
	}
}

// Escalate raises the role default based on current risk: score >= 75 forces
// V3, score >= 50 guarantees at least V2. Escalation never lowers the level.
func Escalate(base Vigilance, riskScore float64) Vigilance {
	switch {
	case riskScore >= 75:
		return VigilanceV3
	case riskScore >= 50 && base < VigilanceV2:
		return VigilanceV2
	default:
		return base
	}
}

// Config is the per-entity monitoring configuration. next_check_at strictly
// increases across executions.
type Config struct {
	EntityID               uuid.UUID              `json:"entity_id"`
	TenantID               uuid.UUID              `json:"tenant_id"`
	Jurisdiction           string                 `json:"jurisdiction"`
	Role                   screening.RoleCategory `json:"role"`
	Vigilance              Vigilance              `json:"vigilance"`
	BaselineProfileVersion int                    `json:"baseline_profile_version"`
	NextCheckAt            time.Time              `json:"next_check_at"`
	Active                 bool                   `json:"active"`
	CreatedAt              time.Time              `json:"created_at"`
	UpdatedAt              time.Time              `json:"updated_at"`
}

// NewConfig creates an active monitoring configuration, deriving vigilance
// from the role default escalated by the baseline risk score.
func NewConfig(tenantID, entityID uuid.UUID, jurisdiction string, role screening.RoleCategory, baselineVersion int, riskScore float64) (*Config, error) {
	if tenantID == uuid.Nil || entityID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_IDS", "monitoring config requires tenant and entity")
	}
	if jurisdiction == "" {
		return nil, errors.NewValidationError("MISSING_JURISDICTION", "monitoring config requires a jurisdiction")
	}
	if baselineVersion < 1 {
		return nil, errors.NewValidationError("INVALID_BASELINE", "baseline profile version must be at least 1")
	}

	now := time.Now().UTC()
	v := Escalate(ForRole(role), riskScore)
	return &Config{
		EntityID:               entityID,
		TenantID:               tenantID,
		Jurisdiction:           jurisdiction,
		Role:                   role,
		Vigilance:              v,
		BaselineProfileVersion: baselineVersion,
		NextCheckAt:            now.Add(v.Interval()),
		Active:                 true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

// Advance records a completed execution: the baseline moves to the new
// profile version, vigilance is re-derived from the new score and the next
// check is scheduled strictly after the previous one.
func (c *Config) Advance(now time.Time, newBaselineVersion int, riskScore float64) {
	c.BaselineProfileVersion = newBaselineVersion
	c.Vigilance = Escalate(ForRole(c.Role), riskScore)

	next := now.Add(c.Vigilance.Interval())
	if !next.After(c.NextCheckAt) {
		next = c.NextCheckAt.Add(c.Vigilance.Interval())
	}
	c.NextCheckAt = next
	c.UpdatedAt = now
}

// Reevaluate re-derives vigilance after a position change. The schedule is
// pulled earlier when the new level checks more often, never pushed later.
func (c *Config) Reevaluate(role screening.RoleCategory, riskScore float64, now time.Time) {
	c.Role = role
	c.Vigilance = Escalate(ForRole(role), riskScore)

	if sooner := now.Add(c.Vigilance.Interval()); sooner.Before(c.NextCheckAt) {
		c.NextCheckAt = sooner
	}
	c.UpdatedAt = now
}

// Cancel stops further scheduling; used on termination
func (c *Config) Cancel(now time.Time) {
	c.Active = false
	c.UpdatedAt = now
}

// Resume reactivates a cancelled configuration on rehire. The next check is
// scheduled from now so a long-dormant entity is not immediately overdue.
func (c *Config) Resume(now time.Time) {
	c.Active = true
	c.NextCheckAt = now.Add(c.Vigilance.Interval())
	c.UpdatedAt = now
}

// Due reports whether the configuration should execute now
func (c *Config) Due(now time.Time) bool {
	return c.Active && !now.Before(c.NextCheckAt)
}
