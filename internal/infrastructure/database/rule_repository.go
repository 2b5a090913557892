package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/compliance"
	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RuleRepository loads compliance rules; implements compliance.RuleStore
type RuleRepository struct {
	db *pgxpool.Pool
}

// NewRuleRepository creates the compliance rule repository
func NewRuleRepository(db *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{db: db}
}

// ActiveRules returns active rules for a jurisdiction whose role filter is
// either absent or equal to the given role.
func (r *RuleRepository) ActiveRules(ctx context.Context, jurisdiction string, role screening.RoleCategory) ([]*compliance.Rule, error) {
	const query = `
		SELECT id, jurisdiction, role_category, rule_type, rule_logic, active, priority, created_at
		FROM compliance_rules
		WHERE jurisdiction = $1
		  AND active
		  AND (role_category IS NULL OR role_category = $2)
		ORDER BY priority`

	rows, err := r.db.Query(ctx, query, jurisdiction, string(role))
	if err != nil {
		return nil, errors.NewSystemError("failed to query compliance rules").WithCause(err)
	}
	defer rows.Close()

	var rules []*compliance.Rule
	for rows.Next() {
		var (
			id           uuid.UUID
			jur          string
			roleCategory *string
			ruleType     string
			logic        []byte
			active       bool
			priority     int
			createdAt    time.Time
		)
		if err := rows.Scan(&id, &jur, &roleCategory, &ruleType, &logic, &active, &priority, &createdAt); err != nil {
			return nil, errors.NewSystemError("failed to scan compliance rule").WithCause(err)
		}

		// route through the domain decoder so rule_logic lands in the
		// variant selected by rule_type
		doc, err := json.Marshal(map[string]interface{}{
			"id":            id,
			"jurisdiction":  jur,
			"role_category": roleCategory,
			"rule_type":     ruleType,
			"rule_logic":    json.RawMessage(logic),
			"active":        active,
			"priority":      priority,
			"created_at":    createdAt,
		})
		if err != nil {
			return nil, errors.NewSystemError("failed to assemble rule document").WithCause(err)
		}

		var rule compliance.Rule
		if err := json.Unmarshal(doc, &rule); err != nil {
			return nil, errors.Wrap(err, "decoding compliance rule "+id.String())
		}
		rules = append(rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSystemError("failed to iterate compliance rules").WithCause(err)
	}
	return rules, nil
}
