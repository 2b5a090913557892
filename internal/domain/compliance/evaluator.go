package compliance

import (
	"context"
	"sort"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"go.uber.org/zap"
)

// RuleStore loads active compliance rules. Implementations are tenant-scoped
// by the request context.
type RuleStore interface {
	// ActiveRules returns active rules matching the jurisdiction whose role
	// filter is either nil or equal to the given role.
	ActiveRules(ctx context.Context, jurisdiction string, role screening.RoleCategory) ([]*Rule, error)
}

// Evaluator folds jurisdiction rules into per-investigation rulesets
type Evaluator struct {
	store  RuleStore
	logger *zap.Logger
}

// NewEvaluator creates a ruleset evaluator
func NewEvaluator(store RuleStore, logger *zap.Logger) *Evaluator {
	return &Evaluator{store: store, logger: logger}
}

// Evaluate produces the ruleset for one (jurisdiction, role) tuple. If no
// rules load the result permits nothing; the evaluator never fails open.
func (e *Evaluator) Evaluate(ctx context.Context, jurisdiction string, role screening.RoleCategory) (*Ruleset, error) {
	if jurisdiction == "" {
		return nil, errors.NewValidationError("MISSING_JURISDICTION", "ruleset evaluation requires a jurisdiction")
	}

	rules, err := e.store.ActiveRules(ctx, jurisdiction, role)
	if err != nil {
		return nil, errors.Wrap(err, "loading compliance rules")
	}

	rs := NewRuleset(jurisdiction, role)
	if len(rules) == 0 {
		e.logger.Warn("no compliance rules loaded; denying all checks",
			zap.String("jurisdiction", jurisdiction),
			zap.String("role", string(role)))
		return rs, nil
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})

	applied := 0
	for _, r := range rules {
		if !r.Active {
			continue
		}
		if err := r.Validate(); err != nil {
			e.logger.Warn("skipping invalid compliance rule",
				zap.String("rule_id", r.ID.String()),
				zap.Error(err))
			continue
		}
		rs.apply(r)
		applied++
	}

	e.logger.Debug("compliance ruleset evaluated",
		zap.String("jurisdiction", jurisdiction),
		zap.String("role", string(role)),
		zap.Int("rules_applied", applied),
		zap.Int("permitted_checks", len(rs.PermittedChecks())))
	return rs, nil
}
