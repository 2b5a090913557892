// Package testutil provides shared fixtures for service and infrastructure
// tests: in-memory stores, scripted providers and ruleset builders.
package testutil

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/compliance"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StaticRuleStore serves a fixed rule slice
type StaticRuleStore struct {
	Rules []*compliance.Rule
}

func (s *StaticRuleStore) ActiveRules(_ context.Context, jurisdiction string, role screening.RoleCategory) ([]*compliance.Rule, error) {
	var out []*compliance.Rule
	for _, r := range s.Rules {
		if r.Jurisdiction != jurisdiction {
			continue
		}
		if r.RoleCategory != nil && *r.RoleCategory != role {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// PermitRule builds an active check_permitted rule for the given types
func PermitRule(jurisdiction string, types ...screening.InformationType) *compliance.Rule {
	return &compliance.Rule{
		ID:           uuid.New(),
		Jurisdiction: jurisdiction,
		Type:         compliance.RuleCheckPermitted,
		Logic: compliance.RuleLogic{
			CheckPermitted: &compliance.CheckPermittedLogic{CheckTypes: types},
		},
		Active:    true,
		Priority:  100,
		CreatedAt: time.Now(),
	}
}

// LookbackRule builds an active lookback_limit rule
func LookbackRule(jurisdiction string, checkType screening.InformationType, limit time.Duration) *compliance.Rule {
	return &compliance.Rule{
		ID:           uuid.New(),
		Jurisdiction: jurisdiction,
		Type:         compliance.RuleLookbackLimit,
		Logic: compliance.RuleLogic{
			Lookback: &compliance.LookbackLogic{CheckType: checkType, Limit: limit},
		},
		Active:    true,
		Priority:  100,
		CreatedAt: time.Now(),
	}
}

// PermissiveRuleset evaluates a ruleset that permits exactly the given check
// types for the jurisdiction and role.
func PermissiveRuleset(t *testing.T, jurisdiction string, role screening.RoleCategory, types ...screening.InformationType) *compliance.Ruleset {
	t.Helper()
	store := &StaticRuleStore{Rules: []*compliance.Rule{PermitRule(jurisdiction, types...)}}
	rs, err := compliance.NewEvaluator(store, zap.NewNop()).Evaluate(context.Background(), jurisdiction, role)
	if err != nil {
		t.Fatalf("evaluating test ruleset: %v", err)
	}
	return rs
}

// DenyAllRuleset evaluates an empty rule store: nothing is permitted
func DenyAllRuleset(t *testing.T, jurisdiction string, role screening.RoleCategory) *compliance.Ruleset {
	t.Helper()
	rs, err := compliance.NewEvaluator(&StaticRuleStore{}, zap.NewNop()).Evaluate(context.Background(), jurisdiction, role)
	if err != nil {
		t.Fatalf("evaluating test ruleset: %v", err)
	}
	return rs
}

// MemoryAuditStore is an append-only in-memory audit store
type MemoryAuditStore struct {
	mu     sync.Mutex
	events map[uuid.UUID][]*audit.Event
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{events: make(map[uuid.UUID][]*audit.Event)}
}

func (s *MemoryAuditStore) Append(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.TenantID] = append(s.events[event.TenantID], event)
	return nil
}

func (s *MemoryAuditStore) LastForTenant(_ context.Context, tenantID uuid.UUID) (*audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.events[tenantID]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}

func (s *MemoryAuditStore) ChainForTenant(_ context.Context, tenantID uuid.UUID) ([]*audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := append([]*audit.Event(nil), s.events[tenantID]...)
	sort.Slice(chain, func(i, j int) bool { return chain[i].SequenceNum < chain[j].SequenceNum })
	return chain, nil
}

// EventsOfType filters the recorded events by type across all tenants
func (s *MemoryAuditStore) EventsOfType(eventType audit.EventType) []*audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.Event
	for _, chain := range s.events {
		for _, e := range chain {
			if e.Type == eventType {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNum < out[j].SequenceNum })
	return out
}

// NewAuditLogger wires an audit logger over a fresh in-memory store
func NewAuditLogger() (*audit.Logger, *MemoryAuditStore) {
	store := NewMemoryAuditStore()
	return audit.NewLogger(store, zap.NewNop()), store
}
