package testutil

import (
	"context"
	"sync"

	"github.com/clearvet/screening-backend/internal/domain/entity"
	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/google/uuid"
)

// MemoryEntityStore is an in-memory entity store for tests
type MemoryEntityStore struct {
	mu         sync.Mutex
	entities   map[uuid.UUID]*entity.Entity
	operations map[uuid.UUID]*entity.Operation
}

func NewMemoryEntityStore() *MemoryEntityStore {
	return &MemoryEntityStore{
		entities:   make(map[uuid.UUID]*entity.Entity),
		operations: make(map[uuid.UUID]*entity.Operation),
	}
}

func (s *MemoryEntityStore) Get(_ context.Context, tenantID, entityID uuid.UUID) (*entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok || e.TenantID != tenantID {
		return nil, errors.NewNotFoundError("entity")
	}
	return copyEntity(e), nil
}

func (s *MemoryEntityStore) FindByIdentifierHash(_ context.Context, tenantID uuid.UUID, hash string) (*entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if e.TenantID != tenantID {
			continue
		}
		if e.Canonical.SSNHash == hash || e.Canonical.NationalIDHash == hash {
			return copyEntity(e), nil
		}
	}
	return nil, nil
}

func (s *MemoryEntityStore) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Entity
	for _, e := range s.entities {
		if e.TenantID == tenantID {
			out = append(out, copyEntity(e))
		}
	}
	return out, nil
}

func (s *MemoryEntityStore) Save(_ context.Context, e *entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = copyEntity(e)
	return nil
}

func (s *MemoryEntityStore) SaveOperation(_ context.Context, op *entity.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *op
	s.operations[op.ID] = &copied
	return nil
}

func (s *MemoryEntityStore) GetOperation(_ context.Context, _ uuid.UUID, operationID uuid.UUID) (*entity.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operations[operationID]
	if !ok {
		return nil, errors.NewNotFoundError("entity operation")
	}
	copied := *op
	return &copied, nil
}

func copyEntity(e *entity.Entity) *entity.Entity {
	copied := *e
	copied.SubjectIDs = append([]uuid.UUID(nil), e.SubjectIDs...)
	copied.ScreeningIDs = append([]uuid.UUID(nil), e.ScreeningIDs...)
	return &copied
}
