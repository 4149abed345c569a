// memory_alias_store.go - Process-local AliasStore for tests and store-less runs

package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/bosocmputer/invoice_resolver/internal/common"
)

// MemoryAliasStore mirrors GormAliasStore semantics under one mutex
type MemoryAliasStore struct {
	mu      sync.Mutex
	byAlias map[common.EntityKind]map[string]uint
	order   map[common.EntityKind][]string
}

func NewMemoryAliasStore() *MemoryAliasStore {
	return &MemoryAliasStore{
		byAlias: make(map[common.EntityKind]map[string]uint),
		order:   make(map[common.EntityKind][]string),
	}
}

func (s *MemoryAliasStore) Lookup(_ context.Context, kind common.EntityKind, alias string) (uint, bool, error) {
	if !kind.Valid() {
		return 0, false, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byAlias[kind][alias]
	return id, ok, nil
}

func (s *MemoryAliasStore) Record(_ context.Context, kind common.EntityKind, alias string, entityID uint) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byAlias[kind][alias]; ok {
		if existing != entityID {
			return &common.ConflictError{Kind: kind, Alias: alias, Existing: existing, Requested: entityID}
		}
		return nil
	}
	if s.byAlias[kind] == nil {
		s.byAlias[kind] = make(map[string]uint)
	}
	s.byAlias[kind][alias] = entityID
	s.order[kind] = append(s.order[kind], alias)
	return nil
}

func (s *MemoryAliasStore) AliasesFor(_ context.Context, kind common.EntityKind, entityID uint) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, alias := range s.order[kind] {
		if s.byAlias[kind][alias] == entityID {
			out = append(out, alias)
		}
	}
	return out, nil
}

func (s *MemoryAliasStore) Delete(_ context.Context, kind common.EntityKind, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byAlias[kind][alias]; !ok {
		return nil
	}
	delete(s.byAlias[kind], alias)
	order := s.order[kind]
	for i, a := range order {
		if a == alias {
			s.order[kind] = append(order[:i:i], order[i+1:]...)
			break
		}
	}
	return nil
}

// DeleteEntity drops every alias of entityID, as the foreign key cascade does in SQL
func (s *MemoryAliasStore) DeleteEntity(kind common.EntityKind, entityID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[kind][:0:0]
	for _, alias := range s.order[kind] {
		if s.byAlias[kind][alias] == entityID {
			delete(s.byAlias[kind], alias)
			continue
		}
		kept = append(kept, alias)
	}
	s.order[kind] = kept
}

func (s *MemoryAliasStore) List(_ context.Context, kind common.EntityKind) ([]AliasEntry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AliasEntry, 0, len(s.order[kind]))
	for _, alias := range s.order[kind] {
		out = append(out, AliasEntry{Alias: alias, EntityID: s.byAlias[kind][alias]})
	}
	return out, nil
}

func (s *MemoryAliasStore) Stats(_ context.Context, kind common.EntityKind) (AliasStats, error) {
	if !kind.Valid() {
		return AliasStats{}, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entities := make(map[uint]struct{})
	for _, id := range s.byAlias[kind] {
		entities[id] = struct{}{}
	}
	return AliasStats{TotalEntries: int64(len(s.byAlias[kind])), UniqueEntities: int64(len(entities))}, nil
}
