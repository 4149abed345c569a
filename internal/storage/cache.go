// cache.go - In-memory cache for the catalog candidate pool

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/processor"
)

// DefaultCacheTTL bounds how stale a snapshot may get without an explicit invalidation
const DefaultCacheTTL = 5 * time.Minute

// CatalogSnapshot is the normalized catalog and alias table of one kind
type CatalogSnapshot struct {
	Kind     common.EntityKind
	Entries  []CatalogEntry
	LoadedAt time.Time

	// canonicals by id, then aliases by insertion order
	candidates []processor.Candidate
	byName     map[string]uint
}

// Candidates returns the fuzzy match pool. Callers must not modify it.
func (s *CatalogSnapshot) Candidates() []processor.Candidate {
	return s.candidates
}

// Canonical returns the lowest id entity whose normalized name equals normalized
func (s *CatalogSnapshot) Canonical(normalized string) (uint, bool) {
	id, ok := s.byName[normalized]
	return id, ok
}

// CatalogCache keeps one snapshot per kind
type CatalogCache struct {
	catalog   EntityCatalog
	aliases   AliasStore
	normalize func(common.EntityKind, string) string
	ttl       time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	snapshots map[common.EntityKind]*CatalogSnapshot
}

// NewCatalogCache builds a cache; ttl <= 0 uses DefaultCacheTTL
func NewCatalogCache(catalog EntityCatalog, aliases AliasStore, normalize func(common.EntityKind, string) string, ttl time.Duration) *CatalogCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CatalogCache{
		catalog:   catalog,
		aliases:   aliases,
		normalize: normalize,
		ttl:       ttl,
		now:       time.Now,
		snapshots: make(map[common.EntityKind]*CatalogSnapshot),
	}
}

// Get retrieves the snapshot from cache or loads it from the stores
func (c *CatalogCache) Get(ctx context.Context, kind common.EntityKind) (*CatalogSnapshot, error) {
	c.mu.RLock()
	snap, exists := c.snapshots[kind]
	c.mu.RUnlock()

	if exists && c.now().Sub(snap.LoadedAt) < c.ttl {
		return snap, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	snap, exists = c.snapshots[kind]
	if exists && c.now().Sub(snap.LoadedAt) < c.ttl {
		return snap, nil
	}

	snap, err := c.load(ctx, kind)
	if err != nil {
		return nil, err
	}
	c.snapshots[kind] = snap
	return snap, nil
}

func (c *CatalogCache) load(ctx context.Context, kind common.EntityKind) (*CatalogSnapshot, error) {
	entries, err := c.catalog.ListEntries(ctx, kind)
	if err != nil {
		return nil, err
	}
	aliases, err := c.aliases.List(ctx, kind)
	if err != nil {
		return nil, err
	}

	snap := &CatalogSnapshot{
		Kind:       kind,
		Entries:    entries,
		LoadedAt:   c.now(),
		candidates: make([]processor.Candidate, 0, len(entries)+len(aliases)),
		byName:     make(map[string]uint, len(entries)),
	}
	for _, e := range entries {
		normalized := c.normalize(kind, e.Name)
		if normalized == "" {
			continue
		}
		if _, taken := snap.byName[normalized]; !taken {
			snap.byName[normalized] = e.ID
		}
		snap.candidates = append(snap.candidates, processor.Candidate{Text: normalized, EntityID: e.ID})
	}
	for _, a := range aliases {
		snap.candidates = append(snap.candidates, processor.Candidate{Text: a.Alias, EntityID: a.EntityID})
	}
	return snap, nil
}

// Invalidate drops the snapshot of one kind
func (c *CatalogCache) Invalidate(kind common.EntityKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, kind)
}

// Clear drops every snapshot
func (c *CatalogCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = make(map[common.EntityKind]*CatalogSnapshot)
}
