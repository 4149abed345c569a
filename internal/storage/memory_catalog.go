// memory_catalog.go - Process-local EntityCatalog for tests

package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bosocmputer/invoice_resolver/internal/common"
)

// MemoryCatalog assigns ids in insertion order per kind
type MemoryCatalog struct {
	mu      sync.Mutex
	entries map[common.EntityKind][]CatalogEntry
	nextID  uint
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{entries: make(map[common.EntityKind][]CatalogEntry)}
}

// Add appends an entity and returns its id
func (c *MemoryCatalog) Add(kind common.EntityKind, name, taxID string) uint {
	entry, _ := c.CreateEntity(context.Background(), kind, NewEntity{Name: name, TaxID: taxID})
	return entry.ID
}

func (c *MemoryCatalog) ListEntries(_ context.Context, kind common.EntityKind) ([]CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CatalogEntry, len(c.entries[kind]))
	copy(out, c.entries[kind])
	return out, nil
}

func (c *MemoryCatalog) GetEntity(_ context.Context, kind common.EntityKind, id uint) (CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries[kind] {
		if e.ID == id {
			return e, nil
		}
	}
	return CatalogEntry{}, fmt.Errorf("%s %d: %w", kind, id, common.ErrEntityNotFound)
}

func (c *MemoryCatalog) CreateEntity(_ context.Context, kind common.EntityKind, e NewEntity) (CatalogEntry, error) {
	if !kind.Valid() {
		return CatalogEntry{}, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	entry := CatalogEntry{ID: c.nextID, Name: strings.TrimSpace(e.Name), Unit: e.Unit}
	if kind == common.KindSupplier {
		entry.TaxID = NormalizeTaxID(e.TaxID)
	}
	c.entries[kind] = append(c.entries[kind], entry)
	return entry, nil
}

func (c *MemoryCatalog) FindByTaxID(_ context.Context, taxID string) (CatalogEntry, bool, error) {
	taxID = NormalizeTaxID(taxID)
	if taxID == "" {
		return CatalogEntry{}, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries[common.KindSupplier] {
		if e.TaxID == taxID {
			return e, true, nil
		}
	}
	return CatalogEntry{}, false, nil
}

func (c *MemoryCatalog) DeleteEntity(_ context.Context, kind common.EntityKind, id uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries[kind] {
		if e.ID == id {
			c.entries[kind] = append(c.entries[kind][:i], c.entries[kind][i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s %d: %w", kind, id, common.ErrEntityNotFound)
}
