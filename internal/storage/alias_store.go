// alias_store.go - Normalized alias -> canonical entity mapping, one table per kind

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AliasEntry is one stored alias
type AliasEntry struct {
	Alias    string `json:"alias"`
	EntityID uint   `json:"entity_id"`
}

// AliasStats summarises one alias table
type AliasStats struct {
	TotalEntries   int64 `json:"total_entries"`
	UniqueEntities int64 `json:"unique_entities"`
}

// AliasStore is append-only: an alias is never re-pointed without an explicit Delete
type AliasStore interface {
	Lookup(ctx context.Context, kind common.EntityKind, alias string) (uint, bool, error)
	// Record is a no-op when alias already maps to entityID and fails with
	// *common.ConflictError when it maps elsewhere
	Record(ctx context.Context, kind common.EntityKind, alias string, entityID uint) error
	AliasesFor(ctx context.Context, kind common.EntityKind, entityID uint) ([]string, error)
	Delete(ctx context.Context, kind common.EntityKind, alias string) error
	// List returns every alias of kind in insertion order
	List(ctx context.Context, kind common.EntityKind) ([]AliasEntry, error)
	Stats(ctx context.Context, kind common.EntityKind) (AliasStats, error)
}

type aliasTable struct {
	name   string
	column string
}

var aliasTables = map[common.EntityKind]aliasTable{
	common.KindProduct:  {name: ProductAlias{}.TableName(), column: "product_id"},
	common.KindSupplier: {name: SupplierAlias{}.TableName(), column: "supplier_id"},
}

func tableFor(kind common.EntityKind) (aliasTable, error) {
	t, ok := aliasTables[kind]
	if !ok {
		return aliasTable{}, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
	return t, nil
}

// GormAliasStore keeps aliases in product_name_lookup / supplier_name_lookup.
// The unique index on alias is the only concurrency control.
type GormAliasStore struct {
	db *gorm.DB
}

func NewGormAliasStore(db *gorm.DB) *GormAliasStore {
	return &GormAliasStore{db: db}
}

func (s *GormAliasStore) Lookup(ctx context.Context, kind common.EntityKind, alias string) (uint, bool, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, false, err
	}

	var entries []AliasEntry
	err = s.db.WithContext(ctx).Table(t.name).
		Select("alias, "+t.column+" AS entity_id").
		Where("alias = ?", alias).
		Limit(1).
		Scan(&entries).Error
	if err != nil {
		return 0, false, common.StoreError("alias lookup", err)
	}
	if len(entries) == 0 {
		return 0, false, nil
	}
	return entries[0].EntityID, true, nil
}

func (s *GormAliasStore) Record(ctx context.Context, kind common.EntityKind, alias string, entityID uint) error {
	var row interface{}
	switch kind {
	case common.KindProduct:
		row = &ProductAlias{Alias: alias, ProductID: entityID}
	case common.KindSupplier:
		row = &SupplierAlias{Alias: alias, SupplierID: entityID}
	default:
		return fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "alias"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return common.StoreError("alias record", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// lost the race or re-recording: compare with the committed row
	existing, found, err := s.Lookup(ctx, kind, alias)
	if err != nil {
		return err
	}
	if !found {
		return common.StoreError("alias record", errors.New("insert skipped but no row found"))
	}
	if existing != entityID {
		return &common.ConflictError{Kind: kind, Alias: alias, Existing: existing, Requested: entityID}
	}
	return nil
}

func (s *GormAliasStore) AliasesFor(ctx context.Context, kind common.EntityKind, entityID uint) ([]string, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var aliases []string
	err = s.db.WithContext(ctx).Table(t.name).
		Where(t.column+" = ?", entityID).
		Order("id").
		Pluck("alias", &aliases).Error
	if err != nil {
		return nil, common.StoreError("aliases for entity", err)
	}
	return aliases, nil
}

func (s *GormAliasStore) Delete(ctx context.Context, kind common.EntityKind, alias string) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Exec("DELETE FROM "+t.name+" WHERE alias = ?", alias).Error; err != nil {
		return common.StoreError("alias delete", err)
	}
	return nil
}

func (s *GormAliasStore) List(ctx context.Context, kind common.EntityKind) ([]AliasEntry, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var entries []AliasEntry
	err = s.db.WithContext(ctx).Table(t.name).
		Select("alias, " + t.column + " AS entity_id").
		Order("id").
		Scan(&entries).Error
	if err != nil {
		return nil, common.StoreError("alias list", err)
	}
	return entries, nil
}

func (s *GormAliasStore) Stats(ctx context.Context, kind common.EntityKind) (AliasStats, error) {
	t, err := tableFor(kind)
	if err != nil {
		return AliasStats{}, err
	}

	var stats AliasStats
	err = s.db.WithContext(ctx).Table(t.name).
		Select("COUNT(*) AS total_entries, COUNT(DISTINCT " + t.column + ") AS unique_entities").
		Scan(&stats).Error
	if err != nil {
		return AliasStats{}, common.StoreError("alias stats", err)
	}
	return stats, nil
}
