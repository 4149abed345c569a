// catalog.go - Canonical products and suppliers

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CatalogEntry is the kind-independent view of a canonical entity
type CatalogEntry struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	TaxID string `json:"tax_id,omitempty"` // suppliers only
	Unit  string `json:"unit,omitempty"`   // products only
}

// NewEntity is a "create new entity" request from the confirmation flow
type NewEntity struct {
	Name  string              `json:"name"` // empty means the query text
	Code  string              `json:"code"`
	Unit  string              `json:"unit"`
	TaxID string              `json:"tax_id"`
	Price decimal.NullDecimal `json:"price"`
}

// EntityCatalog is the part of the catalog the resolution engine reads and grows
type EntityCatalog interface {
	ListEntries(ctx context.Context, kind common.EntityKind) ([]CatalogEntry, error)
	GetEntity(ctx context.Context, kind common.EntityKind, id uint) (CatalogEntry, error)
	CreateEntity(ctx context.Context, kind common.EntityKind, e NewEntity) (CatalogEntry, error)
	FindByTaxID(ctx context.Context, taxID string) (CatalogEntry, bool, error)
	DeleteEntity(ctx context.Context, kind common.EntityKind, id uint) error
}

// NormalizeTaxID removes dashes and spaces from a tax identifier
func NormalizeTaxID(taxID string) string {
	taxID = strings.ReplaceAll(taxID, "-", "")
	taxID = strings.ReplaceAll(taxID, " ", "")
	return strings.TrimSpace(taxID)
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// CatalogRepository is the gorm backed catalog
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) ListEntries(ctx context.Context, kind common.EntityKind) ([]CatalogEntry, error) {
	switch kind {
	case common.KindProduct:
		products, err := r.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]CatalogEntry, 0, len(products))
		for _, p := range products {
			out = append(out, productEntry(&p))
		}
		return out, nil
	case common.KindSupplier:
		suppliers, err := r.ListSuppliers(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]CatalogEntry, 0, len(suppliers))
		for _, s := range suppliers {
			out = append(out, supplierEntry(&s))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
}

func (r *CatalogRepository) GetEntity(ctx context.Context, kind common.EntityKind, id uint) (CatalogEntry, error) {
	switch kind {
	case common.KindProduct:
		p, err := r.FindProduct(ctx, id)
		if err != nil {
			return CatalogEntry{}, err
		}
		return productEntry(p), nil
	case common.KindSupplier:
		s, err := r.FindSupplier(ctx, id)
		if err != nil {
			return CatalogEntry{}, err
		}
		return supplierEntry(s), nil
	}
	return CatalogEntry{}, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
}

func (r *CatalogRepository) CreateEntity(ctx context.Context, kind common.EntityKind, e NewEntity) (CatalogEntry, error) {
	switch kind {
	case common.KindProduct:
		p := &Product{Name: strings.TrimSpace(e.Name), Code: optional(e.Code), Unit: e.Unit, Price: e.Price}
		if err := r.CreateProduct(ctx, p); err != nil {
			return CatalogEntry{}, err
		}
		return productEntry(p), nil
	case common.KindSupplier:
		s := &Supplier{Name: strings.TrimSpace(e.Name), INN: optional(NormalizeTaxID(e.TaxID))}
		if err := r.CreateSupplier(ctx, s); err != nil {
			return CatalogEntry{}, err
		}
		return supplierEntry(s), nil
	}
	return CatalogEntry{}, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
}

func (r *CatalogRepository) FindByTaxID(ctx context.Context, taxID string) (CatalogEntry, bool, error) {
	taxID = NormalizeTaxID(taxID)
	if taxID == "" {
		return CatalogEntry{}, false, nil
	}

	var s Supplier
	err := r.db.WithContext(ctx).Where("inn = ?", taxID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CatalogEntry{}, false, nil
	}
	if err != nil {
		return CatalogEntry{}, false, common.StoreError("supplier by tax id", err)
	}
	return supplierEntry(&s), true, nil
}

// DeleteEntity removes a product or supplier; aliases cascade, references are nulled
func (r *CatalogRepository) DeleteEntity(ctx context.Context, kind common.EntityKind, id uint) error {
	var model interface{}
	switch kind {
	case common.KindProduct:
		model = &Product{}
	case common.KindSupplier:
		model = &Supplier{}
	default:
		return fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}

	res := r.db.WithContext(ctx).Delete(model, id)
	if res.Error != nil {
		return common.StoreError("delete "+kind.String(), res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, common.ErrEntityNotFound)
	}
	return nil
}

func (r *CatalogRepository) CreateProduct(ctx context.Context, p *Product) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return common.StoreError("create product", err)
	}
	return nil
}

func (r *CatalogRepository) UpdateProduct(ctx context.Context, p *Product) error {
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return common.StoreError("update product", err)
	}
	return nil
}

func (r *CatalogRepository) FindProduct(ctx context.Context, id uint) (*Product, error) {
	var p Product
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("product %d: %w", id, common.ErrEntityNotFound)
	}
	if err != nil {
		return nil, common.StoreError("find product", err)
	}
	return &p, nil
}

func (r *CatalogRepository) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := r.db.WithContext(ctx).Order("id").Find(&products).Error; err != nil {
		return nil, common.StoreError("list products", err)
	}
	return products, nil
}

// UpsertProductByCode updates the product with the same code or inserts a new one
func (r *CatalogRepository) UpsertProductByCode(ctx context.Context, p *Product) (bool, error) {
	if p.Code == nil {
		return true, r.CreateProduct(ctx, p)
	}

	var existing Product
	err := r.db.WithContext(ctx).Where("code = ?", *p.Code).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, r.CreateProduct(ctx, p)
	}
	if err != nil {
		return false, common.StoreError("find product by code", err)
	}

	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	return false, r.UpdateProduct(ctx, p)
}

func (r *CatalogRepository) CreateSupplier(ctx context.Context, s *Supplier) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return common.StoreError("create supplier", err)
	}
	return nil
}

func (r *CatalogRepository) UpdateSupplier(ctx context.Context, s *Supplier) error {
	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		return common.StoreError("update supplier", err)
	}
	return nil
}

func (r *CatalogRepository) FindSupplier(ctx context.Context, id uint) (*Supplier, error) {
	var s Supplier
	err := r.db.WithContext(ctx).First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("supplier %d: %w", id, common.ErrEntityNotFound)
	}
	if err != nil {
		return nil, common.StoreError("find supplier", err)
	}
	return &s, nil
}

func (r *CatalogRepository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	var suppliers []Supplier
	if err := r.db.WithContext(ctx).Order("id").Find(&suppliers).Error; err != nil {
		return nil, common.StoreError("list suppliers", err)
	}
	return suppliers, nil
}

// UpsertSupplierByTaxID updates the supplier with the same INN or inserts a new one
func (r *CatalogRepository) UpsertSupplierByTaxID(ctx context.Context, s *Supplier) (bool, error) {
	if s.INN != nil {
		s.INN = optional(NormalizeTaxID(*s.INN))
	}
	if s.INN == nil {
		return true, r.CreateSupplier(ctx, s)
	}

	var existing Supplier
	err := r.db.WithContext(ctx).Where("inn = ?", *s.INN).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, r.CreateSupplier(ctx, s)
	}
	if err != nil {
		return false, common.StoreError("find supplier by tax id", err)
	}

	s.ID = existing.ID
	s.CreatedAt = existing.CreatedAt
	return false, r.UpdateSupplier(ctx, s)
}

func productEntry(p *Product) CatalogEntry {
	return CatalogEntry{ID: p.ID, Name: p.Name, Unit: p.Unit}
}

func supplierEntry(s *Supplier) CatalogEntry {
	return CatalogEntry{ID: s.ID, Name: s.Name, TaxID: deref(s.INN)}
}
