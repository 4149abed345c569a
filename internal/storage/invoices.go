// invoices.go - Invoice persistence

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceRepository stores invoices together with their items
type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create inserts the invoice and every item in one transaction; nothing is kept on failure
func (r *InvoiceRepository) Create(ctx context.Context, inv *Invoice) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := inv.Items
		inv.Items = nil
		if err := tx.Omit("Supplier").Create(inv).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].InvoiceID = inv.ID
		}
		if len(items) > 0 {
			if err := tx.Omit("Product").Create(&items).Error; err != nil {
				return err
			}
		}
		inv.Items = items
		return nil
	})
	if err != nil {
		inv.ID = 0
		return common.StoreError("create invoice", err)
	}
	return nil
}

// Find loads an invoice with its items in line order
func (r *InvoiceRepository) Find(ctx context.Context, id uint) (*Invoice, error) {
	var inv Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&inv, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("invoice %d: %w", id, common.ErrEntityNotFound)
	}
	if err != nil {
		return nil, common.StoreError("find invoice", err)
	}
	return &inv, nil
}

// ListBySupplier returns invoices of one supplier, newest first
func (r *InvoiceRepository) ListBySupplier(ctx context.Context, supplierID uint) ([]Invoice, error) {
	var invoices []Invoice
	err := r.db.WithContext(ctx).Where("supplier_id = ?", supplierID).Order("date DESC, id DESC").Find(&invoices).Error
	if err != nil {
		return nil, common.StoreError("list invoices", err)
	}
	return invoices, nil
}

// Delete removes the invoice; items go with it through the foreign key
func (r *InvoiceRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&Invoice{}, id)
	if res.Error != nil {
		return common.StoreError("delete invoice", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("invoice %d: %w", id, common.ErrEntityNotFound)
	}
	return nil
}

// ItemPatch holds replacement values for one invoice row; nil fields keep the stored value.
// Sum is stored as given and never derived from price and quantity here.
type ItemPatch struct {
	ProductID    *uint
	ClearProduct bool
	Name         *string
	Quantity     *decimal.Decimal
	Unit         *string
	Price        *decimal.Decimal
	Sum          *decimal.Decimal
}

// FieldChange is one edited column with its values before and after
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// UpdateItem applies patch to one row of an invoice and reports what changed
func (r *InvoiceRepository) UpdateItem(ctx context.Context, invoiceID, itemID uint, patch ItemPatch) (*InvoiceItem, []FieldChange, error) {
	var item InvoiceItem
	var changes []FieldChange
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", invoiceID).First(&item, itemID).Error; err != nil {
			return err
		}
		changes = patch.apply(&item)
		if len(changes) == 0 {
			return nil
		}
		return tx.Omit("Product").Save(&item).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("invoice %d item %d: %w", invoiceID, itemID, common.ErrEntityNotFound)
	}
	if err != nil {
		return nil, nil, common.StoreError("update invoice item", err)
	}
	return &item, changes, nil
}

func (p ItemPatch) apply(item *InvoiceItem) []FieldChange {
	var changes []FieldChange
	note := func(field, before, after string) {
		if before != after {
			changes = append(changes, FieldChange{Field: field, Old: before, New: after})
		}
	}

	switch {
	case p.ClearProduct:
		note("product_id", idString(item.ProductID), "")
		item.ProductID = nil
	case p.ProductID != nil:
		id := *p.ProductID
		note("product_id", idString(item.ProductID), idString(&id))
		item.ProductID = &id
	}
	if p.Name != nil {
		note("name", item.Name, *p.Name)
		item.Name = *p.Name
	}
	if p.Quantity != nil && !p.Quantity.Equal(item.Quantity) {
		note("quantity", item.Quantity.String(), p.Quantity.String())
		item.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		note("unit", item.Unit, *p.Unit)
		item.Unit = *p.Unit
	}
	if p.Price != nil && (!item.Price.Valid || !p.Price.Equal(item.Price.Decimal)) {
		note("price", nullString(item.Price), p.Price.StringFixed(2))
		item.Price = decimal.NewNullDecimal(*p.Price)
	}
	if p.Sum != nil && (!item.Sum.Valid || !p.Sum.Equal(item.Sum.Decimal)) {
		note("sum", nullString(item.Sum), p.Sum.StringFixed(2))
		item.Sum = decimal.NewNullDecimal(*p.Sum)
	}
	return changes
}

func idString(id *uint) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(*id)
}

func nullString(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(2)
}
