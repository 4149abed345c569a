// models.go - Relational schema for catalog, aliases and invoices

package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supplier is the canonical issuer of invoices
type Supplier struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	INN       *string   `gorm:"column:inn;uniqueIndex" json:"inn,omitempty"` // tax identifier
	KPP       *string   `gorm:"column:kpp" json:"kpp,omitempty"`             // registration code
	Address   *string   `json:"address,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Supplier) TableName() string { return "suppliers" }

// Product is a canonical catalog item
type Product struct {
	ID        uint                `gorm:"primaryKey" json:"id"`
	Name      string              `gorm:"not null" json:"name"`
	Code      *string             `gorm:"uniqueIndex" json:"code,omitempty"`
	Unit      string              `gorm:"not null;default:''" json:"unit"`
	Price     decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"price"`
	Comment   *string             `json:"comment,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// ProductAlias maps a normalized surface form to exactly one product
type ProductAlias struct {
	ID        uint      `gorm:"primaryKey"`
	Alias     string    `gorm:"uniqueIndex;not null"`
	ProductID uint      `gorm:"index;not null"`
	Product   *Product  `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

func (ProductAlias) TableName() string { return "product_name_lookup" }

// SupplierAlias is the supplier counterpart of ProductAlias
type SupplierAlias struct {
	ID         uint      `gorm:"primaryKey"`
	Alias      string    `gorm:"uniqueIndex;not null"`
	SupplierID uint      `gorm:"index;not null"`
	Supplier   *Supplier `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time
}

func (SupplierAlias) TableName() string { return "supplier_name_lookup" }

// Invoice is one document from one supplier
type Invoice struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	SupplierID *uint           `gorm:"index" json:"supplier_id"`
	Supplier   *Supplier       `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Number     *string         `json:"number"`
	Date       time.Time       `gorm:"not null" json:"date"`
	TotalSum   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_sum"`
	Comment    *string         `json:"comment,omitempty"`
	Items      []InvoiceItem   `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceItem keeps the extracted name verbatim next to the optional product link
type InvoiceItem struct {
	ID        uint                `gorm:"primaryKey" json:"id"`
	InvoiceID uint                `gorm:"index;not null" json:"invoice_id"`
	ProductID *uint               `gorm:"index" json:"product_id"`
	Product   *Product            `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Name      string              `gorm:"not null" json:"name"`
	Quantity  decimal.Decimal     `gorm:"type:numeric(14,3);not null" json:"quantity"`
	Unit      string              `json:"unit"`
	Price     decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"price"`
	Sum       decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"sum"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// AllModels lists every table in migration order
func AllModels() []interface{} {
	return []interface{}{
		&Supplier{}, &Product{},
		&ProductAlias{}, &SupplierAlias{},
		&Invoice{}, &InvoiceItem{},
	}
}
