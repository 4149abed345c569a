// assembler.go - Builds invoice records from resolution outcomes

package assembler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/processor"
	"github.com/bosocmputer/invoice_resolver/internal/resolution"
	"github.com/bosocmputer/invoice_resolver/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Date layouts accepted in invoice headers
var dateLayouts = []string{"2006-01-02", "02.01.2006", "02.01.06", time.RFC3339}

// InvoiceStore persists a fully built invoice atomically and edits single rows afterwards
type InvoiceStore interface {
	Create(ctx context.Context, inv *storage.Invoice) error
	UpdateItem(ctx context.Context, invoiceID, itemID uint, patch storage.ItemPatch) (*storage.InvoiceItem, []storage.FieldChange, error)
}

// Header is the document level part of a draft
type Header struct {
	Number   string            `json:"number"`
	Date     string            `json:"date"`
	TotalSum decimal.Decimal   `json:"total_sum"`
	Supplier resolution.Result `json:"supplier"`
	Comment  string            `json:"comment,omitempty"`
}

// Line is one extracted position with its product resolution
type Line struct {
	Name     string              `json:"name"`
	Product  resolution.Result   `json:"product"`
	Quantity decimal.NullDecimal `json:"quantity"`
	Unit     string              `json:"unit"`
	Price    decimal.NullDecimal `json:"price"`
	Sum      decimal.NullDecimal `json:"sum"`
	Deleted  bool                `json:"deleted,omitempty"` // dropped by the operator during review
}

// InvoiceDraft is everything needed to persist one invoice.
// The document total is kept unless RecomputeTotal asks for the sum of line sums.
type InvoiceDraft struct {
	Header
	Lines          []Line `json:"lines"`
	RecomputeTotal bool   `json:"recompute_total"`
}

// Assembler turns drafts into stored invoices
type Assembler struct {
	store   InvoiceStore
	catalog storage.EntityCatalog
	log     *zap.Logger
}

func NewAssembler(store InvoiceStore, catalog storage.EntityCatalog, log *zap.Logger) *Assembler {
	return &Assembler{store: store, catalog: catalog, log: common.OrGlobal(log)}
}

// Assemble validates the draft and stores invoice and items in one transaction.
// Unresolved lines are kept with a null product and their name as extracted.
func (a *Assembler) Assemble(ctx context.Context, draft InvoiceDraft) (*storage.Invoice, error) {
	rc := common.FromContext(ctx)
	rc.StartStep("assemble_invoice")

	inv, err := a.Build(ctx, draft)
	if err == nil {
		err = a.store.Create(ctx, inv)
	}
	rc.EndStep(err)
	if err != nil {
		return nil, err
	}

	unresolved := 0
	for _, item := range inv.Items {
		if item.ProductID == nil {
			unresolved++
		}
	}
	a.log.Info("invoice stored",
		zap.Uint("invoice_id", inv.ID),
		zap.Int("items", len(inv.Items)),
		zap.Int("unresolved_items", unresolved),
		zap.String("total_sum", inv.TotalSum.StringFixed(2)))
	return inv, nil
}

// Build validates the draft and returns the unsaved invoice
func (a *Assembler) Build(ctx context.Context, draft InvoiceDraft) (*storage.Invoice, error) {
	date, err := parseDate(draft.Date)
	if err != nil {
		return nil, err
	}

	// ids come from the client, so both ends of every reference are checked
	supplierID := draft.Supplier.ResolvedID()
	if supplierID != nil {
		if _, err := a.catalog.GetEntity(ctx, common.KindSupplier, *supplierID); err != nil {
			return nil, &common.LineError{Line: 0, Kind: common.KindSupplier, Err: err}
		}
	}

	inv := &storage.Invoice{
		SupplierID: supplierID,
		Number:     trimmed(draft.Number),
		Date:       date,
		Comment:    trimmed(draft.Comment),
		Items:      make([]storage.InvoiceItem, 0, len(draft.Lines)),
	}

	lineTotal := decimal.Zero
	for i, line := range draft.Lines {
		if line.Deleted {
			continue
		}
		item, err := a.buildItem(ctx, line)
		if err != nil {
			return nil, &common.LineError{Line: i + 1, Kind: common.KindProduct, Err: err}
		}
		if item.Sum.Valid {
			lineTotal = lineTotal.Add(item.Sum.Decimal)
		}
		inv.Items = append(inv.Items, item)
	}

	inv.TotalSum = draft.TotalSum
	if draft.RecomputeTotal {
		inv.TotalSum = lineTotal
	}
	if inv.TotalSum.IsNegative() {
		return nil, fmt.Errorf("%w: negative total %s", common.ErrInvalidInvoice, inv.TotalSum)
	}
	inv.TotalSum = inv.TotalSum.Round(2)
	return inv, nil
}

func (a *Assembler) buildItem(ctx context.Context, line Line) (storage.InvoiceItem, error) {
	if strings.TrimSpace(line.Name) == "" {
		return storage.InvoiceItem{}, fmt.Errorf("%w: empty name", common.ErrInvalidInvoice)
	}
	if !line.Quantity.Valid || !line.Quantity.Decimal.IsPositive() {
		return storage.InvoiceItem{}, fmt.Errorf("%w: quantity is required", common.ErrInvalidInvoice)
	}
	if line.Price.Valid && line.Price.Decimal.IsNegative() {
		return storage.InvoiceItem{}, fmt.Errorf("%w: negative price", common.ErrInvalidInvoice)
	}
	if line.Sum.Valid && line.Sum.Decimal.IsNegative() {
		return storage.InvoiceItem{}, fmt.Errorf("%w: negative sum", common.ErrInvalidInvoice)
	}

	item := storage.InvoiceItem{
		ProductID: line.Product.ResolvedID(),
		Name:      line.Name,
		Quantity:  line.Quantity.Decimal.Round(3),
		Unit:      processor.NormalizeUnit(line.Unit),
		Price:     roundNull(line.Price),
		Sum:       roundNull(line.Sum),
	}

	if item.ProductID != nil {
		entry, err := a.catalog.GetEntity(ctx, common.KindProduct, *item.ProductID)
		if err != nil {
			return storage.InvoiceItem{}, err
		}
		if item.Unit == "" {
			item.Unit = processor.NormalizeUnit(entry.Unit)
		}
	}
	if !item.Sum.Valid && item.Price.Valid {
		item.Sum = decimal.NewNullDecimal(item.Price.Decimal.Mul(item.Quantity).Round(2))
	}
	return item, nil
}

// ItemEdit is an operator correction of one stored row. ProductID 0 unlinks the product.
type ItemEdit struct {
	ProductID *uint            `json:"product_id"`
	Name      *string          `json:"name"`
	Quantity  *decimal.Decimal `json:"quantity"`
	Unit      *string          `json:"unit"`
	Price     *decimal.Decimal `json:"price"`
	Sum       *decimal.Decimal `json:"sum"`
}

// EditItem validates and applies one row correction, logging every changed field
func (a *Assembler) EditItem(ctx context.Context, invoiceID, itemID uint, edit ItemEdit) (*storage.InvoiceItem, error) {
	var patch storage.ItemPatch
	if edit.ProductID != nil {
		if *edit.ProductID == 0 {
			patch.ClearProduct = true
		} else {
			if _, err := a.catalog.GetEntity(ctx, common.KindProduct, *edit.ProductID); err != nil {
				return nil, err
			}
			patch.ProductID = edit.ProductID
		}
	}
	if edit.Name != nil {
		name := strings.TrimSpace(*edit.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty name", common.ErrInvalidInvoice)
		}
		patch.Name = &name
	}
	if edit.Quantity != nil {
		if !edit.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: quantity must be positive", common.ErrInvalidInvoice)
		}
		q := edit.Quantity.Round(3)
		patch.Quantity = &q
	}
	if edit.Unit != nil {
		unit := processor.NormalizeUnit(*edit.Unit)
		patch.Unit = &unit
	}
	for field, v := range map[string]*decimal.Decimal{"price": edit.Price, "sum": edit.Sum} {
		if v != nil && v.IsNegative() {
			return nil, fmt.Errorf("%w: negative %s", common.ErrInvalidInvoice, field)
		}
	}
	if edit.Price != nil {
		p := edit.Price.Round(2)
		patch.Price = &p
	}
	if edit.Sum != nil {
		s := edit.Sum.Round(2)
		patch.Sum = &s
	}

	item, changes, err := a.store.UpdateItem(ctx, invoiceID, itemID, patch)
	if err != nil {
		return nil, err
	}
	for _, ch := range changes {
		a.log.Info("invoice item edited",
			zap.Uint("invoice_id", invoiceID),
			zap.Uint("item_id", itemID),
			zap.String("field", ch.Field),
			zap.String("old", ch.Old),
			zap.String("new", ch.New),
			zap.String("request_id", common.RequestIDFrom(ctx)))
	}
	return item, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", common.ErrInvalidInvoice)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised date %q", common.ErrInvalidInvoice, raw)
}

func trimmed(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func roundNull(v decimal.NullDecimal) decimal.NullDecimal {
	if !v.Valid {
		return v
	}
	return decimal.NewNullDecimal(v.Decimal.Round(2))
}
