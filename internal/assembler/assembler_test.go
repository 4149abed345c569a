package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/resolution"
	"github.com/bosocmputer/invoice_resolver/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type env struct {
	assembler *Assembler
	catalog   *storage.CatalogRepository
	invoices  *storage.InvoiceRepository
	flour     uint
	supplier  uint
}

func newEnv(t *testing.T) *env {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := storage.OpenDatabase("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name), nil)
	require.NoError(t, err)
	t.Cleanup(func() { storage.CloseDatabase(db) })

	e := &env{catalog: storage.NewCatalogRepository(db), invoices: storage.NewInvoiceRepository(db)}
	e.assembler = NewAssembler(e.invoices, e.catalog, zap.NewNop())

	ctx := context.Background()
	flour, err := e.catalog.CreateEntity(ctx, common.KindProduct, storage.NewEntity{Name: "Мука пшеничная в/с", Unit: "кг"})
	require.NoError(t, err)
	supplier, err := e.catalog.CreateEntity(ctx, common.KindSupplier, storage.NewEntity{Name: `ООО "Ромашка"`, TaxID: "7701234567"})
	require.NoError(t, err)
	e.flour, e.supplier = flour.ID, supplier.ID
	return e
}

func result(kind common.EntityKind, query string, outcome resolution.Outcome, id uint) resolution.Result {
	r := resolution.Result{Kind: kind, Query: query, Outcome: outcome}
	if id != 0 {
		r.EntityID = &id
	}
	return r
}

func qty(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func (e *env) draft() InvoiceDraft {
	return InvoiceDraft{
		Header: Header{
			Number:   "  НФ-0042 ",
			Date:     "14.10.2026",
			TotalSum: decimal.RequireFromString("1250.50"),
			Supplier: result(common.KindSupplier, "ООО Ромашка", resolution.OutcomeExact, e.supplier),
		},
		Lines: []Line{
			{
				Name:     "Мука пшен в/с",
				Product:  result(common.KindProduct, "Мука пшен в/с", resolution.OutcomeAutoFuzzy, e.flour),
				Quantity: qty("10"),
				Price:    qty("100"),
			},
			{
				Name:     "Сыр  российск.",
				Product:  result(common.KindProduct, "Сыр  российск.", resolution.OutcomeAmbiguous, 0),
				Quantity: qty("1.5"),
				Unit:     "KG",
				Sum:      qty("250.50"),
			},
		},
	}
}

func TestAssemblePersistsResolvedAndUnresolvedLines(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.assembler.Assemble(ctx, e.draft())
	require.NoError(t, err)
	require.NotZero(t, inv.ID)

	stored, err := e.invoices.Find(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Number)
	assert.Equal(t, "НФ-0042", *stored.Number)
	require.NotNil(t, stored.SupplierID)
	assert.Equal(t, e.supplier, *stored.SupplierID)
	assert.Equal(t, "2026-10-14", stored.Date.Format("2006-01-02"))
	assert.True(t, stored.TotalSum.Equal(decimal.RequireFromString("1250.50")))

	require.Len(t, stored.Items, 2)
	first, second := stored.Items[0], stored.Items[1]
	require.NotNil(t, first.ProductID)
	assert.Equal(t, e.flour, *first.ProductID)
	assert.Equal(t, "кг", first.Unit, "unit falls back to the product's unit")
	assert.True(t, first.Sum.Decimal.Equal(decimal.NewFromInt(1000)), "sum derived from price and quantity")

	assert.Nil(t, second.ProductID, "ambiguous line stays unresolved")
	assert.Equal(t, "Сыр  российск.", second.Name)
	assert.Equal(t, "кг", second.Unit)
	assert.False(t, second.Price.Valid)
}

func TestAssembleKeepsDocumentTotalUnlessAsked(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	draft := e.draft()
	draft.TotalSum = decimal.RequireFromString("999.99")
	inv, err := e.assembler.Assemble(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, "999.99", inv.TotalSum.StringFixed(2))

	draft.RecomputeTotal = true
	inv, err = e.assembler.Assemble(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, "1250.50", inv.TotalSum.StringFixed(2))
}

func TestAssembleSkipsDeletedLines(t *testing.T) {
	e := newEnv(t)

	draft := e.draft()
	draft.Lines[1].Deleted = true
	draft.Lines[1].Quantity = decimal.NullDecimal{}

	inv, err := e.assembler.Assemble(context.Background(), draft)
	require.NoError(t, err)
	assert.Len(t, inv.Items, 1)
}

func TestAssembleValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(d *InvoiceDraft)
		line   int
	}{
		{"missing date", func(d *InvoiceDraft) { d.Date = " " }, 0},
		{"bad date", func(d *InvoiceDraft) { d.Date = "yesterday" }, 0},
		{"negative total", func(d *InvoiceDraft) { d.TotalSum = decimal.NewFromInt(-1) }, 0},
		{"missing quantity", func(d *InvoiceDraft) { d.Lines[1].Quantity = decimal.NullDecimal{} }, 2},
		{"zero quantity", func(d *InvoiceDraft) { d.Lines[0].Quantity = qty("0") }, 1},
		{"negative price", func(d *InvoiceDraft) { d.Lines[0].Price = qty("-5") }, 1},
		{"blank name", func(d *InvoiceDraft) { d.Lines[1].Name = "  " }, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := e.draft()
			tt.mutate(&draft)

			inv, err := e.assembler.Assemble(ctx, draft)
			assert.Nil(t, inv)
			require.ErrorIs(t, err, common.ErrInvalidInvoice)

			var lineErr *common.LineError
			if tt.line > 0 {
				require.True(t, errors.As(err, &lineErr))
				assert.Equal(t, tt.line, lineErr.Line)
			} else {
				assert.False(t, errors.As(err, &lineErr))
			}
		})
	}
}

func TestAssembleBlankNumberIsNull(t *testing.T) {
	e := newEnv(t)

	draft := e.draft()
	draft.Number = "   "
	draft.Supplier = result(common.KindSupplier, "неизвестный", resolution.OutcomeNoMatch, 0)

	inv, err := e.assembler.Assemble(context.Background(), draft)
	require.NoError(t, err)
	assert.Nil(t, inv.Number)
	assert.Nil(t, inv.SupplierID)
}

func TestAssembleRejectsUnknownEntityIDs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	draft := e.draft()
	draft.Lines[0].Product = result(common.KindProduct, "Мука пшен в/с", resolution.OutcomeResolved, 9999)
	_, err := e.assembler.Assemble(ctx, draft)
	require.ErrorIs(t, err, common.ErrEntityNotFound)
	var lineErr *common.LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, 1, lineErr.Line)
	assert.Equal(t, common.KindProduct, lineErr.Kind)

	draft = e.draft()
	draft.Supplier = result(common.KindSupplier, "ООО Ромашка", resolution.OutcomeResolved, 9999)
	_, err = e.assembler.Assemble(ctx, draft)
	require.ErrorIs(t, err, common.ErrEntityNotFound)
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, common.KindSupplier, lineErr.Kind)

	invoices, err := e.invoices.ListBySupplier(ctx, e.supplier)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

type failingStore struct{}

func (failingStore) Create(context.Context, *storage.Invoice) error {
	return common.StoreError("create invoice", errors.New("disk full"))
}

func (failingStore) UpdateItem(context.Context, uint, uint, storage.ItemPatch) (*storage.InvoiceItem, []storage.FieldChange, error) {
	return nil, nil, common.StoreError("update invoice item", errors.New("disk full"))
}

func TestAssembleStoreFailure(t *testing.T) {
	catalog := storage.NewMemoryCatalog()
	a := NewAssembler(failingStore{}, catalog, nil)

	_, err := a.Assemble(context.Background(), InvoiceDraft{
		Header: Header{Date: "2026-10-14"},
		Lines:  []Line{{Name: "соль", Quantity: qty("1"), Unit: "шт"}},
	})
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestAssembleRecordsStep(t *testing.T) {
	e := newEnv(t)
	rc := common.NewRequestContext(zap.NewNop())
	ctx := common.WithRequestContext(context.Background(), rc)

	_, err := e.assembler.Assemble(ctx, e.draft())
	require.NoError(t, err)

	steps := rc.Steps()
	require.Len(t, steps, 1)
	assert.Equal(t, "assemble_invoice", steps[0].Name)
	assert.Equal(t, "success", steps[0].Status)
}

func TestEditItemRelinksProductAndLogsChanges(t *testing.T) {
	e := newEnv(t)
	core, logs := observer.New(zap.InfoLevel)
	e.assembler = NewAssembler(e.invoices, e.catalog, zap.New(core))
	ctx := context.Background()

	inv, err := e.assembler.Assemble(ctx, e.draft())
	require.NoError(t, err)
	cheeseLine := inv.Items[1]
	require.Nil(t, cheeseLine.ProductID)

	cheese, err := e.catalog.CreateEntity(ctx, common.KindProduct, storage.NewEntity{Name: "Сыр Российский", Unit: "кг"})
	require.NoError(t, err)
	qtyEdit := decimal.RequireFromString("1.75")
	item, err := e.assembler.EditItem(ctx, inv.ID, cheeseLine.ID, ItemEdit{ProductID: &cheese.ID, Quantity: &qtyEdit})
	require.NoError(t, err)
	require.NotNil(t, item.ProductID)
	assert.Equal(t, cheese.ID, *item.ProductID)
	assert.True(t, item.Sum.Decimal.Equal(decimal.RequireFromString("250.50")), "sum stays as stored")

	edited := logs.FilterMessage("invoice item edited").All()
	require.Len(t, edited, 2)
	assert.Equal(t, "product_id", edited[0].ContextMap()["field"])
	assert.Equal(t, "quantity", edited[1].ContextMap()["field"])
	assert.Equal(t, "1.5", edited[1].ContextMap()["old"])
	assert.Equal(t, "1.75", edited[1].ContextMap()["new"])

	unlink := uint(0)
	item, err = e.assembler.EditItem(ctx, inv.ID, cheeseLine.ID, ItemEdit{ProductID: &unlink})
	require.NoError(t, err)
	assert.Nil(t, item.ProductID)
}

func TestEditItemValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv, err := e.assembler.Assemble(ctx, e.draft())
	require.NoError(t, err)
	itemID := inv.Items[0].ID

	missing := uint(9999)
	_, err = e.assembler.EditItem(ctx, inv.ID, itemID, ItemEdit{ProductID: &missing})
	assert.ErrorIs(t, err, common.ErrEntityNotFound)

	zero := decimal.Zero
	_, err = e.assembler.EditItem(ctx, inv.ID, itemID, ItemEdit{Quantity: &zero})
	assert.ErrorIs(t, err, common.ErrInvalidInvoice)

	negative := decimal.NewFromInt(-1)
	_, err = e.assembler.EditItem(ctx, inv.ID, itemID, ItemEdit{Sum: &negative})
	assert.ErrorIs(t, err, common.ErrInvalidInvoice)

	blank := "  "
	_, err = e.assembler.EditItem(ctx, inv.ID, itemID, ItemEdit{Name: &blank})
	assert.ErrorIs(t, err, common.ErrInvalidInvoice)

	unit := "KG"
	_, err = e.assembler.EditItem(ctx, inv.ID, itemID+100, ItemEdit{Unit: &unit})
	assert.ErrorIs(t, err, common.ErrEntityNotFound)
}
