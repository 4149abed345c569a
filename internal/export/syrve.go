// syrve.go - Syrve XML document rendering and delivery for stored invoices

package export

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/storage"
	"go.uber.org/zap"
)

// longest upstream error body kept in the returned error
const maxErrorBody = 512

// Document is the SyrveDocument payload
type Document struct {
	XMLName  xml.Name `xml:"SyrveDocument"`
	Supplier string   `xml:"Supplier"`
	Buyer    string   `xml:"Buyer"`
	Date     string   `xml:"Date"`
	Items    Items    `xml:"Items"`
	TotalSum string   `xml:"TotalSum"`
}

// Items always renders, even for an invoice without rows
type Items struct {
	Item []Item `xml:"Item"`
}

type Item struct {
	Name     string `xml:"Name"`
	Quantity string `xml:"Quantity"`
	Unit     string `xml:"Unit"`
	Price    string `xml:"Price"`
	Sum      string `xml:"Sum"`
}

// InvoiceFinder loads a stored invoice with its items
type InvoiceFinder interface {
	Find(ctx context.Context, id uint) (*storage.Invoice, error)
}

// SyrveConfig configures delivery; an empty URL leaves rendering available and delivery off
type SyrveConfig struct {
	URL     string
	Token   string
	Buyer   string
	Timeout time.Duration
}

// SyrveExporter renders invoices with catalog names and posts them to Syrve
type SyrveExporter struct {
	cfg      SyrveConfig
	client   *http.Client
	invoices InvoiceFinder
	catalog  storage.EntityCatalog
	log      *zap.Logger
}

func NewSyrveExporter(cfg SyrveConfig, invoices InvoiceFinder, catalog storage.EntityCatalog, log *zap.Logger) *SyrveExporter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SyrveExporter{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		invoices: invoices,
		catalog:  catalog,
		log:      common.OrGlobal(log).With(zap.String("target", "syrve")),
	}
}

// Enabled reports whether delivery is configured
func (e *SyrveExporter) Enabled() bool { return e.cfg.URL != "" }

// Document builds the payload. Linked rows carry the catalog name, unresolved rows the extracted one.
func (e *SyrveExporter) Document(ctx context.Context, invoiceID uint) (Document, error) {
	inv, err := e.invoices.Find(ctx, invoiceID)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		Buyer:    e.cfg.Buyer,
		Date:     inv.Date.Format("2006-01-02"),
		TotalSum: inv.TotalSum.StringFixed(2),
		Items:    Items{Item: make([]Item, 0, len(inv.Items))},
	}
	if inv.SupplierID != nil {
		supplier, err := e.catalog.GetEntity(ctx, common.KindSupplier, *inv.SupplierID)
		if err != nil {
			return Document{}, err
		}
		doc.Supplier = supplier.Name
	}

	for _, it := range inv.Items {
		name := it.Name
		if it.ProductID != nil {
			product, err := e.catalog.GetEntity(ctx, common.KindProduct, *it.ProductID)
			if err != nil {
				return Document{}, err
			}
			name = product.Name
		}
		doc.Items.Item = append(doc.Items.Item, Item{
			Name:     name,
			Quantity: it.Quantity.String(),
			Unit:     it.Unit,
			Price:    money(it.Price.Valid, it.Price.Decimal.StringFixed(2)),
			Sum:      money(it.Sum.Valid, it.Sum.Decimal.StringFixed(2)),
		})
	}
	return doc, nil
}

// Render returns the UTF-8 XML document with its declaration
func (e *SyrveExporter) Render(ctx context.Context, invoiceID uint) ([]byte, error) {
	doc, err := e.Document(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return Marshal(doc)
}

// Export renders the invoice and posts it; any non-2xx answer fails the export
func (e *SyrveExporter) Export(ctx context.Context, invoiceID uint) error {
	if !e.Enabled() {
		return common.ExportError("syrve", errors.New("SYRVE_URL is not configured"))
	}
	doc, err := e.Document(ctx, invoiceID)
	if err != nil {
		return err
	}
	payload, err := Marshal(doc)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return common.ExportError("syrve", err)
	}
	req.Header.Set("Content-Type", "application/xml")
	if e.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.Token)
	}

	started := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Error("syrve export failed", zap.Uint("invoice_id", invoiceID), zap.Error(err))
		return common.ExportError("syrve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		e.log.Error("syrve export rejected", zap.Uint("invoice_id", invoiceID), zap.Int("status", resp.StatusCode), zap.Error(err))
		return common.ExportError("syrve", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	e.log.Info("invoice exported",
		zap.Uint("invoice_id", invoiceID),
		zap.Int("items", len(doc.Items.Item)),
		zap.Int("bytes", len(payload)),
		zap.Duration("took", time.Since(started)))
	return nil
}

// Marshal encodes doc with the XML declaration
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode syrve document: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// money renders a missing amount as zero
func money(valid bool, v string) string {
	if !valid {
		return "0.00"
	}
	return v
}
