// handlers.go - HTTP handlers for resolution, confirmation, invoices and OCR intake

package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bosocmputer/invoice_resolver/internal/ai"
	"github.com/bosocmputer/invoice_resolver/internal/assembler"
	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/resolution"
	"github.com/bosocmputer/invoice_resolver/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maximum accepted scan size
const maxUploadBytes = 20 << 20

// maximum decisions returned by the history route
const maxHistory = 100

// CatalogService lists and removes catalog rows; aliases and references follow the foreign keys
type CatalogService interface {
	ListProducts(ctx context.Context) ([]storage.Product, error)
	ListSuppliers(ctx context.Context) ([]storage.Supplier, error)
	DeleteEntity(ctx context.Context, kind common.EntityKind, id uint) error
}

// InvoiceService reads and removes stored invoices
type InvoiceService interface {
	Find(ctx context.Context, id uint) (*storage.Invoice, error)
	ListBySupplier(ctx context.Context, supplierID uint) ([]storage.Invoice, error)
	Delete(ctx context.Context, id uint) error
}

// DecisionHistory reads the decision journal
type DecisionHistory interface {
	History(ctx context.Context, kind common.EntityKind, normalized string, limit int64) ([]storage.Decision, error)
}

// InvoiceExporter renders stored invoices for the accounting system and delivers them
type InvoiceExporter interface {
	Render(ctx context.Context, invoiceID uint) ([]byte, error)
	Export(ctx context.Context, invoiceID uint) error
}

// Handler holds the collaborators of every route. OCR, History and Exporter are optional.
type Handler struct {
	Engine    *resolution.Engine
	Assembler *assembler.Assembler
	Catalog   CatalogService
	Invoices  InvoiceService
	Aliases   storage.AliasStore
	History   DecisionHistory
	Exporter  InvoiceExporter
	OCR       ai.OCRProvider
	UploadDir string
	Log       *zap.Logger
}

// ResolveRequest resolves one name; TaxID is only used for suppliers
type ResolveRequest struct {
	Kind  string `json:"kind" binding:"required"`
	Text  string `json:"text"`
	TaxID string `json:"tax_id"`
}

// BatchRequest resolves every line of one invoice
type BatchRequest struct {
	Queries []resolution.Query `json:"queries" binding:"required,dive"`
}

// ConfirmRequest is the bot's answer to an Ambiguous or NoMatch result
type ConfirmRequest struct {
	Kind     string `json:"kind" binding:"required"`
	Query    string `json:"query" binding:"required"`
	EntityID uint   `json:"entity_id" binding:"required"`
}

// RejectRequest records that no candidate was right
type RejectRequest struct {
	Kind  string `json:"kind" binding:"required"`
	Query string `json:"query" binding:"required"`
}

// ConfirmNewRequest creates the entity the operator asked for
type ConfirmNewRequest struct {
	Kind   string            `json:"kind" binding:"required"`
	Query  string            `json:"query" binding:"required"`
	Entity storage.NewEntity `json:"entity"`
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "invoice-resolver",
		"ocr":     h.OCR != nil,
	})
}

// Resolve handles POST /api/v1/resolve
func (h *Handler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err, "JSON with kind and text")
		return
	}
	kind, err := common.ParseEntityKind(req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}

	var res resolution.Result
	if kind == common.KindSupplier && req.TaxID != "" {
		res, err = h.Engine.ResolveSupplier(c.Request.Context(), req.Text, req.TaxID)
	} else {
		res, err = h.Engine.Resolve(c.Request.Context(), kind, req.Text)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ResolveBatch handles POST /api/v1/resolve/batch
func (h *Handler) ResolveBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err, "JSON with a queries array of {kind, text, tax_id}")
		return
	}

	rc := common.FromContext(c.Request.Context())
	rc.StartStep("resolve_batch")
	results, err := h.Engine.ResolveBatch(c.Request.Context(), req.Queries)
	rc.EndStep(err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Confirm handles POST /api/v1/confirm
func (h *Handler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err, "JSON with kind, query and entity_id")
		return
	}
	kind, err := common.ParseEntityKind(req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.Engine.Confirm(c.Request.Context(), kind, req.Query, req.EntityID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Reject handles POST /api/v1/reject
func (h *Handler) Reject(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err, "JSON with kind and query")
		return
	}
	kind, err := common.ParseEntityKind(req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.Engine.Reject(c.Request.Context(), kind, req.Query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ConfirmNew handles POST /api/v1/confirm-new
func (h *Handler) ConfirmNew(c *gin.Context) {
	var req ConfirmNewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err, "JSON with kind, query and entity")
		return
	}
	kind, err := common.ParseEntityKind(req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.Engine.ConfirmNew(c.Request.Context(), kind, req.Query, req.Entity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// CreateInvoice handles POST /api/v1/invoices
func (h *Handler) CreateInvoice(c *gin.Context) {
	var draft assembler.InvoiceDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, err, "JSON invoice draft with date, total_sum, supplier and lines")
		return
	}

	inv, err := h.Assembler.Assemble(c.Request.Context(), draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// ReviewInvoice handles POST /api/v1/invoices/review
func (h *Handler) ReviewInvoice(c *gin.Context) {
	var draft assembler.InvoiceDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, err, "JSON invoice draft with date, total_sum, supplier and lines")
		return
	}

	issues, err := h.Assembler.Review(c.Request.Context(), draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": len(issues) == 0, "issues": issues})
}

// GetInvoice handles GET /api/v1/invoices/:id
func (h *Handler) GetInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	inv, err := h.Invoices.Find(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// EditInvoiceItem handles PATCH /api/v1/invoices/:id/items/:item_id
func (h *Handler) EditInvoiceItem(c *gin.Context) {
	invoiceID, ok := pathID(c)
	if !ok {
		return
	}
	itemID, ok := pathParam(c, "item_id")
	if !ok {
		return
	}
	var edit assembler.ItemEdit
	if err := c.ShouldBindJSON(&edit); err != nil {
		badRequest(c, err, "JSON with any of product_id, name, quantity, unit, price, sum")
		return
	}

	item, err := h.Assembler.EditItem(c.Request.Context(), invoiceID, itemID, edit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// InvoiceXML handles GET /api/v1/invoices/:id/xml
func (h *Handler) InvoiceXML(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if h.Exporter == nil {
		writeError(c, common.ExportError("syrve", fmt.Errorf("exporter is not configured")))
		return
	}
	payload, err := h.Exporter.Render(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", payload)
}

// ExportInvoice handles POST /api/v1/invoices/:id/export
func (h *Handler) ExportInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if h.Exporter == nil {
		writeError(c, common.ExportError("syrve", fmt.Errorf("exporter is not configured")))
		return
	}
	if err := h.Exporter.Export(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice_id": id, "exported": true})
}

// SupplierInvoices handles GET /api/v1/suppliers/:id/invoices
func (h *Handler) SupplierInvoices(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	invoices, err := h.Invoices.ListBySupplier(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

// DeleteInvoice handles DELETE /api/v1/invoices/:id
func (h *Handler) DeleteInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Invoices.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteEntity returns the handler for DELETE /api/v1/products/:id and /suppliers/:id
func (h *Handler) DeleteEntity(kind common.EntityKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := h.Catalog.DeleteEntity(c.Request.Context(), kind, id); err != nil {
			writeError(c, err)
			return
		}
		h.Engine.InvalidateCatalog(kind)
		c.Status(http.StatusNoContent)
	}
}

// ListProducts handles GET /api/v1/products
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.Catalog.ListProducts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// ListSuppliers handles GET /api/v1/suppliers
func (h *Handler) ListSuppliers(c *gin.Context) {
	suppliers, err := h.Catalog.ListSuppliers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suppliers": suppliers})
}

// DecisionLog handles GET /api/v1/decisions?kind=product&text=...&limit=20
func (h *Handler) DecisionLog(c *gin.Context) {
	if h.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal_disabled", "details": "MONGO_URI is not configured"})
		return
	}
	kind, err := common.ParseEntityKind(c.Query("kind"))
	if err != nil {
		writeError(c, err)
		return
	}
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if err != nil || limit < 1 || limit > maxHistory {
		badRequest(c, fmt.Errorf("invalid limit %q", c.Query("limit")), "limit between 1 and 100")
		return
	}

	normalized := h.Engine.Normalize(kind, c.Query("text"))
	decisions, err := h.History.History(c.Request.Context(), kind, normalized, limit)
	if err != nil {
		writeError(c, common.StoreError("decision history", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"normalized": normalized, "decisions": decisions})
}

// AliasStats handles GET /api/v1/aliases/stats
func (h *Handler) AliasStats(c *gin.Context) {
	out := make(gin.H, len(common.Kinds))
	for _, kind := range common.Kinds {
		stats, err := h.Aliases.Stats(c.Request.Context(), kind)
		if err != nil {
			writeError(c, err)
			return
		}
		out[kind.String()] = stats
	}
	c.JSON(http.StatusOK, out)
}

// ExtractLines handles POST /api/v1/ocr (multipart field "file")
func (h *Handler) ExtractLines(c *gin.Context) {
	if h.OCR == nil {
		writeError(c, common.OCRError("ocr", fmt.Errorf("no OCR provider configured")))
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err, "multipart form with an image in field \"file\"")
		return
	}
	if file.Size > maxUploadBytes {
		badRequest(c, fmt.Errorf("file is %d bytes, limit is %d", file.Size, maxUploadBytes), "a smaller scan")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".pdf":
	default:
		badRequest(c, fmt.Errorf("unsupported file type %q", ext), "jpg, png, webp or pdf")
		return
	}

	path := filepath.Join(h.UploadDir, uuid.New().String()+ext)
	if err := c.SaveUploadedFile(file, path); err != nil {
		writeError(c, fmt.Errorf("failed to save upload: %w", err))
		return
	}
	defer os.Remove(path)

	rc := common.FromContext(c.Request.Context())
	rc.StartStep("ocr_extract_lines")
	lines, err := h.OCR.ExtractLines(c.Request.Context(), path)
	rc.EndStep(err)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider":   h.OCR.GetProviderName(),
		"lines":      lines,
		"request_id": rc.RequestID,
	})
}

func pathID(c *gin.Context) (uint, bool) {
	return pathParam(c, "id")
}

func pathParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, fmt.Errorf("invalid %s %q", name, c.Param(name)), "positive integer id")
		return 0, false
	}
	return uint(id), true
}
