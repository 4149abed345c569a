// router.go - Route table

package api

import (
	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every route; metrics are served from gatherer
func NewRouter(h *Handler, gatherer prometheus.Gatherer, allowedOrigins string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), CORS(allowedOrigins), RequestTracking(h.Log))

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/resolve", h.Resolve)
		v1.POST("/resolve/batch", h.ResolveBatch)
		v1.POST("/confirm", h.Confirm)
		v1.POST("/reject", h.Reject)
		v1.POST("/confirm-new", h.ConfirmNew)

		v1.POST("/invoices", h.CreateInvoice)
		v1.POST("/invoices/review", h.ReviewInvoice)
		v1.GET("/invoices/:id", h.GetInvoice)
		v1.DELETE("/invoices/:id", h.DeleteInvoice)
		v1.PATCH("/invoices/:id/items/:item_id", h.EditInvoiceItem)
		v1.GET("/invoices/:id/xml", h.InvoiceXML)
		v1.POST("/invoices/:id/export", h.ExportInvoice)

		v1.GET("/products", h.ListProducts)
		v1.DELETE("/products/:id", h.DeleteEntity(common.KindProduct))
		v1.GET("/suppliers", h.ListSuppliers)
		v1.GET("/suppliers/:id/invoices", h.SupplierInvoices)
		v1.DELETE("/suppliers/:id", h.DeleteEntity(common.KindSupplier))
		v1.GET("/aliases/stats", h.AliasStats)
		v1.GET("/decisions", h.DecisionLog)

		v1.POST("/ocr", h.ExtractLines)
	}
	return router
}
