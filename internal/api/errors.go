// errors.go - Mapping of domain errors onto HTTP responses

package api

import (
	"errors"
	"net/http"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/gin-gonic/gin"
)

// statusFor maps the error taxonomy onto status codes
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrNormalizationInput),
		errors.Is(err, common.ErrUnknownKind),
		errors.Is(err, common.ErrInvalidInvoice):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, common.ErrEntityNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, common.ErrStoreConflict):
		return http.StatusConflict, "alias_conflict"
	case errors.Is(err, common.ErrOCRUnavailable):
		return http.StatusServiceUnavailable, "ocr_unavailable"
	case errors.Is(err, common.ErrExportUnavailable):
		return http.StatusBadGateway, "export_failed"
	case errors.Is(err, common.ErrStoreUnavailable):
		return http.StatusInternalServerError, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError sends {"error", "details", "request_id"} plus line/kind for line errors
func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	body := gin.H{
		"error":      code,
		"details":    err.Error(),
		"request_id": common.RequestIDFrom(c.Request.Context()),
	}

	var lineErr *common.LineError
	if errors.As(err, &lineErr) {
		body["line"] = lineErr.Line
		body["kind"] = lineErr.Kind
	}
	var conflict *common.ConflictError
	if errors.As(err, &conflict) {
		body["alias"] = conflict.Alias
		body["existing_entity_id"] = conflict.Existing
	}

	c.AbortWithStatusJSON(status, body)
}

// badRequest reports a malformed request body
func badRequest(c *gin.Context, err error, expected string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":      "invalid_request",
		"details":    err.Error(),
		"expected":   expected,
		"request_id": common.RequestIDFrom(c.Request.Context()),
	})
}
