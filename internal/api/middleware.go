// middleware.go - Request tracking and CORS

package api

import (
	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestTracking attaches a RequestContext to every request and logs its summary
func RequestTracking(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := common.NewRequestContext(log)
		c.Request = c.Request.WithContext(common.WithRequestContext(c.Request.Context(), rc))
		c.Header("X-Request-ID", rc.RequestID)

		c.Next()

		rc.Logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Any("summary", rc.GetSummary()))
	}
}

// CORS allows the bot front-end origin
func CORS(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
