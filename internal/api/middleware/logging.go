package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gmalakar/flouds-vector-go/pkg/observability"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
)

// RequestLogging assigns a correlation id and emits one line per request
// on completion. Externally-derived strings are sanitised before logging.
func RequestLogging(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	logger = logger.WithPrefix("http")

	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       security.SanitizeForLog(c.Request.URL.Path),
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		}
		if tenant := TenantFrom(c); tenant != "" {
			fields["tenant"] = security.SanitizeForLog(tenant)
		}
		if c.Writer.Status() >= 500 {
			logger.Error("request completed", fields)
			return
		}
		logger.Info("request completed", fields)
	}
}
