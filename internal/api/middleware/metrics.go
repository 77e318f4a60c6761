package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gmalakar/flouds-vector-go/pkg/observability"
)

// Metrics records a counter and latency histogram per route. The route
// template (not the raw path) labels the series to keep cardinality low.
func Metrics(metrics observability.MetricsClient) gin.HandlerFunc {
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordAPIOperation(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start).Seconds())
	}
}
