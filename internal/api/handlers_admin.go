package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gmalakar/flouds-vector-go/pkg/observability"
)

func (s *Server) fingerprintsHandler(c *gin.Context) {
	resp, err := s.runner.Do(c.Request.Context(), "list_fingerprints", "", "client fingerprints",
		func(ctx context.Context) (interface{}, error) {
			return s.keyManager.ListFingerprints(ctx)
		})
	respond(c, resp, err)
}

// metricsHandler serves Prometheus exposition when the client is
// registry-backed, and the JSON counter snapshot otherwise.
func (s *Server) metricsHandler(c *gin.Context) {
	if pm, ok := s.metrics.(*observability.PrometheusMetricsClient); ok &&
		c.Query("format") != "json" {
		promhttp.HandlerFor(pm.Registry(), promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": s.metrics.Snapshot()})
}
