package api

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/gmalakar/flouds-vector-go/pkg/security"
	"github.com/gmalakar/flouds-vector-go/pkg/vectordb"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker serves the liveness, readiness and full health probes,
// plus the pool statistics endpoint.
type HealthChecker struct {
	clientsDB    *sqlx.DB
	pool         *vectordb.Pool
	adminCreds   vectordb.Credentials
	configErrors []string

	mu    sync.RWMutex
	ready bool
}

// NewHealthChecker builds the health surface. configErrors carries any
// startup validation findings so /health can report them.
func NewHealthChecker(clientsDB *sqlx.DB, pool *vectordb.Pool, adminCreds vectordb.Credentials,
	configErrors []string) *HealthChecker {
	return &HealthChecker{
		clientsDB:    clientsDB,
		pool:         pool,
		adminCreds:   adminCreds,
		configErrors: configErrors,
	}
}

// SetReady flips the readiness gate once startup completes.
func (h *HealthChecker) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady reports whether startup completed.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

func (h *HealthChecker) checkVectorDB(ctx context.Context) error {
	handle, err := h.pool.Acquire(ctx, h.adminCreds)
	if err != nil {
		return err
	}
	defer handle.Release()
	return handle.Client.Ping(ctx)
}

// LivenessHandler always answers 200 while the process runs.
func (h *HealthChecker) LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessHandler answers 200 iff startup completed and the vector DB
// is reachable.
func (h *HealthChecker) ReadinessHandler(c *gin.Context) {
	if !h.IsReady() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"error":  "service is starting up",
		})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.checkVectorDB(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  security.SanitizeErrorMessage(err.Error()),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthHandler reports the combined state: vector DB connectivity, the
// embedded store, system info and configuration validity.
func (h *HealthChecker) HealthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	milvus := gin.H{"connected": true, "uri": h.adminCreds.URI}
	if err := h.checkVectorDB(ctx); err != nil {
		milvus["connected"] = false
		milvus["error"] = security.SanitizeErrorMessage(err.Error())
	}

	storage := gin.H{"connected": true}
	if h.clientsDB != nil {
		if err := h.clientsDB.PingContext(ctx); err != nil {
			storage["connected"] = false
			storage["error"] = security.SanitizeErrorMessage(err.Error())
		}
	}

	hostname, _ := os.Hostname()
	status := gin.H{
		"status":  "healthy",
		"ready":   h.IsReady(),
		"time":    time.Now().UTC().Format(time.RFC3339),
		"milvus":  milvus,
		"storage": storage,
		"system": gin.H{
			"hostname":   hostname,
			"goroutines": runtime.NumGoroutine(),
			"go_version": runtime.Version(),
		},
		"configuration": gin.H{
			"valid":  len(h.configErrors) == 0,
			"errors": h.configErrors,
		},
	}

	if milvus["connected"] == false || storage["connected"] == false || !h.IsReady() {
		status["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ConnectionsHandler exposes pool occupancy for operators.
func (h *HealthChecker) ConnectionsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.Stats())
}
