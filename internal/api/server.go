// Package api wires the HTTP surface: the versioned routes under
// /api/v1, the health probes, and the middleware pipeline in front of
// them.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gmalakar/flouds-vector-go/internal/api/middleware"
	"github.com/gmalakar/flouds-vector-go/internal/services"
	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/config"
	"github.com/gmalakar/flouds-vector-go/pkg/configstore"
	"github.com/gmalakar/flouds-vector-go/pkg/keymanager"
	"github.com/gmalakar/flouds-vector-go/pkg/observability"
	"github.com/gmalakar/flouds-vector-go/pkg/ratelimit"
	"github.com/gmalakar/flouds-vector-go/pkg/vectordb"
)

// Server owns the router and the services behind it.
type Server struct {
	cfg         *config.Config
	engine      *gin.Engine
	runner      *services.Runner
	vectors     *services.VectorStore
	provisioner *services.Provisioner
	configStore *configstore.Store
	keyManager  *keymanager.Manager
	health      *HealthChecker
	logger      observability.Logger
	metrics     observability.MetricsClient
}

// Deps carries everything the server needs; construction order is
// ConfigStore, KeyManager, then the pool-backed services.
type Deps struct {
	Config        *config.Config
	ConfigStore   *configstore.Store
	KeyManager    *keymanager.Manager
	VectorStore   *services.VectorStore
	Provisioner   *services.Provisioner
	Health        *HealthChecker
	IPLimiter     *ratelimit.Limiter
	TenantLimiter *ratelimit.TenantLimiter
	Logger        observability.Logger
	Metrics       observability.MetricsClient
}

// NewServer assembles the middleware pipeline and routes.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = observability.NewNoopLogger()
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewNoopMetricsClient()
	}
	s := &Server{
		cfg:         d.Config,
		runner:      services.NewRunner(d.Logger, d.Metrics),
		vectors:     d.VectorStore,
		provisioner: d.Provisioner,
		configStore: d.ConfigStore,
		keyManager:  d.KeyManager,
		health:      d.Health,
		logger:      d.Logger.WithPrefix("api"),
		metrics:     d.Metrics,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	if d.Config.Security.Enabled {
		corsPolicy := s.policyResolver(configstore.KeyCORSOrigins, d.Config.Security.CORSOrigins)
		hostPolicy := s.policyResolver(configstore.KeyTrustedHosts, d.Config.Security.TrustedHosts)
		engine.Use(middleware.CORS(corsPolicy))
		engine.Use(middleware.TrustedHost(hostPolicy))
	}

	// unauthenticated probes
	engine.GET("/health", s.health.HealthHandler)
	engine.GET("/health/live", s.health.LivenessHandler)
	engine.GET("/health/ready", s.health.ReadinessHandler)

	authed := func(group *gin.RouterGroup) {
		group.Use(middleware.Auth(d.KeyManager, d.Logger))
		group.Use(middleware.RateLimit(d.IPLimiter, d.TenantLimiter, d.Config.RateLimits, d.Logger, d.Metrics))
		group.Use(middleware.Validation(d.Config.Server.MaxBodyBytes))
		group.Use(middleware.RequestLogging(d.Logger))
		group.Use(middleware.Metrics(d.Metrics))
		group.Use(middleware.ErrorHandler(d.Logger))
	}

	ops := engine.Group("/health")
	authed(ops)
	ops.GET("/connections", middleware.RequireAdmin(), s.health.ConnectionsHandler)

	v1 := engine.Group("/api/v1")
	authed(v1)

	v1.GET("/metrics", middleware.RequireAdmin(), s.metricsHandler)

	store := v1.Group("/vector_store")
	store.POST("/set_vector_store", middleware.RequireAdmin(), s.setVectorStoreHandler)
	store.POST("/generate_schema", middleware.RequireAdmin(), s.generateSchemaHandler)
	store.POST("/insert", s.insertHandler)
	store.POST("/search", s.searchHandler)
	store.POST("/flush", s.flushHandler)

	users := v1.Group("/vector_store_users")
	users.Use(middleware.RequireAdmin())
	users.POST("/set_user", s.setUserHandler)
	users.POST("/reset_password", s.resetPasswordHandler)

	cfgGroup := v1.Group("/config")
	cfgGroup.Use(middleware.RequireAdmin())
	cfgGroup.POST("/add", s.configAddHandler)
	cfgGroup.GET("/get", s.configGetHandler)
	cfgGroup.PUT("/update", s.configUpdateHandler)
	cfgGroup.DELETE("/delete", s.configDeleteHandler)
	cfgGroup.GET("/list", s.configListHandler)

	admin := v1.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/fingerprints", s.fingerprintsHandler)

	s.engine = engine
	return s
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler { return s.engine }

// policyResolver serves a policy key from the config store with the
// static configuration as global fallback.
func (s *Server) policyResolver(key string, defaults []string) middleware.PolicyResolver {
	return func(c *gin.Context, tenant string) []string {
		if s.configStore == nil {
			return defaults
		}
		return s.configStore.ResolveStrings(c.Request.Context(), key, tenant, defaults)
	}
}

// requestCredentials builds the pool credentials for a data-plane call
// from the per-request DB token and the resolved tenant's database.
func (s *Server) requestCredentials(c *gin.Context, tenant string) (vectordb.Credentials, error) {
	user, secret, ok := middleware.DBTokenFrom(c)
	if !ok {
		return vectordb.Credentials{}, apierrors.New(apierrors.KindAuthentication,
			"missing Flouds-VectorDB-Token header")
	}
	return vectordb.Credentials{
		URI:      s.cfg.Database.URI(),
		User:     user,
		Secret:   secret,
		Database: services.TenantDatabase(tenant),
	}, nil
}

// adminCredentials builds credentials against the default database for
// provisioning operations.
func (s *Server) adminCredentials(c *gin.Context) (vectordb.Credentials, error) {
	user, secret, ok := middleware.DBTokenFrom(c)
	if !ok {
		return vectordb.Credentials{}, apierrors.New(apierrors.KindAuthentication,
			"missing Flouds-VectorDB-Token header")
	}
	return vectordb.Credentials{
		URI:      s.cfg.Database.URI(),
		User:     user,
		Secret:   secret,
		Database: s.cfg.Database.Database,
	}, nil
}

// requireTenant returns the resolved tenant or a tenant error.
func requireTenant(c *gin.Context) (string, error) {
	tenant := middleware.TenantFrom(c)
	if tenant == "" {
		return "", apierrors.New(apierrors.KindTenant, "tenant_code is required")
	}
	return tenant, nil
}

func respond(c *gin.Context, resp *services.Response, err error) {
	if err != nil {
		if apierrors.IsCanceled(err) {
			c.AbortWithStatus(499)
			return
		}
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
