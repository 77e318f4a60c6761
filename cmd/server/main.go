// Command server runs the FloudsVector gateway: a multi-tenant HTTP
// front for a Milvus-compatible vector database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gmalakar/flouds-vector-go/internal/api"
	"github.com/gmalakar/flouds-vector-go/internal/services"
	"github.com/gmalakar/flouds-vector-go/pkg/config"
	"github.com/gmalakar/flouds-vector-go/pkg/configstore"
	"github.com/gmalakar/flouds-vector-go/pkg/keymanager"
	"github.com/gmalakar/flouds-vector-go/pkg/observability"
	"github.com/gmalakar/flouds-vector-go/pkg/ratelimit"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
	"github.com/gmalakar/flouds-vector-go/pkg/vectordb"
)

const startupWaitMax = 2 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := observability.NewLoggerFromConfig("flouds-vector", cfg.Logging)

	configErrors := cfg.Validate()
	for _, problem := range configErrors {
		logger.Error("configuration problem", map[string]interface{}{"problem": problem})
	}

	var metrics observability.MetricsClient
	if cfg.Metrics.Enabled {
		metrics = observability.NewPrometheusMetricsClient(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	} else {
		metrics = observability.NewNoopMetricsClient()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// storage layer: embedded store plus the encryption key
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.ClientsDBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	key, err := security.LoadOrCreateKey(cfg.Storage.SecretsDir)
	if err != nil {
		return err
	}
	cipher, err := security.NewCipher(key)
	if err != nil {
		return err
	}
	clientsDB, err := sqlx.Open("sqlite3", cfg.Storage.ClientsDBPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("open clients db: %w", err)
	}
	defer clientsDB.Close()
	if err := clientsDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clients db: %w", err)
	}

	// construction order matters: config store, then key manager, then
	// the pool-backed services
	store, err := configstore.New(clientsDB, cipher, logger)
	if err != nil {
		return err
	}
	km, err := keymanager.New(clientsDB, cipher, logger)
	if err != nil {
		return err
	}
	if err := bootstrapAdmin(ctx, km, logger); err != nil {
		return err
	}

	pool := vectordb.NewPool(vectordb.Dial(logger), vectordb.PoolConfig{
		MaxEntries:    cfg.Pool.MaxEntries,
		MaxIdle:       cfg.Pool.MaxIdle,
		SweepInterval: cfg.Pool.SweepInterval,
		CloseGrace:    10 * time.Second,
	}, logger, metrics)
	defer pool.Close()

	adminCreds, err := cfg.Database.AdminCredentials()
	if err != nil {
		return err
	}

	vectors := services.NewVectorStore(pool, cfg.Vector, logger)
	provisioner := services.NewProvisioner(pool, logger)
	health := api.NewHealthChecker(clientsDB, pool, adminCreds, configErrors)

	ipLimiter := ratelimit.NewLimiter()
	tenantLimiter := ratelimit.NewTenantLimiter(tenantTiers(cfg.RateLimits), func(tenant string) (string, error) {
		return store.GetDecrypted(context.Background(), configstore.KeyRateTier, tenant)
	})

	server := api.NewServer(api.Deps{
		Config:        cfg,
		ConfigStore:   store,
		KeyManager:    km,
		VectorStore:   vectors,
		Provisioner:   provisioner,
		Health:        health,
		IPLimiter:     ipLimiter,
		TenantLimiter: tenantLimiter,
		Logger:        logger,
		Metrics:       metrics,
	})

	// readiness flips once the vector database answers a ping; the HTTP
	// listener starts immediately so probes can watch the wait
	go waitForVectorDB(ctx, pool, adminCreds, health, logger)
	go sweepLoop(ctx, cfg, pool, ipLimiter, tenantLimiter, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", map[string]interface{}{"address": cfg.Server.Address()})
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

// bootstrapAdmin creates the initial admin client from the environment
// when the clients table has no entry for it yet.
func bootstrapAdmin(ctx context.Context, km *keymanager.Manager, logger observability.Logger) error {
	username := os.Getenv("FLOUDS_ADMIN_CLIENT_ID")
	secret := os.Getenv("FLOUDS_ADMIN_CLIENT_SECRET")
	if username == "" || secret == "" {
		return nil
	}
	exists, err := km.Exists(ctx, username)
	if err != nil || exists {
		return err
	}
	if _, err := km.CreateClient(ctx, username, secret, "", []string{keymanager.ActionAdmin}); err != nil {
		return fmt.Errorf("bootstrap admin client: %w", err)
	}
	logger.Info("bootstrapped admin client", map[string]interface{}{"username": username})
	return nil
}

// waitForVectorDB retries pinging the vector database with exponential
// backoff and flips readiness on success.
func waitForVectorDB(ctx context.Context, pool *vectordb.Pool, creds vectordb.Credentials,
	health *api.HealthChecker, logger observability.Logger) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 15 * time.Second
	policy.MaxElapsedTime = startupWaitMax

	ping := func() error {
		handle, err := pool.Acquire(ctx, creds)
		if err != nil {
			return err
		}
		defer handle.Release()
		return handle.Client.Ping(ctx)
	}

	err := backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		logger.Warn("vector database not reachable yet", map[string]interface{}{
			"error": security.SanitizeErrorMessage(err.Error()),
			"retry": next.String(),
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("vector database unreachable after startup wait", map[string]interface{}{
			"error": security.SanitizeErrorMessage(err.Error()),
		})
		return
	}
	health.SetReady(true)
	logger.Info("vector database reachable, service ready", nil)
}

// sweepLoop is the single background worker: it evicts idle pool entries
// and stale rate-limit buckets on the pool's sweep interval.
func sweepLoop(ctx context.Context, cfg *config.Config, pool *vectordb.Pool,
	ip *ratelimit.Limiter, tenants *ratelimit.TenantLimiter, logger observability.Logger) {
	interval := cfg.Pool.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept := pool.SweepIdle()
			evicted := ip.CleanupInactive(cfg.RateLimits.MaxInactive) +
				tenants.CleanupInactive(cfg.RateLimits.MaxInactive)
			if swept > 0 || evicted > 0 {
				logger.Debug("background sweep", map[string]interface{}{
					"pool_entries_closed": swept,
					"rate_buckets_freed":  evicted,
				})
			}
		}
	}
}

// tenantTiers maps the configured quotas onto the limiter tiers.
func tenantTiers(rl config.RateLimitConfig) map[string]ratelimit.Quota {
	period := rl.Period
	if period <= 0 {
		period = 60 * time.Second
	}
	tiers := ratelimit.DefaultTiers()
	if rl.TenantDefault > 0 {
		tiers[ratelimit.TierDefault] = ratelimit.Quota{Limit: rl.TenantDefault, Period: period}
	}
	if rl.TenantPremium > 0 {
		tiers[ratelimit.TierPremium] = ratelimit.Quota{Limit: rl.TenantPremium, Period: period}
	}
	return tiers
}
