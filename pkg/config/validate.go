package config

import (
	"fmt"

	"github.com/gmalakar/flouds-vector-go/pkg/vectordb"
)

var validMetrics = map[string]bool{
	vectordb.MetricCosine: true,
	vectordb.MetricL2:     true,
	vectordb.MetricIP:     true,
}

var validIndexes = map[string]bool{
	"IVF_FLAT":  true,
	"IVF_SQ8":   true,
	"HNSW":      true,
	"FLAT":      true,
	"AUTOINDEX": true,
}

// Validate checks configuration integrity at startup and returns every
// problem found, not just the first. An empty slice means the config is
// usable.
func (c *Config) Validate() []string {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Endpoint == "" {
		problems = append(problems, "database.endpoint is required")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" && c.Database.PasswordFile == "" {
		problems = append(problems, "one of database.password or database.password_file is required")
	}
	if c.Storage.ClientsDBPath == "" {
		problems = append(problems, "storage.clients_db_path is required")
	}
	if c.Storage.SecretsDir == "" {
		problems = append(problems, "storage.secrets_dir is required")
	}

	if c.Vector.Dimension < vectordb.MinDimension || c.Vector.Dimension > vectordb.MaxDimension {
		problems = append(problems, fmt.Sprintf("vector.dimension must be in [%d, %d], got %d",
			vectordb.MinDimension, vectordb.MaxDimension, c.Vector.Dimension))
	}
	if !validMetrics[c.Vector.MetricType] {
		problems = append(problems, fmt.Sprintf("vector.metric_type %q not supported", c.Vector.MetricType))
	}
	if !validIndexes[c.Vector.IndexType] {
		problems = append(problems, fmt.Sprintf("vector.index_type %q not supported", c.Vector.IndexType))
	}
	if c.Vector.Nlist < 1 {
		problems = append(problems, "vector.nlist must be positive")
	}
	if c.Vector.AutoFlushMinBatch < 1 {
		problems = append(problems, "vector.auto_flush_min_batch must be positive")
	}

	if c.Pool.MaxEntries < 1 {
		problems = append(problems, "pool.max_entries must be positive")
	}
	if c.Pool.MaxIdle <= 0 {
		problems = append(problems, "pool.max_idle must be positive")
	}
	if c.Pool.SweepInterval <= 0 {
		problems = append(problems, "pool.sweep_interval must be positive")
	}

	if c.RateLimits.IPLimit < 1 || c.RateLimits.TenantDefault < 1 || c.RateLimits.TenantPremium < 1 {
		problems = append(problems, "rate limits must be positive")
	}
	if c.RateLimits.Period <= 0 {
		problems = append(problems, "rate_limits.period must be positive")
	}

	return problems
}
