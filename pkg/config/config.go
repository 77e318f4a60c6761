// Package config loads process configuration from a YAML file and
// FLOUDS_-prefixed environment variables, with defaults suitable for a
// local single-node deployment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gmalakar/flouds-vector-go/pkg/observability"
	"github.com/gmalakar/flouds-vector-go/pkg/vectordb"
)

// Config is the full process configuration tree.
type Config struct {
	Server     ServerConfig                `mapstructure:"server"`
	Database   DatabaseConfig              `mapstructure:"database"`
	Storage    StorageConfig               `mapstructure:"storage"`
	Logging    observability.LoggingConfig `mapstructure:"logging"`
	Metrics    observability.MetricsConfig `mapstructure:"metrics"`
	Security   SecurityConfig              `mapstructure:"security"`
	Vector     VectorDefaults              `mapstructure:"vector"`
	Pool       PoolConfig                  `mapstructure:"pool"`
	RateLimits RateLimitConfig             `mapstructure:"rate_limits"`
}

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// Address returns the listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig points at the vector database and carries the admin
// credential used for bootstrap and health checks.
type DatabaseConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password_file"`
	Network      string `mapstructure:"network"`
	Database     string `mapstructure:"database"`
}

// URI joins endpoint and port.
func (d DatabaseConfig) URI() string {
	if d.Port == 0 {
		return d.Endpoint
	}
	return fmt.Sprintf("%s:%d", d.Endpoint, d.Port)
}

// ResolvePassword prefers the inline password, falling back to the
// password file.
func (d DatabaseConfig) ResolvePassword() (string, error) {
	if d.Password != "" {
		return d.Password, nil
	}
	if d.PasswordFile == "" {
		return "", nil
	}
	raw, err := os.ReadFile(d.PasswordFile)
	if err != nil {
		return "", fmt.Errorf("read password file: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// AdminCredentials builds the bootstrap credential set.
func (d DatabaseConfig) AdminCredentials() (vectordb.Credentials, error) {
	password, err := d.ResolvePassword()
	if err != nil {
		return vectordb.Credentials{}, err
	}
	db := d.Database
	if db == "" {
		db = "default"
	}
	return vectordb.Credentials{URI: d.URI(), User: d.User, Secret: password, Database: db}, nil
}

// StorageConfig locates the embedded store and the secrets directory.
type StorageConfig struct {
	ClientsDBPath string `mapstructure:"clients_db_path"`
	SecretsDir    string `mapstructure:"secrets_dir"`
}

// SecurityConfig holds the global security policy defaults; per-tenant
// overrides live in the config store.
type SecurityConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
	TrustedHosts []string `mapstructure:"trusted_hosts"`
}

// VectorDefaults are applied when a request omits schema parameters.
type VectorDefaults struct {
	Dimension         int     `mapstructure:"dimension"`
	MetricType        string  `mapstructure:"metric_type"`
	IndexType         string  `mapstructure:"index_type"`
	Nlist             int     `mapstructure:"nlist"`
	MetadataLength    int     `mapstructure:"metadata_length"`
	DropRatioBuild    float64 `mapstructure:"drop_ratio_build"`
	AutoFlushMinBatch int     `mapstructure:"auto_flush_min_batch"`
}

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MaxEntries    int           `mapstructure:"max_entries"`
	MaxIdle       time.Duration `mapstructure:"max_idle"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RateLimitConfig holds the fixed-window quotas.
type RateLimitConfig struct {
	IPLimit       int           `mapstructure:"ip_limit"`
	TenantDefault int           `mapstructure:"tenant_default"`
	TenantPremium int           `mapstructure:"tenant_premium"`
	Period        time.Duration `mapstructure:"period"`
	MaxInactive   time.Duration `mapstructure:"max_inactive"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 19680)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_body_bytes", 32<<20)

	v.SetDefault("database.endpoint", "localhost")
	v.SetDefault("database.port", 19530)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.database", "default")

	v.SetDefault("storage.clients_db_path", "data/flouds.db")
	v.SetDefault("storage.secrets_dir", "data/secrets")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "flouds")
	v.SetDefault("metrics.subsystem", "vector")

	v.SetDefault("security.enabled", true)
	v.SetDefault("security.cors_origins", []string{"*"})
	v.SetDefault("security.trusted_hosts", []string{"*"})

	v.SetDefault("vector.dimension", 1536)
	v.SetDefault("vector.metric_type", vectordb.MetricCosine)
	v.SetDefault("vector.index_type", "IVF_FLAT")
	v.SetDefault("vector.nlist", 256)
	v.SetDefault("vector.metadata_length", 4096)
	v.SetDefault("vector.drop_ratio_build", 0.2)
	v.SetDefault("vector.auto_flush_min_batch", 100)

	v.SetDefault("pool.max_entries", 64)
	v.SetDefault("pool.max_idle", "300s")
	v.SetDefault("pool.sweep_interval", "60s")

	v.SetDefault("rate_limits.ip_limit", 100)
	v.SetDefault("rate_limits.tenant_default", 200)
	v.SetDefault("rate_limits.tenant_premium", 1000)
	v.SetDefault("rate_limits.period", "60s")
	v.SetDefault("rate_limits.max_inactive", "3600s")
}

// Load reads configuration from path (optional) and the environment.
// Environment variables use the FLOUDS_ prefix with underscores, e.g.
// FLOUDS_SERVER_PORT=8080.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FLOUDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
