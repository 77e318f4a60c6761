// Package observability provides unified logging and metrics for the
// flouds-vector gateway. All services and middleware log through the
// Logger interface and record metrics through MetricsClient so tests can
// swap in no-op implementations.
package observability

import (
	"time"
)

// LoggingConfig holds the configuration for logging
type LoggingConfig struct {
	// Level is the minimum log level to emit
	Level  string `json:"level,omitempty" mapstructure:"level"`
	Format string `json:"format,omitempty" mapstructure:"format"`
	// Output is the output destination (stdout, file)
	Output string `json:"output,omitempty" mapstructure:"output"`
	// FilePath is the path to the log file if Output is "file"
	FilePath string `json:"file_path,omitempty" mapstructure:"file_path"`
}

// MetricsConfig holds the configuration for metrics
type MetricsConfig struct {
	// Enabled indicates whether metrics collection is enabled
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Namespace string `json:"namespace,omitempty" mapstructure:"namespace"`
	Subsystem string `json:"subsystem,omitempty" mapstructure:"subsystem"`
}

// LogLevel defines log message severity
type LogLevel string

// Log levels
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// Logger defines the interface for logging
type Logger interface {
	// Core logging methods with fields
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	// Formatted logging methods
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	// Context methods
	WithPrefix(prefix string) Logger
	With(fields map[string]interface{}) Logger
}

// MetricsClient defines the interface for metrics collection
type MetricsClient interface {
	RecordCounter(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordDuration(name string, duration time.Duration, labels map[string]string)

	// IncrementCounter increments a counter without labels
	IncrementCounter(name string, value float64)
	// IncrementCounterWithLabels is the preferred method with labels support
	IncrementCounterWithLabels(name string, value float64, labels map[string]string)

	// Operation-specific helpers
	RecordAPIOperation(method, endpoint string, status int, durationSeconds float64)
	RecordDatabaseOperation(operation string, success bool, durationSeconds float64)

	// StartTimer returns a function that records the elapsed time when called
	StartTimer(name string, labels map[string]string) func()

	// Snapshot returns the current counter values for the JSON metrics endpoint
	Snapshot() map[string]float64

	// Lifecycle management
	Close() error
}
