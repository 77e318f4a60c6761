package observability

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsClient implements MetricsClient using Prometheus
type PrometheusMetricsClient struct {
	namespace string
	subsystem string
	registry  *prometheus.Registry

	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec

	// Plain counter values mirrored for the JSON metrics endpoint
	values map[string]float64

	mu sync.RWMutex
}

// NewPrometheusMetricsClient creates a new Prometheus metrics client with
// its own registry so tests can construct independent instances.
func NewPrometheusMetricsClient(namespace, subsystem string) *PrometheusMetricsClient {
	client := &PrometheusMetricsClient{
		namespace:  namespace,
		subsystem:  subsystem,
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		values:     make(map[string]float64),
	}
	client.registerDefaultMetrics()
	return client
}

// Registry exposes the underlying registry for the promhttp handler.
func (c *PrometheusMetricsClient) Registry() *prometheus.Registry {
	return c.registry
}

// registerDefaultMetrics registers commonly used metrics
func (c *PrometheusMetricsClient) registerDefaultMetrics() {
	c.getOrCreateCounter("api_requests_total", "Total API requests", []string{"method", "endpoint", "status"})
	c.getOrCreateHistogram("api_request_duration_seconds", "API request duration", []string{"method", "endpoint"})
	c.getOrCreateCounter("vectordb_operations_total", "Total vector DB operations", []string{"operation", "status"})
	c.getOrCreateHistogram("vectordb_operation_duration_seconds", "Vector DB operation duration", []string{"operation"})
	c.getOrCreateCounter("rate_limit_denials_total", "Rate limit denials", []string{"limit_type"})
	c.getOrCreateGauge("connection_pool_entries", "Current connection pool entries", []string{"state"})
}

// RecordCounter records a counter metric
func (c *PrometheusMetricsClient) RecordCounter(name string, value float64, labels map[string]string) {
	counter := c.getOrCreateCounter(name, fmt.Sprintf("Counter for %s", name), labelNames(labels))
	counter.With(prometheus.Labels(labels)).Add(value)
	c.track(name, labels, value)
}

// RecordGauge records a gauge metric
func (c *PrometheusMetricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	gauge := c.getOrCreateGauge(name, fmt.Sprintf("Gauge for %s", name), labelNames(labels))
	gauge.With(prometheus.Labels(labels)).Set(value)
}

// RecordHistogram records a histogram metric
func (c *PrometheusMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
	histogram := c.getOrCreateHistogram(name, fmt.Sprintf("Histogram for %s", name), labelNames(labels))
	histogram.With(prometheus.Labels(labels)).Observe(value)
}

// RecordDuration records a duration in seconds
func (c *PrometheusMetricsClient) RecordDuration(name string, duration time.Duration, labels map[string]string) {
	c.RecordHistogram(name, duration.Seconds(), labels)
}

// IncrementCounter increments a counter by the given value
func (c *PrometheusMetricsClient) IncrementCounter(name string, value float64) {
	c.RecordCounter(name, value, nil)
}

// IncrementCounterWithLabels increments a counter with labels
func (c *PrometheusMetricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
	c.RecordCounter(name, value, labels)
}

// RecordAPIOperation records an API request with its duration
func (c *PrometheusMetricsClient) RecordAPIOperation(method, endpoint string, status int, durationSeconds float64) {
	c.RecordCounter("api_requests_total", 1, map[string]string{
		"method":   method,
		"endpoint": endpoint,
		"status":   strconv.Itoa(status),
	})
	c.RecordHistogram("api_request_duration_seconds", durationSeconds, map[string]string{
		"method":   method,
		"endpoint": endpoint,
	})
}

// RecordDatabaseOperation records a vector DB operation
func (c *PrometheusMetricsClient) RecordDatabaseOperation(operation string, success bool, durationSeconds float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	c.RecordCounter("vectordb_operations_total", 1, map[string]string{
		"operation": operation,
		"status":    status,
	})
	c.RecordHistogram("vectordb_operation_duration_seconds", durationSeconds, map[string]string{
		"operation": operation,
	})
}

// StartTimer returns a function that records the elapsed time when called
func (c *PrometheusMetricsClient) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		c.RecordDuration(name, time.Since(start), labels)
	}
}

// Snapshot returns the mirrored counter values keyed by metric name plus
// sorted label pairs.
func (c *PrometheusMetricsClient) Snapshot() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Close releases resources
func (c *PrometheusMetricsClient) Close() error {
	return nil
}

func (c *PrometheusMetricsClient) track(name string, labels map[string]string, value float64) {
	key := name
	if len(labels) > 0 {
		names := labelNames(labels)
		pairs := make([]string, 0, len(names))
		for _, n := range names {
			pairs = append(pairs, n+"="+labels[n])
		}
		key = name + "{" + strings.Join(pairs, ",") + "}"
	}
	c.mu.Lock()
	c.values[key] += value
	c.mu.Unlock()
}

func (c *PrometheusMetricsClient) getOrCreateCounter(name, help string, labels []string) *prometheus.CounterVec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if counter, ok := c.counters[name]; ok {
		return counter
	}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	c.registry.MustRegister(counter)
	c.counters[name] = counter
	return counter
}

func (c *PrometheusMetricsClient) getOrCreateGauge(name, help string, labels []string) *prometheus.GaugeVec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gauge, ok := c.gauges[name]; ok {
		return gauge
	}
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	c.registry.MustRegister(gauge)
	c.gauges[name] = gauge
	return gauge
}

func (c *PrometheusMetricsClient) getOrCreateHistogram(name, help string, labels []string) *prometheus.HistogramVec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if histogram, ok := c.histograms[name]; ok {
		return histogram
	}
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labels)
	c.registry.MustRegister(histogram)
	c.histograms[name] = histogram
	return histogram
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
