package observability

import "time"

// NoopMetricsClient is a metrics client that does nothing, used in tests
// and when metrics are disabled.
type NoopMetricsClient struct{}

// NewNoopMetricsClient creates a new NoopMetricsClient
func NewNoopMetricsClient() MetricsClient {
	return &NoopMetricsClient{}
}

// RecordCounter implements MetricsClient.RecordCounter
func (c *NoopMetricsClient) RecordCounter(name string, value float64, labels map[string]string) {}

// RecordGauge implements MetricsClient.RecordGauge
func (c *NoopMetricsClient) RecordGauge(name string, value float64, labels map[string]string) {}

// RecordHistogram implements MetricsClient.RecordHistogram
func (c *NoopMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {}

// RecordDuration implements MetricsClient.RecordDuration
func (c *NoopMetricsClient) RecordDuration(name string, duration time.Duration, labels map[string]string) {
}

// IncrementCounter implements MetricsClient.IncrementCounter
func (c *NoopMetricsClient) IncrementCounter(name string, value float64) {}

// IncrementCounterWithLabels implements MetricsClient.IncrementCounterWithLabels
func (c *NoopMetricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
}

// RecordAPIOperation implements MetricsClient.RecordAPIOperation
func (c *NoopMetricsClient) RecordAPIOperation(method, endpoint string, status int, durationSeconds float64) {
}

// RecordDatabaseOperation implements MetricsClient.RecordDatabaseOperation
func (c *NoopMetricsClient) RecordDatabaseOperation(operation string, success bool, durationSeconds float64) {
}

// StartTimer implements MetricsClient.StartTimer
func (c *NoopMetricsClient) StartTimer(name string, labels map[string]string) func() {
	return func() {}
}

// Snapshot implements MetricsClient.Snapshot
func (c *NoopMetricsClient) Snapshot() map[string]float64 {
	return map[string]float64{}
}

// Close implements MetricsClient.Close
func (c *NoopMetricsClient) Close() error {
	return nil
}
