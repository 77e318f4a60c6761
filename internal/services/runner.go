// Package services holds the core vector-store and provisioning logic
// behind the HTTP surface, plus the uniform wrapper every service method
// runs under.
package services

import (
	"context"
	"time"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/observability"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
)

// Response is the canonical success envelope.
type Response struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message"`
	TenantCode  string      `json:"tenant_code,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Results     interface{} `json:"results,omitempty"`
	TimeTakenMS float64     `json:"time_taken_ms"`
}

// Runner applies the cross-cutting service-method contract: timing, error
// classification and logging, and response shaping. One Runner is shared
// by all handlers.
type Runner struct {
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewRunner builds a runner. Nil dependencies degrade to no-ops.
func NewRunner(logger observability.Logger, metrics observability.MetricsClient) *Runner {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &Runner{logger: logger.WithPrefix("service"), metrics: metrics}
}

// Do executes fn under the service-method contract and shapes its result.
// Errors come back classified for the HTTP layer to translate; client
// cancellations pass through without an error log.
func (r *Runner) Do(ctx context.Context, operation, tenant, message string, fn func(context.Context) (interface{}, error)) (*Response, error) {
	start := time.Now()
	results, err := fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		if apierrors.IsCanceled(err) {
			return nil, err
		}
		kind := apierrors.KindOf(err)
		r.logger.Error("service operation failed", map[string]interface{}{
			"operation": operation,
			"tenant":    tenant,
			"kind":      string(kind),
			"error":     security.SanitizeErrorMessage(err.Error()),
			"elapsed":   elapsed.String(),
		})
		r.metrics.IncrementCounterWithLabels("service_errors_total", 1, map[string]string{
			"operation": operation,
			"kind":      string(kind),
		})
		return nil, err
	}

	r.metrics.RecordDuration("service_operation_duration_seconds", elapsed, map[string]string{
		"operation": operation,
	})
	return &Response{
		Success:     true,
		Message:     message,
		TenantCode:  tenant,
		Timestamp:   time.Now().UTC(),
		Results:     results,
		TimeTakenMS: float64(elapsed.Microseconds()) / 1000,
	}, nil
}
