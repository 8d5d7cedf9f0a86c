// Package ports defines the contracts between the application layer and the
// infrastructure that builds, runs, and observes aggregators.
package ports

import (
	"time"
)

// MetricsCollector defines the interface for collecting operational metrics
// about aggregation runs.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
//
// Labels carry the candidate name under the "candidate" key; collectors
// substitute "unknown" when it is absent.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric, such as the number of
	// aggregations or skipped components.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric, such as the
	// reconstruction error of the latest result.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram, such as the
	// aggregate score distribution.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
