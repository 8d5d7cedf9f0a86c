// Package middleware provides cross-cutting concerns for the aggregation
// engine. It wraps aggregators with tracing, metrics, and logging so the
// units themselves stay pure.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahrav/go-concord/internal/ports"
)

// Metric names understood by PrometheusMetrics. Any other name is routed to
// the generic operation, state, or observation vectors.
const (
	MetricAggregationsTotal   = "aggregations_total"
	MetricComponentsSkipped   = "components_skipped_total"
	MetricAggregateScore      = "aggregate_score"
	MetricReconstructionError = "reconstruction_error"

	// OperationAggregate is the latency operation recorded per aggregation.
	OperationAggregate = "aggregate"
)

const (
	metricsNamespace = "concord"
	unknownLabel     = "unknown"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It tracks the aggregate score distribution, exclusions, and
// decomposition health per candidate.
type PrometheusMetrics struct {
	aggregateScore      *prometheus.HistogramVec
	componentsSkipped   *prometheus.CounterVec
	aggregations        *prometheus.CounterVec
	reconstructionError *prometheus.GaugeVec
	executionLatency    *prometheus.HistogramVec
	operationCounter    *prometheus.CounterVec
	systemGauges        *prometheus.GaugeVec
	observations        *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collector and registers every metric with
// reg. A nil registerer uses prometheus.DefaultRegisterer. Registration
// failures, such as a second collector on the same registry, are returned as
// *ports.MetricsError.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	pm := &PrometheusMetrics{
		aggregateScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      MetricAggregateScore,
				Help:      "Distribution of bounded aggregate scores per candidate.",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"candidate"},
		),
		componentsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      MetricComponentsSkipped,
				Help:      "Metric components excluded before aggregation.",
			},
			[]string{"candidate"},
		),
		aggregations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      MetricAggregationsTotal,
				Help:      "Aggregations performed, by outcome.",
			},
			[]string{"candidate", "status"},
		),
		reconstructionError: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      MetricReconstructionError,
				Help:      "Absolute gap between the aggregate and the sum of its contributions in the latest result.",
			},
			[]string{"candidate"},
		),
		executionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "aggregation_duration_seconds",
				Help:      "Execution time of aggregation operations.",
				Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3, 1e-2, 0.1},
			},
			[]string{"operation", "candidate"},
		),
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Generic operation counters.",
			},
			[]string{"operation", "candidate"},
		),
		systemGauges: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "state",
				Help:      "Generic state values.",
			},
			[]string{"metric", "candidate"},
		),
		observations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "observations",
				Help:      "Generic observed values.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"metric", "candidate"},
		),
	}

	collectors := []struct {
		name      string
		collector prometheus.Collector
	}{
		{MetricAggregateScore, pm.aggregateScore},
		{MetricComponentsSkipped, pm.componentsSkipped},
		{MetricAggregationsTotal, pm.aggregations},
		{MetricReconstructionError, pm.reconstructionError},
		{"aggregation_duration_seconds", pm.executionLatency},
		{"operations_total", pm.operationCounter},
		{"state", pm.systemGauges},
		{"observations", pm.observations},
	}
	for _, c := range collectors {
		if err := reg.Register(c.collector); err != nil {
			return nil, ports.NewMetricsError(metricsNamespace+"_"+c.name, "Register", err)
		}
	}

	return pm, nil
}

// candidateLabel returns the candidate label or "unknown".
func candidateLabel(labels map[string]string) string {
	if c := labels["candidate"]; c != "" {
		return c
	}
	return unknownLabel
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.executionLatency.WithLabelValues(operation, candidateLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	candidate := candidateLabel(labels)

	switch metric {
	case MetricAggregationsTotal:
		status := labels["status"]
		if status == "" {
			status = unknownLabel
		}
		pm.aggregations.WithLabelValues(candidate, status).Add(value)
	case MetricComponentsSkipped:
		pm.componentsSkipped.WithLabelValues(candidate).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, candidate).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	candidate := candidateLabel(labels)

	switch metric {
	case MetricReconstructionError:
		pm.reconstructionError.WithLabelValues(candidate).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric, candidate).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	candidate := candidateLabel(labels)

	switch metric {
	case MetricAggregateScore:
		pm.aggregateScore.WithLabelValues(candidate).Observe(value)
	default:
		pm.observations.WithLabelValues(metric, candidate).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
