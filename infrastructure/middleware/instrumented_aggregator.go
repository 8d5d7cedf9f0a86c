package middleware

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// Aggregation outcomes reported in the status label.
const (
	StatusOK           = "ok"
	StatusPartial      = "partial"
	StatusEmpty        = "empty"
	StatusUnreconciled = "unreconciled"
)

// ReconstructionTolerance is the largest reconstruction error an
// aggregation may report before it is flagged as unreconciled.
const ReconstructionTolerance = 1e-8

const tracerName = "github.com/ahrav/go-concord/aggregator"

var (
	_ domain.Aggregator     = (*InstrumentedAggregator)(nil)
	_ domain.CandidateNamer = (*InstrumentedAggregator)(nil)
)

// InstrumentedAggregator decorates a domain.Aggregator with an OpenTelemetry
// span, metrics, and structured logs. The wrapped aggregator's result is
// returned unchanged.
type InstrumentedAggregator struct {
	next    domain.Aggregator
	metrics ports.MetricsCollector
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewInstrumentedAggregator wraps next. metrics may be nil; a nil logger
// uses slog.Default().
func NewInstrumentedAggregator(
	next domain.Aggregator,
	metrics ports.MetricsCollector,
	logger *slog.Logger,
) *InstrumentedAggregator {
	if next == nil {
		panic("instrumented aggregator: next aggregator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InstrumentedAggregator{
		next:    next,
		metrics: metrics,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
}

// Name returns the wrapped aggregator's name.
func (a *InstrumentedAggregator) Name() string { return a.next.Name() }

// Candidate returns the wrapped aggregator's candidate name, or its instance
// name when it does not report one.
func (a *InstrumentedAggregator) Candidate() string {
	if namer, ok := a.next.(domain.CandidateNamer); ok {
		return namer.Candidate()
	}
	return a.next.Name()
}

// Unwrap returns the wrapped aggregator.
func (a *InstrumentedAggregator) Unwrap() domain.Aggregator { return a.next }

// Aggregate implements domain.Aggregator without a parent span.
func (a *InstrumentedAggregator) Aggregate(components []domain.MetricComponent) domain.AggregateResult {
	return a.AggregateContext(context.Background(), components)
}

// AggregateContext aggregates components under a child span of ctx.
func (a *InstrumentedAggregator) AggregateContext(
	ctx context.Context,
	components []domain.MetricComponent,
) domain.AggregateResult {
	_, span := a.tracer.Start(ctx, "Aggregator.Aggregate", trace.WithAttributes(
		attribute.String("aggregator.name", a.next.Name()),
		attribute.Int("aggregator.component_count", len(components)),
	))
	defer span.End()

	start := time.Now()
	result := a.next.Aggregate(components)
	elapsed := time.Since(start)

	reconErr := result.ReconstructionError()
	status := Status(result)

	span.SetAttributes(
		attribute.String("aggregator.candidate", result.Candidate),
		attribute.Float64("aggregator.score", result.AggregateScore),
		attribute.Int("aggregator.contributing_count", len(result.Contributions)),
		attribute.Int("aggregator.skipped_count", len(result.Skipped)),
		attribute.Float64("aggregator.reconstruction_error", reconErr),
		attribute.String("aggregator.status", status),
	)
	for _, w := range result.Warnings {
		span.AddEvent("component.excluded", trace.WithAttributes(attribute.String("warning", w)))
		a.logger.Warn("component excluded",
			slog.String("aggregator", a.next.Name()),
			slog.String("candidate", result.Candidate),
			slog.String("warning", w),
		)
	}

	if status == StatusUnreconciled {
		span.AddEvent("decomposition.unreconciled", trace.WithAttributes(
			attribute.Float64("contribution_sum", result.ContributionSum()),
		))
		a.logger.Warn("contributions do not reconstruct aggregate",
			slog.String("candidate", result.Candidate),
			slog.Float64("aggregate", result.AggregateScore),
			slog.Float64("contribution_sum", result.ContributionSum()),
		)
	}
	span.SetStatus(codes.Ok, "")

	a.logger.Debug("aggregation completed",
		slog.String("aggregator", a.next.Name()),
		slog.String("candidate", result.Candidate),
		slog.Float64("aggregate", result.AggregateScore),
		slog.Int("contributing", len(result.Contributions)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Float64("reconstruction_error", reconErr),
		slog.Duration("duration", elapsed),
	)

	a.recordMetrics(result, status, reconErr, elapsed)
	return result
}

func (a *InstrumentedAggregator) recordMetrics(
	result domain.AggregateResult,
	status string,
	reconErr float64,
	elapsed time.Duration,
) {
	if a.metrics == nil {
		return
	}

	labels := map[string]string{"candidate": result.Candidate}
	a.metrics.RecordLatency(OperationAggregate, elapsed, labels)
	a.metrics.RecordHistogram(MetricAggregateScore, result.AggregateScore, labels)
	a.metrics.RecordGauge(MetricReconstructionError, reconErr, labels)
	if n := len(result.Skipped); n > 0 {
		a.metrics.RecordCounter(MetricComponentsSkipped, float64(n), labels)
	}

	a.metrics.RecordCounter(MetricAggregationsTotal, 1, map[string]string{
		"candidate": result.Candidate,
		"status":    status,
	})
}

// Status classifies a result for metrics and logs. An unreconciled
// decomposition takes precedence over exclusions.
func Status(result domain.AggregateResult) string {
	switch {
	case len(result.Contributions) == 0:
		return StatusEmpty
	case result.ReconstructionError() > ReconstructionTolerance:
		return StatusUnreconciled
	case len(result.Skipped) > 0:
		return StatusPartial
	default:
		return StatusOK
	}
}
