package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("tour-solve-metrics")

// SolveMetrics provides metrics collection for tour solves
type SolveMetrics struct {
	solvesStartedCounter   metric.Int64Counter
	solvesCompletedCounter metric.Int64Counter
	solvesFailedCounter    metric.Int64Counter
	solveDurationHistogram metric.Float64Histogram
	pointCountHistogram    metric.Int64Histogram
	solvesActiveGauge      metric.Int64UpDownCounter
}

// NewSolveMetrics creates a new solve metrics collector
func NewSolveMetrics() (*SolveMetrics, error) {
	solvesStartedCounter, err := meter.Int64Counter(
		"tour_orchestrator.solves.started",
		metric.WithDescription("Total number of tour solves started"),
		metric.WithUnit("{solve}"),
	)
	if err != nil {
		return nil, err
	}

	solvesCompletedCounter, err := meter.Int64Counter(
		"tour_orchestrator.solves.completed",
		metric.WithDescription("Total number of tour solves that returned a tour"),
		metric.WithUnit("{solve}"),
	)
	if err != nil {
		return nil, err
	}

	solvesFailedCounter, err := meter.Int64Counter(
		"tour_orchestrator.solves.failed",
		metric.WithDescription("Total number of tour solves that failed"),
		metric.WithUnit("{solve}"),
	)
	if err != nil {
		return nil, err
	}

	solveDurationHistogram, err := meter.Float64Histogram(
		"tour_orchestrator.solve.duration",
		metric.WithDescription("Duration of a full solve in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	pointCountHistogram, err := meter.Int64Histogram(
		"tour_orchestrator.solve.points",
		metric.WithDescription("Number of points per solve"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return nil, err
	}

	solvesActiveGauge, err := meter.Int64UpDownCounter(
		"tour_orchestrator.solves.active",
		metric.WithDescription("Number of engine runs in progress"),
		metric.WithUnit("{solve}"),
	)
	if err != nil {
		return nil, err
	}

	return &SolveMetrics{
		solvesStartedCounter:   solvesStartedCounter,
		solvesCompletedCounter: solvesCompletedCounter,
		solvesFailedCounter:    solvesFailedCounter,
		solveDurationHistogram: solveDurationHistogram,
		pointCountHistogram:    pointCountHistogram,
		solvesActiveGauge:      solvesActiveGauge,
	}, nil
}

// RecordSolveStarted records a solve that passed validation
func (sm *SolveMetrics) RecordSolveStarted(ctx context.Context, mode string, points int) {
	sm.solvesStartedCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("solve.mode", mode)),
	)
	sm.pointCountHistogram.Record(ctx, int64(points),
		metric.WithAttributes(attribute.String("solve.mode", mode)),
	)
	sm.solvesActiveGauge.Add(ctx, 1,
		metric.WithAttributes(attribute.String("solve.mode", mode)),
	)
}

// RecordSolveCompleted records a solve that produced a tour
func (sm *SolveMetrics) RecordSolveCompleted(ctx context.Context, mode string, duration time.Duration) {
	sm.solvesCompletedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("solve.mode", mode),
			attribute.String("status", "completed"),
		),
	)
	sm.solveDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("solve.mode", mode),
			attribute.String("status", "completed"),
		),
	)
	sm.solvesActiveGauge.Add(ctx, -1,
		metric.WithAttributes(attribute.String("solve.mode", mode)),
	)
}

// RecordSolveFailed records a solve that failed after it started
func (sm *SolveMetrics) RecordSolveFailed(ctx context.Context, mode, errorKind string, duration time.Duration) {
	sm.solvesFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("solve.mode", mode),
			attribute.String("status", "failed"),
			attribute.String("error.kind", errorKind),
		),
	)
	sm.solveDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("solve.mode", mode),
			attribute.String("status", "failed"),
		),
	)
	sm.solvesActiveGauge.Add(ctx, -1,
		metric.WithAttributes(attribute.String("solve.mode", mode)),
	)
}
