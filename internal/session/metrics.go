package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ReylordDev/LocalFlow/session"

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

type telemetry struct {
	tracer        trace.Tracer
	stageDuration metric.Float64Histogram
	runs          metric.Int64Counter
	statusChanges metric.Int64Counter
}

func newTelemetry() (*telemetry, error) {
	m := otel.Meter(instrumentationName)
	t := &telemetry{tracer: otel.Tracer(instrumentationName)}
	var err error
	if t.stageDuration, err = m.Float64Histogram("localflow.workflow.stage.duration",
		metric.WithDescription("Latency of a transcription workflow stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if t.runs, err = m.Int64Counter("localflow.workflow.runs",
		metric.WithDescription("Transcription workflow runs by outcome."),
	); err != nil {
		return nil, err
	}
	if t.statusChanges, err = m.Int64Counter("localflow.session.status_changes",
		metric.WithDescription("Session status transitions by target status."),
	); err != nil {
		return nil, err
	}
	return t, nil
}

// stage runs fn inside a child span and records its latency.
func (t *telemetry) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, "workflow."+name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	t.stageDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("stage", name)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
