package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes must stay low cardinality: operation names, extractor
// names and status values only. Media URLs, titles and filenames belong in
// logs, which carry the trace_id for correlation.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation runs fn inside a span named operationName.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", duration.Seconds()),
	)

	return err
}

// InstrumentExtractorOperation instruments a call into an extraction backend.
func (t *Telemetry) InstrumentExtractorOperation(ctx context.Context, extractor, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "extractor_"+operation, "extractor", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("extractor", extractor))

		return fn(ctx)
	})

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordExtractorOperation(extractor, operation, status)

	return err
}

// InstrumentDownload instruments one download request end to end.
func (t *Telemetry) InstrumentDownload(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.IncrementActiveDownloads()
	defer t.DecrementActiveDownloads()

	err := t.InstrumentOperation(ctx, "download", "orchestrator", fn)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDownload(status, time.Since(start))

	return err
}
