package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	metricsHandler http.Handler

	// RED Metrics (Rate, Errors, Duration)
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Business Metrics
	downloadsTotal      metric.Int64Counter
	downloadsActive     metric.Int64UpDownCounter
	downloadDuration    metric.Float64Histogram
	extractorOperations metric.Int64Counter
	extractorErrors     metric.Int64Counter
	filesServed         metric.Int64Counter
	bytesServed         metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint, when set, additionally pushes metrics over OTLP/gRPC.
	OTLPEndpoint string

	// Registry replaces the global Prometheus registry. Used by tests.
	Registry *promclient.Registry
}

// New creates a new telemetry instance. A disabled instance is safe to use:
// every recording method becomes a no-op.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("service.instance.id", instanceID()),
	)

	var (
		promOpts       []prometheus.Option
		metricsHandler = promhttp.Handler()
	)

	if cfg.Registry != nil {
		promOpts = append(promOpts, prometheus.WithRegisterer(cfg.Registry))
		metricsHandler = promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})
	}

	exporter, err := prometheus.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mpOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
		}

		mpOpts = append(mpOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)))
	}

	meterProvider := sdkmetric.NewMeterProvider(mpOpts...)
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		metricsHandler: metricsHandler,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	// Go runtime metrics: memory, goroutines, GC.
	if err := runtime.Start(
		runtime.WithMeterProvider(meterProvider),
		runtime.WithMinimumReadMemStatsInterval(15*time.Second),
	); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	return t, nil
}

// Enabled reports whether metrics and traces are being produced.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.meterProvider != nil
}

// TracerProvider returns the provider spans are created from.
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider()
	}

	return t.tracerProvider
}

// RecordHTTPRequest records HTTP request metrics. route is the chi route
// pattern, never the raw path, to keep filenames out of the label set.
func (t *Telemetry) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", status),
	)

	if t.httpRequestsTotal != nil {
		t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	}

	if t.httpRequestDuration != nil {
		t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
	}
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight() {
	if t == nil {
		return
	}

	if t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight() {
	if t == nil {
		return
	}

	if t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), -1)
	}
}

// RecordDownload records download metrics.
func (t *Telemetry) RecordDownload(status string, duration time.Duration) {
	if t == nil {
		return
	}

	if t.downloadsTotal != nil {
		t.downloadsTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("status", status)),
		)
	}

	if t.downloadDuration != nil {
		t.downloadDuration.Record(context.Background(), duration.Seconds(),
			metric.WithAttributes(attribute.String("status", status)),
		)
	}
}

// IncrementActiveDownloads increments active downloads counter.
func (t *Telemetry) IncrementActiveDownloads() {
	if t == nil {
		return
	}

	if t.downloadsActive != nil {
		t.downloadsActive.Add(context.Background(), 1)
	}
}

// DecrementActiveDownloads decrements active downloads counter.
func (t *Telemetry) DecrementActiveDownloads() {
	if t == nil {
		return
	}

	if t.downloadsActive != nil {
		t.downloadsActive.Add(context.Background(), -1)
	}
}

// RecordExtractorOperation records one call into an extraction backend.
func (t *Telemetry) RecordExtractorOperation(extractor, operation, status string) {
	if t == nil {
		return
	}

	if t.extractorOperations != nil {
		t.extractorOperations.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("extractor", extractor),
				attribute.String("operation", operation),
				attribute.String("status", status),
			),
		)
	}

	if status == "error" && t.extractorErrors != nil {
		t.extractorErrors.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("extractor", extractor),
				attribute.String("operation", operation),
			),
		)
	}
}

// RecordFileServed records a retrieval attempt and the body bytes it wrote.
func (t *Telemetry) RecordFileServed(status string, size int64) {
	if t == nil {
		return
	}

	if t.filesServed != nil {
		t.filesServed.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("status", status)),
		)
	}

	if size > 0 && t.bytesServed != nil {
		t.bytesServed.Add(context.Background(), size)
	}
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.metricsHandler == nil {
		return http.NotFoundHandler()
	}

	return t.metricsHandler
}

// Shutdown flushes and stops the meter and tracer providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}

	return errors.Join(
		t.meterProvider.Shutdown(ctx),
		t.tracerProvider.Shutdown(ctx),
	)
}

// initializeMetrics creates all metric instruments.
func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	return t.initializeBusinessMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeBusinessMetrics() error {
	var err error

	t.downloadsTotal, err = t.meter.Int64Counter(
		"downloads_total",
		metric.WithDescription("Total number of media downloads"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloads_total counter: %w", err)
	}

	t.downloadsActive, err = t.meter.Int64UpDownCounter(
		"downloads_active",
		metric.WithDescription("Number of media downloads in progress"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloads_active counter: %w", err)
	}

	t.downloadDuration, err = t.meter.Float64Histogram(
		"download_duration_seconds",
		metric.WithDescription("Media download duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create download_duration histogram: %w", err)
	}

	t.extractorOperations, err = t.meter.Int64Counter(
		"extractor_operations_total",
		metric.WithDescription("Total number of extraction backend operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create extractor_operations_total counter: %w", err)
	}

	t.extractorErrors, err = t.meter.Int64Counter(
		"extractor_errors_total",
		metric.WithDescription("Total number of failed extraction backend operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create extractor_errors_total counter: %w", err)
	}

	t.filesServed, err = t.meter.Int64Counter(
		"files_served_total",
		metric.WithDescription("Total number of download_file requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create files_served_total counter: %w", err)
	}

	t.bytesServed, err = t.meter.Int64Counter(
		"served_bytes_total",
		metric.WithDescription("Total size of files served"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create served_bytes_total counter: %w", err)
	}

	return nil
}
