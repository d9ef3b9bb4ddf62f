package telemetry

import (
	"context"
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const scopeName = "github.com/varastohq/varasto"

// Global telemetry handles. Direct OTEL, no wrappers.
var (
	Tracer = otel.Tracer(scopeName)
	Meter  = otel.Meter(scopeName)

	// PrometheusRegistry backs the /metrics endpoint; the OTEL exporter
	// registers itself here.
	PrometheusRegistry *promclient.Registry
)

// Config for telemetry initialization.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Init sets up the trace and metric providers. Metrics export through
// Prometheus pull only; traces are recorded in-process for log
// correlation. Returns a combined shutdown function.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "varasto"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	Tracer = traceProvider.Tracer(scopeName)

	registry := promclient.NewRegistry()
	PrometheusRegistry = registry

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		_ = traceProvider.Shutdown(ctx)
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)
	Meter = meterProvider.Meter(scopeName)

	return func(ctx context.Context) error {
		var err error
		if e := traceProvider.Shutdown(ctx); e != nil {
			err = fmt.Errorf("trace shutdown: %w", e)
		}
		if e := meterProvider.Shutdown(ctx); e != nil && err == nil {
			err = fmt.Errorf("metric shutdown: %w", e)
		}
		return err
	}, nil
}
