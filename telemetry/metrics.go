package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/varastohq/varasto/types"
)

// Metrics holds the collection pipeline's instruments.
type Metrics struct {
	RunsStarted   metric.Int64Counter
	RunsFinished  metric.Int64Counter
	RunDuration   metric.Float64Histogram
	ActiveRuns    metric.Int64UpDownCounter
	ResourcesSeen metric.Int64Counter

	CatalogResources metric.Int64Gauge
}

// NewMetrics registers the instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("varasto.runs.started.total",
		metric.WithDescription("Collection runs admitted and dispatched"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.RunsFinished, err = meter.Int64Counter("varasto.runs.finished.total",
		metric.WithDescription("Collection runs reaching a terminal state, by status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("varasto.run.duration.seconds",
		metric.WithDescription("Wall time from run start to terminal state"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveRuns, err = meter.Int64UpDownCounter("varasto.runs.active",
		metric.WithDescription("Runs currently in a non-terminal state"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.ResourcesSeen, err = meter.Int64Counter("varasto.resources.observed.total",
		metric.WithDescription("Discovered assets processed by reconciliation"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.CatalogResources, err = meter.Int64Gauge("varasto.catalog.resources.current",
		metric.WithDescription("Resources currently in the catalog"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRunStart marks one run entering execution.
func (m *Metrics) RecordRunStart(ctx context.Context, providerName string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", providerName))
	m.RunsStarted.Add(ctx, 1, attrs)
	m.ActiveRuns.Add(ctx, 1, attrs)
}

// RecordRunEnd marks one run reaching a terminal state.
func (m *Metrics) RecordRunEnd(ctx context.Context, providerName string, run types.CollectionRun, duration time.Duration) {
	if m == nil {
		return
	}
	providerAttr := metric.WithAttributes(attribute.String("provider", providerName))
	m.ActiveRuns.Add(ctx, -1, providerAttr)
	m.RunsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", providerName),
		attribute.String("status", string(run.Status)),
	))
	m.RunDuration.Record(ctx, duration.Seconds(), providerAttr)
	m.ResourcesSeen.Add(ctx, int64(run.ResourcesFound), providerAttr)
}

// RecordCatalogSize reports the current catalog resource count.
func (m *Metrics) RecordCatalogSize(ctx context.Context, resources int) {
	if m == nil {
		return
	}
	m.CatalogResources.Record(ctx, int64(resources))
}
