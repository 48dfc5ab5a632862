package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments bundles the metrics recorded while runs execute.
type Instruments struct {
	runs          metric.Int64Counter
	invocations   metric.Int64Counter
	breakthroughs metric.Int64Counter
	layerDuration metric.Float64Histogram
	activeRuns    metric.Int64UpDownCounter
}

// NewInstruments registers every instrument on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	runs, err := meter.Int64Counter("insightmesh.runs",
		metric.WithDescription("Finished runs by circuit and terminal status"),
	)
	if err != nil {
		return nil, err
	}
	invocations, err := meter.Int64Counter("insightmesh.invocations",
		metric.WithDescription("Perspective invocations by outcome"),
	)
	if err != nil {
		return nil, err
	}
	breakthroughs, err := meter.Int64Counter("insightmesh.breakthroughs",
		metric.WithDescription("Layers whose tension snapshot signalled a breakthrough"),
	)
	if err != nil {
		return nil, err
	}
	layerDuration, err := meter.Float64Histogram("insightmesh.layer.duration",
		metric.WithDescription("Time to process one layer (ms)"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	activeRuns, err := meter.Int64UpDownCounter("insightmesh.runs.active",
		metric.WithDescription("Runs currently executing"),
	)
	if err != nil {
		return nil, err
	}
	return &Instruments{
		runs:          runs,
		invocations:   invocations,
		breakthroughs: breakthroughs,
		layerDuration: layerDuration,
		activeRuns:    activeRuns,
	}, nil
}

// RunStarted increments the active run gauge.
func (i *Instruments) RunStarted(ctx context.Context) {
	i.activeRuns.Add(ctx, 1)
}

// RunFinished decrements the active run gauge and counts the terminal status.
func (i *Instruments) RunFinished(ctx context.Context, circuit, status string) {
	i.activeRuns.Add(ctx, -1)
	i.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("circuit", circuit),
		attribute.String("status", status),
	))
}

// Invocation counts one perspective invocation.
func (i *Instruments) Invocation(ctx context.Context, archetype string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	i.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("archetype", archetype),
		attribute.String("outcome", outcome),
	))
}

// Layer records the duration of a processed layer and any breakthrough.
func (i *Instruments) Layer(ctx context.Context, circuit string, d time.Duration, breakthrough bool) {
	attrs := metric.WithAttributes(attribute.String("circuit", circuit))
	i.layerDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
	if breakthrough {
		i.breakthroughs.Add(ctx, 1, attrs)
	}
}
