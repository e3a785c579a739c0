package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/agentpipe/workflow"
)

// Recorder implements workflow.MetricsRecorder with OTel instruments, so
// engine measurements reach the OTLP collector next to the spans.
type Recorder struct {
	runs       metric.Int64Counter
	runTime    metric.Float64Histogram
	units      metric.Int64Counter
	unitTime   metric.Float64Histogram
	waveSize   metric.Int64Histogram
	routes     metric.Int64Counter
	violations metric.Int64Counter
}

var _ workflow.MetricsRecorder = (*Recorder)(nil)

// NewRecorder creates the engine instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	var (
		r   Recorder
		err error
	)
	if r.runs, err = meter.Int64Counter("agentpipe.runs", metric.WithDescription("Workflow runs")); err != nil {
		return nil, fmt.Errorf("create runs counter: %w", err)
	}
	if r.runTime, err = meter.Float64Histogram("agentpipe.run.duration", metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create run histogram: %w", err)
	}
	if r.units, err = meter.Int64Counter("agentpipe.units", metric.WithDescription("Unit executions")); err != nil {
		return nil, fmt.Errorf("create units counter: %w", err)
	}
	if r.unitTime, err = meter.Float64Histogram("agentpipe.unit.duration", metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create unit histogram: %w", err)
	}
	if r.waveSize, err = meter.Int64Histogram("agentpipe.dag.wave_size", metric.WithDescription("Units per DAG wave")); err != nil {
		return nil, fmt.Errorf("create wave histogram: %w", err)
	}
	if r.routes, err = meter.Int64Counter("agentpipe.route.selections"); err != nil {
		return nil, fmt.Errorf("create routes counter: %w", err)
	}
	if r.violations, err = meter.Int64Counter("agentpipe.sandbox.violations"); err != nil {
		return nil, fmt.Errorf("create violations counter: %w", err)
	}
	return &r, nil
}

func (r *Recorder) RecordRun(wf, strategy, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("workflow", wf),
		attribute.String("strategy", strategy),
		attribute.String("status", status),
	)
	r.runs.Add(context.Background(), 1, attrs)
	r.runTime.Record(context.Background(), d.Seconds(), attrs)
}

func (r *Recorder) RecordUnit(wf, unit, kind, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("workflow", wf),
		attribute.String("unit", unit),
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	r.units.Add(context.Background(), 1, attrs)
	r.unitTime.Record(context.Background(), d.Seconds(), attrs)
}

func (r *Recorder) RecordWave(wf string, index, size int) {
	r.waveSize.Record(context.Background(), int64(size), metric.WithAttributes(
		attribute.String("workflow", wf),
		attribute.Int("wave", index),
	))
}

func (r *Recorder) RecordRoute(wf, router, selected string) {
	r.routes.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("workflow", wf),
		attribute.String("router", router),
		attribute.String("selected", selected),
	))
}

func (r *Recorder) RecordSandboxViolation(wf, unit string) {
	r.violations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("workflow", wf),
		attribute.String("unit", unit),
	))
}
