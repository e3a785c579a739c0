package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for engine spans.
const TracerName = "github.com/BaSui01/agentpipe/workflow"

// MetricsRecorder receives engine measurements. internal/metrics.Collector
// implements it with Prometheus vectors.
type MetricsRecorder interface {
	RecordRun(workflow, strategy, status string, duration time.Duration)
	RecordUnit(workflow, unit, kind, status string, duration time.Duration)
	RecordWave(workflow string, index, size int)
	RecordRoute(workflow, router, selected string)
	RecordSandboxViolation(workflow, unit string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRun(string, string, string, time.Duration)          {}
func (nopRecorder) RecordUnit(string, string, string, string, time.Duration) {}
func (nopRecorder) RecordWave(string, int, int)                              {}
func (nopRecorder) RecordRoute(string, string, string)                       {}
func (nopRecorder) RecordSandboxViolation(string, string)                    {}

func defaultTracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

func startRunSpan(ctx context.Context, tracer trace.Tracer, runID, workflow string, strategy Strategy) (context.Context, trace.Span) {
	return tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.run_id", runID),
		attribute.String("workflow.name", workflow),
		attribute.String("workflow.strategy", string(strategy)),
	))
}

func startUnitSpan(ctx context.Context, tracer trace.Tracer, u Unit) (context.Context, trace.Span) {
	return tracer.Start(ctx, "workflow.unit", trace.WithAttributes(
		attribute.String("unit.name", u.Name()),
		attribute.String("unit.kind", string(u.Kind())),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// MultiRecorder fans measurements out to several recorders.
type MultiRecorder []MetricsRecorder

func (m MultiRecorder) RecordRun(workflow, strategy, status string, d time.Duration) {
	for _, r := range m {
		r.RecordRun(workflow, strategy, status, d)
	}
}

func (m MultiRecorder) RecordUnit(workflow, unit, kind, status string, d time.Duration) {
	for _, r := range m {
		r.RecordUnit(workflow, unit, kind, status, d)
	}
}

func (m MultiRecorder) RecordWave(workflow string, index, size int) {
	for _, r := range m {
		r.RecordWave(workflow, index, size)
	}
}

func (m MultiRecorder) RecordRoute(workflow, router, selected string) {
	for _, r := range m {
		r.RecordRoute(workflow, router, selected)
	}
}

func (m MultiRecorder) RecordSandboxViolation(workflow, unit string) {
	for _, r := range m {
		r.RecordSandboxViolation(workflow, unit)
	}
}
