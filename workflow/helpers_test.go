package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// funcUnit is a leaf whose behavior is supplied by the test.
type funcUnit struct {
	unitBase
	run   func(ctx context.Context, inv *Invocation) (any, error)
	calls atomic.Int32
}

func newFuncUnit(name, outputKey string, run func(ctx context.Context, inv *Invocation) (any, error)) *funcUnit {
	return &funcUnit{
		unitBase: unitBase{name: name, kind: KindFunction, outputKey: outputKey},
		run:      run,
	}
}

func (u *funcUnit) Run(ctx context.Context, inv *Invocation) (any, error) {
	u.calls.Add(1)
	if u.run == nil {
		return nil, nil
	}
	return u.run(ctx, inv)
}

// constUnit returns v.
func constUnit(name, outputKey string, v any) *funcUnit {
	return newFuncUnit(name, outputKey, func(context.Context, *Invocation) (any, error) { return v, nil })
}

// traceLog records the order in which units ran.
type traceLog struct {
	mu    sync.Mutex
	names []string
}

func (l *traceLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *traceLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func graphOf(t *testing.T, units ...Unit) *UnitGraph {
	t.Helper()
	g := NewUnitGraph()
	for _, u := range units {
		require.NoError(t, g.Add(u))
	}
	return g
}

func mustWorkflow(t *testing.T, name string, g *UnitGraph, orch Orchestration) *Workflow {
	t.Helper()
	wf, err := NewWorkflow(name, "", g, orch)
	require.NoError(t, err)
	return wf
}

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestOrchestrator(models ModelClient, opts EngineOptions) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = fixedClock
	}
	return NewOrchestrator(models, opts, nil)
}

// scriptedModel answers from a per-unit script and records requests.
type scriptedModel struct {
	mu       sync.Mutex
	answers  map[string]func(ctx context.Context, req *ModelRequest) (any, error)
	requests []*ModelRequest
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{answers: make(map[string]func(context.Context, *ModelRequest) (any, error))}
}

func (m *scriptedModel) on(unit string, fn func(ctx context.Context, req *ModelRequest) (any, error)) *scriptedModel {
	m.answers[unit] = fn
	return m
}

func (m *scriptedModel) Generate(ctx context.Context, req *ModelRequest) (*ModelResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.answers[req.Unit]
	m.mu.Unlock()
	if fn == nil {
		return &ModelResponse{Output: "ok"}, nil
	}
	out, err := fn(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ModelResponse{Output: out}, nil
}

func (m *scriptedModel) requestsFor(unit string) []*ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ModelRequest
	for _, r := range m.requests {
		if r.Unit == unit {
			out = append(out, r)
		}
	}
	return out
}
