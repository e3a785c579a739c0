package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/internal/ctxkeys"
	"github.com/BaSui01/agentpipe/types"
)

// ErrSessionNotFound is returned by a SessionStore that holds no snapshot
// for the requested id.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists state snapshots between runs of one session.
type SessionStore interface {
	Load(ctx context.Context, id string) (map[string]any, error)
	Save(ctx context.Context, id string, snapshot map[string]any) error
}

// EngineOptions configures an Orchestrator. Zero values are usable.
type EngineOptions struct {
	// Location stamps the platform date keys. Default UTC.
	Location *time.Location
	// Clock supplies the current time. Default time.Now.
	Clock func() time.Time
	// MaxConcurrency bounds units running at once in a parallel group or
	// DAG wave. 0 means unbounded.
	MaxConcurrency int
	// Middleware wraps model, tool and function calls; the first entry is
	// the outermost.
	Middleware []CallMiddleware
	Recorder   MetricsRecorder
	Tracer     trace.Tracer
	Sessions   SessionStore
	History    *HistoryStore
}

// RunOptions are per-run inputs.
type RunOptions struct {
	// SessionID selects a persisted snapshot to resume from and save to.
	SessionID string
	// Input is stored under the "input" state key.
	Input any
	// State seeds additional keys before the run starts.
	State map[string]any
}

// RunResult is the outcome of one run. On failure State still holds
// everything written before the error.
type RunResult struct {
	RunID    string          `json:"run_id"`
	Workflow string          `json:"workflow"`
	Strategy Strategy        `json:"strategy"`
	Status   ExecutionStatus `json:"status"`
	Output   any             `json:"output,omitempty"`
	State    map[string]any  `json:"state"`
	History  *RunHistory     `json:"history,omitempty"`
	Err      error           `json:"-"`
}

// Orchestrator runs hydrated workflows.
type Orchestrator struct {
	models    ModelClient
	opts      EngineOptions
	scheduler *Scheduler
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator. models may be nil when no
// workflow uses llm units.
func NewOrchestrator(models ModelClient, opts EngineOptions, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if models == nil {
		models = unavailableModel{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Tracer == nil {
		opts.Tracer = defaultTracer()
	}
	return &Orchestrator{
		models:    models,
		opts:      opts,
		scheduler: NewScheduler(opts.MaxConcurrency, logger),
		logger:    logger.With(zap.String("component", "orchestrator")),
	}
}

// Run executes wf once. The returned error equals RunResult.Err; the result
// is non-nil whenever the run started.
func (o *Orchestrator) Run(ctx context.Context, wf *Workflow, opts RunOptions) (*RunResult, error) {
	if wf == nil {
		return nil, types.NewStructuralError("", "nil workflow")
	}

	runID := uuid.New().String()
	ctx = ctxkeys.WithRunID(ctx, runID)
	if opts.SessionID != "" {
		ctx = ctxkeys.WithSessionID(ctx, opts.SessionID)
	}
	ctx, span := startRunSpan(ctx, o.opts.Tracer, runID, wf.Name(), wf.Strategy())
	var traceID string
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
		ctx = ctxkeys.WithTraceID(ctx, traceID)
	}

	logger := o.logger.With(
		zap.String("run_id", runID),
		zap.String("trace_id", traceID),
		zap.String("workflow", wf.Name()),
		zap.String("strategy", string(wf.Strategy())))

	state, err := o.initialState(ctx, opts)
	if err == nil {
		err = wf.applyVariables(state)
	}
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	history := NewRunHistory(runID, wf.Name(), wf.Strategy(), o.opts.Clock)
	history.TraceID = traceID
	inv := &Invocation{
		RunID:          runID,
		Workflow:       wf.Name(),
		State:          state,
		logger:         logger,
		models:         o.models,
		middleware:     o.opts.Middleware,
		recorder:       o.opts.Recorder,
		tracer:         o.opts.Tracer,
		history:        history,
		clock:          o.opts.Clock,
		location:       o.opts.Location,
		maxConcurrency: o.opts.MaxConcurrency,
	}

	logger.Info("workflow run started")
	start := o.opts.Clock()
	output, runErr := o.dispatch(ctx, wf, inv)

	if opts.SessionID != "" && o.opts.Sessions != nil {
		if err := o.opts.Sessions.Save(ctx, opts.SessionID, state.Snapshot()); err != nil {
			saveErr := types.NewError(types.ErrStateStore, fmt.Sprintf("save session %q", opts.SessionID)).WithCause(err)
			logger.Error("session save failed", zap.Error(err))
			runErr = errors.Join(runErr, saveErr)
		}
	}

	history.Complete(runErr)
	if o.opts.History != nil {
		o.opts.History.Save(history)
	}

	result := &RunResult{
		RunID:    runID,
		Workflow: wf.Name(),
		Strategy: wf.Strategy(),
		Status:   history.GetStatus(),
		Output:   output,
		State:    state.Snapshot(),
		History:  history,
		Err:      runErr,
	}
	elapsed := o.opts.Clock().Sub(start)
	o.opts.Recorder.RecordRun(wf.Name(), string(wf.Strategy()), string(result.Status), elapsed)
	endSpan(span, runErr)

	if runErr != nil {
		logger.Warn("workflow run failed",
			zap.String("unit", types.UnitOf(runErr)),
			zap.Duration("duration", elapsed),
			zap.Error(runErr))
		return result, runErr
	}
	logger.Info("workflow run completed", zap.Duration("duration", elapsed))
	return result, nil
}

// initialState builds the run state: session snapshot, then seeded keys,
// then input, then platform keys.
func (o *Orchestrator) initialState(ctx context.Context, opts RunOptions) (*State, error) {
	state := NewState()
	if opts.SessionID != "" && o.opts.Sessions != nil {
		snapshot, err := o.opts.Sessions.Load(ctx, opts.SessionID)
		switch {
		case errors.Is(err, ErrSessionNotFound):
		case err != nil:
			return nil, types.NewError(types.ErrStateStore, fmt.Sprintf("load session %q", opts.SessionID)).WithCause(err)
		default:
			state = NewStateFrom(snapshot)
		}
	}
	for k, v := range opts.State {
		state.Set(k, v)
	}
	if opts.Input != nil {
		state.Set(KeyInput, opts.Input)
	}
	state.InjectPlatformKeys(o.opts.Clock(), o.opts.Location)
	return state, nil
}

// dispatch runs the workflow's strategy.
func (o *Orchestrator) dispatch(ctx context.Context, wf *Workflow, inv *Invocation) (any, error) {
	orch := wf.orchestration
	switch orch.Strategy {
	case StrategySequential:
		units, err := wf.graph.lookup(orch.Members)
		if err != nil {
			return nil, err
		}
		return runSequential(ctx, inv, units, 0)

	case StrategyParallel:
		units, err := wf.graph.lookup(orch.Members)
		if err != nil {
			return nil, err
		}
		results, err := runConcurrent(ctx, inv, units, o.opts.MaxConcurrency, 0)
		if err != nil {
			return nil, err
		}
		return results, nil

	case StrategyLoop:
		units, err := wf.graph.lookup(orch.Members)
		if err != nil {
			return nil, err
		}
		return runLoop(ctx, inv, wf.Name(), units, orch.MaxIterations)

	case StrategyDAG:
		if len(wf.plan) == 0 {
			return nil, types.NewStructuralError("", "dag orchestration has no wave plan")
		}
		if err := o.scheduler.Run(ctx, wf.plan, wf.graph, inv); err != nil {
			return nil, err
		}
		last := wf.plan[len(wf.plan)-1]
		out := make(map[string]any, len(last))
		for _, name := range last {
			u, _ := wf.graph.Get(name)
			if key := u.OutputKey(); key != "" {
				if v, ok := inv.State.Get(key); ok {
					out[name] = v
				}
			}
		}
		return out, nil

	case StrategyReact:
		u, ok := wf.graph.Get(orch.Unit)
		if !ok {
			return nil, types.NewStructuralError(orch.Unit, "unknown unit")
		}
		return inv.execute(withPlanner(ctx, orch.Planner), u, position{})

	case StrategyRouted:
		router, ok := wf.graph.Get(orch.Router)
		if !ok {
			return nil, types.NewStructuralError(orch.Router, "unknown unit")
		}
		candidates, err := wf.graph.lookup(orch.Candidates)
		if err != nil {
			return nil, err
		}
		return runRouted(ctx, inv, router, candidates)
	}
	return nil, types.NewStructuralError("", fmt.Sprintf("unknown orchestration strategy %q", orch.Strategy))
}
