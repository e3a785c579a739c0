package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
)

// Invocation is the per-run context handed to every unit: the run state and
// the collaborators. Loop-completion signals live on the context, one per loop.
type Invocation struct {
	RunID    string
	Workflow string
	State    *State

	logger     *zap.Logger
	models     ModelClient
	middleware []CallMiddleware
	recorder   MetricsRecorder
	tracer     trace.Tracer
	history    *RunHistory
	clock      func() time.Time
	location   *time.Location

	maxConcurrency int
}

// NewInvocation creates a standalone invocation over state, for calling
// tools or units outside an orchestrated run.
func NewInvocation(runID string, state *State) *Invocation {
	if state == nil {
		state = NewState()
	}
	return &Invocation{
		RunID:    runID,
		State:    state,
		logger:   zap.NewNop(),
		models:   unavailableModel{},
		recorder: nopRecorder{},
		tracer:   defaultTracer(),
		clock:    time.Now,
		location: time.UTC,
	}
}

// Escalate raises the completion signal of the innermost loop enclosing ctx.
// That loop consumes it after the current body unit. Outside any loop the
// call is logged and ignored; the result reports whether a loop received it.
func (inv *Invocation) Escalate(ctx context.Context) bool {
	return escalate(loopSignalFrom(ctx), inv.logger)
}

// Escalated reports whether the innermost loop's signal is raised and not
// yet consumed.
func (inv *Invocation) Escalated(ctx context.Context) bool {
	return loopSignalFrom(ctx).isRaised()
}

func escalate(loop *loopSignal, logger *zap.Logger) bool {
	if loop == nil {
		logger.Warn("loop-completion signal raised outside any loop, ignored")
		return false
	}
	loop.raise()
	return true
}

// =============================================================================
// Loop scope
// =============================================================================

// loopSignal is the completion flag of one running loop.
type loopSignal struct {
	raised atomic.Bool
}

func (l *loopSignal) raise() { l.raised.Store(true) }

func (l *loopSignal) isRaised() bool { return l != nil && l.raised.Load() }

// take consumes the signal.
func (l *loopSignal) take() bool { return l.raised.CompareAndSwap(true, false) }

type loopScopeKey struct{}

// withLoopSignal opens a new loop scope; it shadows any enclosing loop.
func withLoopSignal(ctx context.Context) (context.Context, *loopSignal) {
	sig := &loopSignal{}
	return context.WithValue(ctx, loopScopeKey{}, sig), sig
}

// loopSignalFrom returns the innermost loop's signal, nil outside loops.
func loopSignalFrom(ctx context.Context) *loopSignal {
	sig, _ := ctx.Value(loopScopeKey{}).(*loopSignal)
	return sig
}

// History returns the run history, nil for standalone invocations.
func (inv *Invocation) History() *RunHistory { return inv.history }

func (inv *Invocation) now() time.Time { return inv.clock() }

// Logger returns the run-scoped logger.
func (inv *Invocation) Logger() *zap.Logger { return inv.logger }

// =============================================================================
// Unit execution
// =============================================================================

// position locates one execution inside loops and DAG waves for history.
type position struct {
	iteration int
	wave      int
}

// execute runs u and commits its value to the output key on success. All
// units, including composite children, go through here.
func (inv *Invocation) execute(ctx context.Context, u Unit, pos position) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(u.Name(), err)
	}

	var rec *UnitExecution
	if inv.history != nil {
		rec = inv.history.RecordUnitStart(u, pos.iteration, pos.wave)
	}
	emit, hasEmitter := workflowStreamEmitterFromContext(ctx)
	if hasEmitter {
		emit(WorkflowStreamEvent{Type: WorkflowEventUnitStart, RunID: inv.RunID, Unit: u.Name(), Kind: u.Kind(), Wave: pos.wave})
	}

	ctx, span := startUnitSpan(ctx, inv.tracer, u)
	start := inv.now()
	out, err := u.Run(ctx, inv)
	elapsed := inv.now().Sub(start)
	err = inv.classify(ctx, u, err)
	endSpan(span, err)

	if inv.history != nil {
		inv.history.RecordUnitEnd(rec, err)
	}

	status := string(ExecutionStatusCompleted)
	if err != nil {
		status = string(ExecutionStatusFailed)
		if types.IsCode(err, types.ErrSandboxViolation) {
			inv.recorder.RecordSandboxViolation(inv.Workflow, u.Name())
		}
	}
	inv.recorder.RecordUnit(inv.Workflow, u.Name(), string(u.Kind()), status, elapsed)

	if err != nil {
		inv.logger.Debug("unit failed",
			zap.String("unit", u.Name()),
			zap.String("kind", string(u.Kind())),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		if hasEmitter {
			emit(WorkflowStreamEvent{Type: WorkflowEventUnitError, RunID: inv.RunID, Unit: u.Name(), Kind: u.Kind(), Wave: pos.wave, Error: err})
		}
		return nil, err
	}

	if key := u.OutputKey(); key != "" {
		inv.State.Set(key, out)
	}
	inv.logger.Debug("unit completed",
		zap.String("unit", u.Name()),
		zap.String("kind", string(u.Kind())),
		zap.String("output_key", u.OutputKey()),
		zap.Duration("duration", elapsed))
	if hasEmitter {
		emit(WorkflowStreamEvent{Type: WorkflowEventUnitComplete, RunID: inv.RunID, Unit: u.Name(), Kind: u.Kind(), Wave: pos.wave, Data: out})
	}
	return out, nil
}

// classify maps a raw unit error onto the error taxonomy. Errors that
// already carry a code pass through so the innermost unit stays attributed.
func (inv *Invocation) classify(ctx context.Context, u Unit, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := types.AsError(err); ok {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return cancelled(u.Name(), err)
	}
	return types.NewExecutionError(u.Name(), err)
}

func cancelled(unit string, cause error) error {
	return types.NewError(types.ErrCancelled, "run cancelled").WithUnit(unit).WithCause(cause)
}

// =============================================================================
// Collaborator calls
// =============================================================================

// generate sends req to the model client through the call middleware.
func (inv *Invocation) generate(ctx context.Context, req *ModelRequest) (*ModelResponse, error) {
	call := Call{Kind: CallModel, Unit: req.Unit, Target: req.Model}
	out, err := chainMiddleware(inv.middleware, func(ctx context.Context, _ Call) (any, error) {
		return inv.models.Generate(ctx, req)
	})(ctx, call)
	if err != nil {
		return nil, err
	}
	resp, ok := out.(*ModelResponse)
	if !ok || resp == nil {
		return nil, fmt.Errorf("model returned no response for unit %q", req.Unit)
	}
	return resp, nil
}

// callTool invokes tool on behalf of unit through the call middleware. loop
// is the signal of the loop enclosing the unit, nil outside loops.
func (inv *Invocation) callTool(ctx context.Context, loop *loopSignal, unit string, tool Tool, args map[string]any) (any, error) {
	call := Call{Kind: CallTool, Unit: unit, Target: tool.Name()}
	tc := &ToolContext{inv: inv, unit: unit, loop: loop}
	return chainMiddleware(inv.middleware, func(ctx context.Context, _ Call) (any, error) {
		return tool.Call(ctx, tc, args)
	})(ctx, call)
}

// callFunction invokes a capability-table function through the call middleware.
func (inv *Invocation) callFunction(ctx context.Context, unit, name string, fn Function, args map[string]any) (any, error) {
	call := Call{Kind: CallFunction, Unit: unit, Target: name}
	return chainMiddleware(inv.middleware, func(ctx context.Context, _ Call) (any, error) {
		return fn(ctx, args)
	})(ctx, call)
}
