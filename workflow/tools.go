package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
	"github.com/BaSui01/agentpipe/workflow/sandbox"
)

// Function is an entry of the capability table: a plain Go callable invoked
// with named arguments.
type Function func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named callable offered to units.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, tc *ToolContext, args map[string]any) (any, error)
}

// ToolContext gives a tool access to the calling unit's run.
type ToolContext struct {
	inv  *Invocation
	unit string
	loop *loopSignal
}

// NewToolContext creates a context for calling tools outside a unit, mainly
// in tests. The context belongs to no loop, so Escalate is a no-op.
func NewToolContext(inv *Invocation, unit string) *ToolContext {
	return &ToolContext{inv: inv, unit: unit}
}

// Unit returns the name of the calling unit.
func (tc *ToolContext) Unit() string { return tc.unit }

// State returns the run state.
func (tc *ToolContext) State() *State { return tc.inv.State }

// Escalate raises the completion signal of the loop enclosing the calling
// unit. It reports false, and does nothing, when the unit is not in a loop.
func (tc *ToolContext) Escalate() bool {
	return escalate(tc.loop, tc.inv.logger.With(zap.String("unit", tc.unit)))
}

// Now returns the run clock's current time in the run location.
func (tc *ToolContext) Now() time.Time { return tc.inv.now().In(tc.inv.location) }

// FuncTool adapts a Function to Tool.
type FuncTool struct {
	name        string
	description string
	fn          Function
}

// NewFuncTool creates a tool backed by fn.
func NewFuncTool(name, description string, fn Function) *FuncTool {
	return &FuncTool{name: name, description: description, fn: fn}
}

func (t *FuncTool) Name() string        { return t.name }
func (t *FuncTool) Description() string { return t.description }

func (t *FuncTool) Call(ctx context.Context, _ *ToolContext, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}

// =============================================================================
// Registries
// =============================================================================

// Toolset resolves tools by name. Generated toolsets (for example from an
// API description) implement it.
type Toolset interface {
	Tool(name string) (Tool, bool)
}

// ToolRegistry is a concurrency-safe name → Tool map.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates a registry holding tools.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds tool. Names must be unique.
func (r *ToolRegistry) Register(tool Tool) error {
	if tool == nil || tool.Name() == "" {
		return fmt.Errorf("tool must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Tool implements Toolset.
func (r *ToolRegistry) Tool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CapabilityTable maps names to Go functions. It replaces resolving
// callables from dotted import paths: only what is registered at startup can
// be referenced by a workflow document.
type CapabilityTable struct {
	mu    sync.RWMutex
	funcs map[string]Function
}

// NewCapabilityTable creates an empty table.
func NewCapabilityTable() *CapabilityTable {
	return &CapabilityTable{funcs: make(map[string]Function)}
}

// Register adds fn under name.
func (c *CapabilityTable) Register(name string, fn Function) error {
	if name == "" || fn == nil {
		return fmt.Errorf("capability needs a name and a function")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.funcs[name]; exists {
		return fmt.Errorf("capability %q already registered", name)
	}
	c.funcs[name] = fn
	return nil
}

// MustRegister is like Register but panics on error.
func (c *CapabilityTable) MustRegister(name string, fn Function) *CapabilityTable {
	if err := c.Register(name, fn); err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the function registered under name.
func (c *CapabilityTable) Lookup(name string) (Function, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.funcs[name]
	return fn, ok
}

// Names returns registered names, sorted.
func (c *CapabilityTable) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.funcs))
	for name := range c.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Built-in tools
// =============================================================================

// Built-in tool names.
const (
	ToolExitLoop          = "exit_loop"
	ToolEvaluateCondition = "evaluate_condition"
	ToolCurrentTime       = "current_time"
)

// BuiltinTools returns a fresh registry of the built-in tools.
func BuiltinTools() *ToolRegistry {
	return NewToolRegistry(exitLoopTool{}, conditionTool{}, currentTimeTool{})
}

// exitLoopTool raises the loop-completion signal.
type exitLoopTool struct{}

func (exitLoopTool) Name() string { return ToolExitLoop }
func (exitLoopTool) Description() string {
	return "Signal that the enclosing loop has reached its goal and should stop."
}

func (exitLoopTool) Call(_ context.Context, tc *ToolContext, _ map[string]any) (any, error) {
	return map[string]any{"escalated": tc.Escalate()}, nil
}

// conditionTool evaluates a boolean expression written by an upstream unit.
// The text is only known at call time, so it is validated here rather than
// during hydration.
type conditionTool struct{}

func (conditionTool) Name() string { return ToolEvaluateCondition }
func (conditionTool) Description() string {
	return "Evaluate a boolean expression against the workflow state. Args: condition (string), variables (object, optional)."
}

func (conditionTool) Call(_ context.Context, tc *ToolContext, args map[string]any) (any, error) {
	cond, ok := args["condition"].(string)
	if !ok || cond == "" {
		return nil, fmt.Errorf("%s: condition must be a non-empty string", ToolEvaluateCondition)
	}

	prog, err := sandbox.Compile(cond)
	if err != nil {
		return nil, sandboxError(tc.Unit(), err)
	}

	bindings := tc.State().Snapshot()
	if vars, ok := args["variables"].(map[string]any); ok {
		for k, v := range vars {
			bindings[k] = v
		}
	}
	result, err := prog.EvalBool(bindings)
	if err != nil {
		return nil, sandboxError(tc.Unit(), err)
	}
	return result, nil
}

// currentTimeTool reports the run clock in the run location.
type currentTimeTool struct{}

func (currentTimeTool) Name() string        { return ToolCurrentTime }
func (currentTimeTool) Description() string { return "Return the current date, time and timezone." }

func (currentTimeTool) Call(_ context.Context, tc *ToolContext, _ map[string]any) (any, error) {
	now := tc.Now()
	return map[string]any{
		"date":     now.Format("2006-01-02"),
		"datetime": now.Format(time.RFC3339),
		"timezone": now.Location().String(),
	}, nil
}

// sandboxError maps sandbox failures onto the engine's error codes.
func sandboxError(unit string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sandbox.ErrSandboxViolation):
		return types.NewSandboxError(types.ErrSandboxViolation, unit, err)
	case errors.Is(err, sandbox.ErrUnboundReference):
		return types.NewSandboxError(types.ErrUnboundReference, unit, err)
	default:
		return types.NewSandboxError(types.ErrExpressionInvalid, unit, err)
	}
}
