package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentpipe/types"
)

// Strategy selects how the orchestrator coordinates units.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyLoop       Strategy = "loop"
	StrategyDAG        Strategy = "dag"
	StrategyReact      Strategy = "react"
	StrategyRouted     Strategy = "llm_routed"
)

// AllStrategies returns every strategy.
func AllStrategies() []Strategy {
	return []Strategy{StrategySequential, StrategyParallel, StrategyLoop, StrategyDAG, StrategyReact, StrategyRouted}
}

// ParseStrategy validates s against the closed strategy set.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategySequential, StrategyParallel, StrategyLoop, StrategyDAG, StrategyReact, StrategyRouted:
		return st, nil
	}
	return "", fmt.Errorf("unknown orchestration strategy %q", s)
}

// Orchestration is the hydrated orchestration block of a workflow. Which
// fields apply depends on Strategy.
type Orchestration struct {
	Strategy Strategy

	// sequential, parallel, loop
	Members []string
	// loop; 0 means unbounded
	MaxIterations int

	// dag
	Nodes []DependencyNode

	// react
	Unit    string
	Planner PlannerVariant

	// llm_routed
	Router     string
	Candidates []string
}

// Workflow is a hydrated, immutable workflow ready to run any number of times.
type Workflow struct {
	name          string
	description   string
	graph         *UnitGraph
	orchestration Orchestration
	plan          Plan
	variables     []Variable
}

// Variable is a declared workflow input. Missing variables take Default;
// a Required variable without a value fails the run before any unit starts.
type Variable struct {
	Name     string
	Default  any
	Required bool
}

// NewWorkflow checks the orchestration against graph and, for dag
// workflows, computes the wave plan once.
func NewWorkflow(name, description string, graph *UnitGraph, orch Orchestration) (*Workflow, error) {
	if name == "" {
		return nil, types.NewStructuralError("", "workflow name must not be empty")
	}
	if graph == nil || graph.Len() == 0 {
		return nil, types.NewStructuralError("", fmt.Sprintf("workflow %q declares no units", name))
	}

	wf := &Workflow{name: name, description: description, graph: graph, orchestration: orch}
	if err := wf.checkOrchestration(); err != nil {
		return nil, err
	}
	return wf, nil
}

func (w *Workflow) checkOrchestration() error {
	o := &w.orchestration
	switch o.Strategy {
	case StrategySequential, StrategyParallel, StrategyLoop:
		if len(o.Members) == 0 {
			return types.NewStructuralError("", fmt.Sprintf("%s orchestration needs at least one member", o.Strategy))
		}
		if _, err := w.graph.lookup(o.Members); err != nil {
			return err
		}
		if o.Strategy == StrategyLoop && o.MaxIterations < 0 {
			return types.NewStructuralError("", "max_iterations must not be negative")
		}

	case StrategyDAG:
		if len(o.Nodes) == 0 {
			return types.NewStructuralError("", "dag orchestration needs at least one node")
		}
		for _, n := range o.Nodes {
			if !w.graph.Has(n.Unit) {
				return types.NewStructuralError(n.Unit, "dag node references an unknown unit")
			}
		}
		plan, err := PlanWaves(o.Nodes)
		if err != nil {
			return err
		}
		w.plan = plan

	case StrategyReact:
		u, ok := w.graph.Get(o.Unit)
		if !ok {
			return types.NewStructuralError(o.Unit, "react orchestration references an unknown unit")
		}
		if u.Kind() != KindLLM {
			return types.NewStructuralError(o.Unit, fmt.Sprintf("react orchestration needs an llm unit, got %s", u.Kind()))
		}
		planner, err := ParsePlannerVariant(string(o.Planner))
		if err != nil {
			return types.NewStructuralError(o.Unit, err.Error())
		}
		o.Planner = planner

	case StrategyRouted:
		if !w.graph.Has(o.Router) {
			return types.NewStructuralError(o.Router, "router references an unknown unit")
		}
		if len(o.Candidates) == 0 {
			return types.NewStructuralError(o.Router, "llm_routed orchestration needs at least one candidate")
		}
		seen := make(map[string]bool, len(o.Candidates))
		for _, c := range o.Candidates {
			if !w.graph.Has(c) {
				return types.NewStructuralError(c, "route candidate references an unknown unit")
			}
			if c == o.Router {
				return types.NewStructuralError(c, "router cannot be its own candidate")
			}
			if seen[c] {
				return types.NewStructuralError(c, "duplicate route candidate")
			}
			seen[c] = true
		}

	default:
		return types.NewStructuralError("", fmt.Sprintf("unknown orchestration strategy %q", o.Strategy))
	}
	return nil
}

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// Description returns the workflow description.
func (w *Workflow) Description() string { return w.description }

// Graph returns the unit graph.
func (w *Workflow) Graph() *UnitGraph { return w.graph }

// Strategy returns the orchestration strategy.
func (w *Workflow) Strategy() Strategy { return w.orchestration.Strategy }

// Orchestration returns a copy of the orchestration block.
func (w *Workflow) Orchestration() Orchestration {
	o := w.orchestration
	o.Members = append([]string(nil), o.Members...)
	o.Candidates = append([]string(nil), o.Candidates...)
	o.Nodes = append([]DependencyNode(nil), o.Nodes...)
	return o
}

// Plan returns the wave plan of a dag workflow, nil otherwise.
func (w *Workflow) Plan() Plan { return w.plan.Clone() }

// WithVariables returns a copy of w declaring vars.
func (w *Workflow) WithVariables(vars ...Variable) *Workflow {
	cp := *w
	cp.variables = append(append([]Variable(nil), w.variables...), vars...)
	return &cp
}

// Variables returns the declared variables.
func (w *Workflow) Variables() []Variable {
	return append([]Variable(nil), w.variables...)
}

// applyVariables fills defaults and checks required variables.
func (w *Workflow) applyVariables(state *State) error {
	var missing []string
	for _, v := range w.variables {
		if state.Has(v.Name) {
			continue
		}
		switch {
		case v.Default != nil:
			state.Set(v.Name, v.Default)
		case v.Required:
			missing = append(missing, v.Name)
		}
	}
	if len(missing) > 0 {
		return types.NewStructuralError("", fmt.Sprintf("required variables not provided: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// =============================================================================
// Workflow Streaming
// =============================================================================

// WorkflowStreamEventType defines the type of workflow stream event.
type WorkflowStreamEventType string

const (
	// WorkflowEventUnitStart is emitted before a unit begins execution.
	WorkflowEventUnitStart WorkflowStreamEventType = "unit_start"
	// WorkflowEventUnitComplete is emitted after a unit finishes successfully.
	WorkflowEventUnitComplete WorkflowStreamEventType = "unit_complete"
	// WorkflowEventUnitError is emitted when a unit fails.
	WorkflowEventUnitError WorkflowStreamEventType = "unit_error"
	// WorkflowEventWaveStart is emitted before a DAG wave starts.
	WorkflowEventWaveStart WorkflowStreamEventType = "wave_start"
	// WorkflowEventRouteSelected is emitted when a router picks a candidate.
	WorkflowEventRouteSelected WorkflowStreamEventType = "route_selected"
)

// WorkflowStreamEvent carries information about a workflow execution event.
type WorkflowStreamEvent struct {
	Type  WorkflowStreamEventType `json:"type"`
	RunID string                  `json:"run_id"`
	Unit  string                  `json:"unit,omitempty"`
	Kind  Kind                    `json:"kind,omitempty"`
	Wave  int                     `json:"wave,omitempty"`
	Data  any                     `json:"data,omitempty"`
	Error error                   `json:"-"`
}

// WorkflowStreamEmitter is a callback that receives workflow stream events.
// It is called from unit goroutines and must be safe for concurrent use.
type WorkflowStreamEmitter func(WorkflowStreamEvent)

// workflowStreamEmitterKey is the context key for WorkflowStreamEmitter.
type workflowStreamEmitterKey struct{}

// WithWorkflowStreamEmitter stores a WorkflowStreamEmitter in the context.
func WithWorkflowStreamEmitter(ctx context.Context, emitter WorkflowStreamEmitter) context.Context {
	if emitter == nil {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, workflowStreamEmitterKey{}, emitter)
}

// workflowStreamEmitterFromContext retrieves the WorkflowStreamEmitter from context.
func workflowStreamEmitterFromContext(ctx context.Context) (WorkflowStreamEmitter, bool) {
	if ctx == nil {
		return nil, false
	}
	emit, ok := ctx.Value(workflowStreamEmitterKey{}).(WorkflowStreamEmitter)
	return emit, ok && emit != nil
}
