package workflow

import (
	"context"
	"fmt"
)

// PlannerVariant selects the external planning strategy used by the react
// orchestration.
type PlannerVariant string

const (
	// PlannerPlanReAct asks the model to write an explicit plan, then act and observe.
	PlannerPlanReAct PlannerVariant = "plan_react"
	// PlannerBuiltin relies on the model's native reasoning mode.
	PlannerBuiltin PlannerVariant = "builtin"
)

// ParsePlannerVariant validates s. An empty string selects PlannerPlanReAct.
func ParsePlannerVariant(s string) (PlannerVariant, error) {
	switch PlannerVariant(s) {
	case "":
		return PlannerPlanReAct, nil
	case PlannerPlanReAct, PlannerBuiltin:
		return PlannerVariant(s), nil
	}
	return "", fmt.Errorf("unknown planner variant %q (want %s or %s)", s, PlannerPlanReAct, PlannerBuiltin)
}

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ModelRequest is what an llm unit sends to the reasoning collaborator.
type ModelRequest struct {
	Unit        string         `json:"unit"`
	Model       string         `json:"model,omitempty"`
	Instruction string         `json:"instruction"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Tools       []ToolSpec     `json:"tools,omitempty"`
	Planner     PlannerVariant `json:"planner,omitempty"`
	// Candidates is set when the unit acts as a router; the model must pick one.
	Candidates []string       `json:"candidates,omitempty"`
	Config     map[string]any `json:"config,omitempty"`

	// CallTool executes one of Tools on behalf of the model.
	CallTool func(ctx context.Context, name string, args map[string]any) (any, error) `json:"-"`
}

// ModelResponse carries the unit's value.
type ModelResponse struct {
	Output   any            `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ModelClient is the reasoning collaborator behind llm units. Implementations
// own inference, tool-call loops and per-call timeouts.
type ModelClient interface {
	Generate(ctx context.Context, req *ModelRequest) (*ModelResponse, error)
}

// ModelFunc adapts a function to ModelClient.
type ModelFunc func(ctx context.Context, req *ModelRequest) (*ModelResponse, error)

// Generate calls f.
func (f ModelFunc) Generate(ctx context.Context, req *ModelRequest) (*ModelResponse, error) {
	return f(ctx, req)
}

// unavailableModel fails every request. It stands in when no client is configured.
type unavailableModel struct{}

func (unavailableModel) Generate(_ context.Context, req *ModelRequest) (*ModelResponse, error) {
	return nil, fmt.Errorf("no model client configured for unit %q", req.Unit)
}

// =============================================================================
// Context-scoped request hints
// =============================================================================

type plannerKey struct{}

type candidatesKey struct{}

func withPlanner(ctx context.Context, p PlannerVariant) context.Context {
	return context.WithValue(ctx, plannerKey{}, p)
}

func plannerFromContext(ctx context.Context) (PlannerVariant, bool) {
	p, ok := ctx.Value(plannerKey{}).(PlannerVariant)
	return p, ok && p != ""
}

func withCandidates(ctx context.Context, candidates []string) context.Context {
	return context.WithValue(ctx, candidatesKey{}, candidates)
}

func candidatesFromContext(ctx context.Context) []string {
	c, _ := ctx.Value(candidatesKey{}).([]string)
	return c
}
