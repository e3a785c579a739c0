package workflow

import (
	"context"
	"fmt"
)

// LLMUnit delegates to the reasoning collaborator.
type LLMUnit struct {
	unitBase
	model       string
	instruction string
	tools       []Tool
	planner     PlannerVariant
	config      map[string]any
}

// LLMUnitConfig holds the hydrated fields of an llm unit.
type LLMUnitConfig struct {
	Name        string
	Description string
	OutputKey   string
	InputKeys   []string
	Model       string
	Instruction string
	Tools       []Tool
	Planner     PlannerVariant
	Config      map[string]any
}

// NewLLMUnit creates an llm unit. Tools must already be resolved.
func NewLLMUnit(cfg LLMUnitConfig) *LLMUnit {
	return &LLMUnit{
		unitBase: unitBase{
			name:        cfg.Name,
			kind:        KindLLM,
			description: cfg.Description,
			outputKey:   cfg.OutputKey,
			inputKeys:   append([]string(nil), cfg.InputKeys...),
		},
		model:       cfg.Model,
		instruction: cfg.Instruction,
		tools:       append([]Tool(nil), cfg.Tools...),
		planner:     cfg.Planner,
		config:      cfg.Config,
	}
}

// Tools returns the names of the unit's tools.
func (u *LLMUnit) Tools() []string {
	names := make([]string, len(u.tools))
	for i, t := range u.tools {
		names[i] = t.Name()
	}
	return names
}

// Run renders the instruction against state and asks the model for the
// unit's value. The orchestrator may override the planner and supply route
// candidates.
func (u *LLMUnit) Run(ctx context.Context, inv *Invocation) (any, error) {
	instruction, err := inv.State.Render(u.instruction)
	if err != nil {
		return nil, err
	}

	req := &ModelRequest{
		Unit:        u.name,
		Model:       u.model,
		Instruction: instruction,
		Planner:     u.planner,
		Config:      u.config,
		Candidates:  candidatesFromContext(ctx),
	}
	if len(u.inputKeys) > 0 {
		req.Inputs = inv.State.Values(u.inputKeys...)
	}
	if p, ok := plannerFromContext(ctx); ok {
		req.Planner = p
	}
	if len(u.tools) > 0 {
		// Bind the loop from the unit ctx; models may call tools with their own ctx.
		loop := loopSignalFrom(ctx)
		byName := make(map[string]Tool, len(u.tools))
		for _, t := range u.tools {
			req.Tools = append(req.Tools, ToolSpec{Name: t.Name(), Description: t.Description()})
			byName[t.Name()] = t
		}
		req.CallTool = func(ctx context.Context, name string, args map[string]any) (any, error) {
			t, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("unit %q has no tool %q", u.name, name)
			}
			return inv.callTool(ctx, loop, u.name, t, args)
		}
	}

	resp, err := inv.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Output, nil
}
