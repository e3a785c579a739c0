package workflow

import (
	"context"
	"fmt"
)

// ToolUnit calls one resolved tool with fixed params.
type ToolUnit struct {
	unitBase
	tool   Tool
	params map[string]any
}

// NewToolUnit creates a tool unit.
func NewToolUnit(name, description, outputKey string, inputKeys []string, tool Tool, params map[string]any) *ToolUnit {
	return &ToolUnit{
		unitBase: unitBase{
			name:        name,
			kind:        KindTool,
			description: description,
			outputKey:   outputKey,
			inputKeys:   append([]string(nil), inputKeys...),
		},
		tool:   tool,
		params: params,
	}
}

// Tool returns the tool name.
func (u *ToolUnit) Tool() string { return u.tool.Name() }

// Run renders params against state and calls the tool.
func (u *ToolUnit) Run(ctx context.Context, inv *Invocation) (any, error) {
	args := make(map[string]any, len(u.params))
	for k, v := range u.params {
		rendered, err := inv.State.RenderValue(v)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", k, err)
		}
		args[k] = rendered
	}
	return inv.callTool(ctx, loopSignalFrom(ctx), u.name, u.tool, args)
}
