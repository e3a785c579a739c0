package workflow

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrToolNotFound is returned when no tier of the resolution chain knows a name.
var ErrToolNotFound = errors.New("tool not found")

// ToolSource names the tier a tool was resolved from.
type ToolSource string

const (
	SourceCustom     ToolSource = "custom"
	SourceToolset    ToolSource = "toolset"
	SourceBuiltin    ToolSource = "builtin"
	SourceCapability ToolSource = "capability"
)

// ToolResolver resolves tool names through an ordered fallback chain:
// custom registry → toolsets → built-in tools → capability table.
// Resolution happens once, during hydration.
type ToolResolver struct {
	custom       *ToolRegistry
	toolsets     []Toolset
	builtins     *ToolRegistry
	capabilities *CapabilityTable
	logger       *zap.Logger
}

// ResolverOption configures a ToolResolver.
type ResolverOption func(*ToolResolver)

// WithCustomTools sets the first-tier registry.
func WithCustomTools(r *ToolRegistry) ResolverOption {
	return func(tr *ToolResolver) { tr.custom = r }
}

// WithToolsets appends toolsets to the second tier, searched in order.
func WithToolsets(sets ...Toolset) ResolverOption {
	return func(tr *ToolResolver) { tr.toolsets = append(tr.toolsets, sets...) }
}

// WithCapabilities sets the capability table used as the last tier and by
// function units.
func WithCapabilities(c *CapabilityTable) ResolverOption {
	return func(tr *ToolResolver) { tr.capabilities = c }
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *zap.Logger) ResolverOption {
	return func(tr *ToolResolver) {
		if logger != nil {
			tr.logger = logger
		}
	}
}

// NewToolResolver creates a resolver. Built-in tools are always present.
func NewToolResolver(opts ...ResolverOption) *ToolResolver {
	r := &ToolResolver{
		custom:       NewToolRegistry(),
		builtins:     BuiltinTools(),
		capabilities: NewCapabilityTable(),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "tool_resolver"))
	return r
}

// ResolveTool walks the chain and returns the first match.
func (r *ToolResolver) ResolveTool(name string) (Tool, ToolSource, error) {
	if t, ok := r.custom.Tool(name); ok {
		return t, SourceCustom, nil
	}
	for _, set := range r.toolsets {
		if t, ok := set.Tool(name); ok {
			return t, SourceToolset, nil
		}
	}
	if t, ok := r.builtins.Tool(name); ok {
		return t, SourceBuiltin, nil
	}
	if fn, ok := r.capabilities.Lookup(name); ok {
		return NewFuncTool(name, "capability "+name, fn), SourceCapability, nil
	}
	r.logger.Debug("tool resolution missed every tier", zap.String("tool", name))
	return nil, "", fmt.Errorf("%w: %q", ErrToolNotFound, name)
}

// ResolveFunction looks name up in the capability table.
func (r *ToolResolver) ResolveFunction(name string) (Function, error) {
	if fn, ok := r.capabilities.Lookup(name); ok {
		return fn, nil
	}
	return nil, fmt.Errorf("%w: capability %q is not registered", ErrToolNotFound, name)
}
