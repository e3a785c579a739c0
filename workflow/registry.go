package workflow

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
)

// LeafConfig carries the declared fields of a leaf unit. Which fields apply
// depends on Kind.
type LeafConfig struct {
	Name        string
	Description string
	Kind        Kind
	OutputKey   string
	InputKeys   []string

	// llm
	Model          string
	Instruction    string
	Tools          []string
	Planner        string
	GenerateConfig map[string]any

	// function
	Function string
	// tool
	Tool string
	// function, tool
	Params map[string]any

	// expression
	Expression string
}

// LeafDeps are the collaborators available to leaf factories.
type LeafDeps struct {
	Resolver *ToolResolver
	Logger   *zap.Logger
}

// LeafFactory builds a leaf unit from its declared fields.
type LeafFactory func(cfg LeafConfig, deps LeafDeps) (Unit, error)

// Registry maps leaf kinds to factories. It is filled explicitly, usually
// by RegisterBuiltinKinds, and consulted during hydration.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]LeafFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]LeafFactory)}
}

// Register adds factory for kind. Registering a kind twice is an error.
func (r *Registry) Register(kind Kind, factory LeafFactory) error {
	if !kind.IsLeaf() {
		return fmt.Errorf("kind %q is not a leaf kind", kind)
	}
	if factory == nil {
		return fmt.Errorf("nil factory for kind %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Replace installs factory for kind, overriding any previous one.
func (r *Registry) Replace(kind Kind, factory LeafFactory) error {
	if !kind.IsLeaf() {
		return fmt.Errorf("kind %q is not a leaf kind", kind)
	}
	if factory == nil {
		return fmt.Errorf("nil factory for kind %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
	return nil
}

// Lookup returns the factory for kind.
func (r *Registry) Lookup(kind Kind) (LeafFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build constructs a leaf unit with the factory registered for cfg.Kind.
func (r *Registry) Build(cfg LeafConfig, deps LeafDeps) (Unit, error) {
	factory, ok := r.Lookup(cfg.Kind)
	if !ok {
		return nil, types.NewStructuralError(cfg.Name, fmt.Sprintf("no factory registered for kind %q", cfg.Kind))
	}
	if deps.Resolver == nil {
		deps.Resolver = NewToolResolver()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return factory(cfg, deps)
}

// RegisterBuiltinKinds registers the factories of every leaf kind.
func RegisterBuiltinKinds(r *Registry) error {
	var errs []error
	for _, kind := range AllKinds() {
		var factory LeafFactory
		switch kind {
		case KindLLM:
			factory = newLLMLeaf
		case KindFunction:
			factory = newFunctionLeaf
		case KindTool:
			factory = newToolLeaf
		case KindExpression:
			factory = newExpressionLeaf
		case KindSequential, KindParallel, KindLoop:
			continue
		default:
			errs = append(errs, fmt.Errorf("kind %q has no builtin factory", kind))
			continue
		}
		if err := r.Register(kind, factory); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// Builtin factories
// =============================================================================

func newLLMLeaf(cfg LeafConfig, deps LeafDeps) (Unit, error) {
	if cfg.Instruction == "" {
		return nil, types.NewStructuralError(cfg.Name, "llm unit needs an instruction")
	}
	planner, err := ParsePlannerVariant(cfg.Planner)
	if err != nil {
		return nil, types.NewStructuralError(cfg.Name, err.Error())
	}
	tools := make([]Tool, 0, len(cfg.Tools))
	for _, name := range cfg.Tools {
		t, source, err := deps.Resolver.ResolveTool(name)
		if err != nil {
			return nil, types.NewStructuralError(cfg.Name, fmt.Sprintf("tool %q cannot be resolved", name)).WithCause(err)
		}
		deps.Logger.Debug("tool resolved",
			zap.String("unit", cfg.Name),
			zap.String("tool", name),
			zap.String("source", string(source)))
		tools = append(tools, t)
	}
	return NewLLMUnit(LLMUnitConfig{
		Name:        cfg.Name,
		Description: cfg.Description,
		OutputKey:   cfg.OutputKey,
		InputKeys:   cfg.InputKeys,
		Model:       cfg.Model,
		Instruction: cfg.Instruction,
		Tools:       tools,
		Planner:     planner,
		Config:      cfg.GenerateConfig,
	}), nil
}

func newFunctionLeaf(cfg LeafConfig, deps LeafDeps) (Unit, error) {
	if cfg.Function == "" {
		return nil, types.NewStructuralError(cfg.Name, "function unit needs a function name")
	}
	fn, err := deps.Resolver.ResolveFunction(cfg.Function)
	if err != nil {
		return nil, types.NewStructuralError(cfg.Name, fmt.Sprintf("function %q cannot be resolved", cfg.Function)).WithCause(err)
	}
	return NewFunctionUnit(cfg.Name, cfg.Description, cfg.OutputKey, cfg.InputKeys, cfg.Function, fn, cfg.Params), nil
}

func newToolLeaf(cfg LeafConfig, deps LeafDeps) (Unit, error) {
	if cfg.Tool == "" {
		return nil, types.NewStructuralError(cfg.Name, "tool unit needs a tool name")
	}
	t, _, err := deps.Resolver.ResolveTool(cfg.Tool)
	if err != nil {
		return nil, types.NewStructuralError(cfg.Name, fmt.Sprintf("tool %q cannot be resolved", cfg.Tool)).WithCause(err)
	}
	return NewToolUnit(cfg.Name, cfg.Description, cfg.OutputKey, cfg.InputKeys, t, cfg.Params), nil
}

func newExpressionLeaf(cfg LeafConfig, _ LeafDeps) (Unit, error) {
	if cfg.Expression == "" {
		return nil, types.NewStructuralError(cfg.Name, "expression unit needs an expression")
	}
	u, err := NewExpressionUnit(cfg.Name, cfg.Description, cfg.OutputKey, cfg.InputKeys, cfg.Expression)
	if err != nil {
		return nil, err
	}
	return u, nil
}
