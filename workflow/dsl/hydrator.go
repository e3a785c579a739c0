package dsl

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
	"github.com/BaSui01/agentpipe/workflow"
)

// Options 水合选项
type Options struct {
	// StrictOutputKeys 拒绝同一并行组或同一 DAG 波次内共享输出键的单元
	StrictOutputKeys bool
	// DefaultMaxIterations 未声明 max_iterations 的循环使用的上限，0 表示不限
	DefaultMaxIterations int
}

// Hydrator 把文档转换为可执行的工作流
type Hydrator struct {
	registry  *workflow.Registry
	resolver  *workflow.ToolResolver
	validator *Validator
	opts      Options
	logger    *zap.Logger
}

// NewHydrator 创建水合器。registry 为 nil 时使用内置单元类型，
// resolver 为 nil 时只解析内置工具。
func NewHydrator(registry *workflow.Registry, resolver *workflow.ToolResolver, opts Options, logger *zap.Logger) (*Hydrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = workflow.NewRegistry()
		if err := workflow.RegisterBuiltinKinds(registry); err != nil {
			return nil, err
		}
	}
	if resolver == nil {
		resolver = workflow.NewToolResolver(workflow.WithResolverLogger(logger))
	}
	if opts.DefaultMaxIterations < 0 {
		return nil, fmt.Errorf("default max iterations must be >= 0, got %d", opts.DefaultMaxIterations)
	}
	return &Hydrator{
		registry:  registry,
		resolver:  resolver,
		validator: NewValidator(),
		opts:      opts,
		logger:    logger.With(zap.String("component", "hydrator")),
	}, nil
}

// HydrateBytes 解析并水合 YAML 或 JSON 文档
func (h *Hydrator) HydrateBytes(data []byte) (*workflow.Workflow, error) {
	doc, err := Load(data)
	if err != nil {
		return nil, err
	}
	return h.Hydrate(doc)
}

// HydrateFile 从文件加载并水合
func (h *Hydrator) HydrateFile(path string) (*workflow.Workflow, error) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return h.Hydrate(doc)
}

// Hydrate 校验文档并分两遍构建单元图：第一遍构建叶子单元，
// 第二遍按名称组装复合单元。
func (h *Hydrator) Hydrate(doc *WorkflowDSL) (*workflow.Workflow, error) {
	if err := h.validator.Validate(doc); err != nil {
		return nil, err
	}
	logger := h.logger.With(zap.String("workflow", doc.Name))
	for unit, refs := range unresolvedRefs(doc) {
		logger.Warn("template references keys no unit writes",
			zap.String("unit", unit), zap.Strings("keys", refs))
	}

	defs := make(map[string]*UnitDef, len(doc.Units))
	for i := range doc.Units {
		defs[doc.Units[i].Name] = &doc.Units[i]
	}

	// 第一遍：叶子单元
	built := make(map[string]workflow.Unit, len(doc.Units))
	deps := workflow.LeafDeps{Resolver: h.resolver, Logger: logger}
	for i := range doc.Units {
		def := &doc.Units[i]
		kind := workflow.Kind(def.Kind)
		if !kind.IsLeaf() {
			continue
		}
		u, err := h.registry.Build(leafConfig(def), deps)
		if err != nil {
			return nil, err
		}
		built[def.Name] = u
	}

	// 第二遍：复合单元
	b := &compositeBuilder{defs: defs, built: built, visiting: make(map[string]bool), h: h, logger: logger}
	for i := range doc.Units {
		if _, err := b.build(doc.Units[i].Name); err != nil {
			return nil, err
		}
	}

	graph := workflow.NewUnitGraph()
	for _, def := range doc.Units {
		if err := graph.Add(built[def.Name]); err != nil {
			return nil, err
		}
	}

	orch := h.orchestration(doc.Orchestration)
	if orch.Strategy == workflow.StrategyLoop && orch.MaxIterations == 0 {
		logger.Warn("loop orchestration has no iteration bound")
	}

	wf, err := workflow.NewWorkflow(doc.Name, doc.Description, graph, orch)
	if err != nil {
		return nil, err
	}
	if vars := variables(doc.Variables); len(vars) > 0 {
		wf = wf.WithVariables(vars...)
	}
	if h.opts.StrictOutputKeys {
		if err := workflow.CheckDisjointOutputKeys(wf); err != nil {
			return nil, err
		}
	}

	logger.Info("workflow hydrated",
		zap.String("strategy", string(orch.Strategy)),
		zap.Int("units", graph.Len()),
		zap.Stringer("plan", wf.Plan()))
	return wf, nil
}

func (h *Hydrator) maxIterations(v *int) int {
	if v == nil {
		return h.opts.DefaultMaxIterations
	}
	return *v
}

func (h *Hydrator) orchestration(o *OrchestrationDef) workflow.Orchestration {
	orch := workflow.Orchestration{
		Strategy:   workflow.Strategy(o.Strategy),
		Members:    o.Members,
		Unit:       o.Unit,
		Planner:    workflow.PlannerVariant(o.Planner),
		Router:     o.Router,
		Candidates: o.Candidates,
	}
	if orch.Strategy == workflow.StrategyLoop {
		orch.MaxIterations = h.maxIterations(o.MaxIterations)
	}
	for _, n := range o.Nodes {
		orch.Nodes = append(orch.Nodes, workflow.DependencyNode{Unit: n.Unit, DependsOn: n.DependsOn})
	}
	return orch
}

// compositeBuilder 递归组装复合单元，子单元先于父单元构建
type compositeBuilder struct {
	defs     map[string]*UnitDef
	built    map[string]workflow.Unit
	visiting map[string]bool
	h        *Hydrator
	logger   *zap.Logger
}

func (b *compositeBuilder) build(name string) (workflow.Unit, error) {
	if u, ok := b.built[name]; ok {
		return u, nil
	}
	if b.visiting[name] {
		return nil, types.NewStructuralError(name, fmt.Sprintf("unit %q contains itself through its children", name))
	}
	b.visiting[name] = true
	defer delete(b.visiting, name)

	def := b.defs[name]
	children := make([]workflow.Unit, 0, len(def.Children))
	for _, c := range def.Children {
		child, err := b.build(c)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	var u workflow.Unit
	switch kind := workflow.Kind(def.Kind); kind {
	case workflow.KindSequential:
		u = workflow.NewSequentialUnit(def.Name, def.Description, def.OutputKey, children)
	case workflow.KindParallel:
		u = workflow.NewParallelUnit(def.Name, def.Description, def.OutputKey, children)
	case workflow.KindLoop:
		n := b.h.maxIterations(def.MaxIterations)
		if n == 0 {
			b.logger.Warn("loop unit has no iteration bound", zap.String("unit", def.Name))
		}
		u = workflow.NewLoopUnit(def.Name, def.Description, def.OutputKey, children, n)
	case workflow.KindLLM, workflow.KindFunction, workflow.KindTool, workflow.KindExpression:
		return nil, types.NewStructuralError(name, fmt.Sprintf("leaf unit %q was not built", name))
	default:
		return nil, types.NewStructuralError(name, fmt.Sprintf("unknown unit kind %q", kind))
	}
	b.built[name] = u
	return u, nil
}

func leafConfig(def *UnitDef) workflow.LeafConfig {
	return workflow.LeafConfig{
		Name:           def.Name,
		Description:    def.Description,
		Kind:           workflow.Kind(def.Kind),
		OutputKey:      def.OutputKey,
		InputKeys:      def.InputKeys,
		Model:          def.Model,
		Instruction:    def.Instruction,
		Tools:          def.Tools,
		Planner:        def.Planner,
		GenerateConfig: def.GenerateConfig,
		Function:       def.Function,
		Tool:           def.Tool,
		Params:         def.Params,
		Expression:     def.Expression,
	}
}

func variables(defs map[string]VariableDef) []workflow.Variable {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := make([]workflow.Variable, 0, len(names))
	for _, name := range names {
		def := defs[name]
		vars = append(vars, workflow.Variable{Name: name, Default: def.Default, Required: def.Required})
	}
	return vars
}

// Describe 渲染工作流的可读概要：单元、编排与 DAG 波次计划
func Describe(wf *workflow.Workflow) string {
	var sb strings.Builder
	orch := wf.Orchestration()
	fmt.Fprintf(&sb, "workflow %s (%s)\n", wf.Name(), orch.Strategy)
	if wf.Description() != "" {
		fmt.Fprintf(&sb, "  %s\n", wf.Description())
	}

	sb.WriteString("units:\n")
	for _, name := range wf.Graph().Names() {
		u, _ := wf.Graph().Get(name)
		fmt.Fprintf(&sb, "  - %s [%s]", name, u.Kind())
		if u.OutputKey() != "" {
			fmt.Fprintf(&sb, " -> %s", u.OutputKey())
		}
		if c, ok := u.(workflow.Composite); ok {
			children := make([]string, 0)
			for _, child := range c.Children() {
				children = append(children, child.Name())
			}
			fmt.Fprintf(&sb, " {%s}", strings.Join(children, ", "))
		}
		sb.WriteString("\n")
	}

	switch orch.Strategy {
	case workflow.StrategySequential, workflow.StrategyParallel:
		fmt.Fprintf(&sb, "members: %s\n", strings.Join(orch.Members, ", "))
	case workflow.StrategyLoop:
		bound := "unbounded"
		if orch.MaxIterations > 0 {
			bound = fmt.Sprintf("max %d iterations", orch.MaxIterations)
		}
		fmt.Fprintf(&sb, "members: %s (%s)\n", strings.Join(orch.Members, ", "), bound)
	case workflow.StrategyDAG:
		sb.WriteString("plan:\n")
		for i, wave := range wf.Plan() {
			fmt.Fprintf(&sb, "  wave %d: %s\n", i, strings.Join(wave, ", "))
		}
	case workflow.StrategyReact:
		fmt.Fprintf(&sb, "unit: %s (planner %s)\n", orch.Unit, orch.Planner)
	case workflow.StrategyRouted:
		fmt.Fprintf(&sb, "router: %s -> %s\n", orch.Router, strings.Join(orch.Candidates, " | "))
	}

	if vars := wf.Variables(); len(vars) > 0 {
		sb.WriteString("variables:\n")
		for _, v := range vars {
			switch {
			case v.Required:
				fmt.Fprintf(&sb, "  - %s (required)\n", v.Name)
			case v.Default != nil:
				fmt.Fprintf(&sb, "  - %s = %s\n", v.Name, workflow.FormatValue(v.Default))
			default:
				fmt.Fprintf(&sb, "  - %s\n", v.Name)
			}
		}
	}
	return sb.String()
}
