package dsl

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/agentpipe/types"
	"github.com/BaSui01/agentpipe/workflow"
)

// Validator 文档结构校验器。它收集所有问题，而不是在第一个问题处停止。
type Validator struct{}

// NewValidator 创建验证器
func NewValidator() *Validator {
	return &Validator{}
}

// Validate 验证文档。返回的错误由 errors.Join 合并，每一项都是
// 指向具体单元的 STRUCTURAL 错误。
func (v *Validator) Validate(doc *WorkflowDSL) error {
	if doc == nil {
		return types.NewStructuralError("", "workflow document is nil")
	}

	var errs []error
	if doc.Name == "" {
		errs = append(errs, types.NewStructuralError("", "name is required"))
	}
	if len(doc.Units) == 0 {
		errs = append(errs, types.NewStructuralError("", "units must declare at least one unit"))
	}

	// 收集所有单元名称
	kinds := make(map[string]workflow.Kind, len(doc.Units))
	for _, u := range doc.Units {
		if u.Name == "" {
			errs = append(errs, types.NewStructuralError("", "unit name is required"))
			continue
		}
		if _, dup := kinds[u.Name]; dup {
			errs = append(errs, types.NewStructuralError(u.Name, fmt.Sprintf("duplicate unit name %q", u.Name)))
			continue
		}
		kind, err := workflow.ParseKind(u.Kind)
		if err != nil {
			errs = append(errs, types.NewStructuralError(u.Name, err.Error()))
		}
		kinds[u.Name] = kind
	}

	for i := range doc.Units {
		errs = append(errs, v.validateUnit(&doc.Units[i], kinds)...)
	}
	errs = append(errs, v.validateOrchestration(doc.Orchestration, kinds)...)
	errs = append(errs, v.validateVariables(doc.Variables)...)

	return errors.Join(errs...)
}

// validateUnit 验证单个单元的类型字段
func (v *Validator) validateUnit(u *UnitDef, kinds map[string]workflow.Kind) []error {
	if u.Name == "" {
		return nil
	}
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, types.NewStructuralError(u.Name, fmt.Sprintf(format, args...)))
	}

	kind := workflow.Kind(u.Kind)
	if kind.IsLeaf() && len(u.Children) > 0 {
		fail("%s unit cannot declare children", kind)
	}
	if kind != workflow.KindLoop && u.MaxIterations != nil {
		fail("max_iterations only applies to loop units")
	}

	switch kind {
	case workflow.KindLLM:
		if strings.TrimSpace(u.Instruction) == "" {
			fail("llm unit requires instruction")
		}
		if _, err := workflow.ParsePlannerVariant(u.Planner); u.Planner != "" && err != nil {
			fail("%v", err)
		}
	case workflow.KindFunction:
		if u.Function == "" {
			fail("function unit requires function")
		}
	case workflow.KindTool:
		if u.Tool == "" {
			fail("tool unit requires tool")
		}
	case workflow.KindExpression:
		if strings.TrimSpace(u.Expression) == "" {
			fail("expression unit requires expression")
		}
	case workflow.KindSequential, workflow.KindParallel, workflow.KindLoop:
		if len(u.Children) == 0 {
			fail("%s unit requires at least one child", kind)
		}
		seen := make(map[string]bool, len(u.Children))
		for _, child := range u.Children {
			switch {
			case child == u.Name:
				fail("unit cannot contain itself")
			case seen[child]:
				fail("duplicate child %q", child)
			default:
				if _, ok := kinds[child]; !ok {
					fail("child %q is not declared", child)
				}
			}
			seen[child] = true
		}
		if u.MaxIterations != nil && *u.MaxIterations < 0 {
			fail("max_iterations must be >= 0, got %d", *u.MaxIterations)
		}
	}
	return errs
}

// validateOrchestration 验证编排块的引用完整性
func (v *Validator) validateOrchestration(o *OrchestrationDef, kinds map[string]workflow.Kind) []error {
	if o == nil {
		return []error{types.NewStructuralError("", "orchestration block is required")}
	}
	strategy, err := workflow.ParseStrategy(o.Strategy)
	if err != nil {
		return []error{types.NewStructuralError("", err.Error())}
	}

	var errs []error
	ref := func(field, name string) {
		if name == "" {
			errs = append(errs, types.NewStructuralError("", fmt.Sprintf("orchestration.%s is required", field)))
			return
		}
		if _, ok := kinds[name]; !ok {
			errs = append(errs, types.NewStructuralError(name, fmt.Sprintf("orchestration.%s references undeclared unit %q", field, name)))
		}
	}

	switch strategy {
	case workflow.StrategySequential, workflow.StrategyParallel, workflow.StrategyLoop:
		if len(o.Members) == 0 {
			errs = append(errs, types.NewStructuralError("", fmt.Sprintf("%s orchestration requires members", strategy)))
		}
		for _, m := range o.Members {
			ref("members", m)
		}
		if strategy == workflow.StrategyLoop && o.MaxIterations != nil && *o.MaxIterations < 0 {
			errs = append(errs, types.NewStructuralError("", fmt.Sprintf("max_iterations must be >= 0, got %d", *o.MaxIterations)))
		}
	case workflow.StrategyDAG:
		if len(o.Nodes) == 0 {
			errs = append(errs, types.NewStructuralError("", "dag orchestration requires nodes"))
		}
		for _, n := range o.Nodes {
			ref("nodes", n.Unit)
			for _, dep := range n.DependsOn {
				ref("nodes."+n.Unit+".depends_on", dep)
			}
		}
	case workflow.StrategyReact:
		ref("unit", o.Unit)
		if kind, ok := kinds[o.Unit]; ok && kind != workflow.KindLLM {
			errs = append(errs, types.NewStructuralError(o.Unit, fmt.Sprintf("react orchestration requires an llm unit, got %s", kind)))
		}
		if o.Planner != "" {
			if _, err := workflow.ParsePlannerVariant(o.Planner); err != nil {
				errs = append(errs, types.NewStructuralError(o.Unit, err.Error()))
			}
		}
	case workflow.StrategyRouted:
		ref("router", o.Router)
		if len(o.Candidates) == 0 {
			errs = append(errs, types.NewStructuralError(o.Router, "llm_routed orchestration requires candidates"))
		}
		for _, c := range o.Candidates {
			ref("candidates", c)
		}
	}
	return errs
}

// validTypes 变量允许的类型
var validTypes = map[string]bool{
	"": true, "string": true, "int": true, "float": true, "bool": true, "list": true, "map": true,
}

// validateVariables 验证变量定义
func (v *Validator) validateVariables(vars map[string]VariableDef) []error {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		def := vars[name]
		if !validTypes[def.Type] {
			errs = append(errs, types.NewStructuralError("", fmt.Sprintf("variable %s: invalid type %q", name, def.Type)))
			continue
		}
		if def.Default != nil && !matchesType(def.Type, def.Default) {
			errs = append(errs, types.NewStructuralError("", fmt.Sprintf("variable %s: default %v is not a %s", name, def.Default, def.Type)))
		}
		if def.Required && def.Default != nil {
			errs = append(errs, types.NewStructuralError("", fmt.Sprintf("variable %s: required variable cannot have a default", name)))
		}
	}
	return errs
}

func matchesType(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "int":
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case "float":
		switch v.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "bool":
		_, ok := v.(bool)
		return ok
	case "list":
		_, ok := v.([]any)
		return ok
	case "map":
		_, ok := v.(map[string]any)
		return ok
	}
	return true
}

// extractVariableRefs 提取 ${var} 引用，去掉可选标记 '?' 和嵌套路径
func extractVariableRefs(s string) []string {
	var refs []string
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			break
		}
		ref := s[start+2 : start+end]
		if strings.HasSuffix(ref, "?") {
			s = s[start+end+1:]
			continue
		}
		if i := strings.IndexByte(ref, '.'); i >= 0 {
			ref = ref[:i]
		}
		refs = append(refs, strings.TrimSpace(ref))
		s = s[start+end+1:]
	}
	return refs
}

// platformKeys 运行时注入的状态键
var platformKeys = map[string]bool{
	workflow.KeyCurrentDate:     true,
	workflow.KeyCurrentDatetime: true,
	workflow.KeyTimezone:        true,
	workflow.KeyInput:           true,
}

// unresolvedRefs 返回模板中既不是变量、平台键，也不是任何单元输出键的引用。
// 这些键可能来自会话快照或调用方初始状态，因此只作为警告。
func unresolvedRefs(doc *WorkflowDSL) map[string][]string {
	known := make(map[string]bool, len(platformKeys)+len(doc.Variables)+len(doc.Units))
	for k := range platformKeys {
		known[k] = true
	}
	for k := range doc.Variables {
		known[k] = true
	}
	for _, u := range doc.Units {
		if u.OutputKey != "" {
			known[u.OutputKey] = true
		}
	}

	out := make(map[string][]string)
	for _, u := range doc.Units {
		texts := []string{u.Instruction}
		for _, p := range u.Params {
			if s, ok := p.(string); ok {
				texts = append(texts, s)
			}
		}
		for _, text := range texts {
			for _, ref := range extractVariableRefs(text) {
				if !known[ref] {
					out[u.Name] = append(out[u.Name], ref)
				}
			}
		}
	}
	return out
}
