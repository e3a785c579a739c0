package sandbox

import (
	"strings"
	"unicode/utf8"
)

// MaxExpressionLength bounds the source text accepted by Compile.
const MaxExpressionLength = 4096

// Program is a parsed and validated expression. It is immutable and safe for
// concurrent evaluation.
type Program struct {
	source string
	root   node
	names  []string
}

// Compile parses expr and validates the whole tree. Nothing is evaluated; a
// *Violation or *SyntaxError is returned for rejected input.
func Compile(expr string) (*Program, error) {
	src := strings.TrimSpace(expr)
	if src == "" {
		return nil, syntaxErrorf(0, "empty expression")
	}
	if utf8.RuneCountInString(src) > MaxExpressionLength {
		return nil, syntaxErrorf(MaxExpressionLength, "expression longer than %d characters", MaxExpressionLength)
	}

	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	root, err := parse(tokens)
	if err != nil {
		return nil, err
	}
	if err := validate(root); err != nil {
		return nil, err
	}

	var names []string
	freeNames(root, map[string]bool{}, &names)
	return &Program{source: src, root: root, names: names}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(expr string) *Program {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Source returns the trimmed expression text.
func (p *Program) Source() string { return p.source }

// Names returns the names the expression reads from bindings, in order of
// first appearance.
func (p *Program) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Eval evaluates the program against bindings. Bindings are never mutated.
func (p *Program) Eval(bindings map[string]any) (any, error) {
	if bindings == nil {
		bindings = map[string]any{}
	}
	e := &evaluator{bindings: bindings}
	return e.eval(p.root)
}

// EvalBool evaluates the program and applies truthiness to the result.
func (p *Program) EvalBool(bindings map[string]any) (bool, error) {
	v, err := p.Eval(bindings)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Evaluate compiles and evaluates expr in one step.
func Evaluate(expr string, bindings map[string]any) (any, error) {
	p, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	return p.Eval(bindings)
}

// EvaluateBool compiles expr and evaluates it as a condition.
func EvaluateBool(expr string, bindings map[string]any) (bool, error) {
	p, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return p.EvalBool(bindings)
}
