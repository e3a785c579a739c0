package workflow

import (
	"context"

	"github.com/BaSui01/agentpipe/workflow/sandbox"
)

// ExpressionUnit evaluates a sandboxed expression against state.
type ExpressionUnit struct {
	unitBase
	program *sandbox.Program
}

// NewExpressionUnit compiles expr. Forbidden constructs are rejected here,
// so a hydrated workflow never holds an unsafe expression.
func NewExpressionUnit(name, description, outputKey string, inputKeys []string, expr string) (*ExpressionUnit, error) {
	prog, err := sandbox.Compile(expr)
	if err != nil {
		return nil, sandboxError(name, err)
	}
	return &ExpressionUnit{
		unitBase: unitBase{
			name:        name,
			kind:        KindExpression,
			description: description,
			outputKey:   outputKey,
			inputKeys:   append([]string(nil), inputKeys...),
		},
		program: prog,
	}, nil
}

// Expression returns the source text.
func (u *ExpressionUnit) Expression() string { return u.program.Source() }

// Run binds the declared input keys, or every name the expression
// references when none are declared, and evaluates.
func (u *ExpressionUnit) Run(_ context.Context, inv *Invocation) (any, error) {
	keys := u.inputKeys
	if len(keys) == 0 {
		keys = u.program.Names()
	}
	out, err := u.program.Eval(inv.State.Values(keys...))
	if err != nil {
		return nil, sandboxError(u.name, err)
	}
	return out, nil
}
