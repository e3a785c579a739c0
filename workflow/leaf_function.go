package workflow

import (
	"context"
	"fmt"
)

// FunctionUnit calls a capability-table function.
type FunctionUnit struct {
	unitBase
	function string
	fn       Function
	params   map[string]any
}

// NewFunctionUnit creates a function unit. Input values are passed to fn
// under their state keys; params are rendered against state first and win
// over inputs on a name clash.
func NewFunctionUnit(name, description, outputKey string, inputKeys []string, function string, fn Function, params map[string]any) *FunctionUnit {
	return &FunctionUnit{
		unitBase: unitBase{
			name:        name,
			kind:        KindFunction,
			description: description,
			outputKey:   outputKey,
			inputKeys:   append([]string(nil), inputKeys...),
		},
		function: function,
		fn:       fn,
		params:   params,
	}
}

// Function returns the capability name.
func (u *FunctionUnit) Function() string { return u.function }

func (u *FunctionUnit) Run(ctx context.Context, inv *Invocation) (any, error) {
	args := inv.State.Values(u.inputKeys...)
	for k, v := range u.params {
		rendered, err := inv.State.RenderValue(v)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", k, err)
		}
		args[k] = rendered
	}
	return inv.callFunction(ctx, u.name, u.function, u.fn, args)
}
