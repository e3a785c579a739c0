package workflow

import "context"

// compositeBase holds the children of a composite unit.
type compositeBase struct {
	unitBase
	children []Unit
}

// Children returns the child units in declaration order.
func (c *compositeBase) Children() []Unit {
	out := make([]Unit, len(c.children))
	copy(out, c.children)
	return out
}

// SequentialUnit runs its children in order. Its value is the last child's.
type SequentialUnit struct{ compositeBase }

// NewSequentialUnit creates a sequential composite.
func NewSequentialUnit(name, description, outputKey string, children []Unit) *SequentialUnit {
	return &SequentialUnit{newCompositeBase(name, KindSequential, description, outputKey, children)}
}

func (u *SequentialUnit) Run(ctx context.Context, inv *Invocation) (any, error) {
	return runSequential(ctx, inv, u.children, 0)
}

// ParallelUnit runs its children concurrently. Its value maps child names to
// child values.
type ParallelUnit struct{ compositeBase }

// NewParallelUnit creates a parallel composite.
func NewParallelUnit(name, description, outputKey string, children []Unit) *ParallelUnit {
	return &ParallelUnit{newCompositeBase(name, KindParallel, description, outputKey, children)}
}

func (u *ParallelUnit) Run(ctx context.Context, inv *Invocation) (any, error) {
	results, err := runConcurrent(ctx, inv, u.children, inv.maxConcurrency, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out, nil
}

// LoopUnit repeats its children until the loop-completion signal or
// maxIterations. Its value is the last child value produced.
type LoopUnit struct {
	compositeBase
	maxIterations int
}

// NewLoopUnit creates a loop composite. maxIterations 0 means unbounded.
func NewLoopUnit(name, description, outputKey string, children []Unit, maxIterations int) *LoopUnit {
	return &LoopUnit{
		compositeBase: newCompositeBase(name, KindLoop, description, outputKey, children),
		maxIterations: maxIterations,
	}
}

// MaxIterations returns the iteration bound, 0 for unbounded.
func (u *LoopUnit) MaxIterations() int { return u.maxIterations }

func (u *LoopUnit) Run(ctx context.Context, inv *Invocation) (any, error) {
	return runLoop(ctx, inv, u.name, u.children, u.maxIterations)
}

func newCompositeBase(name string, kind Kind, description, outputKey string, children []Unit) compositeBase {
	return compositeBase{
		unitBase: unitBase{
			name:        name,
			kind:        kind,
			description: description,
			outputKey:   outputKey,
		},
		children: append([]Unit(nil), children...),
	}
}
