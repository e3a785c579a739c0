package workflow

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentpipe/types"
)

// Kind identifies a unit type. The set is closed: AllKinds lists every value
// and switches over Kind are expected to cover all of them.
type Kind string

const (
	KindLLM        Kind = "llm"
	KindFunction   Kind = "function"
	KindTool       Kind = "tool"
	KindExpression Kind = "expression"
	KindSequential Kind = "sequential"
	KindParallel   Kind = "parallel"
	KindLoop       Kind = "loop"
)

// AllKinds returns every unit kind, leaves first.
func AllKinds() []Kind {
	return []Kind{KindLLM, KindFunction, KindTool, KindExpression, KindSequential, KindParallel, KindLoop}
}

// IsLeaf reports whether units of this kind do work themselves.
func (k Kind) IsLeaf() bool {
	switch k {
	case KindLLM, KindFunction, KindTool, KindExpression:
		return true
	case KindSequential, KindParallel, KindLoop:
		return false
	}
	return false
}

// IsComposite reports whether units of this kind orchestrate children.
func (k Kind) IsComposite() bool {
	switch k {
	case KindSequential, KindParallel, KindLoop:
		return true
	case KindLLM, KindFunction, KindTool, KindExpression:
		return false
	}
	return false
}

// ParseKind validates s against the closed kind set.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if k.IsLeaf() || k.IsComposite() {
		return k, nil
	}
	return "", fmt.Errorf("unknown unit kind %q", s)
}

// Unit is a named node of the workflow graph.
//
// Run performs the unit's work and returns its value. Units never write their
// own output key; the invocation commits the value after a successful Run.
type Unit interface {
	Name() string
	Kind() Kind
	OutputKey() string
	Run(ctx context.Context, inv *Invocation) (any, error)
}

// Composite is implemented by units that orchestrate other units.
type Composite interface {
	Unit
	Children() []Unit
}

// unitBase carries the fields every unit shares.
type unitBase struct {
	name        string
	kind        Kind
	description string
	outputKey   string
	inputKeys   []string
}

func (b *unitBase) Name() string        { return b.name }
func (b *unitBase) Kind() Kind          { return b.kind }
func (b *unitBase) OutputKey() string   { return b.outputKey }
func (b *unitBase) Description() string { return b.description }

// InputKeys returns the declared input keys.
func (b *unitBase) InputKeys() []string {
	out := make([]string, len(b.inputKeys))
	copy(out, b.inputKeys)
	return out
}

// WrittenKeys returns every state key u may write, including keys written by
// descendants of a composite.
func WrittenKeys(u Unit) []string {
	seen := make(map[string]bool)
	var keys []string
	var walk func(Unit)
	walk = func(u Unit) {
		if k := u.OutputKey(); k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
		if c, ok := u.(Composite); ok {
			for _, child := range c.Children() {
				walk(child)
			}
		}
	}
	walk(u)
	return keys
}

// =============================================================================
// UnitGraph
// =============================================================================

// UnitGraph maps unit names to executable units. It is built once during
// hydration and read-only afterwards.
type UnitGraph struct {
	units map[string]Unit
	order []string
}

// NewUnitGraph creates an empty graph.
func NewUnitGraph() *UnitGraph {
	return &UnitGraph{units: make(map[string]Unit)}
}

// Add registers u. Names must be unique and non-empty.
func (g *UnitGraph) Add(u Unit) error {
	if u == nil {
		return types.NewStructuralError("", "nil unit")
	}
	name := u.Name()
	if name == "" {
		return types.NewStructuralError("", "unit name must not be empty")
	}
	if _, exists := g.units[name]; exists {
		return types.NewStructuralError(name, "duplicate unit name")
	}
	g.units[name] = u
	g.order = append(g.order, name)
	return nil
}

// Get returns the unit registered under name.
func (g *UnitGraph) Get(name string) (Unit, bool) {
	u, ok := g.units[name]
	return u, ok
}

// Has reports whether name is registered.
func (g *UnitGraph) Has(name string) bool {
	_, ok := g.units[name]
	return ok
}

// Names returns unit names in the order they were added.
func (g *UnitGraph) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of units.
func (g *UnitGraph) Len() int { return len(g.units) }

// lookup resolves names to units or fails with a structural error.
func (g *UnitGraph) lookup(names []string) ([]Unit, error) {
	units := make([]Unit, 0, len(names))
	for _, name := range names {
		u, ok := g.units[name]
		if !ok {
			return nil, types.NewStructuralError(name, "unknown unit")
		}
		units = append(units, u)
	}
	return units, nil
}
