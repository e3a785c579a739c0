package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/agentpipe/types"
)

// DependencyNode is one entry of a dag orchestration: a unit and the units
// whose writes it must observe.
type DependencyNode struct {
	Unit      string   `json:"unit" yaml:"unit"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// Plan is an ordered list of execution waves. Wave i holds exactly the units
// whose dependencies all lie in waves 0..i-1. Names in a wave are sorted;
// the order carries no meaning.
type Plan [][]string

// Clone returns a deep copy.
func (p Plan) Clone() Plan {
	if p == nil {
		return nil
	}
	out := make(Plan, len(p))
	for i, wave := range p {
		out[i] = append([]string(nil), wave...)
	}
	return out
}

// Units returns the number of units across all waves.
func (p Plan) Units() int {
	n := 0
	for _, wave := range p {
		n += len(wave)
	}
	return n
}

// String renders the plan as "[a b] [c]".
func (p Plan) String() string {
	parts := make([]string, len(p))
	for i, wave := range p {
		parts[i] = "[" + strings.Join(wave, " ") + "]"
	}
	return strings.Join(parts, " ")
}

// CycleError reports dependency nodes that can never be scheduled.
type CycleError struct {
	// Remaining holds every node left after layering: the cycles plus
	// anything downstream of them.
	Remaining []string
	// Cycle holds the nodes that lie on a cycle.
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among [%s]", strings.Join(e.Cycle, ", "))
}

// Unwrap exposes the CYCLE error code to errors.Is/As.
func (e *CycleError) Unwrap() error {
	return types.NewError(types.ErrCycle, e.Error())
}

// PlanWaves validates nodes and layers them into waves (Kahn's algorithm).
func PlanWaves(nodes []DependencyNode) (Plan, error) {
	deps := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		if n.Unit == "" {
			return nil, types.NewStructuralError("", "dag node without a unit name")
		}
		if _, dup := deps[n.Unit]; dup {
			return nil, types.NewStructuralError(n.Unit, "duplicate dag node")
		}
		deps[n.Unit] = n.DependsOn
	}

	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		seen := make(map[string]bool, len(n.DependsOn))
		for _, d := range n.DependsOn {
			if _, ok := deps[d]; !ok {
				return nil, types.NewStructuralError(n.Unit, fmt.Sprintf("depends on undeclared node %q", d))
			}
			if seen[d] {
				continue
			}
			seen[d] = true
			indegree[n.Unit]++
			dependents[d] = append(dependents[d], n.Unit)
		}
	}

	var ready []string
	for _, n := range nodes {
		if indegree[n.Unit] == 0 {
			ready = append(ready, n.Unit)
		}
	}

	var plan Plan
	scheduled := 0
	for len(ready) > 0 {
		sort.Strings(ready)
		plan = append(plan, ready)
		scheduled += len(ready)

		var next []string
		for _, name := range ready {
			for _, dep := range dependents[name] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		ready = next
	}

	if scheduled < len(nodes) {
		var remaining []string
		for _, n := range nodes {
			if indegree[n.Unit] > 0 {
				remaining = append(remaining, n.Unit)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining, Cycle: cycleMembers(remaining, deps)}
	}
	return plan, nil
}

// cycleMembers returns the nodes of remaining that lie on a cycle: members of
// a strongly connected component of size > 1, or nodes depending on
// themselves (Tarjan).
func cycleMembers(remaining []string, deps map[string][]string) []string {
	inRemaining := make(map[string]bool, len(remaining))
	for _, name := range remaining {
		inRemaining[name] = true
	}

	var (
		index   = 0
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		stack   []string
		cycle   []string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		selfLoop := false
		for _, w := range deps[v] {
			if !inRemaining[w] {
				continue
			}
			if w == v {
				selfLoop = true
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var component []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			if len(component) > 1 || selfLoop {
				cycle = append(cycle, component...)
			}
		}
	}

	for _, v := range remaining {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	sort.Strings(cycle)
	return cycle
}
