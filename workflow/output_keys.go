package workflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BaSui01/agentpipe/types"
)

// CheckDisjointOutputKeys rejects workflows where units that may run
// concurrently write the same state key: members of a parallel
// orchestration, units of one DAG wave and children of a parallel composite.
// All conflicts are reported together.
func CheckDisjointOutputKeys(wf *Workflow) error {
	var errs []error

	check := func(group string, units []Unit) {
		owners := make(map[string]string)
		for _, u := range units {
			for _, key := range WrittenKeys(u) {
				if prev, ok := owners[key]; ok && prev != u.Name() {
					errs = append(errs, types.NewStructuralError(u.Name(),
						fmt.Sprintf("output key %q also written by %q in %s", key, prev, group)))
					continue
				}
				owners[key] = u.Name()
			}
		}
	}

	o := wf.orchestration
	switch o.Strategy {
	case StrategyParallel:
		units, err := wf.graph.lookup(o.Members)
		if err != nil {
			return err
		}
		check("parallel orchestration", units)
	case StrategyDAG:
		for i, wave := range wf.plan {
			units, err := wf.graph.lookup(wave)
			if err != nil {
				return err
			}
			check(fmt.Sprintf("dag wave %d", i), units)
		}
	case StrategySequential, StrategyLoop, StrategyReact, StrategyRouted:
	}

	names := wf.graph.Names()
	sort.Strings(names)
	for _, name := range names {
		u, _ := wf.graph.Get(name)
		if p, ok := u.(*ParallelUnit); ok {
			check(fmt.Sprintf("parallel unit %q", p.Name()), p.children)
		}
	}
	return errors.Join(errs...)
}
