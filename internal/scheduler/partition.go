package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/valuegrid/internal/dag"
	"github.com/specialistvlad/valuegrid/internal/job"
)

// Fragment is a group of graph nodes executed as one job.
type Fragment struct {
	ID    int
	Nodes []*dag.Node

	inputs     map[*Fragment]struct{}
	dependents map[*Fragment]struct{}
}

func newFragment(id int, nodes ...*dag.Node) *Fragment {
	return &Fragment{ID: id, Nodes: nodes, inputs: map[*Fragment]struct{}{}, dependents: map[*Fragment]struct{}{}}
}

// Inputs returns the fragments that must complete before f, ordered by ID.
func (f *Fragment) Inputs() []*Fragment { return sortedFragments(f.inputs) }

// Dependents returns the fragments waiting for f, ordered by ID.
func (f *Fragment) Dependents() []*Fragment { return sortedFragments(f.dependents) }

// Items converts the fragment's nodes to job items.
func (f *Fragment) Items() []job.Item {
	items := make([]job.Item, len(f.Nodes))
	for i, n := range f.Nodes {
		items[i] = job.Item{
			FunctionID: n.Function.ID(),
			Target:     n.Target.Spec(),
			Inputs:     n.Inputs,
			Outputs:    n.Outputs,
		}
	}
	return items
}

func (f *Fragment) String() string {
	ids := make([]string, len(f.Nodes))
	for i, n := range f.Nodes {
		ids[i] = n.ID
	}
	return fmt.Sprintf("fragment %d [%s]", f.ID, strings.Join(ids, ", "))
}

// signature identifies fragments that would run concurrently: those with
// the same inputs, or without inputs but on the same target.
func (f *Fragment) signature() string {
	if len(f.inputs) == 0 {
		return "target:" + f.Nodes[0].Target.Spec().String()
	}
	ids := make([]string, 0, len(f.inputs))
	for _, in := range f.Inputs() {
		ids = append(ids, fmt.Sprint(in.ID))
	}
	return "inputs:" + strings.Join(ids, ",")
}

// Partitioner splits a graph into fragments sized between MinJobItems and
// MaxJobItems where the graph shape allows.
type Partitioner struct {
	MinJobItems int
	MaxJobItems int
}

// Partition returns the fragments of g in a deterministic order. Every
// fragment appears after all of its inputs.
func (p Partitioner) Partition(g *dag.Graph) ([]*Fragment, error) {
	order, err := g.ExecutionOrder()
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, nil
	}
	maxItems := p.MaxJobItems
	if maxItems <= 0 {
		maxItems = len(order)
	}
	if len(order) <= p.MinJobItems {
		return []*Fragment{newFragment(0, order...)}, nil
	}

	byNode := make(map[string]*Fragment, len(order))
	all := make(map[*Fragment]struct{}, len(order))
	for i, n := range order {
		f := newFragment(i, n)
		byNode[n.ID] = f
		all[f] = struct{}{}
	}
	for _, n := range order {
		f := byNode[n.ID]
		for _, dep := range g.InputNodes(n) {
			in := byNode[dep.ID]
			f.inputs[in] = struct{}{}
			in.dependents[f] = struct{}{}
		}
	}

	failures := 0
	for failures < 2 {
		if p.mergeSharedInputs(all, maxItems) {
			failures = 0
		} else {
			failures++
		}
		if failures >= 2 {
			break
		}
		if p.mergeSingleDependencies(all, maxItems) {
			failures = 0
		} else {
			failures++
		}
	}

	return topological(all), nil
}

// mergeSingleDependencies folds a fragment into its only dependent.
func (p Partitioner) mergeSingleDependencies(all map[*Fragment]struct{}, maxItems int) bool {
	changed := false
	for _, f := range sortedFragments(all) {
		if len(f.dependents) != 1 {
			continue
		}
		dependent := f.Dependents()[0]
		if len(f.Nodes)+len(dependent.Nodes) > maxItems {
			continue
		}
		dependent.Nodes = append(append([]*dag.Node(nil), f.Nodes...), dependent.Nodes...)
		delete(dependent.inputs, f)
		for in := range f.inputs {
			delete(in.dependents, f)
			in.dependents[dependent] = struct{}{}
			dependent.inputs[in] = struct{}{}
		}
		if f.ID < dependent.ID {
			dependent.ID = f.ID
		}
		delete(all, f)
		changed = true
	}
	return changed
}

// mergeSharedInputs merges fragments below the minimum size that would run
// concurrently anyway.
func (p Partitioner) mergeSharedInputs(all map[*Fragment]struct{}, maxItems int) bool {
	changed := false
	candidates := make(map[string]*Fragment)
	for _, f := range sortedFragments(all) {
		if len(f.Nodes) >= p.MinJobItems {
			continue
		}
		sig := f.signature()
		c, ok := candidates[sig]
		if !ok {
			candidates[sig] = f
			continue
		}
		if len(c.Nodes)+len(f.Nodes) > maxItems {
			candidates[sig] = f
			continue
		}
		c.Nodes = append(c.Nodes, f.Nodes...)
		for d := range f.dependents {
			delete(d.inputs, f)
			d.inputs[c] = struct{}{}
			c.dependents[d] = struct{}{}
		}
		for in := range f.inputs {
			delete(in.dependents, f)
		}
		delete(all, f)
		changed = true
		if len(c.Nodes) >= p.MinJobItems {
			delete(candidates, sig)
		}
	}
	return changed
}

func topological(all map[*Fragment]struct{}) []*Fragment {
	remaining := make(map[*Fragment]int, len(all))
	var ready []*Fragment
	for _, f := range sortedFragments(all) {
		remaining[f] = len(f.inputs)
		if len(f.inputs) == 0 {
			ready = append(ready, f)
		}
	}
	out := make([]*Fragment, 0, len(all))
	for len(ready) > 0 {
		f := ready[0]
		ready = ready[1:]
		out = append(out, f)
		for _, d := range f.Dependents() {
			remaining[d]--
			if remaining[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	return out
}

func sortedFragments(m map[*Fragment]struct{}) []*Fragment {
	out := make([]*Fragment, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
