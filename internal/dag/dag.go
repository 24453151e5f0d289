package dag

import (
	"fmt"
	"sort"

	"github.com/specialistvlad/valuegrid/internal/value"
)

// New creates and returns an initialized, empty Graph.
func New(calcConfig string) *Graph {
	return &Graph{
		CalcConfig: calcConfig,
		nodes:      make(map[string]*Node),
		producers:  make(map[string]*Node),
		terminal:   make(map[string]Terminal),
		failures:   make(map[string]*ResolutionFailure),
	}
}

// AddNode adds n to the graph. If a node with the same ID already exists,
// the existing node is returned and n is discarded.
func (g *Graph) AddNode(n *Node) *Node {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if existing, ok := g.nodes[n.ID]; ok {
		return existing
	}

	n.seq = g.seq
	g.seq++
	n.deps = make(map[string]*Node)
	n.dependents = make(map[string]*Node)
	g.nodes[n.ID] = n
	for _, out := range n.Outputs {
		g.producers[out.Key()] = n
	}
	return n
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.nodes[id]
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode

	return nil
}

// AddOutput records that n also produces spec. If n already produces a
// compatible specification, that one is returned instead.
func (g *Graph) AddOutput(n *Node, spec value.Specification) value.Specification {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for _, out := range n.Outputs {
		if out.CompatibleWith(spec) {
			return out
		}
	}
	n.Outputs = append(n.Outputs, spec)
	g.producers[spec.Key()] = n
	return spec
}

// Producer returns the node producing spec.
func (g *Graph) Producer(spec value.Specification) (*Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	n, ok := g.producers[spec.Key()]
	return n, ok
}

// Dependencies returns the IDs of the nodes the given node depends on, in
// insertion order.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return ids(sortedNodes(n.deps)), nil
}

// Dependents returns the IDs of the nodes that depend on the given node, in
// insertion order.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return ids(sortedNodes(n.dependents)), nil
}

// InputNodes returns the nodes n depends on, in insertion order.
func (g *Graph) InputNodes(n *Node) []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return sortedNodes(n.deps)
}

// DependentNodes returns the nodes depending on n, in insertion order.
func (g *Graph) DependentNodes(n *Node) []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return sortedNodes(n.dependents)
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return sortedNodes(g.nodes)
}

// Size returns the number of nodes.
func (g *Graph) Size() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// RootNodes returns the nodes nothing else depends on.
func (g *Graph) RootNodes() []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	var out []*Node
	for _, n := range sortedNodes(g.nodes) {
		if len(n.dependents) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// LeafNodes returns the nodes without inputs.
func (g *Graph) LeafNodes() []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	var out []*Node
	for _, n := range sortedNodes(g.nodes) {
		if len(n.deps) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// SetTerminal records the output satisfying a requested requirement.
func (g *Graph) SetTerminal(t Terminal) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.terminal[t.Requirement.Key()] = t
}

// TerminalOutputs returns the satisfied requested requirements, sorted by key.
func (g *Graph) TerminalOutputs() []Terminal {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	keys := make([]string, 0, len(g.terminal))
	for k := range g.terminal {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Terminal, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.terminal[k])
	}
	return out
}

// RecordFailure records why a requested requirement could not be satisfied.
func (g *Graph) RecordFailure(f *ResolutionFailure) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.failures[f.Requirement.Key()] = f
}

// Failures returns the unsatisfied requested requirements, sorted by key.
func (g *Graph) Failures() []*ResolutionFailure {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	keys := make([]string, 0, len(g.failures))
	for k := range g.failures {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*ResolutionFailure, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.failures[k])
	}
	return out
}

// DetectCycles checks the graph for any cycles. It returns a non-nil error
// if a cycle is found, indicating the first node involved in the detected cycle.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Use classic depth-first search with three sets of nodes:
	// permanent: nodes that have been fully visited and are not part of a cycle.
	// temporary: nodes currently in the recursion stack for the current traversal.
	// unvisited: all other nodes.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return fmt.Errorf("%w: involving node '%s'", ErrCycleDetected, n.ID)
		}

		temporary[n.ID] = true

		for _, dependent := range sortedNodes(n.dependents) {
			if err := visit(dependent); err != nil {
				return err
			}
		}

		delete(temporary, n.ID)
		permanent[n.ID] = true

		return nil
	}

	for _, n := range sortedNodes(g.nodes) {
		if !permanent[n.ID] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}

	return nil
}

// ExecutionOrder returns the nodes in a deterministic topological order:
// every node appears after all of its inputs, ties broken by insertion order.
func (g *Graph) ExecutionOrder() ([]*Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	remaining := make(map[string]int, len(g.nodes))
	var queue []*Node
	for _, n := range sortedNodes(g.nodes) {
		remaining[n.ID] = len(n.deps)
		if len(n.deps) == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]*Node, 0, len(g.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, dependent := range sortedNodes(n.dependents) {
			remaining[dependent.ID]--
			if remaining[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("%w: %d node(s) never became ready", ErrCycleDetected, len(g.nodes)-len(order))
	}
	return order, nil
}

// Prune removes every node that no terminal output depends on, and returns
// how many were removed.
func (g *Graph) Prune() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	keep := make(map[string]bool, len(g.nodes))
	var stack []*Node
	for _, t := range g.terminal {
		if n, ok := g.nodes[t.NodeID]; ok && !keep[n.ID] {
			keep[n.ID] = true
			stack = append(stack, n)
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for id, dep := range n.deps {
			if !keep[id] {
				keep[id] = true
				stack = append(stack, dep)
			}
		}
	}

	removed := 0
	for id, n := range g.nodes {
		if keep[id] {
			continue
		}
		for depID, dep := range n.deps {
			delete(dep.dependents, id)
			delete(n.deps, depID)
		}
		for _, out := range n.Outputs {
			if g.producers[out.Key()] == n {
				delete(g.producers, out.Key())
			}
		}
		delete(g.nodes, id)
		removed++
	}
	return removed
}

func sortedNodes(m map[string]*Node) []*Node {
	out := make([]*Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func ids(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
