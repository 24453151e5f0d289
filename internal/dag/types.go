package dag

import (
	"sync"

	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
)

// Graph is the dependency graph of one calculation configuration. All
// operations on the graph are concurrency-safe.
type Graph struct {
	// CalcConfig names the calculation configuration the graph was built for.
	CalcConfig string

	// mutex protects every map below during concurrent access.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by their unique ID.
	nodes map[string]*Node
	// producers maps a specification key to the node producing it.
	producers map[string]*Node
	// terminal maps a requested requirement key to the output satisfying it.
	terminal map[string]Terminal
	// failures maps a requested requirement key to why it could not be satisfied.
	failures map[string]*ResolutionFailure
	seq      int
}

// Node is one function applied to one target. Its id is derived from the
// pair, so the same function on the same target appears at most once.
type Node struct {
	ID       string
	Function registry.Function
	Target   target.Target
	// Inputs are the specifications the node consumes, one per distinct value.
	Inputs []value.Specification
	// Outputs are the specifications the node must produce.
	Outputs []value.Specification

	seq int
	// deps holds the set of nodes that this node depends on (predecessors).
	deps map[string]*Node
	// dependents holds the set of nodes that depend on this node (successors).
	dependents map[string]*Node
}

// Terminal pairs a requested requirement with the output satisfying it.
type Terminal struct {
	Requirement value.Requirement
	Spec        value.Specification
	NodeID      string
}

// NodeID returns the id of the node applying functionID to tgt.
func NodeID(functionID string, tgt target.Specification) string {
	return functionID + "@" + tgt.String()
}
