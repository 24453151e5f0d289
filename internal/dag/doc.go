// Package dag compiles value requirements into a dependency graph of
// function applications and provides the graph operations the scheduler
// needs: deterministic execution order, cycle detection and pruning.
//
// A Builder resolves each requirement by asking the function registry for
// candidates in resolution order and recursively resolving their inputs.
// Resolutions are memoized, so a value needed by many requirements is
// computed by a single node.
package dag
