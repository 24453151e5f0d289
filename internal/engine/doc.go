// Package engine runs view computation cycles. For every calculation
// configuration of a view it compiles the requested values into a dependency
// graph, executes the graph through the scheduler and collects the requested
// values from the cycle's view computation cache.
//
// Calculation configurations of one cycle are built and executed
// concurrently. A requirement that cannot be satisfied or computed is
// reported as a ResultValue with Err set; it never aborts the cycle.
package engine
