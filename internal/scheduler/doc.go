// Package scheduler turns a dependency graph into calculation jobs and runs
// them in dependency order.
//
// # How It Works
//
//  1. The Partitioner groups graph nodes into fragments. Each fragment
//     becomes one job whose items are in execution order.
//  2. Fragments without inputs are dispatched immediately.
//  3. When a job's result arrives its outputs are already in the view
//     computation cache, so every dependent fragment whose inputs have all
//     completed is dispatched next.
//  4. Execution ends when every fragment has a result, the timeout elapses
//     or the caller cancels.
//
// Each execution moves through the states
// Building → Scheduled → Dispatched → Completed | Failed | TimedOut,
// or to Cancelled from any non-terminal state.
package scheduler
