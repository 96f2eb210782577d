// Package engine executes workflow graphs one step at a time. It owns the
// call stack of nested workflows, the scoped blackboard, and guard
// evaluation, and delegates every per-node choice to a DecisionAgent.
// Observers subscribe to lifecycle events (node enter/exit, edge traversal,
// workflow push/pop, blackboard writes, suspension, completion, errors).
package engine
