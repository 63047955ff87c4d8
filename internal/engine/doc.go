// Package engine executes per-run step graphs.
//
// A Graph is plain data: steps with declared predecessors, plus one sink whose
// output is the result of the run. The Executor is shape-agnostic:
//   - a step is eligible once every predecessor has a SUCCESS result
//   - all eligible steps run concurrently
//   - the first failure cancels the run and is returned as a RunError
//   - the run resolves with the sink's output
//
// Every Run owns a fresh ResultStore. Step bodies only see the outputs of their
// declared predecessors, through a read-only Dependencies view.
package engine
