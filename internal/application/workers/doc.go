// Package workers implements the worker pool that runs step bodies.
//
// The pool owns a fixed number of goroutines and plugs into the engine as
// its Dispatcher, so every run in the process shares one concurrency budget:
//   - Dispatch hands a step body to the next idle worker, blocking while all
//     workers are busy
//   - Workers report idle/busy/stopped status
//   - The health monitor logs pool status and records it as metrics
package workers
