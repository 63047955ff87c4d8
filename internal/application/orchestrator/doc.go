// Package orchestrator runs script generations for callers.
//
// The manager coordinates each run by:
//   - Validating the trigger payload before any graph is built
//   - Building the run's graph and executing it on the shared worker pool
//   - Managing the run lifecycle (generate, submit, cancel, timeout)
//   - Publishing run and step events to the event bus
//   - Keeping run records in the run archive for status queries
//
// The validator rejects payloads that could never produce a script.
package orchestrator
