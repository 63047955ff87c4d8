// Package storage provides run archive implementations.
//
// The archive keeps the record of each run (status, step states, script or
// error) for a limited time so asynchronous callers can poll it. It is never
// read back to resume a run.
//
// Implementations:
//   - redis: JSON records with TTL plus a sorted index for listing
//   - memory: in-process map with lazy expiry
package storage
