// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Synchronous script generation
//   - Asynchronous run submission, status, result and cancellation
//   - Health checks
//   - Prometheus metrics
package http
