// Package domain holds the types shared by the podgen engine, adapters and APIs.
//
// Types are grouped by concern:
//   - content.go: trigger payload and content items
//   - script.go:  generated summaries and the final script
//   - run.go:     run records and step states
//   - event.go:   run and step lifecycle events
//   - llm.go:     provider-neutral LLM request/response
package domain
