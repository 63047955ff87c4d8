// Package llm provides the text-generation clients behind the Generation Port.
//
// The factory creates clients based on provider configuration. Currently
// supports:
//   - Anthropic Claude
//
// Instrumented decorates any client with call and token metrics.
package llm
