// Package scriptgen builds and runs the podcast script workflow.
//
// Every run gets a fresh graph sized to its payload: one summarize_<i> step
// per content item, all independent, and a single synthesize step that
// depends on every one of them. The synthesize step reads the summaries back
// in item order, refuses to run on anything short of the full set and asks
// the Generation Port for the final sectioned script.
package scriptgen
