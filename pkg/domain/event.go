package domain

import "time"

// EventType identifies a run or step lifecycle transition
type EventType string

const (
	EventTypeRunSubmitted  EventType = "run.submitted"
	EventTypeRunStarted    EventType = "run.started"
	EventTypeRunCompleted  EventType = "run.completed"
	EventTypeRunFailed     EventType = "run.failed"
	EventTypeRunCancelled  EventType = "run.cancelled"
	EventTypeStepStarted   EventType = "step.started"
	EventTypeStepCompleted EventType = "step.completed"
	EventTypeStepFailed    EventType = "step.failed"
)

// IsRunTerminal reports whether the event closes a run
func (t EventType) IsRunTerminal() bool {
	return t == EventTypeRunCompleted || t == EventTypeRunFailed || t == EventTypeRunCancelled
}

// Event is published on the event bus for every transition
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	StepID    string                 `json:"step_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
