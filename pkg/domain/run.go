package domain

import "time"

// ExecutionStatus represents the status of a run or a step
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusSuccess   ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition can happen
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// StepState is the observed state of one step within a run
type StepState struct {
	StepID      string          `json:"step_id"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// RunRecord is the summary of one run kept for status queries
type RunRecord struct {
	RunID       string          `json:"run_id"`
	Status      ExecutionStatus `json:"status"`
	ProgramName string          `json:"program_name"`
	ProgramDate time.Time       `json:"program_date"`
	SpeakerMode SpeakerMode     `json:"speaker_mode"`
	ItemCount   int             `json:"item_count"`
	Steps       []StepState     `json:"steps"`
	Script      *Script         `json:"script,omitempty"`

	Error      string `json:"error,omitempty"`
	FailedStep string `json:"failed_step,omitempty"`
	Phase      string `json:"phase,omitempty"`
	ItemIndex  *int   `json:"item_index,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no mutable slices with r
func (r *RunRecord) Clone() *RunRecord {
	c := *r
	c.Steps = make([]StepState, len(r.Steps))
	copy(c.Steps, r.Steps)
	if r.ItemIndex != nil {
		idx := *r.ItemIndex
		c.ItemIndex = &idx
	}
	return &c
}
