package engine

import (
	"errors"
	"fmt"
)

// Graph construction errors
var (
	ErrInvalidStep          = errors.New("invalid step")
	ErrDuplicateStep        = errors.New("duplicate step ID")
	ErrUnknownDependency    = errors.New("step depends on unknown step")
	ErrMissingSink          = errors.New("graph has no sink step")
	ErrUnreachableSink      = errors.New("step does not lead to the sink")
	ErrUndeclaredDependency = errors.New("step did not declare this dependency")
)

// Result store errors
var (
	ErrResultExists  = errors.New("step result already recorded")
	ErrResultMissing = errors.New("step result not present")
	ErrStepFailed    = errors.New("dependency step failed")
	ErrOutputType    = errors.New("unexpected step output type")
)

// Run errors
var (
	ErrRunFailed  = errors.New("run failed")
	ErrRunStalled = errors.New("run stalled with no eligible steps")
	ErrStepPanic  = errors.New("step panicked")
)

// RunError is returned by Executor.Run when a run does not reach its sink.
// StepID is empty when the run was aborted by its context.
type RunError struct {
	RunID  string
	StepID StepID
	Err    error
}

// Error implements the error interface
func (e *RunError) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("run %s failed: %v", e.RunID, e.Err)
	}
	return fmt.Sprintf("run %s failed at step %s: %v", e.RunID, e.StepID, e.Err)
}

// Unwrap returns the step failure
func (e *RunError) Unwrap() error {
	return e.Err
}

// Is matches ErrRunFailed
func (e *RunError) Is(target error) bool {
	return target == ErrRunFailed
}
