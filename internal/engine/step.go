package engine

import (
	"context"
	"fmt"
)

// StepID identifies a step within one graph
type StepID string

// Status is the lifecycle state of a step
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// StepFunc is the body of a step. deps exposes the outputs of the step's
// declared predecessors only.
type StepFunc func(ctx context.Context, deps Dependencies) (any, error)

// Contract names the input and output shapes of a step
type Contract struct {
	Input  string
	Output string
}

// Step is an immutable unit of work in a graph
type Step struct {
	ID        StepID
	DependsOn []StepID
	Contract  Contract
	Input     any
	Run       StepFunc
}

// validate checks the fields every step must carry
func (s *Step) validate() error {
	if s == nil {
		return fmt.Errorf("%w: step is nil", ErrInvalidStep)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: step ID is required", ErrInvalidStep)
	}
	if s.Run == nil {
		return fmt.Errorf("%w: step %s has no body", ErrInvalidStep, s.ID)
	}
	seen := make(map[StepID]bool, len(s.DependsOn))
	for _, dep := range s.DependsOn {
		if dep == s.ID {
			return fmt.Errorf("%w: step %s depends on itself", ErrInvalidStep, s.ID)
		}
		if seen[dep] {
			return fmt.Errorf("%w: step %s declares %s twice", ErrInvalidStep, s.ID, dep)
		}
		seen[dep] = true
	}
	return nil
}

// Result is the terminal outcome of one step
type Result struct {
	Status Status
	Output any
	Err    error
}

// Success builds a SUCCESS result
func Success(output any) Result {
	return Result{Status: StatusSuccess, Output: output}
}

// Failure builds a FAILED result
func Failure(err error) Result {
	return Result{Status: StatusFailed, Err: err}
}
