package scriptgen

import (
	"errors"
	"fmt"

	"github.com/aescanero/podgen/internal/engine"
)

var (
	// ErrNoContent is returned by the synthesize step when the run has no items
	ErrNoContent = errors.New("no content items to synthesize")

	// ErrAggregation marks a synthesize step that did not see every summary
	ErrAggregation = errors.New("aggregation precondition failed")

	// ErrCoverage marks a script whose sections do not match the items
	ErrCoverage = errors.New("script does not cover the items")

	// ErrGenerationFailed matches every PhaseError
	ErrGenerationFailed = errors.New("generation failed")
)

// AggregationError reports how many summaries the synthesize step found
type AggregationError struct {
	Expected int
	Present  int
	Missing  []engine.StepID
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("expected %d summaries, found %d (missing %v)", e.Expected, e.Present, e.Missing)
}

// Is matches ErrAggregation
func (e *AggregationError) Is(target error) bool {
	return target == ErrAggregation
}

// Phase is the part of the workflow a failure happened in
type Phase string

const (
	PhaseSummarize  Phase = "summarize"
	PhaseSynthesize Phase = "synthesize"
	PhaseRun        Phase = "run"
)

// PhaseError is the error callers receive for a failed run. ItemIndex is
// only meaningful for PhaseSummarize.
type PhaseError struct {
	Phase     Phase
	ItemIndex int
	StepID    engine.StepID
	Err       error
}

func (e *PhaseError) Error() string {
	switch e.Phase {
	case PhaseSummarize:
		return fmt.Sprintf("generation failed summarizing item %d: %v", e.ItemIndex, e.Err)
	case PhaseSynthesize:
		return fmt.Sprintf("generation failed synthesizing script: %v", e.Err)
	default:
		return fmt.Sprintf("generation failed: %v", e.Err)
	}
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Is matches ErrGenerationFailed
func (e *PhaseError) Is(target error) bool {
	return target == ErrGenerationFailed
}

// NewPhaseError maps an executor error to the phase that failed. Errors that
// are not run failures are returned unchanged.
func NewPhaseError(err error) error {
	var runErr *engine.RunError
	if !errors.As(err, &runErr) {
		return err
	}

	phase, index, ok := PhaseOf(runErr.StepID)
	if !ok {
		phase = PhaseRun
	}
	return &PhaseError{
		Phase:     phase,
		ItemIndex: index,
		StepID:    runErr.StepID,
		Err:       err,
	}
}
