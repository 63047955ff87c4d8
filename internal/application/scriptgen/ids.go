package scriptgen

import (
	"strconv"
	"strings"

	"github.com/aescanero/podgen/internal/engine"
)

const (
	summarizePrefix = "summarize_"

	// SynthesizeStepID is the fixed ID of the fan-in step
	SynthesizeStepID engine.StepID = "synthesize"
)

// SummarizeStepID returns the ID of the fan-out step for item i
func SummarizeStepID(i int) engine.StepID {
	return engine.StepID(summarizePrefix + strconv.Itoa(i))
}

// SummarizeStepIDs reconstructs the IDs of all n fan-out steps in item order
func SummarizeStepIDs(n int) []engine.StepID {
	ids := make([]engine.StepID, n)
	for i := range ids {
		ids[i] = SummarizeStepID(i)
	}
	return ids
}

// PhaseOf maps a step ID to its phase and, for fan-out steps, the item index
func PhaseOf(id engine.StepID) (Phase, int, bool) {
	if id == SynthesizeStepID {
		return PhaseSynthesize, -1, true
	}
	s := string(id)
	if !strings.HasPrefix(s, summarizePrefix) {
		return "", -1, false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(s, summarizePrefix))
	if err != nil || i < 0 {
		return "", -1, false
	}
	return PhaseSummarize, i, true
}
