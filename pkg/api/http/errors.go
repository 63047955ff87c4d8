package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aescanero/podgen/internal/application/orchestrator"
	"github.com/aescanero/podgen/internal/application/scriptgen"
	"github.com/aescanero/podgen/pkg/domain"
	"github.com/aescanero/podgen/pkg/ports"
)

// Error codes
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidPayload   = "INVALID_PAYLOAD"
	CodeNotFound         = "NOT_FOUND"
	CodeNotCompleted     = "NOT_COMPLETED"
	CodeRunTerminal      = "RUN_TERMINAL"
	CodeRunCancelled     = "RUN_CANCELLED"
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// GenerationFailure locates the failing part of a run
type GenerationFailure struct {
	RunID     string `json:"run_id,omitempty"`
	Phase     string `json:"phase,omitempty"`
	ItemIndex *int   `json:"item_index,omitempty"`
	StepID    string `json:"step_id,omitempty"`
}

func abort(c *gin.Context, status int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeError maps orchestrator errors to HTTP responses. rec may be nil.
func writeError(c *gin.Context, err error, rec *domain.RunRecord) {
	var validationErr *orchestrator.ValidationError
	var phaseErr *scriptgen.PhaseError

	switch {
	case errors.As(err, &validationErr):
		var details interface{}
		if len(validationErr.Fields) > 0 {
			details = gin.H{"fields": validationErr.Fields}
		}
		abort(c, http.StatusBadRequest, CodeInvalidPayload, err.Error(), details)

	case errors.Is(err, orchestrator.ErrShuttingDown):
		abort(c, http.StatusServiceUnavailable, CodeUnavailable, err.Error(), nil)

	case errors.Is(err, ports.ErrRunNotFound):
		abort(c, http.StatusNotFound, CodeNotFound, "run not found", nil)

	case errors.Is(err, orchestrator.ErrRunTerminal):
		abort(c, http.StatusConflict, CodeRunTerminal, err.Error(), nil)

	case rec != nil && rec.Status == domain.ExecutionStatusCancelled:
		abort(c, http.StatusConflict, CodeRunCancelled, "run cancelled", gin.H{"run_id": rec.RunID})

	case errors.As(err, &phaseErr):
		failure := GenerationFailure{
			Phase:  string(phaseErr.Phase),
			StepID: string(phaseErr.StepID),
		}
		if phaseErr.Phase == scriptgen.PhaseSummarize {
			idx := phaseErr.ItemIndex
			failure.ItemIndex = &idx
		}
		if rec != nil {
			failure.RunID = rec.RunID
		}
		abort(c, http.StatusBadGateway, CodeGenerationFailed, err.Error(), failure)

	case errors.Is(err, context.Canceled):
		abort(c, http.StatusServiceUnavailable, CodeUnavailable, "request cancelled", nil)

	default:
		abort(c, http.StatusInternalServerError, CodeInternal, err.Error(), nil)
	}
}

// failureOf describes a failed archived run
func failureOf(rec *domain.RunRecord) GenerationFailure {
	return GenerationFailure{
		RunID:     rec.RunID,
		Phase:     rec.Phase,
		ItemIndex: rec.ItemIndex,
		StepID:    rec.FailedStep,
	}
}
