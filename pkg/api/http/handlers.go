package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aescanero/podgen/pkg/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RunSubmitResponse represents a run submission response
type RunSubmitResponse struct {
	RunID       string `json:"run_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
	StatusURL   string `json:"status_url"`
	StreamURL   string `json:"stream_url"`
}

// RunListResponse represents a page of runs
type RunListResponse struct {
	Runs  []*domain.RunRecord `json:"runs"`
	Total int                 `json:"total"`
	Limit int                 `json:"limit"`
}

// RunResultResponse is the result of a successful run
type RunResultResponse struct {
	RunID       string         `json:"run_id"`
	Status      string         `json:"status"`
	Script      *domain.Script `json:"script"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	overall := "healthy"
	checks := gin.H{"orchestrator": "ok"}

	if s.orchestrator.ShuttingDown() {
		status = http.StatusServiceUnavailable
		overall = "shutting_down"
		checks["orchestrator"] = "stopping"
	}

	if s.health != nil {
		pool := s.health.GetStatus()
		checks["workers"] = pool
		if !pool.Healthy && status == http.StatusOK {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
	}

	c.JSON(status, gin.H{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleGenerateScript runs a payload to completion and returns the record
func (s *Server) handleGenerateScript(c *gin.Context) {
	var payload domain.TriggerPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.logger.Warn("invalid request", zap.Error(err))
		abort(c, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
		return
	}

	rec, err := s.orchestrator.Generate(c.Request.Context(), &payload)
	if err != nil {
		writeError(c, err, rec)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// handleSubmitRun starts a run in the background
func (s *Server) handleSubmitRun(c *gin.Context) {
	var payload domain.TriggerPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.logger.Warn("invalid request", zap.Error(err))
		abort(c, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
		return
	}

	runID, err := s.orchestrator.Submit(c.Request.Context(), &payload)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	c.Header("Location", "/api/v1/runs/"+runID)
	c.JSON(http.StatusAccepted, RunSubmitResponse{
		RunID:       runID,
		Status:      string(domain.ExecutionStatusPending),
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
		StatusURL:   "/api/v1/runs/" + runID,
		StreamURL:   "/api/v1/runs/" + runID + "/ws",
	})
}

// handleListRuns lists recent runs, newest first
func (s *Server) handleListRuns(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abort(c, http.StatusBadRequest, CodeInvalidRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := s.orchestrator.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, RunListResponse{
		Runs:  runs,
		Total: len(runs),
		Limit: limit,
	})
}

// handleGetRun returns the state of one run
func (s *Server) handleGetRun(c *gin.Context) {
	rec, err := s.orchestrator.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// handleGetResult returns the script of a finished run
func (s *Server) handleGetResult(c *gin.Context) {
	rec, err := s.orchestrator.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, nil)
		return
	}

	switch rec.Status {
	case domain.ExecutionStatusSuccess:
		c.JSON(http.StatusOK, RunResultResponse{
			RunID:       rec.RunID,
			Status:      string(rec.Status),
			Script:      rec.Script,
			CompletedAt: rec.CompletedAt,
		})
	case domain.ExecutionStatusFailed:
		abort(c, http.StatusBadGateway, CodeGenerationFailed, rec.Error, failureOf(rec))
	case domain.ExecutionStatusCancelled:
		abort(c, http.StatusConflict, CodeRunCancelled, "run cancelled", gin.H{"run_id": rec.RunID})
	default:
		abort(c, http.StatusConflict, CodeNotCompleted, "run not yet completed", gin.H{
			"run_id": rec.RunID,
			"status": rec.Status,
		})
	}
}

// handleCancelRun cancels an active run
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.orchestrator.CancelRun(c.Request.Context(), runID); err != nil {
		writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":       runID,
		"status":       "cancelling",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
