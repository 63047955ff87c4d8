package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/podgen/pkg/domain"
	"github.com/aescanero/podgen/pkg/ports"
)

// Instrumented wraps an LLM client with call metrics and logging
type Instrumented struct {
	next    ports.LLMClient
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// NewInstrumented wraps next
func NewInstrumented(next ports.LLMClient, metrics ports.MetricsCollector, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{next: next, metrics: metrics, logger: logger}
}

// GenerateCompletion calls the wrapped client and records the outcome
func (c *Instrumented) GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	start := time.Now()
	resp, err := c.next.GenerateCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		c.metrics.RecordLLMCall(req.Model, "error", duration)
		c.logger.Warn("LLM call failed",
			zap.String("model", req.Model),
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, err
	}

	c.metrics.RecordLLMCall(req.Model, "success", duration)
	c.metrics.RecordLLMTokens(req.Model, resp.InputTokens, resp.OutputTokens)
	return resp, nil
}
