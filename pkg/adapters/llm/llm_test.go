package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/podgen/pkg/domain"
)

type stubClient struct {
	resp *domain.LLMResponse
	err  error
}

func (s stubClient) GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	return s.resp, s.err
}

type llmMetrics struct {
	calls  map[string]int
	input  int64
	output int64
}

func (m *llmMetrics) RecordRunSubmitted(string)                        {}
func (m *llmMetrics) RecordRunCompleted(string, time.Duration)         {}
func (m *llmMetrics) RecordStepExecuted(string, string, time.Duration) {}
func (m *llmMetrics) SetActiveRuns(int)                                {}
func (m *llmMetrics) RecordWorkerPoolStatus(int, int, int)             {}
func (m *llmMetrics) RecordLLMCall(model, status string, d time.Duration) {
	m.calls[model+"/"+status]++
}
func (m *llmMetrics) RecordLLMTokens(model string, in, out int64) {
	m.input += in
	m.output += out
}

func TestInstrumented(t *testing.T) {
	metrics := &llmMetrics{calls: map[string]int{}}
	req := &domain.LLMRequest{Model: "m"}

	ok := NewInstrumented(stubClient{resp: &domain.LLMResponse{Content: "x", InputTokens: 3, OutputTokens: 4}}, metrics, zaptest.NewLogger(t))
	resp, err := ok.GenerateCompletion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "x", resp.Content)

	boom := errors.New("boom")
	failing := NewInstrumented(stubClient{err: boom}, metrics, zaptest.NewLogger(t))
	_, err = failing.GenerateCompletion(context.Background(), req)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 1, metrics.calls["m/success"])
	assert.Equal(t, 1, metrics.calls["m/error"])
	assert.Equal(t, int64(3), metrics.input)
	assert.Equal(t, int64(4), metrics.output)
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(&Config{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewClient(&Config{Provider: "openai", APIKey: "k"})
	assert.ErrorContains(t, err, "unsupported LLM provider")
}
