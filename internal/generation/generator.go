package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aescanero/podgen/pkg/domain"
	"github.com/aescanero/podgen/pkg/ports"
)

// Prompt is the instruction sent for one generation
type Prompt struct {
	System string
	User   string
}

// Settings are the provider parameters used for every call
type Settings struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Generator turns prompts into validated structured values
type Generator struct {
	client   ports.LLMClient
	settings Settings
	validate *validator.Validate
	logger   *zap.Logger
}

// NewGenerator creates a generator over an LLM client
func NewGenerator(client ports.LLMClient, settings Settings, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:   client,
		settings: settings,
		validate: validator.New(),
		logger:   logger,
	}
}

// Generate asks the provider for a value of the contract's shape. T must be a
// struct type. Cancelling ctx aborts the provider call.
func Generate[T any](ctx context.Context, g *Generator, prompt Prompt, contract Contract[T]) (T, error) {
	var out T

	req := &domain.LLMRequest{
		Model:  g.settings.Model,
		System: prompt.System,
		Messages: []domain.Message{
			{Role: "user", Content: prompt.User + contract.instruction()},
		},
		Temperature: g.settings.Temperature,
		MaxTokens:   g.settings.MaxTokens,
	}

	start := time.Now()
	resp, err := g.client.GenerateCompletion(ctx, req)
	if err != nil {
		return out, &Error{Contract: contract.Name(), Kind: KindProvider, Err: err}
	}

	g.logger.Debug("generation completed",
		zap.String("contract", contract.Name()),
		zap.Duration("duration", time.Since(start)),
		zap.Int64("output_tokens", resp.OutputTokens))

	raw, ok := extractJSON(resp.Content)
	if !ok {
		return out, &Error{
			Contract: contract.Name(),
			Kind:     KindMalformed,
			Err:      errors.New("no JSON document in reply"),
		}
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, &Error{
			Contract: contract.Name(),
			Kind:     KindMalformed,
			Err:      fmt.Errorf("failed to decode reply: %w", err),
		}
	}

	if err := g.validate.Struct(out); err != nil {
		return out, &Error{Contract: contract.Name(), Kind: KindInvalid, Err: err}
	}
	return out, nil
}
