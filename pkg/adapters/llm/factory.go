package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/podgen/pkg/adapters/llm/anthropic"
	"github.com/aescanero/podgen/pkg/ports"
)

// Config holds LLM client configuration
type Config struct {
	Provider       string
	APIKey         string
	RequestTimeout time.Duration
	BaseURL        string
	Logger         *zap.Logger
}

// NewClient creates a new LLM client based on provider
func NewClient(cfg *Config) (ports.LLMClient, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewClient(anthropic.Options{
			APIKey:         cfg.APIKey,
			RequestTimeout: cfg.RequestTimeout,
			BaseURL:        cfg.BaseURL,
		}, cfg.Logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
