package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Backend names
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all configuration for the podgen service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"PODGEN_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"PODGEN_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Backends
	ArchiveBackend string        `env:"PODGEN_ARCHIVE_BACKEND" envDefault:"memory"`
	EventsBackend  string        `env:"PODGEN_EVENTS_BACKEND" envDefault:"memory"`
	ArchiveTTL     time.Duration `env:"PODGEN_ARCHIVE_TTL" envDefault:"24h"`

	Redis    RedisConfig
	LLM      LLMConfig
	Workers  WorkerConfig
	Timeouts TimeoutConfig
	Script   ScriptConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// LLMConfig holds Generation Port provider configuration
type LLMConfig struct {
	Provider       string        `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey         string        `env:"LLM_API_KEY"`
	RequestTimeout time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`

	Model       string  `env:"LLM_MODEL" envDefault:"claude-sonnet-4-5-20250929"`
	Temperature float64 `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	MaxTokens   int     `env:"LLM_MAX_TOKENS" envDefault:"8192"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"8"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	RunExecutionTimeout  time.Duration `env:"TIMEOUT_RUN_EXECUTION" envDefault:"900s"`
	StepExecutionTimeout time.Duration `env:"TIMEOUT_STEP_EXECUTION" envDefault:"300s"`
	ShutdownTimeout      time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// ScriptConfig holds the default script length bounds
type ScriptConfig struct {
	MinChars int `env:"SCRIPT_MIN_CHARS" envDefault:"3000"`
	MaxChars int `env:"SCRIPT_MAX_CHARS" envDefault:"6000"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	for name, backend := range map[string]string{"archive": c.ArchiveBackend, "events": c.EventsBackend} {
		if backend != BackendMemory && backend != BackendRedis {
			return fmt.Errorf("unsupported %s backend: %s (must be memory or redis)", name, backend)
		}
	}
	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.ArchiveTTL <= 0 {
		return fmt.Errorf("archive TTL must be positive")
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key is required")
	}
	if c.LLM.Provider != "anthropic" {
		return fmt.Errorf("unsupported LLM provider: %s (only 'anthropic' is supported)", c.LLM.Provider)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("LLM max tokens must be at least 1")
	}

	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}

	if c.Script.MinChars < 0 || c.Script.MaxChars < 0 {
		return fmt.Errorf("script length bounds must not be negative")
	}
	if c.Script.MaxChars > 0 && c.Script.MinChars > c.Script.MaxChars {
		return fmt.Errorf("script min chars %d exceeds max chars %d", c.Script.MinChars, c.Script.MaxChars)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// UsesRedis reports whether any backend needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.ArchiveBackend == BackendRedis || c.EventsBackend == BackendRedis
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
