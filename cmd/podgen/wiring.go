package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/podgen/internal/application/scriptgen"
	"github.com/aescanero/podgen/internal/config"
	"github.com/aescanero/podgen/internal/generation"
	eventsmemory "github.com/aescanero/podgen/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/podgen/pkg/adapters/events/redis"
	"github.com/aescanero/podgen/pkg/adapters/llm"
	storagememory "github.com/aescanero/podgen/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/podgen/pkg/adapters/storage/redis"
	"github.com/aescanero/podgen/pkg/domain"
	"github.com/aescanero/podgen/pkg/ports"
)

// eventStreamMaxLen caps each redis event stream
const eventStreamMaxLen = 10000

// newRedisClient connects to Redis and checks the connection
func newRedisClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Addr))

	return client, nil
}

// newEventBus returns the configured event bus. redisClient may be nil when
// no backend uses Redis.
func newEventBus(cfg *config.Config, redisClient *goredis.Client, logger *zap.Logger) (ports.EventBus, error) {
	if cfg.EventsBackend == config.BackendRedis {
		return eventsredis.NewStreamsEventBus(redisClient, eventStreamMaxLen, logger)
	}
	return eventsmemory.NewInMemoryEventBus(), nil
}

// newRunArchive returns the configured run archive
func newRunArchive(cfg *config.Config, redisClient *goredis.Client, logger *zap.Logger) ports.RunArchive {
	if cfg.ArchiveBackend == config.BackendRedis {
		return storageredis.NewRunArchive(redisClient, cfg.ArchiveTTL, logger)
	}
	return storagememory.NewInMemoryRunArchive(cfg.ArchiveTTL)
}

// newScriptBuilder wires the LLM client, the generator and the graph builder
func newScriptBuilder(cfg *config.Config, metrics ports.MetricsCollector, logger *zap.Logger) (*scriptgen.Builder, error) {
	client, err := llm.NewClient(&llm.Config{
		Provider:       cfg.LLM.Provider,
		APIKey:         cfg.LLM.APIKey,
		RequestTimeout: cfg.LLM.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	temperature := cfg.LLM.Temperature
	generator := generation.NewGenerator(
		llm.NewInstrumented(client, metrics, logger),
		generation.Settings{
			Model:       cfg.LLM.Model,
			Temperature: &temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		},
		logger,
	)

	return scriptgen.NewBuilder(generator, domain.LengthBounds{
		MinChars: cfg.Script.MinChars,
		MaxChars: cfg.Script.MaxChars,
	}, logger)
}
