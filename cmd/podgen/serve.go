package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aescanero/podgen/internal/application/orchestrator"
	"github.com/aescanero/podgen/internal/application/workers"
	"github.com/aescanero/podgen/internal/config"
	promcollector "github.com/aescanero/podgen/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/podgen/pkg/api/grpc"
	"github.com/aescanero/podgen/pkg/api/http"
	"github.com/aescanero/podgen/pkg/api/websocket"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and gRPC servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
}

// serve runs the service until ctx is cancelled, then shuts down gracefully
func serve(ctx context.Context, cfg *config.Config) error {
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting podgen",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		var err error
		redisClient, err = newRedisClient(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("Redis close error", zap.Error(err))
			}
		}()
	}

	eventBus, err := newEventBus(cfg, redisClient, logger)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	defer func() { _ = eventBus.Close() }()

	archive := newRunArchive(cfg, redisClient, logger)
	metricsCollector := promcollector.NewCollector(prometheus.DefaultRegisterer)

	builder, err := newScriptBuilder(cfg, metricsCollector, logger)
	if err != nil {
		return err
	}

	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)
	if err := workerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	orchestratorMgr := orchestrator.NewManager(
		builder,
		workerPool,
		eventBus,
		archive,
		metricsCollector,
		orchestrator.NewValidator(),
		logger,
		cfg.Timeouts.RunExecutionTimeout,
		cfg.Timeouts.StepExecutionTimeout,
	)

	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: orchestratorMgr,
		Health:       workerPool.Health(),
		Logger:       logger,
	})
	httpServer.SetupWebSocket(websocket.NewHandler(eventBus, orchestratorMgr, logger))

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := grpcServer.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info("podgen started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize),
		zap.String("archive_backend", cfg.ArchiveBackend),
		zap.String("events_backend", cfg.EventsBackend))

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case serveErr = <-errCh:
		logger.Error("server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	grpcServer.SetNotServing()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := orchestratorMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	logger.Info("podgen shut down complete")
	return serveErr
}
