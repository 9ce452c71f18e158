package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/autoshop-ai/orchestrator/internal/activities"
	"github.com/autoshop-ai/orchestrator/internal/config"
	"github.com/autoshop-ai/orchestrator/internal/health"
	"github.com/autoshop-ai/orchestrator/internal/httpapi"
	"github.com/autoshop-ai/orchestrator/internal/reasoning"
	"github.com/autoshop-ai/orchestrator/internal/server"
	"github.com/autoshop-ai/orchestrator/internal/store"
	"github.com/autoshop-ai/orchestrator/internal/streaming"
	temporaladapter "github.com/autoshop-ai/orchestrator/internal/temporal"
	"github.com/autoshop-ai/orchestrator/internal/tracing"
	"github.com/autoshop-ai/orchestrator/internal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(ctx)
	}()

	healthHandler := health.NewHandler(logger)

	// Request store.
	var st store.Store
	switch cfg.Store.Driver {
	case "memory":
		st = store.NewMemoryStore()
		logger.Warn("Using in-memory request store; requests will not survive restarts")
	case "postgres", "":
		pg, err := store.NewPostgresStore(cfg.Store.Postgres, logger)
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		defer pg.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = pg.EnsureSchema(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		healthHandler.Register(health.CheckerFunc{
			CheckName: "postgres",
			Fn:        pg.Ping,
		})
		st = pg
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	// Progress event fan-out, optionally mirrored to Redis Streams.
	events := streaming.NewManager(cfg.Streaming.RingCapacity)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			// The mirror is best effort; a dead Redis only costs replay
			// for external consumers.
			logger.Warn("Redis unreachable, event mirror disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			events.AttachRedis(rdb, cfg.Redis.StreamMaxLen, logger)
			healthHandler.Register(health.CheckerFunc{
				CheckName: "redis",
				Fn:        func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			})
			logger.Info("Redis event mirror enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}

	// Prompt templates, hot-reloaded when the file changes.
	prompts := activities.NewPrompts()
	if cfg.Prompts.File != "" {
		if err := prompts.LoadFile(cfg.Prompts.File); err != nil {
			return fmt.Errorf("load prompts: %w", err)
		}
		logger.Info("Loaded prompt templates", zap.String("file", cfg.Prompts.File))
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Prompts.File != "" && cfg.Prompts.Watch {
		go func() {
			if err := prompts.Watch(rootCtx, cfg.Prompts.File, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Prompt watcher stopped", zap.Error(err))
			}
		}()
	}

	reasoningClient := reasoning.NewHTTPClient(cfg.Reasoning, logger)

	tClient, err := dialTemporal(cfg.Temporal, logger)
	if err != nil {
		return err
	}
	defer tClient.Close()
	healthHandler.Register(health.CheckerFunc{
		CheckName: "temporal",
		Fn: func(ctx context.Context) error {
			_, err := tClient.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		},
	})

	wk := worker.New(tClient, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Temporal.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Temporal.MaxConcurrentWorkflows,
	})
	wk.RegisterWorkflow(workflows.ResearchWorkflow)
	wk.RegisterActivity(activities.NewActivities(reasoningClient, st, events, prompts, logger))
	if err := wk.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer wk.Stop()
	logger.Info("Worker started", zap.String("task_queue", cfg.Temporal.TaskQueue))

	starter := server.NewTemporalStarter(tClient, cfg.Temporal.TaskQueue, logger)
	svc := server.NewService(starter, st, logger)

	mux := http.NewServeMux()
	httpapi.NewResearchHandler(svc, logger).RegisterRoutes(mux)
	sh := httpapi.NewStreamingHandler(events, logger)
	sh.RegisterRoutes(mux)
	healthHandler.RegisterRoutes(mux)

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Service.HTTPPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.Info("Metrics server listening", zap.Int("port", cfg.Service.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown", zap.Error(err))
	}
	logger.Info("Orchestrator stopped")
	return nil
}

// dialTemporal retries the initial connection so the orchestrator can come up
// alongside the Temporal server in a fresh environment.
func dialTemporal(cfg config.TemporalConfig, logger *zap.Logger) (client.Client, error) {
	opts := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    temporaladapter.NewZapAdapter(logger),
	}

	var lastErr error
	for attempt := 1; attempt <= 10; attempt++ {
		c, err := client.Dial(opts)
		if err == nil {
			logger.Info("Connected to Temporal",
				zap.String("host_port", cfg.HostPort),
				zap.String("namespace", cfg.Namespace),
			)
			return c, nil
		}
		lastErr = err
		logger.Warn("Temporal connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("connect to Temporal at %s: %w", cfg.HostPort, lastErr)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
