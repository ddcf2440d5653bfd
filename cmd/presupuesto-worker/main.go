package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"presupuesto/internal/amqp"
	"presupuesto/internal/backend"
	"presupuesto/internal/config"
	applog "presupuesto/internal/log"
	"presupuesto/internal/services"
	"presupuesto/internal/taxonomy"
	"presupuesto/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker)
	applog.SetDefault(logger)

	logger.Info("Starting presupuesto-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if !cfg.HasAMQP() {
		logger.Error("AMQP_URL is required for the totals worker")
		os.Exit(1)
	}

	// The worker shares the storage backend with the server. A memory
	// backend in a separate process sees no rows; warn loudly.
	if cfg.DataBackend != "sqlite" {
		logger.Warn("Memory backend in worker process: snapshots will be computed over an empty store")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	factory := backend.NewFactory(logger.Logger)
	result, err := factory.CreateBackend(ctx, backend.ConfigFromAppConfig(cfg, false))
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
	}()

	svc := services.NewForecastService(result.Repo, taxonomy.NewStore(nil), nil)

	amqpClient, err := amqp.DialWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.WorkerDialAttempts)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	totalsWorker := worker.NewTotalsWorker(svc)

	go func() {
		if err := totalsWorker.Run(ctx, amqpClient); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give the in-flight delivery a moment to finish
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
