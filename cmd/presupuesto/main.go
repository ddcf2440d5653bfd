package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"presupuesto/internal/backend"
	"presupuesto/internal/config"
	apphttp "presupuesto/internal/http"
	applog "presupuesto/internal/log"
	"presupuesto/internal/services"
	"presupuesto/internal/taxonomy"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Choose data backend and optional event publishing.
	factory := backend.NewFactory(logger.Logger)
	result, err := factory.CreateBackend(ctx, backend.ConfigFromAppConfig(cfg, true))
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	}()

	// Taxonomy store with optional object-store fallback.
	var fetcher taxonomy.RemoteFetcher
	if cfg.HasRemoteTaxonomy() {
		f, err := taxonomy.NewS3Fetcher(ctx, cfg.AWSRegion, cfg.TaxonomyBucket, cfg.TaxonomyKey)
		if err != nil {
			logger.Warn("Remote taxonomy fetcher unavailable, using bundled table only", "error", err)
		} else {
			fetcher = f
			logger.Info("Remote taxonomy fallback configured", "bucket", cfg.TaxonomyBucket, "key", cfg.TaxonomyKey)
		}
	}
	store := taxonomy.NewStore(fetcher)
	if err := store.EnsureLoaded(ctx); err != nil {
		logger.Error("Taxonomy load failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Taxonomy loaded", "rubros", store.Len())

	svc := services.NewForecastService(result.Repo, store, result.Publisher)

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		TotalsCacheSize:   cfg.TotalsCacheSize,
		TotalsCacheTTL:    cfg.TotalsCacheTTL,
		RequestsPerMinute: 60,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting presupuesto server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
