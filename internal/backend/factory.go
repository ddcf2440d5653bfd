package backend

import (
	"context"
	"fmt"
	"log/slog"

	"presupuesto/internal/amqp"
	"presupuesto/internal/config"
	"presupuesto/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*Result, error) {
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.Type)
	}

	switch cfg.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(cfg)
	case MemoryBackend:
		return f.createMemoryBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(cfg Config) (*Result, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	result := &Result{
		Repo:    sqliteRepo,
		Cleanup: sqliteRepo.Close,
	}
	f.attachPublisher(cfg, result)

	f.logger.Info("Initialized SQLite backend",
		"db_path", cfg.SQLiteDBPath,
		"amqp_enabled", result.Publisher != nil)

	return result, nil
}

func (f *DefaultFactory) createMemoryBackend(cfg Config) (*Result, error) {
	repo := storage.NewMemoryRepository()

	result := &Result{
		Repo:    repo,
		Cleanup: repo.Close,
	}
	f.attachPublisher(cfg, result)

	f.logger.Info("Initialized memory backend", "amqp_enabled", result.Publisher != nil)

	return result, nil
}

// attachPublisher wires an optional AMQP publisher. Failure to connect is
// not fatal: writes stay durable, snapshots just refresh lazily.
func (f *DefaultFactory) attachPublisher(cfg Config, result *Result) {
	if cfg.AMQPURL == "" {
		return
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
		return
	}

	f.logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	result.Publisher = amqpClient

	repoCleanup := result.Cleanup
	result.Cleanup = func() error {
		closeErr := amqpClient.Close()
		if repoCleanup != nil {
			if err := repoCleanup(); err != nil {
				return err
			}
		}
		return closeErr
	}
}

// ConfigFromAppConfig converts application config to backend config.
// withPublisher controls whether the AMQP publisher is wired; the worker
// consumes from the queue instead and must not publish to itself.
func ConfigFromAppConfig(appCfg *config.Config, withPublisher bool) Config {
	cfg := Config{
		Type:         BackendType(appCfg.DataBackend),
		SQLiteDBPath: appCfg.SQLiteDBPath,
	}
	if withPublisher {
		cfg.AMQPURL = appCfg.AMQPURL
		cfg.AMQPExchange = appCfg.AMQPExchange
		cfg.AMQPQueue = appCfg.AMQPQueue
	}
	return cfg
}
