// Package backend builds the store and event client a binary runs on.
package backend

import (
	"context"
	"errors"
	"fmt"

	"kakeibo/internal/amqp"
	"kakeibo/internal/log"
	"kakeibo/internal/ports"
	"kakeibo/internal/seed"
	"kakeibo/internal/storage"
	"kakeibo/internal/storage/memory"
)

var (
	_ ports.Store = (*storage.SQLiteRepository)(nil)
	_ ports.Store = (*memory.Store)(nil)
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend opens the store, loads the catalog into it when it has never
// been seeded, and connects to AMQP when configured. An unreachable broker is
// logged and the backend runs without events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var store ports.Store
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store = repo
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		store = memory.New()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if err := EnsureSeeded(ctx, store, config.SeedFile, f.logger); err != nil {
		store.Close()
		return nil, err
	}

	var events *amqp.Client
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			events = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	return &BackendResult{
		Store:  store,
		Events: events,
		Cleanup: func() error {
			var errs []error
			if events != nil {
				errs = append(errs, events.Close())
			}
			errs = append(errs, store.Close())
			return errors.Join(errs...)
		},
	}, nil
}

// EnsureSeeded loads the catalog at path (or the embedded default) when the
// store has never been seeded. A seeded store is left alone.
func EnsureSeeded(ctx context.Context, store ports.Seeder, path string, logger *log.Logger) error {
	seeded, err := store.Seeded(ctx)
	if err != nil {
		return fmt.Errorf("check seed state: %w", err)
	}
	if seeded {
		logger.DebugContext(ctx, "Store already seeded")
		return nil
	}

	catalog, err := seed.Load(path)
	if err != nil {
		return fmt.Errorf("load seed catalog: %w", err)
	}
	if err := store.Seed(ctx, catalog); err != nil {
		return fmt.Errorf("seed store: %w", err)
	}
	logger.InfoContext(ctx, "Seeded store", "seed_file", path)
	return nil
}
