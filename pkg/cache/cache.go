// Package cache opens the offline cache on the configured storage engine
// and moves its contents in and out as JSONL.
package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mesh-intelligence/patchcache/internal/badger"
	"github.com/mesh-intelligence/patchcache/internal/sqlite"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// Store is an attached cache engine.
type Store interface {
	types.CacheStorage

	// Records returns every cached instance in key order.
	Records(ctx context.Context) ([]types.CacheRecord, error)

	// Close detaches the engine.
	Close() error
}

// Open attaches the engine named by cfg.Backend.
func Open(cfg types.Config, models types.TypeModelResolver, logger *slog.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var store interface {
		Store
		Attach(types.Config) error
	}
	switch cfg.Backend {
	case types.BackendSQLite:
		store = sqlite.NewBackend(models, logger)
	case types.BackendBadger:
		store = badger.NewBackend(models, logger)
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrBackendUnknown, cfg.Backend)
	}
	if err := store.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attaching %s cache: %w", cfg.Backend, err)
	}
	logger.Debug("cache attached", "backend", cfg.Backend, "data_dir", cfg.DataDir, "in_memory", cfg.InMemory)
	return store, nil
}
