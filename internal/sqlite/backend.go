// Package sqlite implements the SQLite storage engine of the offline cache.
// Instances are stored in their plain wire form as JSON, one row per
// (type, list id, element id).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/patchcache/internal/attr"
	"github.com/mesh-intelligence/patchcache/internal/mapper"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// DBFile is the database file name inside the data directory.
const DBFile = "patchcache.db"

// Backend implements types.CacheStorage on SQLite.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	models   types.TypeModelResolver
	mapper   *mapper.Mapper
	logger   *slog.Logger
}

// NewBackend creates a backend that encodes instances with the models of
// resolver. The backend is not attached; call Attach to open the database.
func NewBackend(models types.TypeModelResolver, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		models: models,
		mapper: mapper.New(models),
		logger: logger.With("engine", types.BackendSQLite),
	}
}

// Attach opens the database in config.DataDir, creating the directory and
// schema if needed.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, DBFile))
	if err != nil {
		return err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	b.db = db
	b.config = config
	b.attached = true
	b.logger.Debug("attached", "data_dir", dataDir)
	return nil
}

// Detach closes the database. After Detach, all operations return
// ErrCacheDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	return nil
}

// Close is Detach.
func (b *Backend) Close() error {
	return b.Detach()
}

// GetParsed implements types.CacheStorage. An instance stored under
// another version of its type model is treated as a miss.
func (b *Backend) GetParsed(ctx context.Context, ref types.TypeRef, listID, elementID string) (types.ParsedInstance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrCacheDetached
	}

	model, err := b.models.ResolveServerTypeReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	var version, body string
	err = b.db.QueryRowContext(ctx, selectInstance, ref.App, ref.TypeID, listID, elementID).Scan(&version, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s %s/%s: %w", ref, listID, elementID, err)
	}
	if version != model.Version {
		b.logger.Debug("stale cache entry", "type", ref.String(), "element", elementID, "stored", version, "current", model.Version)
		return nil, nil
	}
	return b.mapper.DecodeJSON(ctx, model, []byte(body))
}

// Put implements types.CacheStorage.
func (b *Backend) Put(ctx context.Context, ref types.TypeRef, inst types.ParsedInstance) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrCacheDetached
	}

	model, err := b.models.ResolveServerTypeReference(ctx, ref)
	if err != nil {
		return err
	}
	listID, elementID, err := attr.InstanceKey(inst, model)
	if err != nil {
		return err
	}
	body, err := b.mapper.EncodeJSON(ctx, model, inst)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx, upsertInstance,
		ref.App, ref.TypeID, listID, elementID, model.Version, string(body),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing %s %s/%s: %w", ref, listID, elementID, err)
	}
	return nil
}

// Delete implements types.CacheStorage.
func (b *Backend) Delete(ctx context.Context, ref types.TypeRef, listID, elementID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrCacheDetached
	}
	if _, err := b.db.ExecContext(ctx, deleteInstance, ref.App, ref.TypeID, listID, elementID); err != nil {
		return fmt.Errorf("deleting %s %s/%s: %w", ref, listID, elementID, err)
	}
	return nil
}

// Records returns every cached instance in key order.
func (b *Backend) Records(ctx context.Context) ([]types.CacheRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrCacheDetached
	}

	rows, err := b.db.QueryContext(ctx, selectAll)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.CacheRecord
	for rows.Next() {
		var rec types.CacheRecord
		var body string
		if err := rows.Scan(&rec.App, &rec.TypeID, &rec.ListID, &rec.ElementID, &rec.Version, &body); err != nil {
			return nil, err
		}
		rec.Body = []byte(body)
		records = append(records, rec)
	}
	return records, rows.Err()
}
