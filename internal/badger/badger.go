// Package badger implements the BadgerDB storage engine of the offline
// cache. Each instance is one key holding its types.CacheRecord as JSON.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/mesh-intelligence/patchcache/internal/attr"
	"github.com/mesh-intelligence/patchcache/internal/mapper"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// Dir is the database directory inside the data directory.
const Dir = "badger"

const (
	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

var keyPrefix = []byte("i\x00")

// badgerLogger adapts slog to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Backend implements types.CacheStorage on BadgerDB.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	db       *badger.DB
	stopGC   chan struct{}
	gcDone   chan struct{}
	models   types.TypeModelResolver
	mapper   *mapper.Mapper
	logger   *slog.Logger
}

// NewBackend creates a detached backend that encodes instances with the
// models of resolver.
func NewBackend(models types.TypeModelResolver, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		models: models,
		mapper: mapper.New(models),
		logger: logger.With("engine", types.BackendBadger),
	}
}

// Attach opens the database under config.DataDir, or in memory when
// config.InMemory is set.
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

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dataDir := config.DataDir
		if dataDir == "" {
			dataDir = "."
		}
		path := filepath.Join(dataDir, Dir)
		if err := os.MkdirAll(path, 0o750); err != nil {
			return fmt.Errorf("create database directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: b.logger})

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database: %w", err)
	}
	b.db = db
	b.attached = true
	if !config.InMemory {
		b.stopGC = make(chan struct{})
		b.gcDone = make(chan struct{})
		go b.runGC(db, b.stopGC, b.gcDone)
	}
	return nil
}

func (b *Backend) runGC(db *badger.DB, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := db.RunValueLogGC(gcDiscardRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				b.logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

// Detach closes the database. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if b.stopGC != nil {
		close(b.stopGC)
		<-b.gcDone
		b.stopGC, b.gcDone = nil, nil
	}
	err := b.db.Close()
	b.db = nil
	b.attached = false
	return err
}

// Close is Detach.
func (b *Backend) Close() error {
	return b.Detach()
}

func instanceKey(ref types.TypeRef, listID, elementID string) []byte {
	key := append([]byte(nil), keyPrefix...)
	key = append(key, ref.App...)
	key = append(key, 0)
	key = strconv.AppendInt(key, ref.TypeID, 10)
	key = append(key, 0)
	key = append(key, listID...)
	key = append(key, 0)
	return append(key, elementID...)
}

func (b *Backend) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrCacheDetached
	}
	return b.db.View(fn)
}

func (b *Backend) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrCacheDetached
	}
	return b.db.Update(fn)
}

// GetParsed implements types.CacheStorage. An instance stored under
// another version of its type model is treated as a miss.
func (b *Backend) GetParsed(ctx context.Context, ref types.TypeRef, listID, elementID string) (types.ParsedInstance, error) {
	var rec types.CacheRecord
	found := false
	err := b.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(instanceKey(ref, listID, elementID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	model, err := b.models.ResolveServerTypeReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if rec.Version != model.Version {
		b.logger.Debug("stale cache entry", "type", ref.String(), "element", elementID, "stored", rec.Version, "current", model.Version)
		return nil, nil
	}
	return b.mapper.DecodeJSON(ctx, model, rec.Body)
}

// Put implements types.CacheStorage.
func (b *Backend) Put(ctx context.Context, ref types.TypeRef, inst types.ParsedInstance) error {
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
	val, err := json.Marshal(types.CacheRecord{
		App:       ref.App,
		TypeID:    ref.TypeID,
		ListID:    listID,
		ElementID: elementID,
		Version:   model.Version,
		Body:      body,
	})
	if err != nil {
		return err
	}
	return b.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(instanceKey(ref, listID, elementID), val)
	})
}

// Delete implements types.CacheStorage.
func (b *Backend) Delete(ctx context.Context, ref types.TypeRef, listID, elementID string) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(instanceKey(ref, listID, elementID))
	})
}

// Records returns every cached instance in key order.
func (b *Backend) Records(ctx context.Context) ([]types.CacheRecord, error) {
	var records []types.CacheRecord
	err := b.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: keyPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec types.CacheRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}
