package updates

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/patchcache/internal/metrics"
	"github.com/mesh-intelligence/patchcache/internal/patch"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// Outcome is what happened to the cache for one update.
type Outcome string

// Update outcomes.
const (
	OutcomeCreated Outcome = "created"
	OutcomePatched Outcome = "patched"
	OutcomeEvicted Outcome = "evicted"
	OutcomeDeleted Outcome = "deleted"
	OutcomeMissed  Outcome = "missed"
)

// Result reports the outcome of every update of a batch, in batch order.
type Result struct {
	BatchID  string    `json:"batch"`
	Outcomes []Outcome `json:"outcomes"`

	// Refetch lists the keys that were evicted because their patches could
	// not be applied. Their instances must be loaded from the server again.
	Refetch []Key `json:"refetch,omitempty"`
}

// Config tunes a Processor.
type Config struct {
	// Concurrency bounds how many cache keys are worked on at once. Zero
	// means types.DefaultConcurrency.
	Concurrency int

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Processor applies update batches to a cache. Updates of one key are
// applied in batch order; distinct keys run concurrently. A Processor may
// be shared by concurrent batches.
type Processor struct {
	storage types.CacheStorage
	merger  *patch.Merger
	limit   int
	logger  *slog.Logger
	metrics *metrics.Metrics
	locks   keyedMutex
}

// NewProcessor returns a Processor writing to storage through merger.
func NewProcessor(storage types.CacheStorage, merger *patch.Merger, cfg Config) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = types.DefaultConcurrency
	}
	return &Processor{
		storage: storage,
		merger:  merger,
		limit:   limit,
		logger:  logger,
		metrics: cfg.Metrics,
		locks:   keyedMutex{locks: make(map[Key]*keyLock)},
	}
}

// Process applies batch. A patch that cannot be applied evicts the instance
// and records its key for refetch; any other failure stops the batch and is
// returned.
func (p *Processor) Process(ctx context.Context, batch []EntityUpdate) (Result, error) {
	res := Result{BatchID: uuid.NewString(), Outcomes: make([]Outcome, len(batch))}
	log := p.logger.With("batch", res.BatchID)

	order := make([]Key, 0)
	groups := make(map[Key][]int)
	for i, u := range batch {
		if err := u.Validate(); err != nil {
			return res, err
		}
		k := u.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for _, k := range order {
		k := k
		g.Go(func() error {
			unlock := p.locks.lock(k)
			defer unlock()
			for _, i := range groups[k] {
				outcome, err := p.apply(gctx, batch[i])
				if err != nil {
					return fmt.Errorf("%s %s: %w", batch[i].Operation, k, err)
				}
				mu.Lock()
				res.Outcomes[i] = outcome
				if outcome == OutcomeEvicted {
					res.Refetch = append(res.Refetch, k)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("update batch failed", "updates", len(batch), "error", err)
		return res, err
	}
	log.Debug("update batch applied", "updates", len(batch), "keys", len(order), "refetch", len(res.Refetch))
	return res, nil
}

func (p *Processor) apply(ctx context.Context, u EntityUpdate) (Outcome, error) {
	switch u.Operation {
	case OperationCreate:
		if err := p.storage.Put(ctx, u.TypeRef, u.Instance); err != nil {
			return "", err
		}
		return OutcomeCreated, nil
	case OperationDelete:
		if err := p.storage.Delete(ctx, u.TypeRef, u.InstanceListID, u.InstanceID); err != nil {
			return "", err
		}
		return OutcomeDeleted, nil
	}

	if u.Patches == nil {
		return p.evict(ctx, u, "update without patches")
	}
	inst, err := p.merger.GetPatchedInstanceParsed(ctx, u.TypeRef, u.InstanceListID, u.InstanceID, u.Patches)
	if types.IsPatchOperationError(err) {
		p.logger.Warn("evicting unpatchable instance", "key", u.Key().String(), "error", err)
		return p.evict(ctx, u, "patch failed")
	}
	if err != nil {
		return "", err
	}
	if inst == nil {
		return OutcomeMissed, nil
	}
	if err := p.storage.Put(ctx, u.TypeRef, inst); err != nil {
		return "", err
	}
	return OutcomePatched, nil
}

func (p *Processor) evict(ctx context.Context, u EntityUpdate, reason string) (Outcome, error) {
	if err := p.storage.Delete(ctx, u.TypeRef, u.InstanceListID, u.InstanceID); err != nil {
		return "", err
	}
	p.metrics.Evicted()
	p.logger.Debug("instance evicted", "key", u.Key().String(), "reason", reason)
	return OutcomeEvicted, nil
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex serialises work per Key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[Key]*keyLock
}

func (m *keyedMutex) lock(k Key) (unlock func()) {
	m.mu.Lock()
	l, ok := m.locks[k]
	if !ok {
		l = &keyLock{}
		m.locks[k] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, k)
		}
		m.mu.Unlock()
	}
}
