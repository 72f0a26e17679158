// Package patch merges server patches into cached instances.
//
// A patch names an attribute by a slash-delimited path of attribute ids,
// where every aggregation hop is followed by the _id of the aggregate to
// descend into. Patches of one update are applied strictly in order to the
// cached instance; any failure aborts the merge and nothing is written.
package patch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/patchcache/internal/mapper"
	"github.com/mesh-intelligence/patchcache/internal/metrics"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

var tracer = otel.Tracer("patchcache.patch")

// Config tunes a Merger.
type Config struct {
	// NetworkDebugging accepts "id:name" path segments and payload keys.
	NetworkDebugging bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Merger loads cached instances, applies patches to them and writes them
// back. It holds no per-instance state; callers must serialise merges of
// the same cache key.
type Merger struct {
	storage  types.CacheStorage
	resolver types.TypeModelResolver
	pipeline Pipeline
	applier  *Applier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewMerger returns a Merger.
func NewMerger(storage types.CacheStorage, resolver types.TypeModelResolver, keys types.SessionKeyResolver, pipeline Pipeline, cfg Config) *Merger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		storage:  storage,
		resolver: resolver,
		pipeline: pipeline,
		applier:  NewApplier(resolver, keys, pipeline, cfg.NetworkDebugging),
		logger:   logger,
		metrics:  cfg.Metrics,
	}
}

// GetPatchedInstanceParsed loads the cached instance and applies patches to
// it in order. It returns nil without error when nothing is cached.
func (m *Merger) GetPatchedInstanceParsed(ctx context.Context, ref types.TypeRef, listID, elementID string, patches []types.Patch) (types.ParsedInstance, error) {
	defer m.metrics.ObserveMerge(time.Now())
	ctx, span := tracer.Start(ctx, "patch.Merge", trace.WithAttributes(
		attribute.String("patchcache.type", ref.String()),
		attribute.String("patchcache.list_id", listID),
		attribute.String("patchcache.element_id", elementID),
		attribute.Int("patchcache.patches", len(patches)),
	))
	defer span.End()

	inst, err := m.storage.GetParsed(ctx, ref, listID, elementID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, fmt.Errorf("loading %s %s/%s: %w", ref, listID, elementID, err)
	}
	if inst == nil {
		m.metrics.CacheMiss()
		span.SetAttributes(attribute.Bool("patchcache.cache_miss", true))
		m.logger.Debug("instance not cached, skipping patches", "type", ref.String(), "list", listID, "element", elementID)
		return nil, nil
	}
	model, err := m.resolver.ResolveServerTypeReference(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "type model")
		return nil, err
	}
	if err := m.ApplyPatches(ctx, inst, model, patches); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "patch failed")
		return nil, err
	}
	return inst, nil
}

// ApplyPatches applies patches to inst in place, stopping at the first
// failure. A failed inst must be discarded.
func (m *Merger) ApplyPatches(ctx context.Context, inst types.ParsedInstance, model *types.TypeModel, patches []types.Patch) error {
	log := m.logger.With("merge", uuid.NewString(), "type", model.Ref().String())
	s := m.applier.session(inst, model)
	for i, p := range patches {
		if err := s.apply(ctx, p); err != nil {
			m.metrics.PatchFailed(err)
			log.Warn("patch failed",
				"index", i,
				"operation", string(p.PatchOperation),
				"path", p.AttributePath,
				"error", err)
			return err
		}
		m.metrics.PatchApplied(p.PatchOperation)
	}
	log.Debug("patches applied", "count", len(patches))
	return nil
}

// GetPatchedInstance is GetPatchedInstanceParsed followed by a mapping to
// the name-keyed entity form.
func (m *Merger) GetPatchedInstance(ctx context.Context, ref types.TypeRef, listID, elementID string, patches []types.Patch) (types.Entity, error) {
	inst, err := m.GetPatchedInstanceParsed(ctx, ref, listID, elementID, patches)
	if err != nil || inst == nil {
		return nil, err
	}
	model, err := m.resolver.ResolveServerTypeReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	return m.pipeline.MapToEntity(ctx, model, inst)
}

// GetPatchedInstanceAs decodes the patched entity into T, whose fields are
// tagged with attribute names.
func GetPatchedInstanceAs[T any](ctx context.Context, m *Merger, ref types.TypeRef, listID, elementID string, patches []types.Patch) (*T, error) {
	entity, err := m.GetPatchedInstance(ctx, ref, listID, elementID, patches)
	if err != nil || entity == nil {
		return nil, err
	}
	return mapper.DecodeEntity[T](entity)
}

// StorePatchedInstance patches the cached instance and writes it back. A
// cache miss is a no-op.
func (m *Merger) StorePatchedInstance(ctx context.Context, ref types.TypeRef, listID, elementID string, patches []types.Patch) error {
	inst, err := m.GetPatchedInstanceParsed(ctx, ref, listID, elementID, patches)
	if err != nil || inst == nil {
		return err
	}
	if err := m.storage.Put(ctx, ref, inst); err != nil {
		return fmt.Errorf("storing %s %s/%s: %w", ref, listID, elementID, err)
	}
	return nil
}
