// Package typemodel holds the registry of server type models consumed by
// the patch-merge engine. Models are validated once when registered so that
// per-patch lookups can trust them.
package typemodel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// Registry implements types.TypeModelResolver over an in-memory set of
// models. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[types.TypeRef]*types.TypeModel
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[types.TypeRef]*types.TypeModel)}
}

// Register validates and adds models. A model with the same reference
// replaces the previous one, so newer files can override older versions.
func (r *Registry) Register(models ...*types.TypeModel) error {
	for _, m := range models {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range models {
		r.models[m.Ref()] = m
	}
	return nil
}

// ResolveServerTypeReference returns the model registered for ref.
func (r *Registry) ResolveServerTypeReference(ctx context.Context, ref types.TypeRef) (*types.TypeModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrTypeNotFound, ref)
	}
	return m, nil
}

// Verify checks references between models: every aggregation must point at
// a registered AGGREGATED_TYPE carrying an _id value.
func (r *Registry) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.sortedLocked() {
		for _, id := range m.AttributeIDs() {
			a, ok := m.Associations[id]
			if !ok || !a.IsAggregation() {
				continue
			}
			target, ok := r.models[m.AggregateRef(a)]
			if !ok {
				return fmt.Errorf("%w: %s.%s aggregates unknown type %s", types.ErrInvalidTypeModel, m.Name, a.Name, m.AggregateRef(a))
			}
			if target.Type != types.KindAggregated {
				return fmt.Errorf("%w: %s.%s aggregates %s which is %s", types.ErrInvalidTypeModel, m.Name, a.Name, target.Name, target.Type)
			}
			if _, ok := target.AttributeID("_id"); !ok {
				return fmt.Errorf("%w: aggregate %s has no _id", types.ErrInvalidTypeModel, target.Name)
			}
		}
	}
	return nil
}

// Models returns the registered models ordered by application and type id.
func (r *Registry) Models() []*types.TypeModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

func (r *Registry) sortedLocked() []*types.TypeModel {
	out := make([]*types.TypeModel, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].App != out[j].App {
			return out[i].App < out[j].App
		}
		return out[i].ID < out[j].ID
	})
	return out
}
