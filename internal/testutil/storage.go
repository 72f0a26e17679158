package testutil

import (
	"context"
	"sync"

	"github.com/mesh-intelligence/patchcache/internal/attr"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// MemoryStorage is an in-memory types.CacheStorage that copies instances on
// the way in and out, and counts writes.
type MemoryStorage struct {
	mu      sync.Mutex
	models  types.TypeModelResolver
	items   map[string]types.ParsedInstance
	puts    int
	deletes int

	// PutErr, when set, is returned by Put.
	PutErr error
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage(models types.TypeModelResolver) *MemoryStorage {
	return &MemoryStorage{models: models, items: make(map[string]types.ParsedInstance)}
}

func storageKey(ref types.TypeRef, listID, elementID string) string {
	return ref.String() + "/" + listID + "/" + elementID
}

// GetParsed implements types.CacheStorage.
func (s *MemoryStorage) GetParsed(_ context.Context, ref types.TypeRef, listID, elementID string) (types.ParsedInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[storageKey(ref, listID, elementID)].Clone(), nil
}

// Put implements types.CacheStorage.
func (s *MemoryStorage) Put(ctx context.Context, ref types.TypeRef, inst types.ParsedInstance) error {
	model, err := s.models.ResolveServerTypeReference(ctx, ref)
	if err != nil {
		return err
	}
	listID, elementID, err := attr.InstanceKey(inst, model)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	s.items[storageKey(ref, listID, elementID)] = inst.Clone()
	s.puts++
	return nil
}

// Delete implements types.CacheStorage.
func (s *MemoryStorage) Delete(_ context.Context, ref types.TypeRef, listID, elementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, storageKey(ref, listID, elementID))
	s.deletes++
	return nil
}

// Seed stores inst without counting the write.
func (s *MemoryStorage) Seed(ctx context.Context, ref types.TypeRef, inst types.ParsedInstance) error {
	if err := s.Put(ctx, ref, inst); err != nil {
		return err
	}
	s.mu.Lock()
	s.puts--
	s.mu.Unlock()
	return nil
}

// Puts returns the number of writes since creation, excluding seeds.
func (s *MemoryStorage) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// Deletes returns the number of Delete calls.
func (s *MemoryStorage) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

// Len returns the number of stored instances.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
