package types

import (
	"context"
	"encoding/json"
)

// TypeModelResolver resolves server type models.
type TypeModelResolver interface {
	// ResolveServerTypeReference returns the model for ref.
	// Returns ErrTypeNotFound if the application or type is unknown.
	ResolveServerTypeReference(ctx context.Context, ref TypeRef) (*TypeModel, error)
}

// CacheStorage is the offline cache of parsed instances.
type CacheStorage interface {
	// GetParsed returns the cached instance, or nil with a nil error when
	// nothing is cached under the key. listID is empty for element types.
	GetParsed(ctx context.Context, ref TypeRef, listID, elementID string) (ParsedInstance, error)

	// Put stores an instance under the key derived from its _id.
	Put(ctx context.Context, ref TypeRef, instance ParsedInstance) error

	// Delete removes a cached instance. Deleting a missing key succeeds.
	Delete(ctx context.Context, ref TypeRef, listID, elementID string) error
}

// SessionKeyResolver unwraps per-instance session keys.
type SessionKeyResolver interface {
	// DecryptSessionKey returns the plaintext session key encrypted with the
	// owner group's key. Returns ErrKeyUnavailable if the group key is not
	// known and ErrDecryption if unwrapping fails.
	DecryptSessionKey(ctx context.Context, ownerGroup string, key VersionedEncryptedKey) ([]byte, error)
}

// CacheRecord is the export form of one cached instance. Body holds the
// instance in its plain wire form, encoded for the model version Version.
type CacheRecord struct {
	App       string          `json:"app"`
	TypeID    int64           `json:"typeId"`
	ListID    string          `json:"listId,omitempty"`
	ElementID string          `json:"elementId"`
	Version   string          `json:"version"`
	Body      json.RawMessage `json:"body"`
}

// Ref returns the record's type reference.
func (r CacheRecord) Ref() TypeRef {
	return TypeRef{App: r.App, TypeID: r.TypeID}
}
