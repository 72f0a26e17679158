// Package keys resolves per-instance session keys from owner group keys.
//
// A Keyring holds the symmetric keys of the groups the user belongs to,
// one per key version. An instance's _ownerEncSessionKey is its session key
// sealed with the owner group's key of version _ownerKeyVersion.
package keys

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/mesh-intelligence/patchcache/internal/codec"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

type groupKeyID struct {
	group   string
	version int64
}

// GroupKey is the configuration form of a group key.
type GroupKey struct {
	Group   string `mapstructure:"group" yaml:"group"`
	Version int64  `mapstructure:"version" yaml:"version"`
	Key     string `mapstructure:"key" yaml:"key"` // base64
}

// Keyring implements types.SessionKeyResolver. It is safe for concurrent
// use.
type Keyring struct {
	mu   sync.RWMutex
	keys map[groupKeyID][]byte
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[groupKeyID][]byte)}
}

// FromConfig builds a keyring from configured group keys.
func FromConfig(groupKeys []GroupKey) (*Keyring, error) {
	k := NewKeyring()
	for _, gk := range groupKeys {
		raw, err := base64.StdEncoding.DecodeString(gk.Key)
		if err != nil {
			return nil, fmt.Errorf("group key %s v%d: %w", gk.Group, gk.Version, err)
		}
		if err := k.AddGroupKey(gk.Group, gk.Version, raw); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// AddGroupKey registers the key of group at version.
func (k *Keyring) AddGroupKey(group string, version int64, key []byte) error {
	switch len(key) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: group key %s v%d has length %d", types.ErrInvalidValue, group, version, len(key))
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[groupKeyID{group, version}] = append([]byte(nil), key...)
	return nil
}

// DecryptSessionKey unwraps key with the owner group's key.
func (k *Keyring) DecryptSessionKey(ctx context.Context, ownerGroup string, key types.VersionedEncryptedKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	groupKey, err := k.groupKey(ownerGroup, key.EncryptingKeyVersion)
	if err != nil {
		return nil, err
	}
	sk, err := codec.Open(groupKey, key.Key)
	if err != nil {
		return nil, fmt.Errorf("unwrapping session key for group %s: %w", ownerGroup, err)
	}
	return sk, nil
}

// EncryptSessionKey seals a session key with the group key of version.
func (k *Keyring) EncryptSessionKey(ownerGroup string, version int64, sessionKey []byte) (types.VersionedEncryptedKey, error) {
	groupKey, err := k.groupKey(ownerGroup, version)
	if err != nil {
		return types.VersionedEncryptedKey{}, err
	}
	sealed, err := codec.Seal(groupKey, sessionKey)
	if err != nil {
		return types.VersionedEncryptedKey{}, err
	}
	return types.VersionedEncryptedKey{EncryptingKeyVersion: version, Key: sealed}, nil
}

func (k *Keyring) groupKey(group string, version int64) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[groupKeyID{group, version}]
	if !ok {
		return nil, fmt.Errorf("%w: group %s version %d", types.ErrKeyUnavailable, group, version)
	}
	return key, nil
}
