package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/s2"

	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// Seal encrypts plaintext with AES-GCM. The nonce is prepended to the
// ciphertext. key must be 16, 24 or 32 bytes.
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func Open(key, data []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", types.ErrDecryption)
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecryption, err)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: creating AES cipher: %v", types.ErrDecryption, err)
	}
	return cipher.NewGCM(block)
}

// DecryptValue decrypts a base64 ciphertext and decodes it as v's kind.
// A nil ciphertext stays nil; an empty one yields the kind's default value.
func DecryptValue(v types.ModelValue, ciphertext any, key []byte) (any, error) {
	if ciphertext == nil {
		return nil, nil
	}
	s, ok := ciphertext.(string)
	if !ok {
		return nil, fmt.Errorf("%w: encrypted %s must be a base64 string, got %T", types.ErrInvalidValue, v.Name, ciphertext)
	}
	if s == "" {
		return DefaultValue(v.Type)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: no key to decrypt %s", types.ErrSessionKeyAbsent, v.Name)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not base64: %v", types.ErrInvalidValue, v.Name, err)
	}
	plain, err := Open(key, raw)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", v.Name, err)
	}
	switch v.Type {
	case types.ValueBytes:
		return plain, nil
	case types.ValueCompressedString:
		if len(plain) == 0 {
			return "", nil
		}
		return decompress(plain)
	default:
		return parseWireString(v.Type, string(plain))
	}
}

// EncryptValue encodes a native value as v's kind and encrypts it, returning
// the base64 ciphertext. nil stays nil.
func EncryptValue(v types.ModelValue, native any, key []byte) (any, error) {
	if native == nil {
		return nil, nil
	}
	var plain []byte
	switch v.Type {
	case types.ValueBytes:
		b, ok := native.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: %s cannot hold %T", types.ErrTypeMismatch, v.Type, native)
		}
		plain = b
	case types.ValueCompressedString:
		s, ok := native.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s cannot hold %T", types.ErrTypeMismatch, v.Type, native)
		}
		plain = s2.Encode(nil, []byte(s))
	default:
		s, err := formatWireString(v.Type, native)
		if err != nil {
			return nil, err
		}
		plain = []byte(s)
	}
	sealed, err := Seal(key, plain)
	if err != nil {
		return nil, fmt.Errorf("encrypting %s: %w", v.Name, err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}
