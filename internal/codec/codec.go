// Package codec converts attribute values between their wire form and
// native Go values, and encrypts or decrypts single values with a
// symmetric key.
//
// Wire forms:
//
//	String, CustomId, GeneratedId  string (ids of list elements are [list, element])
//	Number                         decimal string
//	Bytes                          base64
//	Date                           milliseconds since the epoch as a decimal string
//	Boolean                        "0" or "1"
//	CompressedString               base64 of an s2 block
//
// Absent values are nil in both forms.
package codec

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/klauspost/compress/s2"

	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// ConvertWireToNative converts a wire value of kind vt to its native form.
func ConvertWireToNative(vt types.ValueType, wire any) (any, error) {
	if wire == nil {
		return nil, nil
	}
	if vt == types.ValueGeneratedID || vt == types.ValueCustomID {
		return types.NormalizeID(wire)
	}
	s, ok := wire.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s wire value must be a string, got %T", types.ErrInvalidValue, vt, wire)
	}
	return parseWireString(vt, s)
}

func parseWireString(vt types.ValueType, s string) (any, error) {
	switch vt {
	case types.ValueString, types.ValueGeneratedID, types.ValueCustomID:
		return s, nil
	case types.ValueNumber:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: number %q", types.ErrInvalidValue, s)
		}
		return n, nil
	case types.ValueBytes:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: bytes: %v", types.ErrInvalidValue, err)
		}
		return b, nil
	case types.ValueDate:
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: date %q", types.ErrInvalidValue, s)
		}
		return time.UnixMilli(ms).UTC(), nil
	case types.ValueBoolean:
		switch s {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
		return nil, fmt.Errorf("%w: boolean %q", types.ErrInvalidValue, s)
	case types.ValueCompressedString:
		if s == "" {
			return "", nil
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: compressed string: %v", types.ErrInvalidValue, err)
		}
		return decompress(raw)
	default:
		return nil, fmt.Errorf("%w: unknown value type %q", types.ErrInvalidValue, vt)
	}
}

// ConvertNativeToWire converts a native value of kind vt to its wire form.
func ConvertNativeToWire(vt types.ValueType, native any) (any, error) {
	if native == nil {
		return nil, nil
	}
	if t, ok := native.(types.IdTuple); ok && (vt == types.ValueGeneratedID || vt == types.ValueCustomID) {
		return []any{t.ListID, t.ElementID}, nil
	}
	return formatWireString(vt, native)
}

func formatWireString(vt types.ValueType, native any) (string, error) {
	mismatch := func() (string, error) {
		return "", fmt.Errorf("%w: %s cannot hold %T", types.ErrTypeMismatch, vt, native)
	}
	switch vt {
	case types.ValueString, types.ValueGeneratedID, types.ValueCustomID:
		s, ok := native.(string)
		if !ok {
			return mismatch()
		}
		return s, nil
	case types.ValueNumber:
		switch n := native.(type) {
		case int64:
			return strconv.FormatInt(n, 10), nil
		case int:
			return strconv.Itoa(n), nil
		}
		return mismatch()
	case types.ValueBytes:
		b, ok := native.([]byte)
		if !ok {
			return mismatch()
		}
		return base64.StdEncoding.EncodeToString(b), nil
	case types.ValueDate:
		d, ok := native.(time.Time)
		if !ok {
			return mismatch()
		}
		return strconv.FormatInt(d.UnixMilli(), 10), nil
	case types.ValueBoolean:
		b, ok := native.(bool)
		if !ok {
			return mismatch()
		}
		if b {
			return "1", nil
		}
		return "0", nil
	case types.ValueCompressedString:
		s, ok := native.(string)
		if !ok {
			return mismatch()
		}
		if s == "" {
			return "", nil
		}
		return base64.StdEncoding.EncodeToString(s2.Encode(nil, []byte(s))), nil
	default:
		return "", fmt.Errorf("%w: unknown value type %q", types.ErrInvalidValue, vt)
	}
}

// DefaultValue returns the value an encrypted attribute takes when the
// server sends an empty ciphertext.
func DefaultValue(vt types.ValueType) (any, error) {
	switch vt {
	case types.ValueString, types.ValueCompressedString, types.ValueGeneratedID, types.ValueCustomID:
		return "", nil
	case types.ValueNumber:
		return int64(0), nil
	case types.ValueBytes:
		return []byte{}, nil
	case types.ValueDate:
		return time.UnixMilli(0).UTC(), nil
	case types.ValueBoolean:
		return false, nil
	default:
		return nil, fmt.Errorf("%w: unknown value type %q", types.ErrInvalidValue, vt)
	}
}

func decompress(raw []byte) (string, error) {
	out, err := s2.Decode(nil, raw)
	if err != nil {
		return "", fmt.Errorf("%w: decompress: %v", types.ErrInvalidValue, err)
	}
	return string(out), nil
}
