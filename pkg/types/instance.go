package types

import "fmt"

// ParsedInstance is a decrypted, natively typed instance keyed by attribute
// id. Values hold string, int64, []byte, time.Time, bool, IdTuple or nil.
// Non-aggregate association slots hold []any of ids (string or IdTuple);
// aggregation slots hold []ParsedInstance.
type ParsedInstance map[AttributeID]any

// Entity is the caller-facing representation of an instance, keyed by
// attribute name. Aggregations become []Entity.
type Entity map[string]any

// IdTuple addresses an element inside a list.
type IdTuple struct {
	ListID    string `json:"listId" yaml:"listId" mapstructure:"listId"`
	ElementID string `json:"elementId" yaml:"elementId" mapstructure:"elementId"`
}

// String renders the tuple as "listId/elementId".
func (t IdTuple) String() string {
	return t.ListID + "/" + t.ElementID
}

// NormalizeID converts the accepted id shapes into string or IdTuple.
// Accepted shapes are string, IdTuple, []string of length 2 and []any of
// two strings (the form produced by encoding/json).
func NormalizeID(id any) (any, error) {
	switch v := id.(type) {
	case string:
		return v, nil
	case IdTuple:
		return v, nil
	case []string:
		if len(v) == 2 {
			return IdTuple{ListID: v[0], ElementID: v[1]}, nil
		}
	case []any:
		if len(v) == 2 {
			list, ok1 := v[0].(string)
			elem, ok2 := v[1].(string)
			if ok1 && ok2 {
				return IdTuple{ListID: list, ElementID: elem}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %v (%T)", ErrInvalidID, id, id)
}

// SameID reports whether two ids are structurally equal. Tuples compare
// element-wise and scalar ids by value; ids of different shapes are never
// equal.
func SameID(a, b any) bool {
	na, err := NormalizeID(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeID(b)
	if err != nil {
		return false
	}
	return na == nb
}

// SplitID returns the list id and element id of an instance id. Element
// ids have an empty list id.
func SplitID(id any) (listID, elementID string, err error) {
	n, err := NormalizeID(id)
	if err != nil {
		return "", "", err
	}
	switch v := n.(type) {
	case IdTuple:
		return v.ListID, v.ElementID, nil
	default:
		return "", v.(string), nil
	}
}

// VersionedEncryptedKey is a key encrypted with a specific version of its
// owner group's key.
type VersionedEncryptedKey struct {
	EncryptingKeyVersion int64
	Key                  []byte
}

// Clone returns a deep copy of the instance. Nested aggregates, id slices
// and byte values are copied; other values are immutable.
func (p ParsedInstance) Clone() ParsedInstance {
	if p == nil {
		return nil
	}
	out := make(ParsedInstance, len(p))
	for id, v := range p {
		out[id] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []ParsedInstance:
		out := make([]ParsedInstance, len(t))
		for i, n := range t {
			out[i] = n.Clone()
		}
		return out
	case []any:
		out := make([]any, len(t))
		copy(out, t)
		return out
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}
