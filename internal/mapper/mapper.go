// Package mapper converts whole instances between their wire forms and
// parsed instances, driven by type models. Aggregations are followed
// recursively, resolving each aggregate's model through the registry.
//
// There are two wire forms. The server form keeps encrypted values as
// base64 ciphertext (ApplyNativeTypes, Encrypt). The plain form holds every
// value in cleartext and is what the storage engines persist (Encode,
// Decode).
package mapper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/patchcache/internal/codec"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// Mapper converts instances using the models of a resolver.
type Mapper struct {
	resolver types.TypeModelResolver
}

// New returns a Mapper backed by resolver.
func New(resolver types.TypeModelResolver) *Mapper {
	return &Mapper{resolver: resolver}
}

// ConvertWireToNative converts a single unencrypted wire value.
func (m *Mapper) ConvertWireToNative(vt types.ValueType, wire any) (any, error) {
	return codec.ConvertWireToNative(vt, wire)
}

// DecryptValue decrypts a single encrypted wire value.
func (m *Mapper) DecryptValue(v types.ModelValue, ciphertext any, key []byte) (any, error) {
	return codec.DecryptValue(v, ciphertext, key)
}

// AggregateModel resolves the model targeted by an aggregation of model.
func (m *Mapper) AggregateModel(ctx context.Context, model *types.TypeModel, a types.ModelAssociation) (*types.TypeModel, error) {
	return m.resolver.ResolveServerTypeReference(ctx, model.AggregateRef(a))
}

// ApplyNativeTypes converts a server-form untyped instance into a parsed
// instance whose encrypted values are still ciphertext. Unencrypted values
// become native; nested aggregates are converted recursively.
func (m *Mapper) ApplyNativeTypes(ctx context.Context, model *types.TypeModel, untyped map[string]any) (types.ParsedInstance, error) {
	return m.fromWire(ctx, model, untyped, func(v types.ModelValue, raw any) (any, error) {
		if v.Encrypted {
			if _, ok := raw.(string); raw != nil && !ok {
				return nil, fmt.Errorf("%w: encrypted %s must be a string, got %T", types.ErrInvalidValue, v.Name, raw)
			}
			return raw, nil
		}
		return codec.ConvertWireToNative(v.Type, raw)
	})
}

// Decode converts a plain-form instance into a parsed instance.
func (m *Mapper) Decode(ctx context.Context, model *types.TypeModel, wire map[string]any) (types.ParsedInstance, error) {
	return m.fromWire(ctx, model, wire, func(v types.ModelValue, raw any) (any, error) {
		return codec.ConvertWireToNative(v.Type, raw)
	})
}

// Encode converts a parsed instance into its plain form.
func (m *Mapper) Encode(ctx context.Context, model *types.TypeModel, inst types.ParsedInstance) (map[string]any, error) {
	return m.toWire(ctx, model, inst, func(v types.ModelValue, native any) (any, error) {
		return codec.ConvertNativeToWire(v.Type, native)
	})
}

// Encrypt converts a parsed instance into its server form, encrypting every
// encrypted value, including those of nested aggregates, with key.
func (m *Mapper) Encrypt(ctx context.Context, model *types.TypeModel, inst types.ParsedInstance, key []byte) (map[string]any, error) {
	return m.toWire(ctx, model, inst, func(v types.ModelValue, native any) (any, error) {
		if v.Encrypted {
			return codec.EncryptValue(v, native, key)
		}
		return codec.ConvertNativeToWire(v.Type, native)
	})
}

// DecryptAggregates decrypts the encrypted values of aggregates produced by
// ApplyNativeTypes, recursing into nested aggregates. Aggregates carry no
// session key of their own; key is the owning instance's session key.
func (m *Mapper) DecryptAggregates(ctx context.Context, model *types.TypeModel, items []types.ParsedInstance, key []byte) ([]types.ParsedInstance, error) {
	out := make([]types.ParsedInstance, 0, len(items))
	for _, item := range items {
		dec, err := m.decryptInstance(ctx, model, item, key)
		if err != nil {
			return nil, err
		}
		out = append(out, dec)
	}
	return out, nil
}

func (m *Mapper) decryptInstance(ctx context.Context, model *types.TypeModel, inst types.ParsedInstance, key []byte) (types.ParsedInstance, error) {
	out := make(types.ParsedInstance, len(inst))
	for id, raw := range inst {
		attribute, ok := model.Attribute(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no attribute %d", types.ErrAttributeNotFound, model.Name, id)
		}
		switch {
		case attribute.IsValue() && attribute.Value.Encrypted:
			v, err := codec.DecryptValue(*attribute.Value, raw, key)
			if err != nil {
				return nil, err
			}
			out[id] = v
		case attribute.IsAggregation():
			aggModel, err := m.AggregateModel(ctx, model, *attribute.Association)
			if err != nil {
				return nil, err
			}
			nested, err := AggregateSlice(raw)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", model.Name, attribute.Name(), err)
			}
			dec, err := m.DecryptAggregates(ctx, aggModel, nested, key)
			if err != nil {
				return nil, err
			}
			out[id] = dec
		default:
			out[id] = raw
		}
	}
	return out, nil
}

type valueFunc func(v types.ModelValue, raw any) (any, error)

func (m *Mapper) fromWire(ctx context.Context, model *types.TypeModel, wire map[string]any, convert valueFunc) (types.ParsedInstance, error) {
	out := make(types.ParsedInstance, len(model.Values)+len(model.Associations))
	for _, id := range model.AttributeIDs() {
		raw, ok := wire[id.String()]
		attribute, _ := model.Attribute(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s is missing attribute %d (%s)", types.ErrInvalidData, model.Name, id, attribute.Name())
		}
		switch {
		case attribute.IsValue():
			v, err := convert(*attribute.Value, raw)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", model.Name, attribute.Name(), err)
			}
			out[id] = v
		case attribute.IsAggregation():
			aggModel, err := m.AggregateModel(ctx, model, *attribute.Association)
			if err != nil {
				return nil, err
			}
			elems, err := wireArray(raw)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", model.Name, attribute.Name(), err)
			}
			nested := make([]types.ParsedInstance, 0, len(elems))
			for _, e := range elems {
				obj, ok := e.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%w: %s.%s element is %T, want an object", types.ErrInvalidData, model.Name, attribute.Name(), e)
				}
				p, err := m.fromWire(ctx, aggModel, obj, convert)
				if err != nil {
					return nil, err
				}
				nested = append(nested, p)
			}
			out[id] = nested
		default:
			ids, err := ParseIDs(raw)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", model.Name, attribute.Name(), err)
			}
			out[id] = ids
		}
	}
	return out, nil
}

func (m *Mapper) toWire(ctx context.Context, model *types.TypeModel, inst types.ParsedInstance, convert valueFunc) (map[string]any, error) {
	out := make(map[string]any, len(inst))
	for _, id := range model.AttributeIDs() {
		raw, ok := inst[id]
		attribute, _ := model.Attribute(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s is missing attribute %d (%s)", types.ErrInvalidData, model.Name, id, attribute.Name())
		}
		switch {
		case attribute.IsValue():
			v, err := convert(*attribute.Value, raw)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", model.Name, attribute.Name(), err)
			}
			out[id.String()] = v
		case attribute.IsAggregation():
			aggModel, err := m.AggregateModel(ctx, model, *attribute.Association)
			if err != nil {
				return nil, err
			}
			nested, err := AggregateSlice(raw)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", model.Name, attribute.Name(), err)
			}
			elems := make([]any, 0, len(nested))
			for _, n := range nested {
				w, err := m.toWire(ctx, aggModel, n, convert)
				if err != nil {
					return nil, err
				}
				elems = append(elems, w)
			}
			out[id.String()] = elems
		default:
			ids, err := ReferenceSlice(raw)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", model.Name, attribute.Name(), err)
			}
			elems := make([]any, 0, len(ids))
			for _, ref := range ids {
				if t, ok := ref.(types.IdTuple); ok {
					elems = append(elems, []any{t.ListID, t.ElementID})
				} else {
					elems = append(elems, ref)
				}
			}
			out[id.String()] = elems
		}
	}
	return out, nil
}

// AggregateSlice returns the aggregates held in an aggregation slot. A nil
// slot is empty.
func AggregateSlice(raw any) ([]types.ParsedInstance, error) {
	switch v := raw.(type) {
	case nil:
		return []types.ParsedInstance{}, nil
	case []types.ParsedInstance:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: aggregation slot holds %T", types.ErrInvalidData, raw)
	}
}

// ReferenceSlice returns the ids held in a non-aggregate association slot.
// A nil slot is empty.
func ReferenceSlice(raw any) ([]any, error) {
	switch v := raw.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: association slot holds %T", types.ErrInvalidData, raw)
	}
}

// ParseIDs normalises a JSON array of ids or id tuples.
func ParseIDs(raw any) ([]any, error) {
	elems, err := wireArray(raw)
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(elems))
	for _, e := range elems {
		id, err := types.NormalizeID(e)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func wireArray(raw any) ([]any, error) {
	switch v := raw.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: expected an array, got %T", types.ErrInvalidData, raw)
	}
}

// EncodeJSON encodes inst in its plain form as JSON.
func (m *Mapper) EncodeJSON(ctx context.Context, model *types.TypeModel, inst types.ParsedInstance) ([]byte, error) {
	wire, err := m.Encode(ctx, model, inst)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wire)
}

// DecodeJSON decodes the output of EncodeJSON.
func (m *Mapper) DecodeJSON(ctx context.Context, model *types.TypeModel, data []byte) (types.ParsedInstance, error) {
	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	return m.Decode(ctx, model, wire)
}
