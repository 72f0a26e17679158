package mapper

import (
	"context"
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// MapToEntity renames the attributes of a parsed instance to their model
// names. Aggregations become []types.Entity.
func (m *Mapper) MapToEntity(ctx context.Context, model *types.TypeModel, inst types.ParsedInstance) (types.Entity, error) {
	out := make(types.Entity, len(inst))
	for id, raw := range inst {
		attribute, ok := model.Attribute(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no attribute %d", types.ErrAttributeNotFound, model.Name, id)
		}
		if !attribute.IsAggregation() {
			out[attribute.Name()] = raw
			continue
		}
		aggModel, err := m.AggregateModel(ctx, model, *attribute.Association)
		if err != nil {
			return nil, err
		}
		nested, err := AggregateSlice(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", model.Name, attribute.Name(), err)
		}
		entities := make([]types.Entity, 0, len(nested))
		for _, n := range nested {
			e, err := m.MapToEntity(ctx, aggModel, n)
			if err != nil {
				return nil, err
			}
			entities = append(entities, e)
		}
		out[attribute.Name()] = entities
	}
	return out, nil
}

// DecodeEntity decodes an entity into a struct whose fields carry json tags
// naming the attributes. Unknown attributes are ignored.
func DecodeEntity[T any](entity types.Entity) (*T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			entitySliceHook,
		),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(map[string]any(entity)); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTypeMismatch, err)
	}
	return &out, nil
}

// entitySliceHook lets []types.Entity decode like []map[string]any.
func entitySliceHook(_, _ reflect.Type, data any) (any, error) {
	if es, ok := data.([]types.Entity); ok {
		out := make([]map[string]any, len(es))
		for i, e := range es {
			out[i] = map[string]any(e)
		}
		return out, nil
	}
	if e, ok := data.(types.Entity); ok {
		return map[string]any(e), nil
	}
	return data, nil
}
