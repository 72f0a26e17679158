// Package attr reads and writes instance attributes by name, hiding the
// numeric attribute id indirection of parsed instances.
package attr

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// ID resolves name to its attribute id in model.
func ID(model *types.TypeModel, name string) (types.AttributeID, error) {
	id, ok := model.AttributeID(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no attribute %q", types.ErrAttributeNotFound, model.Name, name)
	}
	return id, nil
}

// Get returns the attribute called name. A nil stored value yields T's
// zero value. A stored value of another type is ErrTypeMismatch.
func Get[T any](inst types.ParsedInstance, name string, model *types.TypeModel) (T, error) {
	var zero T
	id, err := ID(model, name)
	if err != nil {
		return zero, err
	}
	raw, ok := inst[id]
	if !ok {
		return zero, fmt.Errorf("%w: instance of %s has no slot for %q", types.ErrAttributeNotFound, model.Name, name)
	}
	if raw == nil {
		return zero, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s.%s holds %T, want %T", types.ErrTypeMismatch, model.Name, name, raw, zero)
	}
	return v, nil
}

// Set stores value in the attribute called name.
func Set(inst types.ParsedInstance, name string, model *types.TypeModel, value any) error {
	id, err := ID(model, name)
	if err != nil {
		return err
	}
	inst[id] = value
	return nil
}

// InstanceID returns the _id of an instance.
func InstanceID(inst types.ParsedInstance, model *types.TypeModel) (any, error) {
	id, err := ID(model, "_id")
	if err != nil {
		return nil, err
	}
	v, ok := inst[id]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: instance of %s has no _id", types.ErrInvalidData, model.Name)
	}
	return v, nil
}

// RemoveNetworkDebuggingInfo rewrites "id:name" keys of an untyped wire
// instance to bare ids, recursing into nested instances. Keys without a
// colon are kept as they are.
func RemoveNetworkDebuggingInfo(untyped map[string]any) map[string]any {
	out := make(map[string]any, len(untyped))
	for k, v := range untyped {
		if id, _, ok := strings.Cut(k, ":"); ok {
			k = id
		}
		out[k] = stripNested(v)
	}
	return out
}

func stripNested(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return RemoveNetworkDebuggingInfo(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = stripNested(e)
		}
		return out
	default:
		return v
	}
}

// ParseSegment parses one attribute path segment. With networkDebugging
// the segment may carry an "id:name" form.
func ParseSegment(segment string, networkDebugging bool) (types.AttributeID, error) {
	if networkDebugging {
		segment, _, _ = strings.Cut(segment, ":")
	}
	return types.ParseAttributeID(segment)
}

// InstanceKey splits the _id of an instance into the list and element ids
// that key it in storage. Element ids have an empty list id.
func InstanceKey(inst types.ParsedInstance, model *types.TypeModel) (listID, elementID string, err error) {
	id, err := InstanceID(inst, model)
	if err != nil {
		return "", "", err
	}
	return types.SplitID(id)
}
