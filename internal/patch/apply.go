package patch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mesh-intelligence/patchcache/internal/attr"
	"github.com/mesh-intelligence/patchcache/internal/mapper"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// Pipeline converts and decrypts patch payloads. It is implemented by
// *mapper.Mapper.
type Pipeline interface {
	ConvertWireToNative(vt types.ValueType, wire any) (any, error)
	DecryptValue(v types.ModelValue, ciphertext any, key []byte) (any, error)
	ApplyNativeTypes(ctx context.Context, model *types.TypeModel, untyped map[string]any) (types.ParsedInstance, error)
	DecryptAggregates(ctx context.Context, model *types.TypeModel, items []types.ParsedInstance, key []byte) ([]types.ParsedInstance, error)
	MapToEntity(ctx context.Context, model *types.TypeModel, inst types.ParsedInstance) (types.Entity, error)
}

// Applier applies single patches to a parsed instance in place.
type Applier struct {
	resolver         types.TypeModelResolver
	keys             types.SessionKeyResolver
	pipeline         Pipeline
	networkDebugging bool
}

// NewApplier returns an Applier. With networkDebugging, path segments and
// aggregate payload keys may carry "id:name" forms.
func NewApplier(resolver types.TypeModelResolver, keys types.SessionKeyResolver, pipeline Pipeline, networkDebugging bool) *Applier {
	return &Applier{resolver: resolver, keys: keys, pipeline: pipeline, networkDebugging: networkDebugging}
}

// Apply applies one patch to root. On error root may be partially mutated
// and must be discarded.
func (a *Applier) Apply(ctx context.Context, root types.ParsedInstance, model *types.TypeModel, p types.Patch) error {
	return a.session(root, model).apply(ctx, p)
}

// session applies a sequence of patches to one root instance, unwrapping
// its session key at most once.
type session struct {
	*Applier
	root     types.ParsedInstance
	model    *types.TypeModel
	key      []byte
	resolved bool
}

func (a *Applier) session(root types.ParsedInstance, model *types.TypeModel) *session {
	return &session{Applier: a, root: root, model: model}
}

func (s *session) apply(ctx context.Context, p types.Patch) error {
	res, err := Traverse(ctx, s.resolver, s.root, s.model, strings.Split(p.AttributePath, "/"), s.networkDebugging)
	if err != nil {
		return withContext(wrap(err, types.KindInvalidPath, "traversing path"), p, 0)
	}
	attribute, ok := res.Model.Attribute(res.AttributeID)
	if !ok {
		return withContext(newError(types.KindUnknownAttribute, "%s has no attribute %d", res.Model.Name, res.AttributeID), p, res.AttributeID)
	}
	if err := checkOperation(p.PatchOperation, attribute, res.Model); err != nil {
		return withContext(err, p, res.AttributeID)
	}

	var value any
	if p.PatchOperation == types.PatchRemoveItem {
		value, err = parseIDList(p.Value)
	} else {
		value, err = s.prepare(ctx, res, attribute, p.Value)
	}
	if err != nil {
		return withContext(wrap(err, "", "preparing value"), p, res.AttributeID)
	}

	switch p.PatchOperation {
	case types.PatchAddItem:
		err = s.addItems(ctx, res, attribute, value)
	case types.PatchRemoveItem:
		err = s.removeItems(ctx, res, attribute, value.([]any))
	case types.PatchReplace:
		err = replace(res, attribute, value)
	}
	if err != nil {
		return withContext(wrap(err, "", "applying patch"), p, res.AttributeID)
	}
	return nil
}

// checkOperation rejects operations that are illegal for the attribute's
// category before any payload is decrypted.
func checkOperation(op types.PatchOperation, attribute types.Attribute, model *types.TypeModel) *types.PatchOperationError {
	switch op {
	case types.PatchAddItem, types.PatchRemoveItem:
		if attribute.IsValue() {
			return newError(types.KindTypeMismatch, "%s is supported for associations only, but %s.%s is a value", op, model.Name, attribute.Name())
		}
	case types.PatchReplace:
		if attribute.IsAggregation() {
			return newError(types.KindTypeMismatch, "attempted to replace aggregation %s on %s", attribute.Name(), model.Name)
		}
	default:
		return newError(types.KindInvalidValue, "unknown patch operation %q", op)
	}
	return nil
}

func (s *session) prepare(ctx context.Context, res PathResult, attribute types.Attribute, raw *string) (any, error) {
	switch {
	case attribute.IsValue():
		var wire any
		if raw != nil {
			wire = *raw
		}
		if !attribute.Value.Encrypted || wire == nil {
			return s.pipeline.ConvertWireToNative(attribute.Value.Type, wire)
		}
		key, err := s.sessionKey(ctx)
		if err != nil {
			return nil, err
		}
		return s.pipeline.DecryptValue(*attribute.Value, wire, key)

	case attribute.IsAggregation():
		if raw == nil {
			return nil, newError(types.KindInvalidValue, "aggregation payload must be a JSON array, got null")
		}
		var untyped []map[string]any
		if err := json.Unmarshal([]byte(*raw), &untyped); err != nil {
			return nil, wrap(err, types.KindInvalidValue, "aggregation payload is not a JSON array of objects")
		}
		aggModel, err := s.resolver.ResolveServerTypeReference(ctx, res.Model.AggregateRef(*attribute.Association))
		if err != nil {
			return nil, wrap(err, types.KindUnknownAttribute, "resolving aggregate type")
		}
		items := make([]types.ParsedInstance, 0, len(untyped))
		for _, u := range untyped {
			if s.networkDebugging {
				u = attr.RemoveNetworkDebuggingInfo(u)
			}
			item, err := s.pipeline.ApplyNativeTypes(ctx, aggModel, u)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		key, err := s.sessionKey(ctx)
		if err != nil {
			return nil, err
		}
		return s.pipeline.DecryptAggregates(ctx, aggModel, items, key)

	default:
		return parseIDList(raw)
	}
}

// sessionKey unwraps the root instance's session key. Unencrypted root
// types have none.
func (s *session) sessionKey(ctx context.Context) ([]byte, error) {
	if s.resolved {
		return s.key, nil
	}
	if !s.model.Encrypted {
		s.resolved = true
		return nil, nil
	}
	encKey, err := attr.Get[[]byte](s.root, "_ownerEncSessionKey", s.model)
	if err != nil {
		return nil, wrap(err, types.KindSessionKey, "reading _ownerEncSessionKey")
	}
	version, err := attr.Get[int64](s.root, "_ownerKeyVersion", s.model)
	if err != nil {
		return nil, wrap(err, types.KindSessionKey, "reading _ownerKeyVersion")
	}
	group, err := attr.Get[string](s.root, "_ownerGroup", s.model)
	if err != nil {
		return nil, wrap(err, types.KindSessionKey, "reading _ownerGroup")
	}
	if len(encKey) == 0 {
		return nil, newError(types.KindSessionKey, "instance of %s has no _ownerEncSessionKey", s.model.Name)
	}
	key, err := s.keys.DecryptSessionKey(ctx, group, types.VersionedEncryptedKey{EncryptingKeyVersion: version, Key: encKey})
	if err != nil {
		return nil, wrap(err, types.KindSessionKey, "resolving session key")
	}
	s.key, s.resolved = key, true
	return key, nil
}

func parseIDList(raw *string) ([]any, error) {
	if raw == nil {
		return nil, newError(types.KindInvalidValue, "id list payload must be a JSON array, got null")
	}
	var ids []any
	if err := json.Unmarshal([]byte(*raw), &ids); err != nil {
		return nil, wrap(err, types.KindInvalidValue, "id list payload is not a JSON array")
	}
	normalized, err := mapper.ParseIDs(ids)
	if err != nil {
		return nil, wrap(err, types.KindInvalidValue, "id list payload")
	}
	return normalized, nil
}

func (s *session) addItems(ctx context.Context, res PathResult, attribute types.Attribute, value any) error {
	if !attribute.IsAggregation() {
		existing, err := mapper.ReferenceSlice(res.Instance[res.AttributeID])
		if err != nil {
			return err
		}
		added := value.([]any)
		updated := append(existing[:len(existing):len(existing)], added...)
		res.Instance[res.AttributeID] = updated
		return checkAssociationCardinality(res, attribute, len(updated))
	}

	existing, err := mapper.AggregateSlice(res.Instance[res.AttributeID])
	if err != nil {
		return err
	}
	idAttr, err := s.aggregateIDAttribute(ctx, res, attribute)
	if err != nil {
		return err
	}
	added := value.([]types.ParsedInstance)
	updated := append(existing[:len(existing):len(existing)], added...)
	for i, item := range added {
		for _, other := range updated[:len(existing)+i] {
			if types.SameID(item[idAttr], other[idAttr]) {
				return newError(types.KindDuplicateAggregate, "aggregate %v already present in %s.%s", item[idAttr], res.Model.Name, attribute.Name())
			}
		}
	}
	res.Instance[res.AttributeID] = updated
	return checkAssociationCardinality(res, attribute, len(updated))
}

func (s *session) removeItems(ctx context.Context, res PathResult, attribute types.Attribute, ids []any) error {
	matches := func(id any) bool {
		for _, remove := range ids {
			if types.SameID(id, remove) {
				return true
			}
		}
		return false
	}

	if !attribute.IsAggregation() {
		existing, err := mapper.ReferenceSlice(res.Instance[res.AttributeID])
		if err != nil {
			return err
		}
		remaining := make([]any, 0, len(existing))
		for _, id := range existing {
			if !matches(id) {
				remaining = append(remaining, id)
			}
		}
		res.Instance[res.AttributeID] = remaining
		return checkAssociationCardinality(res, attribute, len(remaining))
	}

	existing, err := mapper.AggregateSlice(res.Instance[res.AttributeID])
	if err != nil {
		return err
	}
	idAttr, err := s.aggregateIDAttribute(ctx, res, attribute)
	if err != nil {
		return err
	}
	remaining := make([]types.ParsedInstance, 0, len(existing))
	for _, member := range existing {
		if !matches(member[idAttr]) {
			remaining = append(remaining, member)
		}
	}
	res.Instance[res.AttributeID] = remaining
	return checkAssociationCardinality(res, attribute, len(remaining))
}

func (s *session) aggregateIDAttribute(ctx context.Context, res PathResult, attribute types.Attribute) (types.AttributeID, error) {
	aggModel, err := s.resolver.ResolveServerTypeReference(ctx, res.Model.AggregateRef(*attribute.Association))
	if err != nil {
		return 0, wrap(err, types.KindUnknownAttribute, "resolving aggregate type")
	}
	id, err := attr.ID(aggModel, "_id")
	if err != nil {
		return 0, wrap(err, types.KindUnknownAttribute, "aggregate has no identity")
	}
	return id, nil
}

func replace(res PathResult, attribute types.Attribute, value any) error {
	if attribute.IsValue() {
		if attribute.Value.Cardinality == types.One && value == nil {
			return newError(types.KindCardinality, "invalid value / cardinality combination for %s.%s (%d): %s, value is null",
				res.Model.Name, attribute.Name(), res.AttributeID, attribute.Value.Cardinality)
		}
		res.Instance[res.AttributeID] = value
		return nil
	}
	ids := value.([]any)
	res.Instance[res.AttributeID] = ids
	return checkAssociationCardinality(res, attribute, len(ids))
}

func checkAssociationCardinality(res PathResult, attribute types.Attribute, n int) error {
	c := attribute.Association.Cardinality
	if (c == types.ZeroOrOne && n > 1) || (c == types.One && n != 1) {
		return newError(types.KindCardinality, "invalid value / cardinality combination for %s.%s (%d): %s, length %d",
			res.Model.Name, attribute.Name(), res.AttributeID, c, n)
	}
	return nil
}
