package patch

import (
	"context"
	"strings"

	"github.com/mesh-intelligence/patchcache/internal/attr"
	"github.com/mesh-intelligence/patchcache/internal/mapper"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// PathResult identifies the target of a patch: an attribute of an instance
// inside the tree being patched, together with that instance's model.
type PathResult struct {
	AttributeID types.AttributeID
	Instance    types.ParsedInstance
	Model       *types.TypeModel
}

// Traverse resolves path against root. Each aggregation hop is followed by
// the _id of the aggregate to descend into. The returned Instance is part
// of root's tree, so mutating it mutates root.
func Traverse(ctx context.Context, resolver types.TypeModelResolver, root types.ParsedInstance, model *types.TypeModel, path []string, networkDebugging bool) (PathResult, error) {
	segments := make([]string, len(path))
	copy(segments, path)
	return traverse(ctx, resolver, root, model, segments, networkDebugging)
}

func traverse(ctx context.Context, resolver types.TypeModelResolver, inst types.ParsedInstance, model *types.TypeModel, path []string, networkDebugging bool) (PathResult, error) {
	if len(path) == 0 {
		return PathResult{}, newError(types.KindInvalidPath, "expected a non-empty attribute path")
	}
	remaining := strings.Join(path, "/")
	fail := func(pe *types.PatchOperationError, id types.AttributeID) (PathResult, error) {
		if pe.Path == "" {
			pe.Path = remaining
		}
		if pe.AttributeID == 0 {
			pe.AttributeID = id
		}
		return PathResult{}, pe
	}

	id, err := attr.ParseSegment(path[0], networkDebugging)
	if err != nil {
		return fail(wrap(err, types.KindInvalidPath, "invalid path segment"), 0)
	}
	if _, ok := inst[id]; !ok {
		return fail(newError(types.KindUnknownAttribute, "attribute %d not found on instance of %s", id, model.Name), id)
	}
	rest := path[1:]
	if len(rest) == 0 {
		return PathResult{AttributeID: id, Instance: inst, Model: model}, nil
	}

	attribute, _ := model.Attribute(id)
	if !attribute.IsAggregation() {
		return fail(newError(types.KindTypeMismatch, "expected attribute %d to be an aggregation on %s", id, model.Name), id)
	}
	aggModel, err := resolver.ResolveServerTypeReference(ctx, model.AggregateRef(*attribute.Association))
	if err != nil {
		return fail(wrap(err, types.KindUnknownAttribute, "resolving aggregate type"), id)
	}
	idAttr, err := attr.ID(aggModel, "_id")
	if err != nil {
		return fail(wrap(err, types.KindUnknownAttribute, "aggregate has no identity"), id)
	}
	members, err := mapper.AggregateSlice(inst[id])
	if err != nil {
		return fail(wrap(err, types.KindDecode, "reading aggregation"), id)
	}

	aggregateID := rest[0]
	var match types.ParsedInstance
	for _, member := range members {
		if !types.SameID(aggregateID, member[idAttr]) {
			continue
		}
		if match != nil {
			return fail(newError(types.KindDuplicateAggregate, "aggregate %q occurs more than once in %s.%s", aggregateID, model.Name, attribute.Name()), id)
		}
		match = member
	}
	if match == nil {
		return fail(newError(types.KindAggregateNotFound, "aggregate %q not found in %s.%s", aggregateID, model.Name, attribute.Name()), id)
	}
	return traverse(ctx, resolver, match, aggModel, rest[1:], networkDebugging)
}
