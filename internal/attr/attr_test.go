package attr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/patchcache/pkg/types"
)

var model = &types.TypeModel{
	App:  "tutanota",
	ID:   1,
	Name: "Thing",
	Type: types.KindElement,
	Values: map[types.AttributeID]types.ModelValue{
		2: {ID: 2, Name: "_id", Type: types.ValueGeneratedID, Cardinality: types.One},
		3: {ID: 3, Name: "_ownerGroup", Type: types.ValueGeneratedID, Cardinality: types.ZeroOrOne},
		4: {ID: 4, Name: "_ownerKeyVersion", Type: types.ValueNumber, Cardinality: types.ZeroOrOne},
	},
}

func TestGet(t *testing.T) {
	inst := types.ParsedInstance{2: "elem", 3: "group", 4: nil}

	group, err := Get[string](inst, "_ownerGroup", model)
	require.NoError(t, err)
	assert.Equal(t, "group", group)

	version, err := Get[int64](inst, "_ownerKeyVersion", model)
	require.NoError(t, err)
	assert.Zero(t, version)

	_, err = Get[int64](inst, "_ownerGroup", model)
	assert.ErrorIs(t, err, types.ErrTypeMismatch)

	_, err = Get[string](inst, "missing", model)
	assert.ErrorIs(t, err, types.ErrAttributeNotFound)

	_, err = Get[string](types.ParsedInstance{}, "_ownerGroup", model)
	assert.ErrorIs(t, err, types.ErrAttributeNotFound)
}

func TestSetAndInstanceID(t *testing.T) {
	inst := types.ParsedInstance{}
	require.NoError(t, Set(inst, "_id", model, types.IdTuple{ListID: "l", ElementID: "e"}))

	id, err := InstanceID(inst, model)
	require.NoError(t, err)
	assert.Equal(t, types.IdTuple{ListID: "l", ElementID: "e"}, id)

	_, err = InstanceID(types.ParsedInstance{2: nil}, model)
	assert.ErrorIs(t, err, types.ErrInvalidData)

	assert.ErrorIs(t, Set(inst, "nope", model, 1), types.ErrAttributeNotFound)
}

func TestRemoveNetworkDebuggingInfo(t *testing.T) {
	in := map[string]any{
		"105:subject": "x",
		"106":         "1",
		"112:toRecipients": []any{
			map[string]any{"121:_id": "a", "122:name": "n"},
		},
	}
	got := RemoveNetworkDebuggingInfo(in)
	assert.Equal(t, map[string]any{
		"105": "x",
		"106": "1",
		"112": []any{map[string]any{"121": "a", "122": "n"}},
	}, got)
}

func TestParseSegment(t *testing.T) {
	id, err := ParseSegment("105", false)
	require.NoError(t, err)
	assert.Equal(t, types.AttributeID(105), id)

	id, err = ParseSegment("105:subject", true)
	require.NoError(t, err)
	assert.Equal(t, types.AttributeID(105), id)

	_, err = ParseSegment("105:subject", false)
	assert.ErrorIs(t, err, types.ErrInvalidAttributeID)
}

func TestInstanceKey(t *testing.T) {
	list, elem, err := InstanceKey(types.ParsedInstance{2: types.IdTuple{ListID: "l", ElementID: "e"}}, model)
	require.NoError(t, err)
	assert.Equal(t, "l", list)
	assert.Equal(t, "e", elem)

	list, elem, err = InstanceKey(types.ParsedInstance{2: "solo"}, model)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, "solo", elem)

	_, _, err = InstanceKey(types.ParsedInstance{2: 42}, model)
	assert.ErrorIs(t, err, types.ErrInvalidID)
}
