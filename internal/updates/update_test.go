package updates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/patchcache/internal/testutil"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

func TestDecodeUpdates(t *testing.T) {
	f := testutil.NewFixture(t)
	data := []byte(`[
		{"application": "tutanota", "typeId": 97, "instanceListId": "inbox", "instanceId": "m1", "operation": "UPDATE",
		 "patches": [{"attributePath": "106", "patchOperation": "REPLACE", "value": "0"}]},
		{"application": "tutanota", "typeId": 97, "instanceListId": "inbox", "instanceId": "m2", "operation": "UPDATE", "patches": null},
		{"application": "tutanota", "typeId": 150, "instanceId": "box-1", "operation": "CREATE",
		 "instance": {"151": "box-1", "152": "owner-group", "153": "mailbox", "154": []}},
		{"application": "tutanota", "typeId": 97, "instanceListId": "inbox", "instanceId": "m3", "operation": "DELETE"}
	]`)

	batch, err := DecodeUpdates(context.Background(), data, f.Registry)
	require.NoError(t, err)
	require.Len(t, batch, 4)

	assert.Equal(t, Key{Ref: testutil.MailRef, ListID: "inbox", ElementID: "m1"}, batch[0].Key())
	assert.Equal(t, []types.Patch{{AttributePath: "106", PatchOperation: types.PatchReplace, Value: types.StringPtr("0")}}, batch[0].Patches)
	assert.Nil(t, batch[1].Patches)
	assert.Equal(t, OperationCreate, batch[2].Operation)
	assert.Equal(t, testutil.MailBox("box-1"), batch[2].Instance)
	assert.Equal(t, OperationDelete, batch[3].Operation)
}

func TestDecodeUpdatesRejects(t *testing.T) {
	f := testutil.NewFixture(t)
	tests := []struct {
		name string
		data string
	}{
		{"not json", `[`},
		{"missing instance id", `[{"application": "tutanota", "typeId": 97, "operation": "DELETE"}]`},
		{"unknown operation", `[{"application": "tutanota", "typeId": 97, "instanceId": "m", "operation": "MOVE"}]`},
		{"create without instance", `[{"application": "tutanota", "typeId": 150, "instanceId": "b", "operation": "CREATE"}]`},
		{"bad patch", `[{"application": "tutanota", "typeId": 97, "instanceId": "m", "operation": "UPDATE", "patches": [{"value": "x"}]}]`},
		{"incomplete instance", `[{"application": "tutanota", "typeId": 150, "instanceId": "b", "operation": "CREATE", "instance": {"151": "b"}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeUpdates(context.Background(), []byte(tt.data), f.Registry)
			assert.ErrorIs(t, err, types.ErrInvalidData)
		})
	}

	_, err := DecodeUpdates(context.Background(), []byte(`[{"application": "nope", "typeId": 1, "instanceId": "b", "operation": "CREATE", "instance": {}}]`), f.Registry)
	assert.ErrorIs(t, err, types.ErrTypeNotFound)
}
