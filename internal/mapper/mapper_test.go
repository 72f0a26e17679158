package mapper_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/patchcache/internal/mapper"
	"github.com/mesh-intelligence/patchcache/internal/testutil"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	model := f.Model(t, testutil.MailRef)
	mail := f.Mail("list", "elem")

	wire, err := f.Mapper.Encode(ctx, model, mail)
	require.NoError(t, err)
	assert.Equal(t, "hello", wire["105"])
	assert.Equal(t, []any{"list", "elem"}, wire["99"])

	// Survive a JSON hop, the way the storage engines persist it.
	data, err := json.Marshal(wire)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(data, &back))

	got, err := f.Mapper.Decode(ctx, model, back)
	require.NoError(t, err)
	assert.Equal(t, mail, got)
}

func TestApplyNativeTypesKeepsCiphertext(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	model := f.Model(t, testutil.MailAddressRef)
	addr := testutil.MailAddress("a-1", "Carol", "carol@example.com", testutil.Label("l-1", "work"))

	wire, err := f.Mapper.Encrypt(ctx, model, addr, f.SessionKey)
	require.NoError(t, err)
	assert.NotEqual(t, "Carol", wire["122"])

	parsed, err := f.Mapper.ApplyNativeTypes(ctx, model, wire)
	require.NoError(t, err)
	assert.Equal(t, wire["122"], parsed[testutil.MailAddressName], "encrypted values stay ciphertext")
	assert.Equal(t, "a-1", parsed[testutil.MailAddressID])

	dec, err := f.Mapper.DecryptAggregates(ctx, model, []types.ParsedInstance{parsed}, f.SessionKey)
	require.NoError(t, err)
	require.Len(t, dec, 1)
	assert.Equal(t, addr, dec[0])
}

func TestApplyNativeTypesRejectsMissingAttribute(t *testing.T) {
	f := testutil.NewFixture(t)
	model := f.Model(t, testutil.LabelRef)

	_, err := f.Mapper.ApplyNativeTypes(context.Background(), model, map[string]any{"127": "id"})
	assert.ErrorIs(t, err, types.ErrInvalidData)
}

func TestApplyNativeTypesNormalisesReferences(t *testing.T) {
	f := testutil.NewFixture(t)
	model := f.Model(t, testutil.MailAddressRef)

	parsed, err := f.Mapper.ApplyNativeTypes(context.Background(), model, map[string]any{
		"121": "a-1",
		"122": "",
		"123": nil,
		"124": []any{[]any{"contacts", "c-1"}},
		"125": []any{},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{types.IdTuple{ListID: "contacts", ElementID: "c-1"}}, parsed[testutil.MailAddressContact])
	assert.Equal(t, []types.ParsedInstance{}, parsed[testutil.MailAddressLabels])
}

func TestDecryptAggregatesWithoutKey(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	model := f.Model(t, testutil.FolderRefRef)

	folder := types.ParsedInstance{testutil.FolderRefID: "f", testutil.FolderRefName: "Inbox", testutil.FolderRefSecretName: nil}
	dec, err := f.Mapper.DecryptAggregates(ctx, model, []types.ParsedInstance{folder}, nil)
	require.NoError(t, err)
	assert.Equal(t, folder, dec[0])

	folder[testutil.FolderRefSecretName] = "Y2lwaGVy"
	_, err = f.Mapper.DecryptAggregates(ctx, model, []types.ParsedInstance{folder}, nil)
	assert.ErrorIs(t, err, types.ErrSessionKeyAbsent)
}

func TestMapToEntityAndDecode(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	model := f.Model(t, testutil.MailRef)

	entity, err := f.Mapper.MapToEntity(ctx, model, f.Mail("list", "elem"))
	require.NoError(t, err)
	assert.Equal(t, "hello", entity["subject"])
	sender := entity["sender"].([]types.Entity)
	require.Len(t, sender, 1)
	assert.Equal(t, "Alice", sender[0]["name"])

	type address struct {
		ID      string `json:"_id"`
		Name    string `json:"name"`
		Address string `json:"address"`
	}
	type mail struct {
		ID           types.IdTuple `json:"_id"`
		Subject      string        `json:"subject"`
		Unread       bool          `json:"unread"`
		ReceivedDate time.Time     `json:"receivedDate"`
		Sender       []address     `json:"sender"`
		ToRecipients []address     `json:"toRecipients"`
	}
	m, err := mapper.DecodeEntity[mail](entity)
	require.NoError(t, err)
	assert.Equal(t, types.IdTuple{ListID: "list", ElementID: "elem"}, m.ID)
	assert.Equal(t, "hello", m.Subject)
	assert.True(t, m.Unread)
	assert.True(t, testutil.ReceivedDate.Equal(m.ReceivedDate))
	assert.Equal(t, []address{{ID: "sender-1", Name: "Alice", Address: "alice@example.com"}}, m.Sender)
	assert.Equal(t, "Bob", m.ToRecipients[0].Name)
}

func TestDecodeEntityTypeMismatch(t *testing.T) {
	type subjectOnly struct {
		Subject int `json:"subject"`
	}
	_, err := mapper.DecodeEntity[subjectOnly](types.Entity{"subject": "text"})
	assert.ErrorIs(t, err, types.ErrTypeMismatch)
}

func TestEncodeDecodeJSON(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	model := f.Model(t, testutil.MailBoxRef)
	box := testutil.MailBox("box", testutil.FolderRef("f-1", "Inbox"))

	data, err := f.Mapper.EncodeJSON(ctx, model, box)
	require.NoError(t, err)
	got, err := f.Mapper.DecodeJSON(ctx, model, data)
	require.NoError(t, err)
	assert.Equal(t, box, got)

	_, err = f.Mapper.DecodeJSON(ctx, model, []byte("{"))
	assert.ErrorIs(t, err, types.ErrInvalidData)
}
