// Package testutil provides the type models, keys and instances shared by
// the package tests.
package testutil

import (
	"context"
	"crypto/rand"
	"embed"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/patchcache/internal/codec"
	"github.com/mesh-intelligence/patchcache/internal/keys"
	"github.com/mesh-intelligence/patchcache/internal/mapper"
	"github.com/mesh-intelligence/patchcache/internal/typemodel"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

//go:embed models/*.json
var modelFiles embed.FS

// Type references of the fixture models.
var (
	MailRef        = types.TypeRef{App: "tutanota", TypeID: 97}
	MailAddressRef = types.TypeRef{App: "tutanota", TypeID: 120}
	LabelRef       = types.TypeRef{App: "tutanota", TypeID: 126}
	MailBoxRef     = types.TypeRef{App: "tutanota", TypeID: 150}
	FolderRefRef   = types.TypeRef{App: "tutanota", TypeID: 155}
	BucketKeyRef   = types.TypeRef{App: "sys", TypeID: 1}
)

// Attribute ids of the fixture models.
const (
	MailID                = types.AttributeID(99)
	MailOwnerGroup        = types.AttributeID(102)
	MailOwnerEncSessKey   = types.AttributeID(103)
	MailOwnerKeyVersion   = types.AttributeID(104)
	MailSubject           = types.AttributeID(105)
	MailUnread            = types.AttributeID(106)
	MailReceivedDate      = types.AttributeID(107)
	MailConfidential      = types.AttributeID(108)
	MailReplyType         = types.AttributeID(109)
	MailSender            = types.AttributeID(110)
	MailFirstRecipient    = types.AttributeID(111)
	MailToRecipients      = types.AttributeID(112)
	MailBody              = types.AttributeID(113)
	MailSets              = types.AttributeID(114)
	MailConversationEntry = types.AttributeID(115)
	MailBucketKey         = types.AttributeID(116)
	MailNotes             = types.AttributeID(117)

	MailAddressID      = types.AttributeID(121)
	MailAddressName    = types.AttributeID(122)
	MailAddressAddress = types.AttributeID(123)
	MailAddressContact = types.AttributeID(124)
	MailAddressLabels  = types.AttributeID(125)

	LabelID    = types.AttributeID(127)
	LabelText  = types.AttributeID(128)
	LabelColor = types.AttributeID(129)

	MailBoxID         = types.AttributeID(151)
	MailBoxOwnerGroup = types.AttributeID(152)
	MailBoxName       = types.AttributeID(153)
	MailBoxFolders    = types.AttributeID(154)

	FolderRefID         = types.AttributeID(156)
	FolderRefName       = types.AttributeID(157)
	FolderRefSecretName = types.AttributeID(158)
)

// ReceivedDate is the receivedDate of fixture mails.
var ReceivedDate = time.UnixMilli(1700000000000).UTC()

// Registry returns a registry holding the fixture models.
func Registry(t testing.TB) *typemodel.Registry {
	t.Helper()
	entries, err := modelFiles.ReadDir("models")
	require.NoError(t, err)
	r := typemodel.NewRegistry()
	for _, e := range entries {
		data, err := modelFiles.ReadFile(path.Join("models", e.Name()))
		require.NoError(t, err)
		models, err := typemodel.Parse(data)
		require.NoError(t, err)
		require.NoError(t, r.Register(models...))
	}
	require.NoError(t, r.Verify())
	return r
}

// RandomKey returns a fresh 256-bit key.
func RandomKey(t testing.TB) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := rand.Read(k)
	require.NoError(t, err)
	return k
}

// NewAggregateID returns a unique custom id for an aggregate.
func NewAggregateID() string {
	return uuid.NewString()
}

// Fixture bundles a registry, a keyring holding the owner group's key and
// the session key that fixture mails are encrypted with.
type Fixture struct {
	Registry      *typemodel.Registry
	Keyring       *keys.Keyring
	Mapper        *mapper.Mapper
	OwnerGroup    string
	SessionKey    []byte
	EncSessionKey types.VersionedEncryptedKey
}

// NewFixture builds a Fixture with random keys.
func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	reg := Registry(t)
	ring := keys.NewKeyring()
	const group, version = "owner-group", int64(1)
	require.NoError(t, ring.AddGroupKey(group, version, RandomKey(t)))
	sk := RandomKey(t)
	enc, err := ring.EncryptSessionKey(group, version, sk)
	require.NoError(t, err)
	return &Fixture{
		Registry:      reg,
		Keyring:       ring,
		Mapper:        mapper.New(reg),
		OwnerGroup:    group,
		SessionKey:    sk,
		EncSessionKey: enc,
	}
}

// Model resolves ref in the fixture registry.
func (f *Fixture) Model(t testing.TB, ref types.TypeRef) *types.TypeModel {
	t.Helper()
	m, err := f.Registry.ResolveServerTypeReference(context.Background(), ref)
	require.NoError(t, err)
	return m
}

// Mail returns a decrypted mail with one sender and one recipient.
func (f *Fixture) Mail(listID, elementID string) types.ParsedInstance {
	return types.ParsedInstance{
		MailID:                types.IdTuple{ListID: listID, ElementID: elementID},
		100:                   "permissions",
		101:                   int64(0),
		MailOwnerGroup:        f.OwnerGroup,
		MailOwnerEncSessKey:   f.EncSessionKey.Key,
		MailOwnerKeyVersion:   f.EncSessionKey.EncryptingKeyVersion,
		MailSubject:           "hello",
		MailUnread:            true,
		MailReceivedDate:      ReceivedDate,
		MailConfidential:      false,
		MailReplyType:         int64(0),
		MailSender:            []types.ParsedInstance{MailAddress("sender-1", "Alice", "alice@example.com")},
		MailFirstRecipient:    []types.ParsedInstance{},
		MailToRecipients:      []types.ParsedInstance{MailAddress("to-1", "Bob", "bob@example.com")},
		MailBody:              []any{},
		MailSets:              []any{},
		MailConversationEntry: []any{types.IdTuple{ListID: "conv", ElementID: "entry-1"}},
		MailBucketKey:         []types.ParsedInstance{},
		MailNotes:             nil,
	}
}

// MailAddress returns a decrypted MailAddress aggregate.
func MailAddress(id, name, address string, labels ...types.ParsedInstance) types.ParsedInstance {
	if labels == nil {
		labels = []types.ParsedInstance{}
	}
	return types.ParsedInstance{
		MailAddressID:      id,
		MailAddressName:    name,
		MailAddressAddress: address,
		MailAddressContact: []any{},
		MailAddressLabels:  labels,
	}
}

// Label returns a decrypted Label aggregate.
func Label(id, text string) types.ParsedInstance {
	return types.ParsedInstance{LabelID: id, LabelText: text, LabelColor: nil}
}

// MailBox returns an unencrypted MailBox holding the given folders.
func MailBox(id string, folders ...types.ParsedInstance) types.ParsedInstance {
	if folders == nil {
		folders = []types.ParsedInstance{}
	}
	return types.ParsedInstance{
		MailBoxID:         id,
		MailBoxOwnerGroup: "owner-group",
		MailBoxName:       "mailbox",
		MailBoxFolders:    folders,
	}
}

// FolderRef returns a FolderRef aggregate without a secret name.
func FolderRef(id, name string) types.ParsedInstance {
	return types.ParsedInstance{FolderRefID: id, FolderRefName: name, FolderRefSecretName: nil}
}

// EncryptValue encrypts native as the named value of ref with the session
// key, returning the patch wire form.
func (f *Fixture) EncryptValue(t testing.TB, ref types.TypeRef, id types.AttributeID, native any) *string {
	t.Helper()
	attribute, ok := f.Model(t, ref).Attribute(id)
	require.True(t, ok)
	require.True(t, attribute.IsValue())
	enc, err := codec.EncryptValue(*attribute.Value, native, f.SessionKey)
	require.NoError(t, err)
	if enc == nil {
		return nil
	}
	return types.StringPtr(enc.(string))
}

// WireAggregates renders aggregates of ref as the JSON array carried by an
// ADD_ITEM patch, encrypting their encrypted values with the session key.
func (f *Fixture) WireAggregates(t testing.TB, ref types.TypeRef, items ...types.ParsedInstance) *string {
	t.Helper()
	model := f.Model(t, ref)
	wire := make([]any, 0, len(items))
	for _, item := range items {
		w, err := f.Mapper.Encrypt(context.Background(), model, item, f.SessionKey)
		require.NoError(t, err)
		wire = append(wire, w)
	}
	data, err := json.Marshal(wire)
	require.NoError(t, err)
	return types.StringPtr(string(data))
}

// WireIDs renders ids as the JSON array carried by association patches.
// Tuples become two-element arrays.
func WireIDs(t testing.TB, ids ...any) *string {
	t.Helper()
	wire := make([]any, 0, len(ids))
	for _, id := range ids {
		if tuple, ok := id.(types.IdTuple); ok {
			wire = append(wire, []string{tuple.ListID, tuple.ElementID})
			continue
		}
		wire = append(wire, id)
	}
	data, err := json.Marshal(wire)
	require.NoError(t, err)
	return types.StringPtr(string(data))
}

// WriteModels copies the fixture model files into dir.
func WriteModels(t testing.TB, dir string) {
	t.Helper()
	entries, err := modelFiles.ReadDir("models")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, e := range entries {
		data, err := modelFiles.ReadFile(path.Join("models", e.Name()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, e.Name()), data, 0o644))
	}
}
