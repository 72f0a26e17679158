package badger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/patchcache/internal/testutil"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

func attachMemory(t *testing.T, f *testutil.Fixture) *Backend {
	t.Helper()
	b := NewBackend(f.Registry, nil)
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendBadger, InMemory: true}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func TestAttachOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := testutil.NewFixture(t)
	cfg := types.Config{Backend: types.BackendBadger, DataDir: dir}

	b := NewBackend(f.Registry, nil)
	require.NoError(t, b.Attach(cfg))
	assert.ErrorIs(t, b.Attach(cfg), types.ErrAlreadyAttached)
	_, err := os.Stat(filepath.Join(dir, Dir))
	require.NoError(t, err)

	require.NoError(t, b.Put(ctx, testutil.MailRef, f.Mail("inbox", "m1")))
	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "second Detach is a no-op")

	require.NoError(t, b.Attach(cfg))
	defer b.Close()
	got, err := b.GetParsed(ctx, testutil.MailRef, "inbox", "m1")
	require.NoError(t, err)
	assert.Equal(t, f.Mail("inbox", "m1"), got)
}

func TestDetachedOperationsFail(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	b := NewBackend(f.Registry, nil)

	_, err := b.GetParsed(ctx, testutil.MailRef, "l", "e")
	assert.ErrorIs(t, err, types.ErrCacheDetached)
	assert.ErrorIs(t, b.Put(ctx, testutil.MailRef, f.Mail("l", "e")), types.ErrCacheDetached)
	assert.ErrorIs(t, b.Delete(ctx, testutil.MailRef, "l", "e"), types.ErrCacheDetached)
	_, err = b.Records(ctx)
	assert.ErrorIs(t, err, types.ErrCacheDetached)
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	b := attachMemory(t, f)
	mail := f.Mail("inbox", "m1")

	got, err := b.GetParsed(ctx, testutil.MailRef, "inbox", "m1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, b.Put(ctx, testutil.MailRef, mail))
	got, err = b.GetParsed(ctx, testutil.MailRef, "inbox", "m1")
	require.NoError(t, err)
	assert.Equal(t, mail, got)

	box := testutil.MailBox("box-1", testutil.FolderRef("f-1", "Inbox"))
	require.NoError(t, b.Put(ctx, testutil.MailBoxRef, box))
	got, err = b.GetParsed(ctx, testutil.MailBoxRef, "", "box-1")
	require.NoError(t, err)
	assert.Equal(t, box, got)

	require.NoError(t, b.Delete(ctx, testutil.MailRef, "inbox", "m1"))
	got, err = b.GetParsed(ctx, testutil.MailRef, "inbox", "m1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, b.Delete(ctx, testutil.MailRef, "inbox", "m1"))
}

func TestStaleVersionIsMiss(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	b := attachMemory(t, f)
	require.NoError(t, b.Put(ctx, testutil.MailRef, f.Mail("inbox", "m1")))

	key := instanceKey(testutil.MailRef, "inbox", "m1")
	require.NoError(t, b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var rec types.CacheRecord
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
			return err
		}
		rec.Version = "90"
		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	}))

	got, err := b.GetParsed(ctx, testutil.MailRef, "inbox", "m1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecords(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	b := attachMemory(t, f)
	for _, id := range []string{"m2", "m1"} {
		require.NoError(t, b.Put(ctx, testutil.MailRef, f.Mail("inbox", id)))
	}

	records, err := b.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "m1", records[0].ElementID)
	assert.Equal(t, "m2", records[1].ElementID)
	assert.Equal(t, testutil.MailRef, records[0].Ref())
	assert.Equal(t, "91", records[0].Version)

	inst, err := f.Mapper.DecodeJSON(ctx, f.Model(t, testutil.MailRef), records[1].Body)
	require.NoError(t, err)
	assert.Equal(t, f.Mail("inbox", "m2"), inst)
}

func TestCanceledContext(t *testing.T) {
	f := testutil.NewFixture(t)
	b := attachMemory(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, b.Delete(ctx, testutil.MailRef, "l", "e"), context.Canceled)
}
