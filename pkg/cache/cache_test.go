package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/patchcache/internal/testutil"
	"github.com/mesh-intelligence/patchcache/pkg/cache"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

func open(t *testing.T, f *testutil.Fixture, backend string) cache.Store {
	t.Helper()
	cfg := types.Config{Backend: backend, DataDir: t.TempDir(), InMemory: backend == types.BackendBadger}
	store, err := cache.Open(cfg, f.Registry, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRejectsBadConfig(t *testing.T) {
	f := testutil.NewFixture(t)

	_, err := cache.Open(types.Config{}, f.Registry, nil)
	assert.ErrorIs(t, err, types.ErrBackendEmpty)
	_, err = cache.Open(types.Config{Backend: "bolt"}, f.Registry, nil)
	assert.ErrorIs(t, err, types.ErrBackendUnknown)
}

func TestExportImportRoundTrip(t *testing.T) {
	backends := []string{types.BackendSQLite, types.BackendBadger}
	files := []string{"cache.jsonl", "cache.jsonl" + cache.CompressedSuffix}

	for _, backend := range backends {
		for _, name := range files {
			t.Run(backend+"/"+name, func(t *testing.T) {
				ctx := context.Background()
				f := testutil.NewFixture(t)
				src := open(t, f, backend)
				box := testutil.MailBox("box-1", testutil.FolderRef("f-1", "Inbox"))
				require.NoError(t, src.Put(ctx, testutil.MailRef, f.Mail("inbox", "m1")))
				require.NoError(t, src.Put(ctx, testutil.MailBoxRef, box))

				path := filepath.Join(t.TempDir(), name)
				n, err := cache.ExportJSONL(ctx, src, path)
				require.NoError(t, err)
				assert.Equal(t, 2, n)

				dst := open(t, f, backend)
				res, err := cache.ImportJSONL(ctx, dst, f.Registry, path, nil)
				require.NoError(t, err)
				assert.Equal(t, cache.ImportResult{Imported: 2}, res)

				got, err := dst.GetParsed(ctx, testutil.MailRef, "inbox", "m1")
				require.NoError(t, err)
				assert.Equal(t, f.Mail("inbox", "m1"), got)
				got, err = dst.GetParsed(ctx, testutil.MailBoxRef, "", "box-1")
				require.NoError(t, err)
				assert.Equal(t, box, got)
			})
		}
	}
}

func TestImportSkipsBadRecords(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	store := open(t, f, types.BackendSQLite)

	lines := []string{
		`not json`,
		`{"app":"nope","typeId":1,"elementId":"x","version":"1","body":{}}`,
		`{"app":"tutanota","typeId":126,"elementId":"l-1","version":"1","body":{"127":"l-1","128":"x","129":null}}`,
		`{"app":"tutanota","typeId":126,"elementId":"l-2","version":"91","body":{"127":"l-2"}}`,
		`{"app":"tutanota","typeId":150,"elementId":"b-1","version":"91","body":{"151":"b-1","152":"g","153":"box","154":[]}}`,
		``,
	}
	path := filepath.Join(t.TempDir(), "in.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))

	res, err := cache.ImportJSONL(ctx, store, f.Registry, path, nil)
	require.NoError(t, err)
	assert.Equal(t, cache.ImportResult{Imported: 1, Skipped: 3}, res)

	got, err := store.GetParsed(ctx, testutil.MailBoxRef, "", "b-1")
	require.NoError(t, err)
	assert.Equal(t, testutil.MailBox("b-1")[testutil.MailBoxFolders], got[testutil.MailBoxFolders])
}

func TestImportMissingFile(t *testing.T) {
	f := testutil.NewFixture(t)
	store := open(t, f, types.BackendSQLite)

	_, err := cache.ImportJSONL(context.Background(), store, f.Registry, filepath.Join(t.TempDir(), "missing.jsonl"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
