package localfs

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunBackendConformance(t, func(t *testing.T) storage.Backend {
		t.Helper()
		b, err := New(t.TempDir())
		require.NoError(t, err)
		return b
	})
}

func TestLocalFS_RejectsPathKeys(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "a/b", ".hidden"} {
		_, err := b.PutIfAbsent(ctx, key, []byte("x"))
		assert.ErrorIs(t, err, storage.ErrInvalidCID, key)
	}
}

func TestLocalFS_StoreDetectsTamperedRecord(t *testing.T) {
	dir := t.TempDir()
	b, err := New(dir)
	require.NoError(t, err)
	s, err := storage.New(b, storage.Options{CacheSize: -1, VerifyOnRead: true})
	require.NoError(t, err)
	ctx := context.Background()

	leaf := dag.NewLeaf([]byte("original"))
	require.NoError(t, s.Put(ctx, leaf))

	// Corrupt the stored record out-of-band.
	path, err := b.pathFor(leaf.Key())
	require.NoError(t, err)
	tampered := leaf.Clone()
	tampered.Data = []byte("corrupted")
	raw, err := storage.EncodeRecord(tampered)
	require.NoError(t, err)
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = s.Get(ctx, leaf.Key())
	assert.True(t, dag.IsKind(err, dag.KindIntegrity))

	// Put must not "repair" or overwrite the stored object.
	require.NoError(t, s.Put(ctx, leaf))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}
