package reassembler

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/memstore"
)

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.New(memstore.New(), storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func buildTree(t *testing.T, chunks [][]byte, ext string) *dag.Tree {
	t.Helper()
	leaves, err := dag.Leaves(context.Background(), chunks)
	require.NoError(t, err)
	tree, err := dag.Build(context.Background(), leaves, ext)
	require.NoError(t, err)
	return tree
}

func storeChunks(t *testing.T, s storage.NodeStore, chunks [][]byte, ext string) *dag.Tree {
	t.Helper()
	tree := buildTree(t, chunks, ext)
	for _, n := range tree.Nodes {
		require.NoError(t, s.Put(context.Background(), n))
	}
	return tree
}

func numbered(n int, format string) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf(format, i+1))
	}
	return out
}

func TestReassemble_FourChunks(t *testing.T) {
	s := newStore(t)
	chunks := numbered(4, "File Chunk %d")
	tree := storeChunks(t, s, chunks, "png")

	assert.Equal(t, 3, tree.Depth())
	assert.Len(t, tree.Root().Links, 2)

	res, err := New(s, Options{}).Reassemble(context.Background(), tree.Root().Key())
	require.NoError(t, err)
	assert.Equal(t, bytes.Join(chunks, nil), res.Data)
	assert.Equal(t, "png", res.Extension)
	assert.Equal(t, 4, res.Leaves)
}

func TestReassemble_OddLeavesNotDoubleCounted(t *testing.T) {
	s := newStore(t)
	chunks := numbered(5, "chunk-%02d")
	tree := storeChunks(t, s, chunks, "bin")

	level0 := tree.Level(0)
	require.Len(t, level0, 6)
	assert.True(t, level0[5].IsDuplicate)
	assert.Equal(t, level0[4].CID, level0[5].CID)

	res, err := New(s, Options{}).Reassemble(context.Background(), tree.Root().Key())
	require.NoError(t, err)
	assert.Equal(t, bytes.Join(chunks, nil), res.Data)
	assert.Equal(t, 5, res.Leaves)
}

func TestReassemble_SingleChunk(t *testing.T) {
	s := newStore(t)
	tree := storeChunks(t, s, [][]byte{[]byte("only")}, ".txt")

	res, err := New(s, Options{}).Reassemble(context.Background(), tree.Root().Key())
	require.NoError(t, err)
	assert.Equal(t, []byte("only"), res.Data)
	assert.Equal(t, "txt", res.Extension)
}

func TestReassemble_RepeatedChunkCollectedOnce(t *testing.T) {
	s := newStore(t)
	a, b, c := []byte("aaaa"), []byte("bbbb"), []byte("cccc")
	tree := storeChunks(t, s, [][]byte{a, b, a, c}, "dat")

	res, err := New(s, Options{}).Reassemble(context.Background(), tree.Root().Key())
	require.NoError(t, err)
	assert.Equal(t, []byte("aaaabbbbcccc"), res.Data)
	assert.Equal(t, 3, res.Leaves)
}

func TestReassemble_ManyLeavesMatchesSequential(t *testing.T) {
	s := newStore(t)
	chunks := numbered(301, "block %04d|")
	tree := storeChunks(t, s, chunks, "log")
	want := bytes.Join(chunks, nil)

	for _, workers := range []int{1, 4, 32} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			res, err := New(s, Options{Concurrency: workers}).Reassemble(context.Background(), tree.Root().Key())
			require.NoError(t, err)
			assert.Equal(t, want, res.Data)
			assert.Equal(t, 301, res.Leaves)
		})
	}
}

func TestReassemble_UnknownRoot(t *testing.T) {
	s := newStore(t)
	_, err := New(s, Options{}).Reassemble(context.Background(), cidutil.CIDv1RawSHA256([]byte("never stored")))
	require.Error(t, err)
	assert.True(t, dag.IsKind(err, dag.KindNotFound))
	assert.ErrorIs(t, err, dag.ErrRootNotFound)
}

func TestReassemble_MissingDescendant(t *testing.T) {
	s := newStore(t)
	chunks := numbered(4, "part %d")
	tree := buildTree(t, chunks, "txt")
	missing := tree.Level(0)[2].CID
	for _, n := range tree.Nodes {
		if n.CID == missing {
			continue
		}
		require.NoError(t, s.Put(context.Background(), n))
	}

	res, err := New(s, Options{}).Reassemble(context.Background(), tree.Root().Key())
	require.Error(t, err)
	assert.True(t, dag.IsKind(err, dag.KindNotFound))
	assert.ErrorIs(t, err, dag.ErrNodeNotFound)
	assert.Nil(t, res.Data)

	var de *dag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, missing.String(), de.CID)
}

func TestReassemble_InvalidInput(t *testing.T) {
	s := newStore(t)
	r := New(s, Options{})

	_, err := r.Reassemble(context.Background(), "not-a-cid")
	assert.True(t, dag.IsKind(err, dag.KindInput))

	leaf := dag.NewLeaf([]byte("just a leaf"))
	require.NoError(t, s.Put(context.Background(), leaf))
	_, err = r.Reassemble(context.Background(), leaf.Key())
	assert.True(t, dag.IsKind(err, dag.KindInput))
	assert.ErrorIs(t, err, ErrNotRoot)
}

func TestReassemble_Limits(t *testing.T) {
	s := newStore(t)
	tree := storeChunks(t, s, numbered(8, "c%d"), "bin")
	root := tree.Root().Key()

	tests := []struct {
		name   string
		limits Limits
	}{
		{"nodes", Limits{MaxNodes: 4}},
		{"depth", Limits{MaxDepth: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(s, Options{Limits: tt.limits}).Reassemble(context.Background(), root)
			require.Error(t, err)
			assert.True(t, dag.IsKind(err, dag.KindIntegrity))
			assert.ErrorIs(t, err, dag.ErrTraversalLimit)
		})
	}

	_, err := New(s, Options{Limits: Limits{MaxNodes: 15, MaxDepth: 3}}).Reassemble(context.Background(), root)
	assert.NoError(t, err)
}

func TestReassemble_FallsBackToFetcher(t *testing.T) {
	remote := newStore(t)
	chunks := numbered(6, "remote chunk %d")
	tree := storeChunks(t, remote, chunks, "bin")

	local := newStore(t)
	require.NoError(t, local.Put(context.Background(), tree.Root()))

	fs := &storage.FallbackStore{
		Local: local,
		Remote: storage.FetcherFunc(func(ctx context.Context, key string) (dag.Node, error) {
			return remote.Get(ctx, key)
		}),
	}
	res, err := New(fs, Options{}).Reassemble(context.Background(), tree.Root().Key())
	require.NoError(t, err)
	assert.Equal(t, bytes.Join(chunks, nil), res.Data)

	for _, id := range tree.Unique() {
		ok, err := local.Has(context.Background(), id.String())
		require.NoError(t, err)
		assert.True(t, ok, "node %s persisted locally", id)
	}
}

func TestWalk_VisitsEachNodeOnceInBFSOrder(t *testing.T) {
	s := newStore(t)
	tree := storeChunks(t, s, numbered(5, "w%d"), "bin")

	var depths []int
	var keys []string
	root, err := New(s, Options{Concurrency: 1}).Walk(context.Background(), tree.Root().Key(), func(n dag.Node, depth int) error {
		depths = append(depths, depth)
		keys = append(keys, n.Key())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, tree.Root().CID, root.CID)

	// Distinct nodes below the root: 5 leaves, 3 level-1 parents, 2 level-2 parents.
	assert.Len(t, keys, 10)
	assert.Equal(t, len(tree.Unique())-1, len(keys))
	for i := 1; i < len(depths); i++ {
		assert.LessOrEqual(t, depths[i-1], depths[i])
	}
}

func TestReassemble_Canceled(t *testing.T) {
	s := newStore(t)
	tree := storeChunks(t, s, numbered(4, "x%d"), "bin")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(s, Options{Concurrency: 1}).Reassemble(ctx, tree.Root().Key())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReassemble_RootWithoutExtension(t *testing.T) {
	s := newStore(t)
	tree := buildTree(t, numbered(4, "part-%d"), "txt")
	for _, n := range tree.Nodes {
		if n.CID == tree.Root().CID {
			n.Data = nil
		}
		require.NoError(t, s.Put(context.Background(), n))
	}

	res, err := New(s, Options{}).Reassemble(context.Background(), tree.Root().Key())
	assert.True(t, dag.IsKind(err, dag.KindIntegrity), "%v", err)
	assert.ErrorIs(t, err, dag.ErrInvalidExtension)
	assert.Empty(t, res.Data)
}
