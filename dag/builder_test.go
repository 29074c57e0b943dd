package dag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/dagstore/cidutil"
)

func fileChunks(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf("File Chunk %d", i+1))
	}
	return out
}

func leavesOf(t *testing.T, chunks [][]byte) []Node {
	t.Helper()
	leaves, err := Leaves(context.Background(), chunks)
	require.NoError(t, err)
	return leaves
}

func TestBuild_FourLeaves(t *testing.T) {
	leaves := leavesOf(t, fileChunks(4))
	tree, err := Build(context.Background(), leaves, "png")
	require.NoError(t, err)

	assert.Equal(t, 3, tree.Depth())
	assert.Len(t, tree.Nodes, 7)

	root := tree.Root()
	require.Len(t, root.Links, 2)
	assert.Equal(t, []byte("png"), root.Data)
	assert.False(t, root.IsDuplicate)

	level1 := tree.Level(1)
	require.Len(t, level1, 2)
	assert.Equal(t, cidutil.Combine(leaves[0].CID, leaves[1].CID), level1[0].CID)
	assert.Equal(t, cidutil.Combine(leaves[2].CID, leaves[3].CID), level1[1].CID)
	assert.Equal(t, cidutil.Combine(level1[0].CID, level1[1].CID), root.CID)
	for _, n := range level1 {
		assert.Nil(t, n.Data)
	}
}

func TestBuild_FiveLeavesPadsWithDuplicate(t *testing.T) {
	leaves := leavesOf(t, fileChunks(5))
	tree, err := Build(context.Background(), leaves, "png")
	require.NoError(t, err)

	level0 := tree.Level(0)
	require.Len(t, level0, 6)
	pad := level0[5]
	assert.True(t, pad.IsDuplicate)
	assert.Equal(t, leaves[4].CID, pad.CID)
	assert.Equal(t, leaves[4].Data, pad.Data)
	assert.True(t, pad.IsLeaf())

	// 6 -> 3 (padded to 4) -> 2 -> 1
	assert.Equal(t, 4, tree.Depth())
	level1 := tree.Level(1)
	require.Len(t, level1, 4)
	assert.True(t, level1[3].IsDuplicate)
	assert.Equal(t, level1[2].CID, level1[3].CID)

	for i, n := range level0[:5] {
		assert.False(t, n.IsDuplicate, "leaf %d", i)
	}
}

func TestBuild_SingleLeaf(t *testing.T) {
	leaves := leavesOf(t, [][]byte{[]byte("only chunk")})
	tree, err := Build(context.Background(), leaves, "txt")
	require.NoError(t, err)

	assert.Equal(t, 2, tree.Depth())
	root := tree.Root()
	require.Len(t, root.Links, 2)
	assert.Equal(t, leaves[0].CID, root.Links[0])
	assert.Equal(t, leaves[0].CID, root.Links[1])
	assert.Equal(t, []byte("txt"), root.Data)
	// the leaf keeps its chunk bytes
	assert.Equal(t, []byte("only chunk"), tree.Nodes[0].Data)
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(context.Background(), leavesOf(t, fileChunks(9)), "bin")
	require.NoError(t, err)
	b, err := Build(context.Background(), leavesOf(t, fileChunks(9)), "bin")
	require.NoError(t, err)
	assert.Equal(t, a.Root().CID, b.Root().CID)
	assert.Equal(t, a.Nodes, b.Nodes)
}

func TestBuild_OrderMatters(t *testing.T) {
	chunks := fileChunks(4)
	a, err := Build(context.Background(), leavesOf(t, chunks), "bin")
	require.NoError(t, err)
	chunks[0], chunks[1] = chunks[1], chunks[0]
	b, err := Build(context.Background(), leavesOf(t, chunks), "bin")
	require.NoError(t, err)
	assert.NotEqual(t, a.Root().CID, b.Root().CID)
}

func TestBuild_LargeLevelParallel(t *testing.T) {
	leaves := leavesOf(t, fileChunks(301))
	tree, err := Build(context.Background(), leaves, "dat")
	require.NoError(t, err)
	for _, n := range tree.Nodes {
		require.NoError(t, VerifyNode(n))
	}
	// children always precede parents
	pos := map[string]int{}
	for i, n := range tree.Nodes {
		if _, ok := pos[n.Key()]; !ok {
			pos[n.Key()] = i
		}
		for _, l := range n.Links {
			p, ok := pos[l.String()]
			require.True(t, ok)
			assert.Less(t, p, i)
		}
	}
	assert.Equal(t, len(tree.Nodes)-1, tree.Levels[tree.Depth()-1][0])
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(context.Background(), nil, "png")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInput))
	assert.True(t, errors.Is(err, ErrEmptyLeaves))

	_, err = Build(context.Background(), leavesOf(t, fileChunks(2)), "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInput))
	assert.True(t, errors.Is(err, ErrInvalidExtension))

	parent := NewParent(NewLeaf([]byte("a")), NewLeaf([]byte("b")))
	_, err = Build(context.Background(), []Node{parent}, "png")
	assert.True(t, errors.Is(err, ErrInvalidLeaf))
}

func TestBuild_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, leavesOf(t, fileChunks(4)), "png")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTree_Unique(t *testing.T) {
	tree, err := Build(context.Background(), leavesOf(t, fileChunks(5)), "png")
	require.NoError(t, err)
	// 5 leaves + 3 level-1 + 2 level-2 + root; the two padding clones share keys
	assert.Len(t, tree.Nodes, 13)
	assert.Len(t, tree.Unique(), 11)
}
