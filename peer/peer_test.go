package peer

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/filestore"
	"xdao.co/dagstore/reassembler"
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

func startPeer(t *testing.T, srv *Server) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	RegisterNodeExchangeServer(gs, srv)
	go func() {
		_ = gs.Serve(lis)
	}()
	t.Cleanup(gs.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })

	c := NewClient(cc)
	c.Timeout = 2 * time.Second
	return c
}

var payload = []byte("a file that lives on another peer, split into a handful of chunks")

func seed(t *testing.T) (*storage.Store, string) {
	t.Helper()
	s := newStore(t)
	root, err := filestore.New(s, filestore.Options{ChunkSize: 7}).StoreFile(context.Background(), payload, "txt")
	require.NoError(t, err)
	return s, root.String()
}

func TestClient_FetchSingle(t *testing.T) {
	remote, root := seed(t)
	c := startPeer(t, &Server{Store: remote})

	n, err := c.Fetch(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, root, n.Key())
	assert.Len(t, n.Links, 2)
	assert.Equal(t, []byte("txt"), n.Data)

	ok, err := c.Has(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, ok)

	missing := cidutil.CIDv1RawSHA256([]byte("missing"))
	_, err = c.Fetch(context.Background(), missing)
	assert.True(t, storage.IsNotFound(err))

	ok, err = c.Has(context.Background(), missing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Has(context.Background(), "garbage")
	assert.ErrorIs(t, err, storage.ErrInvalidCID)
}

func TestClient_FetchDAG(t *testing.T) {
	remote, root := seed(t)
	c := startPeer(t, &Server{Store: remote})

	nodes, err := c.FetchDAG(context.Background(), root)
	require.NoError(t, err)
	require.NotEmpty(t, nodes)
	assert.Equal(t, root, nodes[0].Key())

	seen := map[string]bool{}
	for _, n := range nodes {
		assert.False(t, seen[n.Key()], "duplicate %s", n.Key())
		seen[n.Key()] = true
	}
	count, err := remote.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, count, len(nodes))
}

func TestServer_FullLimit(t *testing.T) {
	remote, root := seed(t)
	c := startPeer(t, &Server{Store: remote, MaxNodes: 3})

	_, err := c.FetchDAG(context.Background(), root)
	assert.ErrorIs(t, err, dag.ErrTraversalLimit)
}

func TestPull(t *testing.T) {
	remote, root := seed(t)
	c := startPeer(t, &Server{Store: remote})
	local := newStore(t)

	n, err := Pull(context.Background(), c, root, local, nil)
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	res, err := reassembler.New(local, reassembler.Options{}).Reassemble(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, payload, res.Data)
	assert.Equal(t, "txt", res.Extension)

	_, err = Pull(context.Background(), c, cidutil.CIDv1RawSHA256([]byte("nope")), local, nil)
	assert.True(t, dag.IsKind(err, dag.KindNotFound))
}

func TestPull_RootSharedWithInternalNode(t *testing.T) {
	ctx := context.Background()
	remote := newStore(t)
	fs := filestore.New(remote, filestore.Options{ChunkSize: 4})
	long, err := fs.StoreFile(ctx, []byte("xxxxyyyyzzzzwwww"), "bin")
	require.NoError(t, err)
	short, err := fs.StoreFile(ctx, []byte("xxxxyyyy"), "png")
	require.NoError(t, err)

	c := startPeer(t, &Server{Store: remote})
	n, err := c.Fetch(ctx, short.String())
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), n.Data)

	local := newStore(t)
	_, err = Pull(ctx, c, long.String(), local, nil)
	require.NoError(t, err)
	_, err = Pull(ctx, c, short.String(), local, nil)
	require.NoError(t, err)

	res, err := reassembler.New(local, reassembler.Options{}).Reassemble(ctx, short.String())
	require.NoError(t, err)
	assert.Equal(t, []byte("xxxxyyyy"), res.Data)
	assert.Equal(t, "png", res.Extension)
}

func TestClient_BacksFallbackStore(t *testing.T) {
	remote, root := seed(t)
	c := startPeer(t, &Server{Store: remote})

	local := newStore(t)
	fs := &storage.FallbackStore{Local: local, Remote: storage.MultiFetcher{c}}
	res, err := reassembler.New(fs, reassembler.Options{}).Reassemble(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, res.Data))

	ok, err := local.Has(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, ok)
}

// corruptStore hands out a node whose data no longer matches its CID.
type corruptStore struct{ storage.NodeStore }

func (c corruptStore) Get(ctx context.Context, key string) (dag.Node, error) {
	n, err := c.NodeStore.Get(ctx, key)
	if err != nil {
		return n, err
	}
	if n.IsLeaf() {
		n.Data = append(n.Data, '!')
	}
	return n, nil
}

func TestServer_RefusesCorruptNode(t *testing.T) {
	s := newStore(t)
	leaf := dag.NewLeaf([]byte("clean"))
	require.NoError(t, s.Put(context.Background(), leaf))
	c := startPeer(t, &Server{Store: corruptStore{s}})

	_, err := c.Fetch(context.Background(), leaf.Key())
	assert.ErrorIs(t, err, storage.ErrCIDMismatch)
}

func TestWire_Deterministic(t *testing.T) {
	n := dag.NewParent(dag.NewLeaf([]byte("l")), dag.NewLeaf([]byte("r")))
	n.Data = []byte("bin")

	a, err := marshal(Response{Nodes: []WireNode{toWire(n)}})
	require.NoError(t, err)
	b, err := marshal(Response{Nodes: []WireNode{toWire(n.Clone())}})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var resp Response
	require.NoError(t, unmarshal(a, &resp))
	got, err := fromWire(resp.Nodes[0])
	require.NoError(t, err)
	assert.Equal(t, n.CID, got.CID)
	assert.Equal(t, n.Links, got.Links)
	assert.Equal(t, n.Data, got.Data)
}
