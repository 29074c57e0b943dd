package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/storage"
)

// Client talks to a peer's node exchange service. It implements
// storage.Fetcher, so it can back a storage.FallbackStore.
type Client struct {
	cc     *grpc.ClientConn
	client NodeExchangeClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ storage.Fetcher = (*Client)(nil)

// DialOptions configures Dial. Zero fields use defaults.
type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

// Dial connects to the peer at target.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection. The caller keeps ownership of cc.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewNodeExchangeClient(cc)}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Fetch returns the single node stored under key on the peer, verified
// against key.
func (c *Client) Fetch(ctx context.Context, key string) (dag.Node, error) {
	id, err := cidutil.Parse(key)
	if err != nil {
		return dag.Node{}, storage.ErrInvalidCID
	}
	nodes, err := c.fetch(ctx, id, Single)
	if err != nil {
		return dag.Node{}, err
	}
	if len(nodes) != 1 || nodes[0].CID != id {
		return dag.Node{}, dag.IntegrityError("fetch", key, storage.ErrCIDMismatch)
	}
	return nodes[0], nil
}

// FetchDAG returns every node reachable from root, root first, each
// verified against its CID.
func (c *Client) FetchDAG(ctx context.Context, root string) ([]dag.Node, error) {
	id, err := cidutil.Parse(root)
	if err != nil {
		return nil, storage.ErrInvalidCID
	}
	nodes, err := c.fetch(ctx, id, Full)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 || nodes[0].CID != id {
		return nil, dag.IntegrityError("fetch", root, storage.ErrCIDMismatch)
	}
	return nodes, nil
}

// Has asks the peer whether it stores key.
func (c *Client) Has(ctx context.Context, key string) (bool, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(key))
	if err != nil {
		return false, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) fetch(ctx context.Context, id cid.Cid, depth Depth) ([]dag.Node, error) {
	if c == nil || c.client == nil {
		return nil, storage.ErrNotFound
	}
	req, err := marshal(Request{CID: id.String(), Depth: depth})
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Fetch(ctx, wrapperspb.Bytes(req))
	if err != nil {
		return nil, mapRPC(err)
	}
	var resp Response
	if err := unmarshal(reply.GetValue(), &resp); err != nil {
		return nil, fmt.Errorf("peer: decode response: %w", err)
	}
	nodes := make([]dag.Node, len(resp.Nodes))
	for i, w := range resp.Nodes {
		n, err := fromWire(w)
		if err != nil {
			return nil, err
		}
		if err := dag.VerifyNode(n); err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
