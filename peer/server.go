package peer

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/storage"
)

const (
	DefaultMaxNodes = 1 << 16
	DefaultMaxBytes = 64 << 20
)

// Server exposes a storage.NodeStore over the node exchange service.
type Server struct {
	UnimplementedNodeExchangeServer
	Store storage.NodeStore
	// MaxNodes and MaxBytes bound a Full response. Zero uses the defaults.
	MaxNodes int
	MaxBytes int
	Logger   *zap.Logger
}

// Fetch serves one node, or the whole DAG under it for a Full request.
func (s *Server) Fetch(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing node store")
	}
	var req Request
	if err := unmarshal(in.GetValue(), &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}
	id, err := cidutil.Parse(req.CID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}

	var nodes []dag.Node
	switch req.Depth {
	case Single:
		n, err := s.get(ctx, id, true)
		if err != nil {
			return nil, mapErr(err)
		}
		nodes = []dag.Node{n}
	case Full:
		nodes, err = s.collect(ctx, id)
		if err != nil {
			return nil, mapErr(err)
		}
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown depth %d", req.Depth)
	}

	resp := Response{Nodes: make([]WireNode, len(nodes))}
	for i, n := range nodes {
		resp.Nodes[i] = toWire(n)
	}
	b, err := marshal(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	s.logger().Debug("served fetch",
		zap.String("cid", id.String()),
		zap.Stringer("depth", req.Depth),
		zap.Int("nodes", len(nodes)),
	)
	return wrapperspb.Bytes(b), nil
}

// Has reports whether the served store holds the requested CID.
func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing node store")
	}
	id, err := cidutil.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	ok, err := s.Store.Has(ctx, id.String())
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bool(ok), nil
}

// get loads id from the store. The requested node is read as a root so a
// root stored over an internal node keeps its extension.
func (s *Server) get(ctx context.Context, id cid.Cid, requested bool) (dag.Node, error) {
	var (
		n   dag.Node
		err error
	)
	if requested {
		n, err = storage.GetRoot(ctx, s.Store, id.String())
	} else {
		n, err = s.Store.Get(ctx, id.String())
	}
	if err != nil {
		return dag.Node{}, err
	}
	// Never hand out a node that does not match its key.
	if err := dag.VerifyNode(n); err != nil {
		return dag.Node{}, err
	}
	return n, nil
}

// collect returns the distinct nodes reachable from id in breadth-first
// order, id first.
func (s *Server) collect(ctx context.Context, id cid.Cid) ([]dag.Node, error) {
	maxNodes, maxBytes := s.MaxNodes, s.MaxBytes
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	var (
		out   []dag.Node
		size  int
		seen  = map[cid.Cid]struct{}{id: {}}
		queue = []cid.Cid{id}
	)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := queue[0]
		queue = queue[1:]

		n, err := s.get(ctx, next, next == id)
		if err != nil {
			return nil, err
		}
		size += len(n.Data)
		out = append(out, n)
		if len(out) > maxNodes || size > maxBytes {
			return nil, fmt.Errorf("%w: response above %d nodes or %d bytes", dag.ErrTraversalLimit, maxNodes, maxBytes)
		}
		for _, l := range n.Links {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			queue = append(queue, l)
		}
	}
	return out, nil
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
