package dag

import (
	"context"
	"runtime"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"xdao.co/dagstore/cidutil"
)

// Node is one vertex of the Merkle DAG.
//
// Leaves carry chunk bytes and no links. Internal nodes carry the CIDs of
// their children, left to right, and no data. The root additionally carries
// the encoded file extension in Data. IsDuplicate marks the clone appended to
// pad an odd-sized level; its subtree is already reachable through its sibling.
type Node struct {
	CID         cid.Cid
	Data        []byte
	Links       []cid.Cid
	IsDuplicate bool
}

// IsLeaf reports whether n has no children.
func (n Node) IsLeaf() bool { return len(n.Links) == 0 }

// Key is the canonical string form of the node's CID, used as the store key.
func (n Node) Key() string { return n.CID.String() }

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	out := n
	if n.Data != nil {
		out.Data = append([]byte(nil), n.Data...)
	}
	if n.Links != nil {
		out.Links = append([]cid.Cid(nil), n.Links...)
	}
	return out
}

// NewLeaf wraps one chunk into a leaf node addressed by the hash of the chunk.
func NewLeaf(chunk []byte) Node {
	return Node{
		CID:  cidutil.Generate(chunk),
		Data: chunk,
	}
}

// NewParent joins two nodes under a parent addressed by the hash of their
// concatenated CIDs.
func NewParent(left, right Node) Node {
	return Node{
		CID:   cidutil.Combine(left.CID, right.CID),
		Links: []cid.Cid{left.CID, right.CID},
	}
}

// Leaves hashes every chunk into a leaf. Hashing runs in parallel; the result
// keeps the order of chunks.
func Leaves(ctx context.Context, chunks [][]byte) ([]Node, error) {
	out := make([]Node, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = NewLeaf(chunks[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
