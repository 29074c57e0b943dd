package peer

import (
	"context"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/storage"
)

// Pull copies the whole DAG under root from c into dst and returns the
// number of nodes received.
//
// The response is checked for completeness before anything is written, and
// nodes are written children first with the root last, so dst never holds
// an addressable root without its subtree.
func Pull(ctx context.Context, c *Client, root string, dst storage.NodeStore, log *zap.Logger) (int, error) {
	const op = "pull"
	if log == nil {
		log = zap.NewNop()
	}
	nodes, err := c.FetchDAG(ctx, root)
	if err != nil {
		if storage.IsNotFound(err) {
			return 0, dag.NotFoundError(op, root, dag.ErrRootNotFound)
		}
		return 0, err
	}

	have := make(map[cid.Cid]struct{}, len(nodes))
	for _, n := range nodes {
		have[n.CID] = struct{}{}
	}
	for _, n := range nodes {
		for _, l := range n.Links {
			if _, ok := have[l]; !ok {
				return 0, dag.NotFoundError(op, l.String(), ErrIncomplete)
			}
		}
	}

	for i := len(nodes) - 1; i >= 0; i-- {
		if err := dst.Put(ctx, nodes[i]); err != nil {
			return 0, err
		}
	}
	log.Info("pulled dag", zap.String("root", root), zap.Int("nodes", len(nodes)))
	return len(nodes), nil
}
