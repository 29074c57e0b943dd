package dag

import (
	"context"
	"runtime"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"
)

// parallelPairs is the level width below which parents are hashed inline.
const parallelPairs = 32

// Tree is the result of Build: an append-only arena of nodes and, per level,
// the arena positions of that level's nodes (padding clones included).
//
// Nodes is in persistence order: every node appears after all of its
// children, and the root is last.
type Tree struct {
	Nodes  []Node
	Levels [][]int
}

// Root returns the root node.
func (t *Tree) Root() Node {
	last := t.Levels[len(t.Levels)-1]
	return t.Nodes[last[0]]
}

// Depth is the number of levels, leaves included.
func (t *Tree) Depth() int { return len(t.Levels) }

// Level returns the nodes of level i; level 0 holds the leaves.
func (t *Tree) Level(i int) []Node {
	idx := t.Levels[i]
	out := make([]Node, len(idx))
	for j, k := range idx {
		out[j] = t.Nodes[k]
	}
	return out
}

// Unique returns the distinct CIDs in the tree, in persistence order.
func (t *Tree) Unique() []cid.Cid {
	seen := make(map[cid.Cid]struct{}, len(t.Nodes))
	out := make([]cid.Cid, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		if _, ok := seen[n.CID]; ok {
			continue
		}
		seen[n.CID] = struct{}{}
		out = append(out, n.CID)
	}
	return out
}

// Build reduces ordered leaves into a Merkle tree and attaches ext to the root.
//
// Pairing is strictly left to right, so identical leaves and extension always
// yield the same root CID. A lone leaf is padded like any odd level: the root
// is always an internal node and never overwrites chunk bytes.
func Build(ctx context.Context, leaves []Node, ext string) (*Tree, error) {
	const op = "build"
	if len(leaves) == 0 {
		return nil, InputError(op, ErrEmptyLeaves)
	}
	extData, err := EncodeExtension(ext)
	if err != nil {
		return nil, InputError(op, err)
	}

	t := &Tree{Nodes: make([]Node, 0, 2*len(leaves)+8)}
	current := make([]int, len(leaves))
	for i, l := range leaves {
		if !l.CID.Defined() || !l.IsLeaf() {
			return nil, InputError(op, ErrInvalidLeaf)
		}
		l.IsDuplicate = false
		current[i] = len(t.Nodes)
		t.Nodes = append(t.Nodes, l)
	}
	t.Levels = append(t.Levels, current)

	for len(current) > 1 || len(t.Levels) == 1 {
		if len(current)%2 == 1 {
			pad := t.Nodes[current[len(current)-1]].Clone()
			pad.IsDuplicate = true
			current = append(current, len(t.Nodes))
			t.Nodes = append(t.Nodes, pad)
			t.Levels[len(t.Levels)-1] = current
		}

		parents, err := hashPairs(ctx, t.Nodes, current)
		if err != nil {
			return nil, err
		}

		next := make([]int, len(parents))
		for i, p := range parents {
			next[i] = len(t.Nodes)
			t.Nodes = append(t.Nodes, p)
		}
		t.Levels = append(t.Levels, next)
		current = next
	}

	root := current[0]
	t.Nodes[root].Data = extData
	return t, nil
}

// hashPairs computes the parents of one level. All pairs of a level are
// independent; the caller waits for the whole level before reducing further.
func hashPairs(ctx context.Context, arena []Node, level []int) ([]Node, error) {
	parents := make([]Node, len(level)/2)
	if len(parents) < parallelPairs {
		for i := range parents {
			parents[i] = NewParent(arena[level[2*i]], arena[level[2*i+1]])
		}
		return parents, ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range parents {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parents[i] = NewParent(arena[level[2*i]], arena[level[2*i+1]])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parents, nil
}
