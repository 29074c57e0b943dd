// Package reassembler rebuilds a stored file from its root CID.
//
// Traversal is breadth-first from the root's children, left to right, so
// leaves are met in the order their bytes appeared in the original file.
// Each CID is visited at most once: padding clones (and any other node whose
// CID was already seen) are neither expanded nor collected again.
package reassembler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/storage"
)

// Traversal defaults used for zero Limits and Options fields.
const (
	DefaultMaxNodes    = 1 << 22
	DefaultMaxDepth    = 64
	DefaultConcurrency = 8
)

// ErrNotRoot is returned when the requested CID names a leaf.
var ErrNotRoot = errors.New("node has no links")

// Limits bound a single traversal. Zero fields use the defaults.
type Limits struct {
	MaxNodes int
	MaxDepth int
}

func (l Limits) withDefaults() Limits {
	if l.MaxNodes <= 0 {
		l.MaxNodes = DefaultMaxNodes
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	return l
}

// Options configures a Reassembler. The zero value is usable.
type Options struct {
	Limits Limits
	// Concurrency is the number of node fetches in flight while a BFS level
	// is loaded. 1 fetches strictly one node at a time.
	Concurrency int
	Logger      *zap.Logger
	Metrics     *Metrics
}

// Result is a reassembled file.
type Result struct {
	Data      []byte
	Extension string
	// Leaves is the number of leaf chunks concatenated into Data.
	Leaves int
}

// Reassembler rebuilds files from a NodeStore. It is safe for concurrent
// use; each call keeps its own traversal state.
type Reassembler struct {
	store   storage.NodeStore
	limits  Limits
	workers int
	log     *zap.Logger
	metrics *Metrics
}

// New returns a Reassembler reading from store. Wrap store in a
// storage.FallbackStore to fetch missing nodes from peers.
func New(store storage.NodeStore, opts Options) *Reassembler {
	r := &Reassembler{
		store:   store,
		limits:  opts.Limits.withDefaults(),
		workers: opts.Concurrency,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	if r.workers <= 0 {
		r.workers = DefaultConcurrency
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	return r
}

// VisitFunc is called once per distinct node below the root, in BFS order.
// depth is 1 for the root's children.
type VisitFunc func(n dag.Node, depth int) error

// Reassemble returns the original bytes and extension of the file rooted at
// root. Nothing is returned unless every reachable node was found.
func (r *Reassembler) Reassemble(ctx context.Context, root string) (Result, error) {
	const op = "reassemble"
	start := time.Now()

	var (
		chunks [][]byte
		size   int
	)
	rootNode, err := r.walk(ctx, op, root, func(n dag.Node, _ int) error {
		if n.IsLeaf() {
			chunks = append(chunks, n.Data)
			size += len(n.Data)
		}
		return nil
	})
	if err != nil {
		r.metrics.observe(err, start)
		return Result{}, err
	}

	ext, err := dag.DecodeExtension(rootNode.Data)
	if err != nil {
		err = &dag.Error{Kind: dag.KindIntegrity, Op: op, CID: rootNode.Key(), Cause: err}
		r.metrics.observe(err, start)
		return Result{}, err
	}

	data := make([]byte, 0, size)
	for _, c := range chunks {
		data = append(data, c...)
	}
	r.metrics.observe(nil, start)
	r.metrics.BytesOut.Add(float64(len(data)))
	r.log.Debug("reassembled",
		zap.String("root", rootNode.Key()),
		zap.Int("leaves", len(chunks)),
		zap.Int("bytes", len(data)),
	)
	return Result{Data: data, Extension: ext, Leaves: len(chunks)}, nil
}

// Walk visits the DAG under root without collecting data and returns the
// root node.
func (r *Reassembler) Walk(ctx context.Context, root string, fn VisitFunc) (dag.Node, error) {
	return r.walk(ctx, "walk", root, fn)
}

func (r *Reassembler) walk(ctx context.Context, op, root string, fn VisitFunc) (dag.Node, error) {
	id, err := cidutil.Parse(root)
	if err != nil {
		return dag.Node{}, &dag.Error{Kind: dag.KindInput, Op: op, CID: root, Cause: err}
	}
	key := id.String()

	rootNode, err := storage.GetRoot(ctx, r.store, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return dag.Node{}, dag.NotFoundError(op, key, dag.ErrRootNotFound)
		}
		return dag.Node{}, asDagError(op, key, err)
	}
	if rootNode.IsLeaf() {
		return dag.Node{}, &dag.Error{Kind: dag.KindInput, Op: op, CID: key, Cause: ErrNotRoot}
	}

	seen := map[cid.Cid]struct{}{rootNode.CID: {}}
	visited := 1
	frontier := append([]cid.Cid(nil), rootNode.Links...)

	for depth := 1; len(frontier) > 0; depth++ {
		if depth > r.limits.MaxDepth {
			return dag.Node{}, dag.IntegrityError(op, key,
				fmt.Errorf("%w: depth above %d", dag.ErrTraversalLimit, r.limits.MaxDepth))
		}

		// Drop CIDs already visited or queued earlier in this level.
		level := frontier[:0:0]
		for _, c := range frontier {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			level = append(level, c)
		}
		visited += len(level)
		if visited > r.limits.MaxNodes {
			return dag.Node{}, dag.IntegrityError(op, key,
				fmt.Errorf("%w: more than %d nodes", dag.ErrTraversalLimit, r.limits.MaxNodes))
		}

		nodes, err := r.fetchLevel(ctx, op, level)
		if err != nil {
			return dag.Node{}, err
		}

		frontier = nil
		for _, n := range nodes {
			r.metrics.NodesVisited.Inc()
			if fn != nil {
				if err := fn(n, depth); err != nil {
					return dag.Node{}, err
				}
			}
			if n.IsDuplicate {
				continue
			}
			frontier = append(frontier, n.Links...)
		}
	}
	return rootNode, nil
}

// fetchLevel loads every node of one BFS level. Fetches may run
// concurrently; the result keeps the order of ids.
func (r *Reassembler) fetchLevel(ctx context.Context, op string, ids []cid.Cid) ([]dag.Node, error) {
	out := make([]dag.Node, len(ids))
	get := func(ctx context.Context, i int) error {
		key := ids[i].String()
		n, err := r.store.Get(ctx, key)
		if err != nil {
			if storage.IsNotFound(err) {
				return dag.NotFoundError(op, key, dag.ErrNodeNotFound)
			}
			return asDagError(op, key, err)
		}
		if n.CID != ids[i] {
			return dag.IntegrityError(op, key, dag.ErrCIDMismatch)
		}
		out[i] = n
		return nil
	}

	if r.workers == 1 || len(ids) == 1 {
		for i := range ids {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := get(ctx, i); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return get(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func asDagError(op, key string, err error) error {
	var de *dag.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return dag.StoreError(op, key, err)
}
