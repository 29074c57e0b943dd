package storage

import (
	"context"

	"go.uber.org/zap"

	"xdao.co/dagstore/dag"
)

// Fetcher resolves a node that is missing locally, typically from a peer.
// Fetch MUST return ErrNotFound when no source has the node.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (dag.Node, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key string) (dag.Node, error)

func (f FetcherFunc) Fetch(ctx context.Context, key string) (dag.Node, error) { return f(ctx, key) }

// MultiFetcher provides deterministic, ordered fallback across fetchers.
//
// Fetchers are tried in slice order; the first success wins. A not-found
// answer moves on to the next fetcher, any other error is returned at once.
type MultiFetcher []Fetcher

func (m MultiFetcher) Fetch(ctx context.Context, key string) (dag.Node, error) {
	for _, f := range m {
		n, err := f.Fetch(ctx, key)
		if err == nil {
			return n, nil
		}
		if IsNotFound(err) {
			continue
		}
		return dag.Node{}, err
	}
	return dag.Node{}, ErrNotFound
}

// FallbackStore reads from Local and, on a miss, asks Remote. Nodes obtained
// remotely are verified against the requested key and persisted locally.
// Writes go to Local only.
type FallbackStore struct {
	Local  NodeStore
	Remote Fetcher
	Logger *zap.Logger
}

var _ NodeStore = (*FallbackStore)(nil)

func (f *FallbackStore) Put(ctx context.Context, n dag.Node) error { return f.Local.Put(ctx, n) }

func (f *FallbackStore) Has(ctx context.Context, key string) (bool, error) {
	return f.Local.Has(ctx, key)
}

func (f *FallbackStore) Get(ctx context.Context, key string) (dag.Node, error) {
	n, err := f.Local.Get(ctx, key)
	if err == nil || !IsNotFound(err) || f.Remote == nil {
		return n, err
	}

	n, err = f.Remote.Fetch(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return dag.Node{}, ErrNotFound
		}
		return dag.Node{}, err
	}
	if n.Key() != key {
		return dag.Node{}, dag.IntegrityError("fetch", key, ErrCIDMismatch)
	}
	if err := dag.VerifyNode(n); err != nil {
		return dag.Node{}, err
	}
	if err := f.Local.Put(ctx, n); err != nil {
		return dag.Node{}, err
	}
	f.logger().Debug("fetched missing node", zap.String("cid", key))
	return n, nil
}

func (f *FallbackStore) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}
