package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"xdao.co/dagstore/dag"
)

// NodeStore is the content-addressed node persistence contract.
//
// Contract:
//   - Put MUST be idempotent: writing a key that already exists is a no-op.
//   - Stored nodes MUST be immutable; there is no update or delete.
//   - Keys are the canonical CID string of the node.
//   - Get MUST return ErrNotFound when the key is absent, and a *dag.Error
//     for I/O, serialization or integrity failures.
type NodeStore interface {
	Put(ctx context.Context, n dag.Node) error
	Get(ctx context.Context, key string) (dag.Node, error)
	Has(ctx context.Context, key string) (bool, error)
}

// DefaultCacheSize is the number of decoded nodes kept by the read cache.
const DefaultCacheSize = 4096

// Options configures a Store.
type Options struct {
	// CacheSize bounds the decoded-node cache. Zero uses DefaultCacheSize,
	// a negative value disables the cache.
	CacheSize int
	// VerifyOnRead recomputes the CID binding of every node read from the
	// backend.
	VerifyOnRead bool
	Logger       *zap.Logger
	Registerer   prometheus.Registerer
}

// Store is the process-wide node store handle. It is safe for concurrent use.
type Store struct {
	backend Backend
	cache   *lru.Cache[string, dag.Node]
	verify  bool
	log     *zap.Logger
	metrics *Metrics

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ NodeStore = (*Store)(nil)

// New wraps backend into a Store. The Store owns backend and closes it.
func New(backend Backend, opts Options) (*Store, error) {
	if backend == nil {
		return nil, errors.New("storage: nil backend")
	}
	s := &Store{
		backend: backend,
		verify:  opts.VerifyOnRead,
		log:     opts.Logger,
		metrics: NewMetrics(opts.Registerer),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	if size > 0 {
		c, err := lru.New[string, dag.Node](size)
		if err != nil {
			return nil, err
		}
		s.cache = c
	}
	return s, nil
}

// Put persists n under its CID unless the key is already present.
// The node's CID binding is checked before anything is written.
func (s *Store) Put(ctx context.Context, n dag.Node) error {
	const op = "put"
	if s.closed.Load() {
		return dag.StoreError(op, "", ErrClosed)
	}
	if err := dag.VerifyNode(n); err != nil {
		return err
	}
	key := n.Key()
	val, err := EncodeRecord(n)
	if err != nil {
		return dag.StoreError(op, key, err)
	}
	stored, err := s.backend.PutIfAbsent(ctx, key, val)
	if err != nil {
		return dag.StoreError(op, key, err)
	}
	if !stored {
		s.metrics.DedupHits.Inc()
		s.log.Debug("node already stored", zap.String("cid", key))
		if isRoot(n) {
			return s.putRootMeta(ctx, key, n.Data)
		}
		return nil
	}
	s.metrics.NodesWritten.Inc()
	s.metrics.BytesWritten.Add(float64(len(val)))
	if s.cache != nil {
		s.cache.Add(key, n.Clone())
	}
	return nil
}

// PutAll persists nodes in order and stops at the first failure.
func (s *Store) PutAll(ctx context.Context, nodes []dag.Node) error {
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Put(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the node stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (dag.Node, error) {
	const op = "get"
	if s.closed.Load() {
		return dag.Node{}, dag.StoreError(op, key, ErrClosed)
	}
	if s.cache != nil {
		if n, ok := s.cache.Get(key); ok {
			s.metrics.Lookups.WithLabelValues("cache").Inc()
			return n.Clone(), nil
		}
	}
	b, err := s.backend.Get(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			s.metrics.Lookups.WithLabelValues("miss").Inc()
			return dag.Node{}, ErrNotFound
		}
		return dag.Node{}, dag.StoreError(op, key, err)
	}
	n, err := DecodeRecord(b)
	if err != nil {
		return dag.Node{}, dag.StoreError(op, key, err)
	}
	if n.Key() != key {
		return dag.Node{}, dag.IntegrityError(op, key, ErrCIDMismatch)
	}
	if s.verify {
		if err := dag.VerifyNode(n); err != nil {
			return dag.Node{}, err
		}
	}
	s.metrics.Lookups.WithLabelValues("hit").Inc()
	if s.cache != nil {
		s.cache.Add(key, n.Clone())
	}
	return n, nil
}

// Has reports whether a node is stored under key.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	if s.closed.Load() {
		return false, dag.StoreError("has", key, ErrClosed)
	}
	if s.cache != nil && s.cache.Contains(key) {
		return true, nil
	}
	ok, err := s.backend.Has(ctx, key)
	if err != nil {
		return false, dag.StoreError("has", key, err)
	}
	return ok, nil
}

// Len returns the number of backend records: one per distinct node plus one
// per root metadata record.
func (s *Store) Len(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, dag.StoreError("len", "", ErrClosed)
	}
	n, err := s.backend.Len(ctx)
	if err != nil {
		return 0, dag.StoreError("len", "", err)
	}
	return n, nil
}

// Close releases the backend. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cache != nil {
			s.cache.Purge()
		}
		s.closeErr = s.backend.Close()
	})
	return s.closeErr
}
