// Package memstore is an in-memory node store backend built on a go-datastore
// MapDatastore. It is meant for tests and short-lived processes.
package memstore

import (
	"context"
	"errors"
	"sync"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"

	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "memory",
		Description: "In-memory backend (not persisted)",
		Open: func(registry.OpenOptions) (storage.Backend, error) {
			return New(), nil
		},
	})
}

// Backend keeps records in a MapDatastore. A single RWMutex guards it so
// PutIfAbsent is atomic.
type Backend struct {
	mu     sync.RWMutex
	ds     *ds.MapDatastore
	closed bool
}

var _ storage.Backend = (*Backend)(nil)

// New returns an empty in-memory backend.
func New() *Backend {
	return &Backend{ds: ds.NewMapDatastore()}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, storage.ErrClosed
	}
	v, err := b.ds.Get(ctx, ds.NewKey(key))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v...), nil
}

func (b *Backend) Has(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false, storage.ErrClosed
	}
	return b.ds.Has(ctx, ds.NewKey(key))
}

func (b *Backend) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, storage.ErrClosed
	}
	k := ds.NewKey(key)
	ok, err := b.ds.Has(ctx, k)
	if err != nil || ok {
		return false, err
	}
	if err := b.ds.Put(ctx, k, append([]byte(nil), value...)); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Backend) Len(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, storage.ErrClosed
	}
	res, err := b.ds.Query(ctx, query.Query{KeysOnly: true})
	if err != nil {
		return 0, err
	}
	entries, err := res.Rest()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.ds.Close()
}
