// Package badgerstore is the persistent node store backend, built on BadgerDB.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/registry"
)

var (
	flagSyncWrites bool
	flagInMemory   bool
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "badger",
		Description: "BadgerDB key-value backend",
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.BoolVar(&flagSyncWrites, "badger-sync-writes", true, "fsync every badger write (for --backend=badger)")
			fs.BoolVar(&flagInMemory, "badger-in-memory", false, "keep badger data in memory only (for --backend=badger)")
		},
		Open: func(opts registry.OpenOptions) (storage.Backend, error) {
			return Open(Options{
				Path:       opts.Path,
				InMemory:   flagInMemory,
				SyncWrites: flagSyncWrites,
				Logger:     opts.Logger,
			})
		},
	})
}

// maxConflictRetries bounds PutIfAbsent retries after a transaction conflict.
const maxConflictRetries = 3

// Options configures Open.
type Options struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger
}

// Backend stores records in a single BadgerDB keyspace keyed by CID string.
type Backend struct {
	db  *badgerdb.DB
	log *zap.Logger

	closing int32
	writeWg sync.WaitGroup
}

var _ storage.Backend = (*Backend)(nil)

// Open opens (or creates) the database.
func Open(opts Options) (*Backend, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var bopts badgerdb.Options
	if opts.InMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("badgerstore: path is required")
		}
		if err := os.MkdirAll(opts.Path, 0o700); err != nil {
			return nil, err
		}
		bopts = badgerdb.DefaultOptions(opts.Path).WithSyncWrites(opts.SyncWrites)
	}
	bopts = bopts.
		WithLogger(newBadgerLogger(log)).
		WithValueLogFileSize(64 << 20).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20).
		WithNumMemtables(2)

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %q: %w", opts.Path, err)
	}
	log.Info("badger store opened", zap.String("path", opts.Path), zap.Bool("in_memory", opts.InMemory))
	return &Backend{db: db, log: log}, nil
}

func (b *Backend) beginWrite() (func(), error) {
	if atomic.LoadInt32(&b.closing) == 1 {
		return nil, storage.ErrClosed
	}
	b.writeWg.Add(1)
	if atomic.LoadInt32(&b.closing) == 1 {
		b.writeWg.Done()
		return nil, storage.ErrClosed
	}
	return b.writeWg.Done, nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if atomic.LoadInt32(&b.closing) == 1 {
		return nil, storage.ErrClosed
	}
	var out []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badgerstore: get: %w", err)
	}
	return out, nil
}

func (b *Backend) Has(ctx context.Context, key string) (bool, error) {
	if atomic.LoadInt32(&b.closing) == 1 {
		return false, storage.ErrClosed
	}
	err := b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("badgerstore: has: %w", err)
	}
	return true, nil
}

// PutIfAbsent checks and writes in one transaction. Two writers racing on
// the same key conflict at commit; the loser retries and finds the key.
func (b *Backend) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	done, err := b.beginWrite()
	if err != nil {
		return false, err
	}
	defer done()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		stored := false
		err := b.db.Update(func(txn *badgerdb.Txn) error {
			_, err := txn.Get([]byte(key))
			if err == nil {
				return nil
			}
			if !errors.Is(err, badgerdb.ErrKeyNotFound) {
				return err
			}
			stored = true
			return txn.Set([]byte(key), value)
		})
		if errors.Is(err, badgerdb.ErrConflict) && attempt < maxConflictRetries {
			b.log.Debug("badger put conflict, retrying", zap.String("key", key), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return false, fmt.Errorf("badgerstore: put: %w", err)
		}
		return stored, nil
	}
}

func (b *Backend) Len(ctx context.Context) (int, error) {
	if atomic.LoadInt32(&b.closing) == 1 {
		return 0, storage.ErrClosed
	}
	n := 0
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Close waits for in-flight writes and closes the database.
func (b *Backend) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closing, 0, 1) {
		return nil
	}
	b.writeWg.Wait()
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("badgerstore: close: %w", err)
	}
	b.log.Info("badger store closed")
	return nil
}
