package storage

import "context"

// Backend is the key-value engine underneath a Store.
//
// Contract:
//   - Keys are canonical CID strings; values are encoded node records.
//   - PutIfAbsent MUST NOT overwrite an existing key. It reports whether the
//     value was written. Concurrent calls for the same key are safe.
//   - Get MUST return ErrNotFound when the key is absent.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Has(ctx context.Context, key string) (bool, error)
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	Len(ctx context.Context) (int, error)
	Close() error
}
