package storage

import (
	"context"

	"go.uber.org/zap"

	"xdao.co/dagstore/dag"
)

// A root and an internal node of another file share a CID when they link the
// same children. The node record is write-once, so whichever arrives second
// is a dedup hit. When a root lands on a record without extension data, the
// extension is kept in a separate record under RootMetaKey.

// RootGetter is implemented by stores that can return a node with its root
// metadata applied.
type RootGetter interface {
	GetRoot(ctx context.Context, key string) (dag.Node, error)
}

// GetRoot fetches key as the root of a file, using s.GetRoot when s
// implements RootGetter and s.Get otherwise.
func GetRoot(ctx context.Context, s NodeStore, key string) (dag.Node, error) {
	if rg, ok := s.(RootGetter); ok {
		return rg.GetRoot(ctx, key)
	}
	return s.Get(ctx, key)
}

// RootMetaKey is the backend key holding the extension of the root key when
// the node record under key carries none.
func RootMetaKey(key string) string { return "root-" + key }

func isRoot(n dag.Node) bool { return len(n.Links) > 0 && len(n.Data) > 0 }

// putRootMeta records the extension of a root whose node record was already
// present. Nothing is written when the stored record has extension data of
// its own; the first stored extension wins.
func (s *Store) putRootMeta(ctx context.Context, key string, ext []byte) error {
	const op = "put"
	b, err := s.backend.Get(ctx, key)
	if err != nil {
		return dag.StoreError(op, key, err)
	}
	existing, err := DecodeRecord(b)
	if err != nil {
		return dag.StoreError(op, key, err)
	}
	if len(existing.Data) > 0 {
		return nil
	}
	stored, err := s.backend.PutIfAbsent(ctx, RootMetaKey(key), ext)
	if err != nil {
		return dag.StoreError(op, key, err)
	}
	if stored {
		s.log.Debug("root stored over internal node", zap.String("cid", key))
	}
	return nil
}

// GetRoot is Get for a file root: when the node record has no extension data
// the root metadata record, if any, supplies it.
func (s *Store) GetRoot(ctx context.Context, key string) (dag.Node, error) {
	n, err := s.Get(ctx, key)
	if err != nil || n.IsLeaf() || len(n.Data) > 0 {
		return n, err
	}
	ext, err := s.backend.Get(ctx, RootMetaKey(key))
	if err != nil {
		if IsNotFound(err) {
			return n, nil
		}
		return dag.Node{}, dag.StoreError("get", key, err)
	}
	n.Data = ext
	return n, nil
}

// GetRoot reads a root through Local and falls back to Get on a miss.
func (f *FallbackStore) GetRoot(ctx context.Context, key string) (dag.Node, error) {
	n, err := GetRoot(ctx, f.Local, key)
	if err == nil || !IsNotFound(err) {
		return n, err
	}
	return f.Get(ctx, key)
}
