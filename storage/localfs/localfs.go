// Package localfs is a node store backend keeping one file per record.
package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "Local filesystem backend (one file per node, sharded by CID prefix)",
		Open: func(opts registry.OpenOptions) (storage.Backend, error) {
			return New(opts.Path)
		},
	})
}

// Backend stores each record as an immutable file under root.
//
// A record is written to a temp file and hard-linked into place, so the
// first writer of a key wins and later writers observe the key as present.
type Backend struct {
	root string
}

var _ storage.Backend = (*Backend)(nil)

// New constructs a filesystem backend rooted at root. The directory will be created if needed.
func New(root string) (*Backend, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Backend{root: root}, nil
}

func (b *Backend) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := b.pathFor(key)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}

	// Write to a temp file first so readers never see a partial record.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return false, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return false, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Chmod(tmpName, 0o444); err != nil {
		return false, err
	}

	// Link fails with EEXIST when another writer got there first.
	if err := os.Link(tmpName, path); err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.pathFor(key)
	if err != nil {
		return nil, err
	}
	out, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return out, nil
}

func (b *Backend) Has(ctx context.Context, key string) (bool, error) {
	path, err := b.pathFor(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (b *Backend) Len(ctx context.Context) (int, error) {
	n := 0
	err := filepath.WalkDir(b.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() && filepath.Base(path)[0] != '.' {
			n++
		}
		return nil
	})
	return n, err
}

func (b *Backend) Close() error { return nil }

func (b *Backend) pathFor(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key[0] == '.' {
		return "", storage.ErrInvalidCID
	}
	if len(key) < 4 {
		return filepath.Join(b.root, key), nil
	}
	// CIDv1 strings share a long multibase/codec prefix; the tail varies with the digest.
	return filepath.Join(b.root, key[len(key)-2:], key), nil
}
