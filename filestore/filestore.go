// Package filestore is the ingest and retrieval surface: whole files in,
// root CIDs out, and back.
package filestore

import (
	"context"
	"io"
	"time"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"xdao.co/dagstore/chunker"
	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/reassembler"
	"xdao.co/dagstore/sniff"
	"xdao.co/dagstore/storage"
)

// Options configures a FileStore. Zero fields use package defaults.
type Options struct {
	ChunkSize   int
	Reassembler reassembler.Options
	Logger      *zap.Logger
}

// FileStore chunks, builds and persists files into a NodeStore and reads
// them back.
type FileStore struct {
	store     storage.NodeStore
	chunkSize int
	r         *reassembler.Reassembler
	log       *zap.Logger
}

// File is a retrieved file.
type File struct {
	Root      cid.Cid
	Data      []byte
	Extension string
	// MIME is the sniffed content type; empty when unrecognised.
	MIME string
}

// Stats describes a stored DAG.
type Stats struct {
	Root      cid.Cid
	Extension string
	Depth     int
	Leaves    int
	Internal  int
	Size      int64
}

// New returns a FileStore writing to and reading from store.
func New(store storage.NodeStore, opts Options) *FileStore {
	fs := &FileStore{
		store:     store,
		chunkSize: opts.ChunkSize,
		log:       opts.Logger,
	}
	if fs.chunkSize <= 0 {
		fs.chunkSize = chunker.DefaultChunkSize
	}
	if fs.log == nil {
		fs.log = zap.NewNop()
	}
	ropts := opts.Reassembler
	if ropts.Logger == nil {
		ropts.Logger = fs.log
	}
	fs.r = reassembler.New(store, ropts)
	return fs
}

// StoreFile persists data under a new DAG and returns its root CID.
//
// Nodes are written children before parents with the root last, so a
// failure part way leaves no addressable root without its subtree.
func (fs *FileStore) StoreFile(ctx context.Context, data []byte, ext string) (cid.Cid, error) {
	const op = "store_file"
	if _, err := dag.EncodeExtension(ext); err != nil {
		return cid.Undef, dag.InputError(op, err)
	}
	chunks, err := chunker.Chunk(data, fs.chunkSize)
	if err != nil {
		return cid.Undef, dag.InputError(op, err)
	}
	return fs.persist(ctx, chunks, ext)
}

// StoreReader is StoreFile for a stream. The whole stream is chunked before
// the tree is built.
func (fs *FileStore) StoreReader(ctx context.Context, r io.Reader, ext string) (cid.Cid, error) {
	const op = "store_file"
	if _, err := dag.EncodeExtension(ext); err != nil {
		return cid.Undef, dag.InputError(op, err)
	}
	cr, err := chunker.NewReader(r, fs.chunkSize)
	if err != nil {
		return cid.Undef, dag.InputError(op, err)
	}
	chunks, err := cr.All()
	if err != nil {
		return cid.Undef, dag.StoreError(op, "", err)
	}
	return fs.persist(ctx, chunks, ext)
}

func (fs *FileStore) persist(ctx context.Context, chunks [][]byte, ext string) (cid.Cid, error) {
	start := time.Now()
	leaves, err := dag.Leaves(ctx, chunks)
	if err != nil {
		return cid.Undef, err
	}
	tree, err := dag.Build(ctx, leaves, ext)
	if err != nil {
		return cid.Undef, err
	}
	for _, n := range tree.Nodes {
		if err := ctx.Err(); err != nil {
			return cid.Undef, err
		}
		if err := fs.store.Put(ctx, n); err != nil {
			return cid.Undef, err
		}
	}
	root := tree.Root()
	fs.log.Info("stored file",
		zap.String("root", root.Key()),
		zap.Int("chunks", len(chunks)),
		zap.Int("depth", tree.Depth()),
		zap.Duration("took", time.Since(start)),
	)
	return root.CID, nil
}

// RetrieveFile reassembles the file rooted at root and sniffs its content.
func (fs *FileStore) RetrieveFile(ctx context.Context, root string) (File, error) {
	res, err := fs.r.Reassemble(ctx, root)
	if err != nil {
		return File{}, err
	}
	id, _ := cid.Decode(root)
	f := File{Root: id, Data: res.Data, Extension: res.Extension}
	if mime, ok := sniff.Detect(res.Data); ok {
		f.MIME = mime
	}
	return f, nil
}

// Stat walks the DAG under root without concatenating leaf data.
func (fs *FileStore) Stat(ctx context.Context, root string) (Stats, error) {
	var st Stats
	rootNode, err := fs.r.Walk(ctx, root, func(n dag.Node, depth int) error {
		if depth+1 > st.Depth {
			st.Depth = depth + 1
		}
		if n.IsLeaf() {
			st.Leaves++
			st.Size += int64(len(n.Data))
		} else {
			st.Internal++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	st.Root = rootNode.CID
	st.Internal++
	st.Extension, err = dag.DecodeExtension(rootNode.Data)
	if err != nil {
		return Stats{}, dag.IntegrityError("stat", rootNode.Key(), err)
	}
	return st, nil
}
