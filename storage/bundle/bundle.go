// Package bundle moves DAGs between stores as a deterministic TAR archive.
//
// Layout:
//
//	nodes/<cid>   one stored record per node (the same JSON the store persists)
//	index.json    optional, non-authoritative: roots, node list and labels
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	jsoniter "github.com/json-iterator/go"

	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

const nodesDir = "nodes/"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var epoch0 = time.Unix(0, 0).UTC()

// ErrMissingLink is returned by Import when a node links to a CID that is
// neither in the bundle nor in the destination store.
var ErrMissingLink = errors.New("bundle: linked node missing")

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to roots.
	Labels map[string]cid.Cid
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes every node reachable from roots into w.
//
// The bundle bytes are deterministic: entry order is lexicographic and TAR
// headers are normalized. Every exported node is checked against its CID.
func Export(ctx context.Context, w io.Writer, store storage.NodeStore, roots []cid.Cid, opts ExportOptions) error {
	if store == nil {
		return fmt.Errorf("bundle: nil store")
	}

	rootSet := make(map[string]struct{}, len(roots))
	nodes := map[string]dag.Node{}
	for _, r := range roots {
		if !r.Defined() {
			return storage.ErrInvalidCID
		}
		rootSet[r.String()] = struct{}{}
		if err := collect(ctx, store, r, nodes); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(nodes))
	for k := range nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tar.NewWriter(w)
	entries := make([]indexNode, 0, len(keys))
	for _, k := range keys {
		b, err := storage.EncodeRecord(nodes[k])
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, nodesDir+k, b); err != nil {
			_ = tw.Close()
			return err
		}
		entries = append(entries, indexNode{CID: k, Size: len(b)})
	}

	if opts.IncludeIndex {
		idx := indexJSON{
			Version:   FormatVersion,
			CIDCodec:  "raw",
			Multihash: "sha2-256",
			Roots:     make([]string, 0, len(rootSet)),
			Nodes:     entries,
		}
		for r := range rootSet {
			idx.Roots = append(idx.Roots, r)
		}
		sort.Strings(idx.Roots)

		if len(opts.Labels) > 0 {
			names := make([]string, 0, len(opts.Labels))
			for k := range opts.Labels {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				if k == "" {
					_ = tw.Close()
					return fmt.Errorf("bundle: empty label key")
				}
				v := opts.Labels[k]
				if !v.Defined() {
					_ = tw.Close()
					return storage.ErrInvalidCID
				}
				idx.Labels = append(idx.Labels, indexLabel{Name: k, CID: v.String()})
			}
		}

		b, err := json.Marshal(idx)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", append(b, '\n')); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// collect adds every node reachable from root to into.
func collect(ctx context.Context, store storage.NodeStore, root cid.Cid, into map[string]dag.Node) error {
	queue := []cid.Cid{root}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := queue[0]
		queue = queue[1:]
		key := id.String()
		if n, ok := into[key]; ok && (id != root || len(n.Data) > 0) {
			continue
		}
		var (
			n   dag.Node
			err error
		)
		if id == root {
			n, err = storage.GetRoot(ctx, store, key)
		} else {
			n, err = store.Get(ctx, key)
		}
		if err != nil {
			if storage.IsNotFound(err) {
				return dag.NotFoundError("export", key, dag.ErrNodeNotFound)
			}
			return err
		}
		if err := dag.VerifyNode(n); err != nil {
			return err
		}
		into[key] = n
		queue = append(queue, n.Links...)
	}
	return nil
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
}

// ImportResult summarizes an import.
type ImportResult struct {
	Nodes int
	// Roots and Labels come from index.json when present.
	Roots  []string
	Labels map[string]string
}

// Import reads a bundle from r and stores its nodes.
func Import(ctx context.Context, r io.Reader, store storage.NodeStore) (ImportResult, error) {
	return ImportWithOptions(ctx, r, store, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and stores its nodes.
//
// Every record must match both its filename CID and its own CID binding.
// Nothing is written until the whole archive has been read; nodes are then
// written children first, so an imported root is never stored without its
// subtree.
func ImportWithOptions(ctx context.Context, r io.Reader, store storage.NodeStore, opts ImportOptions) (ImportResult, error) {
	var res ImportResult
	if store == nil {
		return res, fmt.Errorf("bundle: nil store")
	}

	tr := tar.NewReader(r)
	nodes := map[string]dag.Node{}
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return res, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return res, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == "index.json" {
			var idx indexJSON
			if err := json.NewDecoder(tr).Decode(&idx); err != nil {
				return res, fmt.Errorf("bundle: index.json: %w", err)
			}
			res.Roots = idx.Roots
			if len(idx.Labels) > 0 {
				res.Labels = make(map[string]string, len(idx.Labels))
				for _, l := range idx.Labels {
					res.Labels[l.Name] = l.CID
				}
			}
			continue
		}

		if !strings.HasPrefix(name, nodesDir) {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return res, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		key := strings.TrimPrefix(name, nodesDir)
		id, derr := cid.Decode(key)
		if derr != nil || !id.Defined() {
			return res, storage.ErrInvalidCID
		}
		if _, ok := nodes[id.String()]; ok {
			return res, fmt.Errorf("bundle: duplicate node entry: %s", key)
		}

		payload, rerr := io.ReadAll(tr)
		if rerr != nil {
			return res, rerr
		}
		n, err := storage.DecodeRecord(payload)
		if err != nil {
			return res, err
		}
		if n.CID != id {
			return res, storage.ErrCIDMismatch
		}
		if err := dag.VerifyNode(n); err != nil {
			return res, storage.ErrCIDMismatch
		}
		nodes[id.String()] = n
	}

	order, err := childrenFirst(ctx, store, nodes)
	if err != nil {
		return res, err
	}
	for _, n := range order {
		if err := store.Put(ctx, n); err != nil {
			return res, err
		}
	}
	res.Nodes = len(order)
	return res, nil
}

// childrenFirst orders nodes so every node follows the nodes it links to.
// Links outside the bundle must already be present in store.
func childrenFirst(ctx context.Context, store storage.NodeStore, nodes map[string]dag.Node) ([]dag.Node, error) {
	keys := make([]string, 0, len(nodes))
	for k := range nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(nodes))
	out := make([]dag.Node, 0, len(nodes))

	var visit func(key string) error
	visit = func(key string) error {
		switch state[key] {
		case done:
			return nil
		case active:
			return fmt.Errorf("bundle: link cycle at %s", key)
		}
		state[key] = active
		n := nodes[key]
		for _, l := range n.Links {
			lk := l.String()
			if _, ok := nodes[lk]; ok {
				if err := visit(lk); err != nil {
					return err
				}
				continue
			}
			ok, err := store.Has(ctx, lk)
			if err != nil {
				return err
			}
			if !ok {
				return dag.NotFoundError("import", lk, ErrMissingLink)
			}
		}
		state[key] = done
		out = append(out, n)
		return nil
	}

	for _, k := range keys {
		if err := visit(k); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type indexJSON struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Roots     []string     `json:"roots"`
	Nodes     []indexNode  `json:"nodes"`
	Labels    []indexLabel `json:"labels,omitempty"`
}

type indexNode struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
