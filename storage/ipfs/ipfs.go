// Package ipfs mirrors DAG nodes into a local Kubo repository as raw blocks.
//
// Every node is a valid IPFS raw block: a leaf's block is its chunk, an
// internal node's block is the concatenation of its two link CIDs. Both
// hash to the node's own CID, so Kubo stores them under the same key.
//
// The root's extension is metadata outside the CID binding and has no place
// in a raw block. A root fetched back from IPFS therefore carries no
// extension and fails reassembly; mirror trees whose root is also stored
// locally or served by a peer.
package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/storage"
)

// Client shells out to the local Kubo "ipfs" CLI. It does not need a daemon.
//
// Warning: this adapter is not authoritative. Every block read back is
// verified against the requested CID.
type Client struct {
	bin string
	env []string
	log *zap.Logger
}

var _ storage.Fetcher = (*Client)(nil)

// Options configures a Client.
type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env    []string
	Logger *zap.Logger
}

// New returns a Client driving the ipfs binary.
func New(opts Options) *Client {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{bin: bin, env: opts.Env, log: log}
}

// Block returns the raw block bytes of n.
func Block(n dag.Node) []byte {
	if n.IsLeaf() {
		return n.Data
	}
	var buf []byte
	for _, l := range n.Links {
		buf = append(buf, l.Bytes()...)
	}
	return buf
}

// NodeFromBlock rebuilds the node stored under id from its raw block.
//
// A block made of exactly two node CIDs is read as an internal node;
// anything else is a leaf.
func NodeFromBlock(id cid.Cid, b []byte) (dag.Node, error) {
	if got := cidutil.Generate(b); got != id {
		return dag.Node{}, storage.ErrCIDMismatch
	}
	if left, right, ok := splitLinks(b); ok {
		return dag.Node{CID: id, Links: []cid.Cid{left, right}}, nil
	}
	return dag.Node{CID: id, Data: b}, nil
}

func splitLinks(b []byte) (cid.Cid, cid.Cid, bool) {
	n, left, err := cid.CidFromBytes(b)
	if err != nil || !cidutil.IsNodeCID(left) {
		return cid.Undef, cid.Undef, false
	}
	m, right, err := cid.CidFromBytes(b[n:])
	if err != nil || n+m != len(b) || !cidutil.IsNodeCID(right) {
		return cid.Undef, cid.Undef, false
	}
	return left, right, true
}

// Publish puts every node into the IPFS repo as a raw block.
func (c *Client) Publish(ctx context.Context, nodes []dag.Node) error {
	for _, n := range nodes {
		if err := c.put(ctx, n); err != nil {
			return err
		}
	}
	c.log.Info("published blocks to ipfs", zap.Int("nodes", len(nodes)))
	return nil
}

func (c *Client) put(ctx context.Context, n dag.Node) error {
	// Explicit parameters so the block CID matches the node CID.
	out, err := c.run(ctx, Block(n),
		"block", "put",
		"--quiet",
		"--cid-codec=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
		"/dev/stdin",
	)
	if err != nil {
		return err
	}
	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if got != n.CID {
		return dag.IntegrityError("ipfs put", n.Key(), storage.ErrCIDMismatch)
	}
	return nil
}

// Fetch reads the block for key and rebuilds its node.
func (c *Client) Fetch(ctx context.Context, key string) (dag.Node, error) {
	id, err := cidutil.Parse(key)
	if err != nil {
		return dag.Node{}, storage.ErrInvalidCID
	}
	out, err := c.run(ctx, nil, "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return dag.Node{}, storage.ErrNotFound
		}
		return dag.Node{}, err
	}
	n, err := NodeFromBlock(id, out)
	if err != nil {
		return dag.Node{}, dag.IntegrityError("ipfs get", key, err)
	}
	return n, nil
}

func (c *Client) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", s)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "block not found")
}
