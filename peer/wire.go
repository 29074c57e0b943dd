package peer

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"

	"xdao.co/dagstore/dag"
)

// Depth selects how much of the DAG a Fetch returns.
type Depth uint8

const (
	// Single returns only the requested node.
	Single Depth = iota
	// Full returns the requested node and every node reachable from it.
	Full
)

func (d Depth) String() string {
	switch d {
	case Single:
		return "single"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("depth(%d)", uint8(d))
	}
}

// Request asks a peer for the node stored under CID.
type Request struct {
	CID   string `cbor:"cid"`
	Depth Depth  `cbor:"depth"`
}

// Response carries nodes in breadth-first order, requested node first.
type Response struct {
	Nodes []WireNode `cbor:"nodes"`
}

// WireNode is a dag.Node with CIDs in binary form.
type WireNode struct {
	CID         []byte   `cbor:"cid"`
	Data        []byte   `cbor:"data,omitempty"`
	Links       [][]byte `cbor:"links,omitempty"`
	IsDuplicate bool     `cbor:"dup,omitempty"`
}

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// response always serializes to the same bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("peer: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 20,
	}.DecMode()
	if err != nil {
		panic("peer: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

func unmarshal(b []byte, v any) error { return decMode.Unmarshal(b, v) }

func toWire(n dag.Node) WireNode {
	w := WireNode{
		CID:         n.CID.Bytes(),
		Data:        n.Data,
		IsDuplicate: n.IsDuplicate,
	}
	if len(n.Links) > 0 {
		w.Links = make([][]byte, len(n.Links))
		for i, l := range n.Links {
			w.Links[i] = l.Bytes()
		}
	}
	return w
}

func fromWire(w WireNode) (dag.Node, error) {
	id, err := cid.Cast(w.CID)
	if err != nil {
		return dag.Node{}, fmt.Errorf("peer: node cid: %w", err)
	}
	n := dag.Node{CID: id, Data: w.Data, IsDuplicate: w.IsDuplicate}
	if len(w.Links) > 0 {
		n.Links = make([]cid.Cid, len(w.Links))
		for i, b := range w.Links {
			l, err := cid.Cast(b)
			if err != nil {
				return dag.Node{}, fmt.Errorf("peer: link %d: %w", i, err)
			}
			n.Links[i] = l
		}
	}
	return n, nil
}
