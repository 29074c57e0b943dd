package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"
	jsoniter "github.com/json-iterator/go"

	"xdao.co/dagstore/dag"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// record is the persisted form of a dag.Node.
// Data is base64 in JSON; links are canonical CID strings in order.
type record struct {
	CID         string   `json:"cid"`
	Data        []byte   `json:"data,omitempty"`
	Links       []string `json:"links"`
	IsDuplicate bool     `json:"is_duplicate"`
}

// EncodeRecord serializes n into the value stored under n.Key().
func EncodeRecord(n dag.Node) ([]byte, error) {
	if !n.CID.Defined() {
		return nil, ErrInvalidCID
	}
	r := record{
		CID:         n.CID.String(),
		Data:        n.Data,
		Links:       make([]string, len(n.Links)),
		IsDuplicate: n.IsDuplicate,
	}
	for i, l := range n.Links {
		r.Links[i] = l.String()
	}
	return json.Marshal(r)
}

// DecodeRecord parses a stored value back into a node.
func DecodeRecord(b []byte) (dag.Node, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return dag.Node{}, fmt.Errorf("storage: decode record: %w", err)
	}
	id, err := cid.Decode(r.CID)
	if err != nil || !id.Defined() {
		return dag.Node{}, ErrInvalidCID
	}
	n := dag.Node{CID: id, Data: r.Data, IsDuplicate: r.IsDuplicate}
	if len(r.Links) > 0 {
		n.Links = make([]cid.Cid, len(r.Links))
		for i, s := range r.Links {
			l, err := cid.Decode(s)
			if err != nil || !l.Defined() {
				return dag.Node{}, fmt.Errorf("storage: link %d: %w", i, ErrInvalidCID)
			}
			n.Links[i] = l
		}
	}
	return n, nil
}
