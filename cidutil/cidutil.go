// Package cidutil derives the content identifiers used for every DAG node.
//
// All identifiers are CIDv1 with the "raw" multicodec and a sha2-256
// multihash. The derivation is a pure function of its input bytes.
package cidutil

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ErrUndefined is returned by Parse for strings that decode to cid.Undef.
var ErrUndefined = errors.New("cidutil: undefined cid")

// Generate returns the CIDv1 (raw + sha2-256) of data.
//
// multihash.Sum only fails for unknown codes or invalid lengths; with
// SHA2_256 and the default length that is a programming error, so it panics
// instead of handing out a partial identifier.
func Generate(data []byte) cid.Cid {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		panic(fmt.Sprintf("cidutil: sha2-256 multihash failed: %v", err))
	}
	return cid.NewCidV1(cid.Raw, sum)
}

// Combine derives a parent identifier from its two children, hashing the
// concatenation of their binary CID forms. Order matters.
func Combine(left, right cid.Cid) cid.Cid {
	lb, rb := left.Bytes(), right.Bytes()
	buf := make([]byte, 0, len(lb)+len(rb))
	buf = append(buf, lb...)
	buf = append(buf, rb...)
	return Generate(buf)
}

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	return Generate(data).String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Parse decodes a canonical CID string.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, ErrUndefined
	}
	return id, nil
}

// IsNodeCID reports whether id uses the codec and hash this package generates.
func IsNodeCID(id cid.Cid) bool {
	if !id.Defined() || id.Version() != 1 || id.Type() != cid.Raw {
		return false
	}
	return id.Prefix().MhType == multihash.SHA2_256
}
