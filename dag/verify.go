package dag

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/dagstore/cidutil"
)

// VerifyNode recomputes the CID binding of n: the hash of Data for a leaf,
// the hash of the concatenated link CIDs otherwise. Root data is metadata and
// does not take part in the binding.
func VerifyNode(n Node) error {
	const op = "verify"
	if !n.CID.Defined() {
		return IntegrityError(op, "", fmt.Errorf("%w: undefined cid", ErrCIDMismatch))
	}
	var want cid.Cid
	switch len(n.Links) {
	case 0:
		want = cidutil.Generate(n.Data)
	case 1:
		want = cidutil.Generate(n.Links[0].Bytes())
	case 2:
		want = cidutil.Combine(n.Links[0], n.Links[1])
	default:
		return IntegrityError(op, n.Key(), fmt.Errorf("%w: %d links", ErrCIDMismatch, len(n.Links)))
	}
	if want != n.CID {
		return IntegrityError(op, n.Key(), ErrCIDMismatch)
	}
	return nil
}
