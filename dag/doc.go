// Package dag builds the Merkle DAG that content-addresses a file.
//
// Leaves hold chunk bytes. Each level is reduced pairwise, left to right,
// into parents whose CID is the hash of their children's CIDs, until a single
// root remains. Odd-sized levels are padded with a clone of their last node
// flagged IsDuplicate. The root carries the file extension as its data.
//
// Nodes reference children only by CID; resolving a CID into a node is the
// job of a node store.
package dag
