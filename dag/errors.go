package dag

import (
	"errors"
	"strings"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind (or the sentinels below) rather than on
// error strings, which are meant for humans and may change.
type Kind string

const (
	KindInput     Kind = "Input"
	KindNotFound  Kind = "NotFound"
	KindStore     Kind = "Store"
	KindIntegrity Kind = "Integrity"
)

var (
	ErrEmptyLeaves      = errors.New("empty leaf sequence")
	ErrInvalidExtension = errors.New("invalid file extension")
	ErrInvalidLeaf      = errors.New("invalid leaf node")
	ErrRootNotFound     = errors.New("root node not found")
	ErrNodeNotFound     = errors.New("node not found")
	ErrCIDMismatch      = errors.New("cid does not match node content")
	ErrTraversalLimit   = errors.New("traversal limit exceeded")
)

// Error is the structured error returned by the builder, the node store
// and the reassembler.
//
// Op names the failing operation ("build", "put", "reassemble", ...) and CID,
// when set, is the canonical string of the node involved.
type Error struct {
	Kind  Kind
	Op    string
	CID   string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("dag")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.CID != "" {
		b.WriteString(" ")
		b.WriteString(e.CID)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, op, id string, cause error) error {
	return &Error{Kind: kind, Op: op, CID: id, Cause: cause}
}

// InputError reports caller-supplied input that fails validation.
func InputError(op string, cause error) error { return newError(KindInput, op, "", cause) }

// NotFoundError reports a node absent from every reachable store.
func NotFoundError(op, id string, cause error) error {
	return newError(KindNotFound, op, id, cause)
}

// StoreError reports an I/O or serialization failure of the backing store.
func StoreError(op, id string, cause error) error { return newError(KindStore, op, id, cause) }

// IntegrityError reports a node whose content does not match its identifier.
func IntegrityError(op, id string, cause error) error {
	return newError(KindIntegrity, op, id, cause)
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
