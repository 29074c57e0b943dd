package storage

import (
	"errors"

	"xdao.co/dagstore/dag"
)

var (
	ErrNotFound   = errors.New("storage: not found")
	ErrInvalidCID = errors.New("storage: invalid cid")
	// ErrCIDMismatch is dag.ErrCIDMismatch, so errors.Is matches whichever
	// layer detected the mismatch.
	ErrCIDMismatch = dag.ErrCIDMismatch
	ErrClosed      = errors.New("storage: closed")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
