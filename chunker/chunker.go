// Package chunker splits file bytes into ordered fixed-size leaf payloads.
package chunker

import (
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize is the leaf payload size used when none is configured.
const DefaultChunkSize = 256 << 10

// ErrInvalidSize is returned for a non-positive chunk size.
var ErrInvalidSize = errors.New("chunker: chunk size must be positive")

// Chunk splits data into consecutive slices of size bytes. The last slice
// may be shorter. Empty input yields no chunks.
//
// The returned slices alias data; callers that mutate data afterwards must
// copy first.
func Chunk(data []byte, size int) ([][]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if len(data) == 0 {
		return nil, nil
	}
	out := make([][]byte, 0, (len(data)+size-1)/size)
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[off:end:end])
	}
	return out, nil
}

// Reader yields fixed-size chunks read from an io.Reader.
type Reader struct {
	r    io.Reader
	size int
	err  error
}

// NewReader returns a Reader producing chunks of size bytes from r.
func NewReader(r io.Reader, size int) (*Reader, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	return &Reader{r: r, size: size}, nil
}

// Next returns the next chunk, or io.EOF once r is exhausted.
// Each returned slice is freshly allocated.
func (c *Reader) Next() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	buf := make([]byte, c.size)
	n, err := io.ReadFull(c.r, buf)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.err = io.EOF
		return buf[:n], nil
	case errors.Is(err, io.EOF):
		c.err = io.EOF
		return nil, io.EOF
	default:
		c.err = fmt.Errorf("chunker: read: %w", err)
		return nil, c.err
	}
}

// All drains r into chunks.
func (c *Reader) All() ([][]byte, error) {
	var out [][]byte
	for {
		b, err := c.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
}
