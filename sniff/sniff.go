// Package sniff classifies reassembled bytes by content, independent of the
// extension stored on the root.
package sniff

import (
	"github.com/gabriel-vasile/mimetype"
)

// Unknown is reported for content that matches no signature.
const Unknown = "application/octet-stream"

// Detect returns the MIME type of data. ok is false when nothing more
// specific than Unknown was recognised.
func Detect(data []byte) (mime string, ok bool) {
	m := mimetype.Detect(data)
	if m.Is(Unknown) {
		return Unknown, false
	}
	return m.String(), true
}

// Extension returns the canonical extension for data without the leading
// dot, or "" when the type is unknown.
func Extension(data []byte) string {
	m := mimetype.Detect(data)
	if m.Is(Unknown) {
		return ""
	}
	ext := m.Extension()
	if len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	return ext
}
