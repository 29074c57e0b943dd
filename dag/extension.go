package dag

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxExtensionLen bounds the encoded extension stored on a root node.
const MaxExtensionLen = 64

// EncodeExtension validates a file extension and returns the bytes stored in
// the root node. A single leading dot is dropped, so "png" and ".png" encode
// identically.
func EncodeExtension(ext string) ([]byte, error) {
	ext = strings.TrimPrefix(ext, ".")
	if err := checkExtension(ext); err != nil {
		return nil, err
	}
	return []byte(ext), nil
}

// DecodeExtension turns root data back into the extension string. It applies
// the rules of EncodeExtension, so a root without extension data is an error.
func DecodeExtension(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidExtension)
	}
	ext := string(b)
	if err := checkExtension(ext); err != nil {
		return "", err
	}
	return ext, nil
}

func checkExtension(ext string) error {
	switch {
	case ext == "":
		return fmt.Errorf("%w: empty", ErrInvalidExtension)
	case len(ext) > MaxExtensionLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidExtension, MaxExtensionLen)
	case !utf8.ValidString(ext):
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidExtension)
	}
	for _, r := range ext {
		if r == '/' || r == '\\' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidExtension, ext, r)
		}
	}
	return nil
}
