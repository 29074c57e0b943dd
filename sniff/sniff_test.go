package sniff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		want   string
		wantOK bool
	}{
		{"png", append(append([]byte(nil), pngHeader...), 0, 0, 0, 13), "image/png", true},
		{"pdf", []byte("%PDF-1.7\n"), "application/pdf", true},
		{"binary", []byte{0x00, 0x01, 0x02, 0xFE, 0xFF}, Unknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Detect(tt.data)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "png", Extension(pngHeader))
	assert.Equal(t, "", Extension([]byte{0x00, 0x01, 0x02}))
}
