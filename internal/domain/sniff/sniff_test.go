package sniff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want ContentType
	}{
		{"jpeg jfif header", []byte{0xFF, 0xD8, 0xFF, 0xE0}, JPEG},
		{"jpeg exif header", []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x10}, JPEG},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, PNG},
		{"gif87a", []byte("GIF87a...."), GIF},
		{"gif89a", []byte("GIF89a...."), GIF},
		{"webp", []byte("RIFF\x10\x00\x00\x00WEBPVP8 "), WebP},
		{"riff without webp marker", []byte("RIFF\x10\x00\x00\x00WAVEfmt "), Unknown},
		{"plain text", []byte("not an image"), Unknown},
		{"empty buffer", []byte{}, Unknown},
		{"nil buffer", nil, Unknown},
		{"truncated jpeg", []byte{0xFF, 0xD8}, Unknown},
		{"truncated png", []byte{0x89, 0x50, 0x4E}, Unknown},
		{"jpeg bytes mid-buffer do not count", []byte{0x00, 0xFF, 0xD8, 0xFF, 0xE0}, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.data))
		})
	}
}

func TestAccepted(t *testing.T) {
	assert.True(t, Accepted(JPEG))
	assert.True(t, Accepted(PNG))
	assert.True(t, Accepted(GIF))
	assert.True(t, Accepted(WebP))
	assert.False(t, Accepted(Unknown))
	assert.False(t, Accepted(ContentType("application/pdf")))
}

func TestAcceptedTypes_Sorted(t *testing.T) {
	assert.Equal(t, []string{"image/gif", "image/jpeg", "image/png", "image/webp"}, AcceptedTypes())
}

func TestDetect_OnlyNeedsPrefix(t *testing.T) {
	// Detection must work from the first PrefixLen bytes alone.
	long := append([]byte{0xFF, 0xD8, 0xFF, 0xDB}, make([]byte, 4096)...)
	assert.Equal(t, JPEG, Detect(long[:PrefixLen]))
	assert.Equal(t, Detect(long), Detect(long[:PrefixLen]))
}
