package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefix(t *testing.T) {
	tests := []struct {
		name     string
		i, n     int
		text     string
		expected string
	}{
		{name: "short", i: 0, n: 2, text: "a.zip", expected: `[1/2] "a.zip" - `},
		{
			name:     "long",
			i:        1,
			n:        2,
			text:     "s3://my-bucket/some/very/long/path/to/the/archive.zip",
			expected: `[2/2] "...t/some/very/long/path/to/the/archive.zip" - `,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equalf(t, tt.expected, Prefix(tt.i, tt.n, tt.text), "Prefix(%d, %d, %q)", tt.i, tt.n, tt.text)
		})
	}
}

func TestTruncateLeftWithPrefix(t *testing.T) {
	assert.Equal(t, "hello", TruncateLeftWithPrefix("hello", 5, "..."))
	assert.Equal(t, "...llo", TruncateLeftWithPrefix("hello", 3, "..."))
	assert.Equal(t, "...", TruncateLeftWithPrefix("hello", 0, "..."))
	assert.Equal(t, "…ở", TruncateLeftWithPrefix("nguyễn thở", 1, "…"))
}
