package config

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testConfig = `[s3://my-bucket]
aws-profile = my-profile
expected-bucket-owner = 123456789012
concurrency = 8
requests-per-second = 10.5

[https://example.com]
header.Authorization = Bearer token
concurrency = 2

[https://example.com/private/]
header.X-Api-Key = secret

[cache]
blocks = 128
block-size = 1MiB
`

func writeConfig(t *testing.T, dir string) string {
	t.Helper()

	name := filepath.Join(dir, Name)
	if err := os.WriteFile(name, []byte(testConfig), 0644); err != nil {
		t.Fatal(err)
	}

	return name
}

func TestLoader_LoadFile(t *testing.T) {
	l := NewLoader()
	err := l.LoadFile(writeConfig(t, t.TempDir()))
	assert.NoErrorf(t, err, "LoadFile() error = %v", err)

	assert.Equal(t, BucketConfig{
		Bucket:              "my-bucket",
		AWSProfile:          "my-profile",
		ExpectedBucketOwner: "123456789012",
		Concurrency:         8,
		RequestsPerSecond:   10.5,
	}, l.ForBucket("my-bucket"))
	assert.Equal(t, BucketConfig{Bucket: "other-bucket"}, l.ForBucket("other-bucket"))

	assert.Equal(t, CacheConfig{Blocks: 128, BlockSize: 1 << 20}, l.ForCache())
}

func TestLoader_ForURL(t *testing.T) {
	l := NewLoader()
	err := l.LoadFile(writeConfig(t, t.TempDir()))
	assert.NoError(t, err)

	tests := []struct {
		name     string
		url      string
		expected HTTPConfig
	}{
		{
			name: "host",
			url:  "https://example.com/public/a.zip",
			expected: HTTPConfig{
				Header:      http.Header{"Authorization": {"Bearer token"}},
				Concurrency: 2,
			},
		},
		{
			name: "longest prefix wins",
			url:  "https://example.com/private/a.zip",
			expected: HTTPConfig{
				Header: http.Header{"X-Api-Key": {"secret"}},
			},
		},
		{
			name:     "no match",
			url:      "http://example.com/a.zip",
			expected: HTTPConfig{Header: http.Header{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equalf(t, tt.expected, l.ForURL(tt.url), "ForURL(%q)", tt.url)
		})
	}
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	expected := writeConfig(t, dir)

	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(sub)

	l := NewLoader()
	name, err := l.LoadProfile(context.Background(), "override")
	assert.NoErrorf(t, err, "Load() error = %v", err)
	assert.Equal(t, expected, name)
	assert.Equal(t, "override", l.Profile)
	assert.Equal(t, "my-profile", l.ForBucket("my-bucket").AWSProfile)
}

func TestLoader_Empty(t *testing.T) {
	l := NewLoader()
	assert.Equal(t, CacheConfig{}, l.ForCache())
	assert.Equal(t, BucketConfig{Bucket: "b"}, l.ForBucket("b"))

	err := l.LoadFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
	assert.Equal(t, CacheConfig{}, l.ForCache())
}
