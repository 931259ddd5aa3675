package httpstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nguyengg/zipstore/store"
	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T, path string, n int) ([]byte, *httptest.Server, *atomic.Int32) {
	t.Helper()

	data := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}

		http.ServeContent(w, r, path, time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)

	return data, srv, &calls
}

func TestStore_GetPartial(t *testing.T) {
	ctx := context.Background()
	data, srv, _ := newTestServer(t, "/data/a/test.zip", 1024)

	s, err := New(srv.URL+"/data", WithHeader("Authorization", "Bearer token"))
	assert.NoErrorf(t, err, "New(...) error = %v", err)
	assert.Equal(t, srv.URL+"/data/a/test.zip", s.URL("a/test.zip"))

	tests := []struct {
		name     string
		r        store.ByteRange
		expected []byte
		invalid  bool
	}{
		{name: "from start", r: store.FromStart(42, 100), expected: data[42:142]},
		{name: "from offset", r: store.FromOffset(1000), expected: data[1000:]},
		{name: "suffix", r: store.Suffix(24), expected: data[1000:]},
		{name: "entire content", r: store.FromOffset(0), expected: data},
		{name: "empty at end", r: store.FromStart(1024, 0), expected: []byte{}},
		{name: "from offset at end", r: store.FromOffset(1024), expected: []byte{}},
		{name: "past end", r: store.FromStart(1000, 100), invalid: true},
		{name: "start past end", r: store.FromStart(1025, 1), invalid: true},
		{name: "suffix longer than content", r: store.Suffix(1025), expected: data},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := s.GetPartial(ctx, "a/test.zip", tt.r)
			assert.Truef(t, ok, "GetPartial(%s) should have found resource", tt.r)

			if tt.invalid {
				var rangeErr *store.InvalidByteRangeError
				if assert.ErrorAsf(t, err, &rangeErr, "GetPartial(%s) error = %v", tt.r, err) {
					assert.Equal(t, uint64(1024), rangeErr.Size)
				}
				return
			}

			assert.NoErrorf(t, err, "GetPartial(%s) error = %v", tt.r, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestStore_GetPartialMany(t *testing.T) {
	ctx := context.Background()
	data, srv, calls := newTestServer(t, "/test.zip", 1024)

	s, err := New(srv.URL, WithHeader("Authorization", "Bearer token"), func(opts *Options) {
		opts.Concurrency = 2
	})
	assert.NoError(t, err)

	ranges := []store.ByteRange{store.FromStart(0, 10), store.Suffix(10), store.FromStart(500, 1)}
	bufs, ok, err := store.Await(ctx, s.GetPartialManyAsync(ctx, "test.zip", ranges))
	assert.NoErrorf(t, err, "GetPartialManyAsync(...) error = %v", err)
	assert.True(t, ok)

	got, err := store.Collect(bufs)
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{data[:10], data[1014:], data[500:501]}, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	_, srv, _ := newTestServer(t, "/test.zip", 16)

	s, err := New(srv.URL, WithHeader("Authorization", "Bearer token"))
	assert.NoError(t, err)

	_, ok, err := s.GetPartial(ctx, "missing.zip", store.FromStart(0, 1))
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.SizeOf(ctx, "missing.zip")
	assert.NoError(t, err)
	assert.False(t, ok)

	size, ok, err := s.SizeOf(ctx, "test.zip")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(16), size)

	// without the header the server refuses every request.
	s, err = New(srv.URL)
	assert.NoError(t, err)
	_, _, err = s.GetPartial(ctx, "test.zip", store.FromStart(0, 1))
	assert.Error(t, err)

	_, err = New("ftp://example.com")
	assert.Error(t, err)
}

func TestStore_RangeNotSupported(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello, world"))
	}))
	defer srv.Close()

	s, err := New(srv.URL)
	assert.NoError(t, err)

	_, _, err = s.GetPartial(ctx, "test.zip", store.FromStart(0, 5))
	assert.ErrorIs(t, err, ErrRangeNotSupported)
}
