package lru

import (
	"context"
	"crypto/rand"
	"io"
	"iter"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nguyengg/zipstore/store"
	"github.com/nguyengg/zipstore/store/memory"
	"github.com/stretchr/testify/assert"
)

// countingStore counts the GetPartial calls made to the wrapped store.
type countingStore struct {
	store.ReadableStore
	calls atomic.Int32
}

func (c *countingStore) GetPartial(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	c.calls.Add(1)
	return c.ReadableStore.GetPartial(ctx, key, r)
}

func (c *countingStore) GetPartialMany(ctx context.Context, key store.Key, ranges []store.ByteRange) (iter.Seq2[[]byte, error], bool, error) {
	c.calls.Add(int32(len(ranges)))
	return c.ReadableStore.GetPartialMany(ctx, key, ranges)
}

// gatedStore blocks every GetPartial call until release is closed.
type gatedStore struct {
	store.ReadableStore
	started chan struct{}
	release chan struct{}
}

func (g *gatedStore) GetPartial(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}

	<-g.release
	return g.ReadableStore.GetPartial(ctx, key, r)
}

func newTestStore(t *testing.T, n int) ([]byte, *countingStore) {
	t.Helper()

	data := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		t.Fatal(err)
	}

	m := memory.New()
	m.Set("test.zip", data)
	return data, &countingStore{ReadableStore: m}
}

func TestStore_GetPartial(t *testing.T) {
	ctx := context.Background()
	data, cs := newTestStore(t, 990)

	c, err := New(cs, func(opts *Options) {
		opts.BlockSize = 100
		opts.Blocks = 4
		opts.MaxBlocksPerRead = 3
	})
	assert.NoErrorf(t, err, "New(...) error = %v", err)

	// spans blocks 1 and 2.
	got, ok, err := c.GetPartial(ctx, "test.zip", store.FromStart(150, 100))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, data[150:250], got)
	assert.Equal(t, int32(2), cs.calls.Load())

	// served entirely from cache.
	got, _, err = c.GetPartial(ctx, "test.zip", store.FromStart(120, 160))
	assert.NoError(t, err)
	assert.Equal(t, data[120:280], got)
	assert.Equal(t, int32(2), cs.calls.Load())

	// the last block is short.
	got, _, err = c.GetPartial(ctx, "test.zip", store.Suffix(30))
	assert.NoError(t, err)
	assert.Equal(t, data[960:], got)
	assert.Equal(t, int32(3), cs.calls.Load())

	// too many blocks bypass the cache.
	got, _, err = c.GetPartial(ctx, "test.zip", store.FromStart(0, 500))
	assert.NoError(t, err)
	assert.Equal(t, data[:500], got)
	assert.Equal(t, int32(4), cs.calls.Load())

	hits, misses := c.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(3), misses)

	got, _, err = c.GetPartial(ctx, "test.zip", store.FromOffset(990))
	assert.NoError(t, err)
	assert.Equal(t, []byte{}, got)

	_, ok, err = c.GetPartial(ctx, "test.zip", store.FromStart(980, 11))
	assert.True(t, ok)
	var rangeErr *store.InvalidByteRangeError
	assert.ErrorAs(t, err, &rangeErr)

	_, ok, err = c.GetPartial(ctx, "missing.zip", store.FromOffset(0))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_GetPartialMany(t *testing.T) {
	ctx := context.Background()
	data, cs := newTestStore(t, 1000)

	c, err := New(cs, func(opts *Options) {
		opts.BlockSize = 256
	})
	assert.NoError(t, err)

	bufs, ok, err := c.GetPartialMany(ctx, "test.zip", []store.ByteRange{store.FromStart(0, 10), store.Suffix(10), store.FromStart(5, 10)})
	assert.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Collect(bufs)
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{data[:10], data[990:], data[5:15]}, got)
	assert.Equal(t, int32(2), cs.calls.Load())
}

func TestStore_ConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	data, cs := newTestStore(t, 1000)

	c, err := New(cs)
	assert.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			got, _, err := c.GetPartial(ctx, "test.zip", store.FromStart(10, 10))
			assert.NoError(t, err)
			assert.Equal(t, data[10:20], got)
		}()
	}
	wg.Wait()

	// allow for a race between the cache check and singleflight.
	assert.LessOrEqual(t, cs.calls.Load(), int32(2))
}

func TestStore_CancelledCallerDoesNotFailOthers(t *testing.T) {
	ctx := context.Background()
	data, cs := newTestStore(t, 1000)
	gs := &gatedStore{ReadableStore: cs, started: make(chan struct{}, 1), release: make(chan struct{})}

	c, err := New(gs, func(opts *Options) {
		opts.BlockSize = 100
	})
	assert.NoError(t, err)

	cancelCtx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() {
		_, _, err := c.GetPartial(cancelCtx, "test.zip", store.FromStart(0, 10))
		errc <- err
	}()
	<-gs.started

	done := make(chan []byte, 1)
	go func() {
		got, _, err := c.GetPartial(ctx, "test.zip", store.FromStart(10, 10))
		assert.NoError(t, err)
		done <- got
	}()

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(gs.release)
	assert.Equal(t, data[10:20], <-done)
	assert.Equal(t, int32(1), cs.calls.Load())
}
