// Package lru provides a read-through block cache in front of a store.ReadableStore.
//
// Values are split into fixed-size blocks that are fetched on demand and kept in a least-recently-used cache. This
// suits the access pattern of zipstore.Adapter over a remote store: the end of the archive and its central directory
// are read once to build the index, then local file headers and small stored files are read at scattered offsets.
//
// The backing values must be immutable while cached.
package lru

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"sync/atomic"

	golanglru "github.com/hashicorp/golang-lru/v2"
	"github.com/nguyengg/zipstore/store"
	"golang.org/x/sync/singleflight"
)

// DefaultBlockSize is the default size of a cached block.
const DefaultBlockSize uint64 = 64 << 10

// DefaultBlocks is the default number of cached blocks.
const DefaultBlocks = 256

// DefaultMaxBlocksPerRead caps the number of blocks a single range may span before the cache is bypassed.
const DefaultMaxBlocksPerRead = 4

// Options customises New.
type Options struct {
	// BlockSize is the size of each cached block.
	//
	// Default to DefaultBlockSize.
	BlockSize uint64

	// Blocks is the maximum number of cached blocks.
	//
	// Default to DefaultBlocks.
	Blocks int

	// MaxBlocksPerRead bypasses the cache for ranges that span more than this many blocks.
	//
	// Default to DefaultMaxBlocksPerRead. Values <= 0 disable the limit.
	MaxBlocksPerRead int
}

type blockKey struct {
	key   store.Key
	index uint64
}

// Store caches the blocks read from another store.
//
// Store is safe for concurrent use.
type Store struct {
	s                store.ReadableStore
	blockSize        uint64
	maxBlocksPerRead int
	blocks           *golanglru.Cache[blockKey, []byte]
	sizes            *golanglru.Cache[store.Key, uint64]
	group            singleflight.Group

	hits, misses atomic.Uint64
}

var _ store.ReadableStore = (*Store)(nil)

// New returns a Store that caches the blocks read from s.
func New(s store.ReadableStore, optFns ...func(*Options)) (*Store, error) {
	opts := &Options{
		BlockSize:        DefaultBlockSize,
		Blocks:           DefaultBlocks,
		MaxBlocksPerRead: DefaultMaxBlocksPerRead,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	if opts.BlockSize == 0 {
		return nil, errors.New("blockSize must be a positive integer")
	}

	blocks, err := golanglru.New[blockKey, []byte](opts.Blocks)
	if err != nil {
		return nil, fmt.Errorf("create block cache error: %w", err)
	}

	sizes, err := golanglru.New[store.Key, uint64](opts.Blocks)
	if err != nil {
		return nil, fmt.Errorf("create size cache error: %w", err)
	}

	return &Store{
		s:                s,
		blockSize:        opts.BlockSize,
		maxBlocksPerRead: opts.MaxBlocksPerRead,
		blocks:           blocks,
		sizes:            sizes,
	}, nil
}

// Stats returns the number of block reads served from the cache and from the backing store.
func (c *Store) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Store) GetPartial(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	size, ok, err := c.SizeOf(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}

	if err = r.Validate(size); err != nil {
		return nil, true, err
	}

	data, err := c.read(ctx, key, size, r.Start(size), r.Length(size))
	return data, true, err
}

// GetPartialMany validates every range before reading any of them.
func (c *Store) GetPartialMany(ctx context.Context, key store.Key, ranges []store.ByteRange) (iter.Seq2[[]byte, error], bool, error) {
	size, ok, err := c.SizeOf(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}

	for _, r := range ranges {
		if err = r.Validate(size); err != nil {
			return nil, true, err
		}
	}

	bufs := make([][]byte, len(ranges))
	for i, r := range ranges {
		if bufs[i], err = c.read(ctx, key, size, r.Start(size), r.Length(size)); err != nil {
			return nil, true, err
		}
	}

	return store.Values(bufs), true, nil
}

// SizeOf caches the sizes of values that exist.
func (c *Store) SizeOf(ctx context.Context, key store.Key) (uint64, bool, error) {
	if size, ok := c.sizes.Get(key); ok {
		return size, true, nil
	}

	size, ok, err := c.s.SizeOf(ctx, key)
	if err == nil && ok {
		c.sizes.Add(key, size)
	}

	return size, ok, err
}

// read assembles [off, off+n) from cached blocks, fetching the missing ones.
func (c *Store) read(ctx context.Context, key store.Key, size, off, n uint64) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}

	first, last := off/c.blockSize, (off+n-1)/c.blockSize
	if c.maxBlocksPerRead > 0 && last-first+1 > uint64(c.maxBlocksPerRead) {
		data, ok, err := c.s.GetPartial(ctx, key, store.FromStart(off, n))
		if err == nil && !ok {
			err = fmt.Errorf(`read "%s" error: value no longer exists`, key)
		}
		return data, err
	}

	data := make([]byte, 0, n)
	for i := first; i <= last; i++ {
		b, err := c.block(ctx, key, size, i)
		if err != nil {
			return nil, err
		}

		start := i * c.blockSize
		lo, hi := max(off, start)-start, min(off+n, start+uint64(len(b)))-start
		data = append(data, b[lo:hi]...)
	}

	return data, nil
}

// block returns the i-th block of the value at key.
//
// Concurrent misses for the same block share one read. The shared read is detached from the cancellation of the caller
// that started it; each caller stops waiting when its own ctx is done.
func (c *Store) block(ctx context.Context, key store.Key, size, i uint64) ([]byte, error) {
	bk := blockKey{key: key, index: i}
	if b, ok := c.blocks.Get(bk); ok {
		c.hits.Add(1)
		return b, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(string(key)+"#"+strconv.FormatUint(i, 10), func() (interface{}, error) {
		if b, ok := c.blocks.Get(bk); ok {
			return b, nil
		}

		c.misses.Add(1)

		off := i * c.blockSize
		b, ok, err := c.s.GetPartial(flightCtx, key, store.FromStart(off, min(c.blockSize, size-off)))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf(`read "%s" block %d error: value no longer exists`, key, i)
		}

		c.blocks.Add(bk, b)
		return b, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.([]byte), nil
	}
}
