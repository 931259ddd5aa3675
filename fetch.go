package zipstore

import (
	"context"
	"fmt"
	"iter"

	"github.com/nguyengg/zipstore/store"
)

// fetcher is the I/O discipline the index builder and the read engine are written against.
//
// blockingFetcher calls a ReadableStore directly while suspendingFetcher awaits an AsyncReadableStore, so both
// adapters share every algorithm in this package.
type fetcher interface {
	getPartial(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error)
	getPartialMany(ctx context.Context, key store.Key, ranges []store.ByteRange) (iter.Seq2[[]byte, error], bool, error)
	sizeOf(ctx context.Context, key store.Key) (uint64, bool, error)
}

type blockingFetcher struct {
	s store.ReadableStore
}

func (f blockingFetcher) getPartial(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	return f.s.GetPartial(ctx, key, r)
}

func (f blockingFetcher) getPartialMany(ctx context.Context, key store.Key, ranges []store.ByteRange) (iter.Seq2[[]byte, error], bool, error) {
	return f.s.GetPartialMany(ctx, key, ranges)
}

func (f blockingFetcher) sizeOf(ctx context.Context, key store.Key) (uint64, bool, error) {
	return f.s.SizeOf(ctx, key)
}

type suspendingFetcher struct {
	s store.AsyncReadableStore
}

func (f suspendingFetcher) getPartial(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	return store.Await(ctx, f.s.GetPartialAsync(ctx, key, r))
}

func (f suspendingFetcher) getPartialMany(ctx context.Context, key store.Key, ranges []store.ByteRange) (iter.Seq2[[]byte, error], bool, error) {
	return store.Await(ctx, f.s.GetPartialManyAsync(ctx, key, ranges))
}

func (f suspendingFetcher) sizeOf(ctx context.Context, key store.Key) (uint64, bool, error) {
	return store.Await(ctx, f.s.SizeOfAsync(ctx, key))
}

// feeder is the input side shared by fsm.ArchiveFSM and fsm.EntryFSM.
type feeder interface {
	Space() []byte
	Fill(n int) int
}

// feed reads the next bytes of the archive at offset off into m.Space().
//
// Reads never extend past the end of the archive. If there is nothing left to read, feed signals end of input with
// Fill(0). Returns the number of bytes accepted by m.
func feed(ctx context.Context, f fetcher, key store.Key, size, off uint64, m feeder) (int, error) {
	space := m.Space()

	var remaining uint64
	if off < size {
		remaining = size - off
	}

	n := min(uint64(len(space)), remaining)
	if n == 0 {
		return m.Fill(0), nil
	}

	data, ok, err := f.getPartial(ctx, key, store.FromStart(off, n))
	if err != nil {
		return 0, fmt.Errorf(`read "%s" at offset %d error: %w`, key, off, err)
	}
	if !ok {
		return 0, fmt.Errorf(`read "%s" at offset %d error: %w`, key, off, ErrArchiveDataNotFound)
	}

	return m.Fill(copy(space, data)), nil
}
