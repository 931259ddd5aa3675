package zipstore

import (
	"context"
	"iter"

	"github.com/nguyengg/zipstore/store"
)

// AsyncAdapter is the suspending counterpart of Adapter.
//
// Every read returns a channel immediately and runs on its own goroutine; each access to the backing store is awaited
// with store.Await so a pending read only parks that goroutine. Results are identical to those of Adapter.
type AsyncAdapter struct {
	listing
	r *reader
}

var (
	_ store.AsyncReadableStore = (*AsyncAdapter)(nil)
	_ store.ListableStore      = (*AsyncAdapter)(nil)
)

// OpenAsync is the suspending counterpart of Open.
func OpenAsync(ctx context.Context, s store.AsyncReadableStore, key store.Key, optFns ...func(*Options)) <-chan store.Result[*AsyncAdapter] {
	opts := newOptions(optFns...)

	return store.Go(ctx, func(ctx context.Context) (*AsyncAdapter, bool, error) {
		r, err := open(ctx, suspendingFetcher{s: s}, key, opts)
		if err != nil {
			return nil, false, err
		}

		return &AsyncAdapter{listing: listing{idx: r.idx}, r: r}, true, nil
	})
}

// OpenWithRootAsync is the suspending counterpart of OpenWithRoot.
func OpenWithRootAsync(ctx context.Context, s store.AsyncReadableStore, key store.Key, root string, optFns ...func(*Options)) <-chan store.Result[*AsyncAdapter] {
	return OpenAsync(ctx, s, key, append(optFns, WithRoot(root))...)
}

// GetPartialAsync is the suspending counterpart of Adapter.GetPartial.
func (a *AsyncAdapter) GetPartialAsync(ctx context.Context, key store.Key, r store.ByteRange) <-chan store.Result[[]byte] {
	if _, ok := a.r.sizeOf(key); !ok {
		return store.Resolved[[]byte](nil, false, nil)
	}

	return store.Go(ctx, func(ctx context.Context) ([]byte, bool, error) {
		return a.r.getPartial(ctx, key, r)
	})
}

// GetPartialManyAsync is the suspending counterpart of Adapter.GetPartialMany.
func (a *AsyncAdapter) GetPartialManyAsync(ctx context.Context, key store.Key, ranges []store.ByteRange) <-chan store.Result[iter.Seq2[[]byte, error]] {
	if _, ok := a.r.sizeOf(key); !ok {
		return store.Resolved[iter.Seq2[[]byte, error]](nil, false, nil)
	}

	return store.Go(ctx, func(ctx context.Context) (iter.Seq2[[]byte, error], bool, error) {
		return a.r.getPartialMany(ctx, key, ranges)
	})
}

// GetAsync is the suspending counterpart of Adapter.Get.
func (a *AsyncAdapter) GetAsync(ctx context.Context, key store.Key) <-chan store.Result[[]byte] {
	return a.GetPartialAsync(ctx, key, store.FromOffset(0))
}

// SizeOfAsync is the suspending counterpart of Adapter.SizeOf.
//
// The size comes from the index so the result is always ready.
func (a *AsyncAdapter) SizeOfAsync(_ context.Context, key store.Key) <-chan store.Result[uint64] {
	size, ok := a.r.sizeOf(key)
	return store.Resolved(size, ok, nil)
}
