package store

import (
	"context"
	"iter"
)

// Result is the outcome of an asynchronous store operation.
type Result[T any] struct {
	Value T
	Found bool
	Err   error
}

// AsyncReadableStore is the suspending counterpart of ReadableStore.
//
// Every method returns immediately with a channel that receives exactly one Result once the read completes. A caller
// waits for it with Await, which parks only the calling goroutine. Channels are buffered so an abandoned result never
// blocks the producer.
type AsyncReadableStore interface {
	GetPartialAsync(ctx context.Context, key Key, r ByteRange) <-chan Result[[]byte]
	GetPartialManyAsync(ctx context.Context, key Key, ranges []ByteRange) <-chan Result[iter.Seq2[[]byte, error]]
	SizeOfAsync(ctx context.Context, key Key) <-chan Result[uint64]
}

// Await waits for the result of an asynchronous operation or for ctx to be done, whichever happens first.
func Await[T any](ctx context.Context, ch <-chan Result[T]) (T, bool, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case r := <-ch:
		return r.Value, r.Found, r.Err
	}
}

// Go runs fn on a new goroutine and returns a channel that will receive its result.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, bool, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		v, found, err := fn(ctx)
		ch <- Result[T]{Value: v, Found: found, Err: err}
	}()

	return ch
}

// Resolved returns a channel that already holds the given result.
func Resolved[T any](v T, found bool, err error) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	ch <- Result[T]{Value: v, Found: found, Err: err}
	return ch
}

// AsyncOf adapts a blocking ReadableStore to AsyncReadableStore by running every read on its own goroutine.
//
// If s already implements AsyncReadableStore, it is returned as-is.
func AsyncOf(s ReadableStore) AsyncReadableStore {
	if as, ok := s.(AsyncReadableStore); ok {
		return as
	}

	return &asyncStore{s: s}
}

type asyncStore struct {
	s ReadableStore
}

func (a *asyncStore) GetPartialAsync(ctx context.Context, key Key, r ByteRange) <-chan Result[[]byte] {
	return Go(ctx, func(ctx context.Context) ([]byte, bool, error) {
		return a.s.GetPartial(ctx, key, r)
	})
}

func (a *asyncStore) GetPartialManyAsync(ctx context.Context, key Key, ranges []ByteRange) <-chan Result[iter.Seq2[[]byte, error]] {
	return Go(ctx, func(ctx context.Context) (iter.Seq2[[]byte, error], bool, error) {
		return a.s.GetPartialMany(ctx, key, ranges)
	})
}

func (a *asyncStore) SizeOfAsync(ctx context.Context, key Key) <-chan Result[uint64] {
	return Go(ctx, func(ctx context.Context) (uint64, bool, error) {
		return a.s.SizeOf(ctx, key)
	})
}
