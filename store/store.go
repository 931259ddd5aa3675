// Package store defines the vocabulary shared by every key-value store in this module: keys, prefixes, byte ranges,
// and the blocking and suspending read contracts.
//
// A value that does not exist is never an error. Read methods report absence with a false "found" return value so that
// callers can distinguish it from a failed read.
package store

import (
	"context"
	"iter"
)

// ReadableStore is a blocking, read-only view of a byte-oriented key-value store.
//
// Every method blocks the calling goroutine until the underlying read completes or ctx is done.
type ReadableStore interface {
	// GetPartial returns the bytes of a single range of the value at key.
	GetPartial(ctx context.Context, key Key, r ByteRange) (data []byte, found bool, err error)

	// GetPartialMany returns one buffer per requested range, in request order.
	//
	// The returned sequence may be lazy; implementations are free to defer I/O until the sequence is iterated.
	GetPartialMany(ctx context.Context, key Key, ranges []ByteRange) (bufs iter.Seq2[[]byte, error], found bool, err error)

	// SizeOf returns the size in bytes of the value at key.
	SizeOf(ctx context.Context, key Key) (size uint64, found bool, err error)
}

// ListableStore can enumerate its keys.
type ListableStore interface {
	// List returns every key in lexicographical order.
	List(ctx context.Context) ([]Key, error)

	// ListPrefix returns every key that starts with prefix in lexicographical order.
	ListPrefix(ctx context.Context, prefix Prefix) ([]Key, error)

	// ListDir returns the keys and prefixes that are immediate children of prefix.
	ListDir(ctx context.Context, prefix Prefix) (KeysPrefixes, error)

	// Size returns the total size of the store in bytes.
	Size(ctx context.Context) (uint64, error)

	// SizePrefix returns the total size of all keys under prefix in bytes.
	SizePrefix(ctx context.Context, prefix Prefix) (uint64, error)
}

// Get is a convenient method to read the entire value at key.
func Get(ctx context.Context, s ReadableStore, key Key) ([]byte, bool, error) {
	return s.GetPartial(ctx, key, FromOffset(0))
}

// Collect drains the sequence returned by GetPartialMany, stopping at the first error.
func Collect(bufs iter.Seq2[[]byte, error]) ([][]byte, error) {
	var res [][]byte
	for b, err := range bufs {
		if err != nil {
			return nil, err
		}

		res = append(res, b)
	}

	return res, nil
}

// Values returns a sequence over already materialised buffers.
func Values(bufs [][]byte) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, b := range bufs {
			if !yield(b, nil) {
				return
			}
		}
	}
}

// Lazy returns a sequence that calls get once per range as the sequence is iterated.
//
// Iteration stops after the first error.
func Lazy(ranges []ByteRange, get func(r ByteRange) ([]byte, error)) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, r := range ranges {
			b, err := get(r)
			if !yield(b, err) || err != nil {
				return
			}
		}
	}
}
