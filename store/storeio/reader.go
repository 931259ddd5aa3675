// Package storeio adapts a single value of a store.ReadableStore to the io interfaces.
package storeio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nguyengg/zipstore/store"
)

// DefaultBufferSize is the default value for Options.BufferSize.
const DefaultBufferSize = 64 * 1024

var (
	// ErrNotFound is returned when the value no longer exists in the store.
	ErrNotFound = errors.New("value not found")

	ErrSeekBeforeFirstByte = errors.New("seek ends up before first byte")
	ErrInvalidWhence       = errors.New("invalid whence")
)

// Options customises NewReader.
type Options struct {
	// BufferSize is used to provide buffered read-ahead for every Read call.
	//
	// By default, DefaultBufferSize is used so that consecutive small Reads don't end up with several GetPartial calls
	// if one bigger call is more efficient.
	//
	// Pass zero or a negative value to disable this feature.
	BufferSize int

	// CtxFn returns a context.Context to be used with every GetPartial or SizeOf call.
	//
	// By default, context.Background is used.
	CtxFn func() context.Context
}

// Reader uses ranged GetPartial calls to implement io.ReadSeeker and io.ReaderAt.
//
// Reader is not safe for concurrent use, with the exception of ReadAt.
type Reader struct {
	s          store.ReadableStore
	key        store.Key
	ctxFn      func() context.Context
	off, size  int64
	buf        bytes.Buffer
	bufferSize int
}

var (
	_ io.ReadSeeker = (*Reader)(nil)
	_ io.ReaderAt   = (*Reader)(nil)
)

// NewReader returns a Reader of the value at key.
//
// The size of the value is determined once with SizeOf; ErrNotFound is returned if the value does not exist.
func NewReader(s store.ReadableStore, key store.Key, optFns ...func(*Options)) (*Reader, error) {
	opts := &Options{
		BufferSize: DefaultBufferSize,
		CtxFn:      context.Background,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	size, ok, err := s.SizeOf(opts.CtxFn(), key)
	if err != nil {
		return nil, fmt.Errorf(`determine size of "%s" error: %w`, key, err)
	}
	if !ok {
		return nil, fmt.Errorf(`determine size of "%s" error: %w`, key, ErrNotFound)
	}

	return &Reader{
		s:          s,
		key:        key,
		ctxFn:      opts.CtxFn,
		size:       int64(size),
		bufferSize: opts.BufferSize,
	}, nil
}

// Size returns the size of the value that was determined by NewReader.
func (r *Reader) Size() int64 {
	return r.size
}

// get reads [off, off+n) which must be within the value.
func (r *Reader) get(off, n int64) ([]byte, error) {
	data, ok, err := r.s.GetPartial(r.ctxFn(), r.key, store.FromStart(uint64(off), uint64(n)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	return data, nil
}

func (r *Reader) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	// r.buf always starts at r.off.
	if r.buf.Len() == 0 {
		if r.off >= r.size {
			return 0, io.EOF
		}

		data, err := r.get(r.off, min(r.size-r.off, int64(max(len(p), r.bufferSize))))
		if err != nil {
			return 0, err
		}

		r.buf.Write(data)
	}

	n, _ = r.buf.Read(p)
	r.off += int64(n)
	return n, nil
}

func (r *Reader) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, ErrSeekBeforeFirstByte
	}
	if off >= r.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	data, err := r.get(off, min(int64(len(p)), r.size-off))
	if err != nil {
		return 0, err
	}

	if n = copy(p, data); n < len(p) {
		err = io.EOF
	}

	return n, err
}

// Seek implements io.Seeker.
//
// Seeking past the end is allowed; subsequent Reads return io.EOF.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.off + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return r.off, ErrInvalidWhence
	}

	if abs < 0 {
		return r.off, ErrSeekBeforeFirstByte
	}

	// keep whatever is still ahead of the new offset.
	if d := abs - r.off; d >= 0 && d <= int64(r.buf.Len()) {
		r.buf.Next(int(d))
	} else {
		r.buf.Reset()
	}

	r.off = abs
	return abs, nil
}
