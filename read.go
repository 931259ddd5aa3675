package zipstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"iter"
	"log"
	"math"
	"time"

	"github.com/nguyengg/zipstore/store"
	"github.com/nguyengg/zipstore/zip/fsm"
)

const (
	localHeaderLen = 30
	localHeaderSig = 0x04034b50
)

// reader is the range read engine shared by Adapter and AsyncAdapter.
type reader struct {
	f      fetcher
	key    store.Key
	idx    *index
	logger *log.Logger
}

// getPartialMany validates every range against the entry's uncompressed size before performing any I/O.
func (r *reader) getPartialMany(ctx context.Context, key store.Key, ranges []store.ByteRange) (iter.Seq2[[]byte, error], bool, error) {
	e, ok := r.idx.entry(key)
	if !ok {
		return nil, false, nil
	}

	for _, br := range ranges {
		if err := br.Validate(e.UncompressedSize); err != nil {
			return nil, true, fmt.Errorf(`read "%s" error: %w`, key, err)
		}
	}

	if e.Method == fsm.Store {
		bufs, err := r.readStored(ctx, key, e, ranges)
		return bufs, true, err
	}

	data, err := r.decompress(ctx, key, e)
	if err != nil {
		return nil, true, err
	}

	bufs, err := store.Slice(data, ranges)
	if err != nil {
		return nil, true, fmt.Errorf(`read "%s" error: %w`, key, err)
	}

	return store.Values(bufs), true, nil
}

func (r *reader) getPartial(ctx context.Context, key store.Key, br store.ByteRange) ([]byte, bool, error) {
	bufs, ok, err := r.getPartialMany(ctx, key, []store.ByteRange{br})
	if err != nil || !ok {
		return nil, ok, err
	}

	for b, err := range bufs {
		return b, true, err
	}

	return nil, true, fmt.Errorf(`read "%s" error: %w`, key, ErrEntryDataNotFound)
}

func (r *reader) sizeOf(key store.Key) (uint64, bool) {
	e, ok := r.idx.entry(key)
	return e.UncompressedSize, ok
}

// dataOffset reads the fixed part of the local file header to find where the entry's content starts.
//
// The name and extra field lengths in the local header may differ from those in the central directory so they must be
// read from the local header itself.
func (r *reader) dataOffset(ctx context.Context, e fsm.Entry) (uint64, error) {
	hdr, ok, err := r.f.getPartial(ctx, r.key, store.FromStart(e.HeaderOffset, localHeaderLen))
	switch {
	case err != nil:
		return 0, fmt.Errorf("read local file header at offset %d error: %w", e.HeaderOffset, err)
	case !ok:
		return 0, fmt.Errorf("read local file header at offset %d error: %w", e.HeaderOffset, ErrArchiveDataNotFound)
	case len(hdr) < localHeaderLen:
		return 0, fmt.Errorf("%w: expected %d bytes at offset %d, got %d", ErrLocalHeader, localHeaderLen, e.HeaderOffset, len(hdr))
	}

	if sig := binary.LittleEndian.Uint32(hdr[:4]); sig != localHeaderSig {
		return 0, fmt.Errorf("%w: mismatched signature at offset %d, got 0x%x, expected 0x%x", ErrLocalHeader, e.HeaderOffset, sig, localHeaderSig)
	}

	n := uint64(binary.LittleEndian.Uint16(hdr[26:28]))
	m := uint64(binary.LittleEndian.Uint16(hdr[28:30]))
	return e.HeaderOffset + localHeaderLen + n + m, nil
}

// readStored translates ranges of a stored entry into absolute ranges of the archive and delegates to the backing
// store.
func (r *reader) readStored(ctx context.Context, key store.Key, e fsm.Entry, ranges []store.ByteRange) (iter.Seq2[[]byte, error], error) {
	off, err := r.dataOffset(ctx, e)
	if err != nil {
		return nil, fmt.Errorf(`read "%s" error: %w`, key, err)
	}
	if off > r.idx.size || e.UncompressedSize > r.idx.size-off {
		return nil, fmt.Errorf(`read "%s" error: %w: content at offset %d with size %d extends past end of archive`, key, ErrMalformedArchive, off, e.UncompressedSize)
	}

	size := e.UncompressedSize
	translated := make([]store.ByteRange, len(ranges))
	for i, br := range ranges {
		translated[i] = store.FromStart(off+br.Start(size), br.Length(size))
	}

	bufs, ok, err := r.f.getPartialMany(ctx, r.key, translated)
	if err != nil {
		return nil, fmt.Errorf(`read "%s" error: %w`, key, err)
	}
	if !ok {
		return nil, fmt.Errorf(`read "%s" error: %w`, key, ErrEntryDataNotFound)
	}

	return bufs, nil
}

// decompress materialises the entire content of a compressed entry by driving fsm.EntryFSM.
//
// Nothing is cached; every call decompresses from scratch.
func (r *reader) decompress(ctx context.Context, key store.Key, e fsm.Entry) ([]byte, error) {
	if e.UncompressedSize > math.MaxInt {
		return nil, fmt.Errorf(`decompress "%s" error: uncompressed size %d is too large`, key, e.UncompressedSize)
	}

	start := time.Now()
	m := fsm.NewEntryFSM(e)
	out := make([]byte, 0, e.UncompressedSize)
	for {
		if m.WantsRead() {
			if _, err := feed(ctx, r.f, r.key, r.idx.size, m.Offset(), m); err != nil {
				return nil, fmt.Errorf(`decompress "%s" error: %w`, key, err)
			}
			continue
		}

		o, err := m.Process(out[len(out):cap(out)])
		if err != nil {
			return nil, fmt.Errorf(`decompress "%s" error: %w`, key, malformed(err))
		}

		out = out[:len(out)+o.BytesWritten]
		if o.Done {
			break
		}
	}

	if uint64(len(out)) != e.UncompressedSize {
		return nil, &SizeMismatchError{Key: key, Expected: e.UncompressedSize, Actual: uint64(len(out))}
	}

	r.logger.Printf(`decompressed "%s" (%s, %d -> %d bytes) in %s`, key, e.Method, e.CompressedSize, e.UncompressedSize, time.Since(start))
	return out, nil
}
