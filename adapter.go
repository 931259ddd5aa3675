package zipstore

import (
	"context"
	"iter"
	"time"

	"github.com/nguyengg/zipstore/store"
	"github.com/nguyengg/zipstore/zip/fsm"
)

// Adapter exposes the contents of a zip archive stored as a single value of a store.ReadableStore as a read-only,
// listable store.
//
// The central directory is parsed once by Open; the resulting index is immutable so an Adapter is safe for
// concurrent use. Entries are read from the backing store on every call; stored entries are served with ranged reads
// while compressed entries are decompressed in full every time.
//
// Because Adapter itself implements store.ReadableStore, a zip nested inside another zip can be opened by passing one
// Adapter to another Open call.
type Adapter struct {
	listing
	r *reader
}

var (
	_ store.ReadableStore = (*Adapter)(nil)
	_ store.ListableStore = (*Adapter)(nil)
)

// Open parses the zip archive stored at key of s.
//
// The archive's size must be known to s, otherwise ErrUnknownSize is returned. Construction is all or nothing: any
// read or parse error, or any archive path that does not form a valid store.Key or store.Prefix, fails the whole call.
func Open(ctx context.Context, s store.ReadableStore, key store.Key, optFns ...func(*Options)) (*Adapter, error) {
	opts := newOptions(optFns...)

	r, err := open(ctx, blockingFetcher{s: s}, key, opts)
	if err != nil {
		return nil, err
	}

	return &Adapter{listing: listing{idx: r.idx}, r: r}, nil
}

// OpenWithRoot is a variant of Open that only exposes the archive paths under root, with root stripped.
func OpenWithRoot(ctx context.Context, s store.ReadableStore, key store.Key, root string, optFns ...func(*Options)) (*Adapter, error) {
	return Open(ctx, s, key, append(optFns, WithRoot(root))...)
}

func open(ctx context.Context, f fetcher, key store.Key, opts *Options) (*reader, error) {
	start := time.Now()

	idx, err := buildIndex(ctx, f, key, opts)
	if err != nil {
		return nil, err
	}

	opts.Logger.Printf(`indexed "%s" (%d bytes): %d files, %d entries skipped in %s`, key, idx.size, len(idx.byKey), idx.skipped, time.Since(start))
	return &reader{f: f, key: key, idx: idx, logger: opts.Logger}, nil
}

// GetPartial returns a single range of the file at key.
//
// found is false if the archive has no such file.
func (a *Adapter) GetPartial(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	return a.r.getPartial(ctx, key, r)
}

// GetPartialMany returns one buffer per requested range, in request order.
//
// Every range is validated against the file's uncompressed size before any I/O; if any range does not fit, the whole
// request fails with a *store.InvalidByteRangeError. found is false if the archive has no such file.
func (a *Adapter) GetPartialMany(ctx context.Context, key store.Key, ranges []store.ByteRange) (iter.Seq2[[]byte, error], bool, error) {
	return a.r.getPartialMany(ctx, key, ranges)
}

// Get returns the entire content of the file at key.
func (a *Adapter) Get(ctx context.Context, key store.Key) ([]byte, bool, error) {
	return a.r.getPartial(ctx, key, store.FromOffset(0))
}

// SizeOf returns the uncompressed size of the file at key.
func (a *Adapter) SizeOf(_ context.Context, key store.Key) (uint64, bool, error) {
	size, ok := a.r.sizeOf(key)
	return size, ok, nil
}

// listing implements the listing methods shared by Adapter and AsyncAdapter.
//
// Listing never performs I/O since it only consults the index.
type listing struct {
	idx *index
}

func (l listing) List(_ context.Context) ([]store.Key, error) {
	return l.idx.list(), nil
}

func (l listing) ListPrefix(_ context.Context, prefix store.Prefix) ([]store.Key, error) {
	return l.idx.listPrefix(prefix), nil
}

func (l listing) ListDir(_ context.Context, prefix store.Prefix) (store.KeysPrefixes, error) {
	return l.idx.listDir(prefix), nil
}

// Size returns the size of the archive itself.
func (l listing) Size(_ context.Context) (uint64, error) {
	return l.idx.size, nil
}

// SizePrefix returns the sum of the compressed sizes of the files under prefix.
func (l listing) SizePrefix(_ context.Context, prefix store.Prefix) (uint64, error) {
	return l.idx.sizePrefix(prefix), nil
}

// Len returns the number of files in the index.
func (l listing) Len() int {
	return len(l.idx.byKey)
}

// Entry returns the parsed central directory record of the file at key.
func (l listing) Entry(key store.Key) (fsm.Entry, bool) {
	return l.idx.entry(key)
}

// Comment returns the archive comment.
func (l listing) Comment() string {
	return l.idx.comment
}
