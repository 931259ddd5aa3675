// Package memory provides an in-memory store.
package memory

import (
	"context"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/nguyengg/zipstore/store"
)

// Store keeps every value in memory.
//
// Store is safe for concurrent use. Values are copied on the way in and on the way out.
type Store struct {
	// mu guards data.
	mu   sync.RWMutex
	data map[store.Key][]byte
}

var (
	_ store.ReadableStore = (*Store)(nil)
	_ store.ListableStore = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[store.Key][]byte)}
}

// Set stores a copy of value at key.
func (s *Store) Set(key store.Key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte{}, value...)
}

// Erase removes the value at key, if any.
func (s *Store) Erase(key store.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
}

func (s *Store) get(key store.Key) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	return v, ok
}

func (s *Store) GetPartial(_ context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	v, ok := s.get(key)
	if !ok {
		return nil, false, nil
	}

	bufs, err := store.Slice(v, []store.ByteRange{r})
	if err != nil {
		return nil, true, err
	}

	return bufs[0], true, nil
}

func (s *Store) GetPartialMany(_ context.Context, key store.Key, ranges []store.ByteRange) (iter.Seq2[[]byte, error], bool, error) {
	v, ok := s.get(key)
	if !ok {
		return nil, false, nil
	}

	bufs, err := store.Slice(v, ranges)
	if err != nil {
		return nil, true, err
	}

	return store.Values(bufs), true, nil
}

func (s *Store) SizeOf(_ context.Context, key store.Key) (uint64, bool, error) {
	v, ok := s.get(key)
	return uint64(len(v)), ok, nil
}

func (s *Store) sortedKeys() []store.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]store.Key, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}

	slices.Sort(keys)
	return keys
}

func (s *Store) List(ctx context.Context) ([]store.Key, error) {
	return s.ListPrefix(ctx, store.Root)
}

func (s *Store) ListPrefix(_ context.Context, prefix store.Prefix) ([]store.Key, error) {
	keys := make([]store.Key, 0)
	for _, k := range s.sortedKeys() {
		if k.HasPrefix(prefix) {
			keys = append(keys, k)
		}
	}

	return keys, nil
}

func (s *Store) ListDir(_ context.Context, prefix store.Prefix) (res store.KeysPrefixes, err error) {
	res.Keys = make([]store.Key, 0)
	res.Prefixes = make([]store.Prefix, 0)

	for _, k := range s.sortedKeys() {
		if !k.HasPrefix(prefix) {
			continue
		}

		if k.Parent() == prefix {
			res.Keys = append(res.Keys, k)
			continue
		}

		rest := strings.TrimPrefix(string(k), string(prefix))
		child := prefix + store.Prefix(rest[:strings.IndexByte(rest, '/')+1])
		if n := len(res.Prefixes); n == 0 || res.Prefixes[n-1] != child {
			res.Prefixes = append(res.Prefixes, child)
		}
	}

	return res, nil
}

func (s *Store) Size(ctx context.Context) (uint64, error) {
	return s.SizePrefix(ctx, store.Root)
}

func (s *Store) SizePrefix(_ context.Context, prefix store.Prefix) (n uint64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for k, v := range s.data {
		if k.HasPrefix(prefix) {
			n += uint64(len(v))
		}
	}

	return n, nil
}
