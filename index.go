package zipstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nguyengg/zipstore/store"
	"github.com/nguyengg/zipstore/zip/fsm"
)

// indexedKey is either a file key or an explicit directory prefix.
type indexedKey struct {
	name     string
	isPrefix bool
}

// index is the immutable result of parsing an archive's central directory.
type index struct {
	// size is the size of the archive itself.
	size uint64
	// comment is the archive comment.
	comment string
	// byKey contains only file entries.
	byKey map[store.Key]fsm.Entry
	// sorted contains file keys and directory prefixes sorted by their string form.
	sorted []indexedKey
	// skipped counts the entries that were not indexed: symlinks and paths outside of root.
	skipped int
}

// buildIndex parses the central directory of the archive at key using the pull/feed loop.
func buildIndex(ctx context.Context, f fetcher, key store.Key, opts *Options) (*index, error) {
	size, ok, err := f.sizeOf(ctx, key)
	if err != nil {
		return nil, fmt.Errorf(`get size of "%s" error: %w`, key, err)
	}
	if !ok {
		return nil, fmt.Errorf(`get size of "%s" error: %w`, key, ErrUnknownSize)
	}

	m := fsm.NewArchiveFSM(size)
	for {
		if off, ok := m.WantsRead(); ok {
			if _, err = feed(ctx, f, key, size, off, m); err != nil {
				return nil, err
			}
			continue
		}

		archive, err := m.Process()
		if err != nil {
			return nil, fmt.Errorf(`parse "%s" error: %w`, key, malformed(err))
		}
		if archive != nil {
			return newIndex(archive, opts.Root)
		}
	}
}

// newIndex classifies the archive's entries after stripping root from their names.
func newIndex(archive *fsm.Archive, root string) (*index, error) {
	idx := &index{
		size:    archive.Size,
		comment: archive.Comment,
		byKey:   make(map[store.Key]fsm.Entry, len(archive.Entries)),
		sorted:  make([]indexedKey, 0, len(archive.Entries)),
	}

	for _, e := range archive.Entries {
		name, ok := strings.CutPrefix(e.Name, root)
		if !ok || name == "" {
			idx.skipped++
			continue
		}

		switch e.Kind() {
		case fsm.KindFile:
			k, err := store.NewKey(name)
			if err != nil {
				return nil, &InvalidIdentifierError{Name: e.Name, Err: store.ErrInvalidKey}
			}

			idx.byKey[k] = e
			idx.sorted = append(idx.sorted, indexedKey{name: name})
		case fsm.KindDirectory:
			if _, err := store.NewPrefix(name); err != nil {
				return nil, &InvalidIdentifierError{Name: e.Name, Err: store.ErrInvalidPrefix}
			}

			idx.sorted = append(idx.sorted, indexedKey{name: name, isPrefix: true})
		default:
			idx.skipped++
		}
	}

	sort.Slice(idx.sorted, func(i, j int) bool {
		return idx.sorted[i].name < idx.sorted[j].name
	})

	return idx, nil
}

// withPrefix returns the contiguous run of indexed keys that start with prefix.
func (idx *index) withPrefix(prefix store.Prefix) []indexedKey {
	p := string(prefix)
	start := sort.Search(len(idx.sorted), func(i int) bool {
		return idx.sorted[i].name >= p
	})
	end := start + sort.Search(len(idx.sorted)-start, func(i int) bool {
		return !strings.HasPrefix(idx.sorted[start+i].name, p)
	})

	return idx.sorted[start:end]
}

func (idx *index) list() []store.Key {
	return idx.listPrefix(store.Root)
}

func (idx *index) listPrefix(prefix store.Prefix) []store.Key {
	keys := make([]store.Key, 0)
	for _, k := range idx.withPrefix(prefix) {
		if !k.isPrefix {
			keys = append(keys, store.Key(k.name))
		}
	}

	return keys
}

func (idx *index) listDir(prefix store.Prefix) store.KeysPrefixes {
	res := store.KeysPrefixes{Keys: make([]store.Key, 0), Prefixes: make([]store.Prefix, 0)}
	add := func(p store.Prefix) {
		if n := len(res.Prefixes); n == 0 || res.Prefixes[n-1] != p {
			res.Prefixes = append(res.Prefixes, p)
		}
	}

	for _, k := range idx.withPrefix(prefix) {
		rest := strings.TrimPrefix(k.name, string(prefix))

		if k.isPrefix {
			// explicit directories are listed only if they are an immediate child.
			if rest != "" && !strings.Contains(strings.TrimRight(rest, "/"), "/") {
				add(store.Prefix(k.name))
			}
			continue
		}

		if key := store.Key(k.name); key.Parent() == prefix {
			res.Keys = append(res.Keys, key)
		} else if p, ok := immediateChildPrefix(rest, prefix); ok {
			add(p)
		}
	}

	return res
}

// immediateChildPrefix returns the prefix of the first path segment of rest under prefix.
func immediateChildPrefix(rest string, prefix store.Prefix) (store.Prefix, bool) {
	i := strings.IndexByte(rest, '/')
	if i == -1 {
		return "", false
	}

	return prefix + store.Prefix(rest[:i+1]), true
}

func (idx *index) sizePrefix(prefix store.Prefix) (n uint64) {
	for _, k := range idx.withPrefix(prefix) {
		if !k.isPrefix {
			n += idx.byKey[store.Key(k.name)].CompressedSize
		}
	}

	return n
}

func (idx *index) entry(key store.Key) (fsm.Entry, bool) {
	e, ok := idx.byKey[key]
	return e, ok
}
