// Package filesystem provides a store rooted at a directory of an afero.Fs.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/nguyengg/zipstore/store"
	"github.com/spf13/afero"
)

// Store maps keys to the regular files under a root directory.
//
// The key "a/b/c" is the file "<root>/a/b/c". Directories are never keys.
type Store struct {
	fs afero.Fs
}

var (
	_ store.ReadableStore = (*Store)(nil)
	_ store.ListableStore = (*Store)(nil)
)

// New returns a Store rooted at dir of the operating system's file system.
func New(dir string) *Store {
	return NewFs(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// NewFs returns a Store rooted at the root of fsys.
func NewFs(fsys afero.Fs) *Store {
	return &Store{fs: fsys}
}

func (s *Store) open(key store.Key) (afero.File, fs.FileInfo, bool, error) {
	f, err := s.fs.Open(string(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, false, nil
		}

		return nil, nil, false, fmt.Errorf(`open "%s" error: %w`, key, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, false, fmt.Errorf(`stat "%s" error: %w`, key, err)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, nil, false, nil
	}

	return f, fi, true, nil
}

func (s *Store) GetPartial(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	bufs, ok, err := s.GetPartialMany(ctx, key, []store.ByteRange{r})
	if err != nil || !ok {
		return nil, ok, err
	}

	for b, err := range bufs {
		return b, true, err
	}

	return nil, true, nil
}

// GetPartialMany validates every range against the file's current size then reads each with ReadAt.
func (s *Store) GetPartialMany(_ context.Context, key store.Key, ranges []store.ByteRange) (iter.Seq2[[]byte, error], bool, error) {
	f, fi, ok, err := s.open(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	defer f.Close()

	size := uint64(fi.Size())
	for _, r := range ranges {
		if err = r.Validate(size); err != nil {
			return nil, true, err
		}
	}

	bufs := make([][]byte, len(ranges))
	for i, r := range ranges {
		b := make([]byte, r.Length(size))
		if n, err := f.ReadAt(b, int64(r.Start(size))); n < len(b) {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}

			return nil, true, fmt.Errorf(`read "%s" range %s error: %w`, key, r, err)
		}

		bufs[i] = b
	}

	return store.Values(bufs), true, nil
}

func (s *Store) SizeOf(_ context.Context, key store.Key) (uint64, bool, error) {
	fi, err := s.fs.Stat(string(key))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf(`stat "%s" error: %w`, key, err)
	case fi.IsDir():
		return 0, false, nil
	}

	return uint64(fi.Size()), true, nil
}

// walk calls fn for every regular file under prefix.
func (s *Store) walk(prefix store.Prefix, fn func(key store.Key, fi fs.FileInfo)) error {
	root := strings.TrimSuffix(string(prefix), "/")
	if root == "" {
		root = "."
	}

	err := afero.Walk(s.fs, root, func(name string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		fn(store.Key(strings.TrimPrefix(path.Clean(filepathToSlash(name)), "./")), fi)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

func (s *Store) List(ctx context.Context) ([]store.Key, error) {
	return s.ListPrefix(ctx, store.Root)
}

func (s *Store) ListPrefix(_ context.Context, prefix store.Prefix) ([]store.Key, error) {
	keys := make([]store.Key, 0)
	err := s.walk(prefix, func(key store.Key, _ fs.FileInfo) {
		keys = append(keys, key)
	})

	// walk visits "a/b" before "a.txt".
	slices.Sort(keys)
	return keys, err
}

func (s *Store) ListDir(_ context.Context, prefix store.Prefix) (store.KeysPrefixes, error) {
	res := store.KeysPrefixes{Keys: make([]store.Key, 0), Prefixes: make([]store.Prefix, 0)}

	dir := strings.TrimSuffix(string(prefix), "/")
	if dir == "" {
		dir = "."
	}

	fis, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, nil
		}

		return res, fmt.Errorf(`read dir "%s" error: %w`, prefix, err)
	}

	for _, fi := range fis {
		switch {
		case fi.IsDir():
			res.Prefixes = append(res.Prefixes, prefix+store.Prefix(fi.Name()+"/"))
		case fi.Mode().IsRegular():
			res.Keys = append(res.Keys, store.Key(string(prefix)+fi.Name()))
		}
	}

	slices.Sort(res.Keys)
	slices.Sort(res.Prefixes)
	return res, nil
}

func (s *Store) Size(ctx context.Context) (uint64, error) {
	return s.SizePrefix(ctx, store.Root)
}

func (s *Store) SizePrefix(_ context.Context, prefix store.Prefix) (n uint64, err error) {
	err = s.walk(prefix, func(_ store.Key, fi fs.FileInfo) {
		n += uint64(fi.Size())
	})

	return n, err
}

func filepathToSlash(name string) string {
	return strings.ReplaceAll(name, string(os.PathSeparator), "/")
}
