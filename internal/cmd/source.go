package cmd

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/nguyengg/zipstore"
	"github.com/nguyengg/zipstore/internal"
	"github.com/nguyengg/zipstore/internal/config"
	"github.com/nguyengg/zipstore/store"
	"github.com/nguyengg/zipstore/store/filesystem"
	"github.com/nguyengg/zipstore/store/httpstore"
	"github.com/nguyengg/zipstore/store/lru"
	"github.com/nguyengg/zipstore/store/s3store"
)

// NestedSeparator separates an archive location from the path of an archive nested inside it.
const NestedSeparator = "!"

// Source contains the flags shared by every command that opens archives.
type Source struct {
	Profile string `short:"p" long:"profile" description:"override the AWS profile configured for the bucket"`
	Root    string `long:"root" description:"only expose the archive paths under this prefix, with the prefix stripped"`
	NoCache bool   `long:"no-cache" description:"do not cache the blocks read from remote archives"`
	Verbose bool   `short:"v" long:"verbose" description:"log index construction and decompression"`
}

// load loads the .zipstore configuration file, if any.
func (s *Source) load(ctx context.Context) error {
	if _, err := config.LoadProfile(ctx, s.Profile); err != nil {
		return fmt.Errorf("load config error: %w", err)
	}

	return nil
}

// open opens the archive at location.
//
// location is "s3://bucket/key", "http(s)://host/path/name.zip", or a local path. An archive nested inside another
// is addressed by appending NestedSeparator and its path, e.g. "outer.zip!inner/nested.zip". Root only applies to
// the innermost archive.
func (s *Source) open(ctx context.Context, location string, logger *log.Logger) (*zipstore.Adapter, error) {
	rs, key, err := s.resolve(ctx, location, logger)
	if err != nil {
		return nil, err
	}

	a, err := zipstore.OpenWithRoot(ctx, rs, key, s.Root, zipstore.WithLogger(internal.NewVerboseLogger(logger, s.Verbose)))
	if err != nil {
		return nil, fmt.Errorf(`open "%s" error: %w`, key, err)
	}

	return a, nil
}

// resolve returns the store holding the innermost archive at location and the archive's key in that store.
//
// Every enclosing archive is opened along the way.
func (s *Source) resolve(ctx context.Context, location string, logger *log.Logger) (store.ReadableStore, store.Key, error) {
	parts := strings.Split(location, NestedSeparator)

	rs, key, err := s.newStore(ctx, parts[0])
	if err != nil {
		return nil, "", err
	}

	logger = internal.NewVerboseLogger(logger, s.Verbose)
	for _, part := range parts[1:] {
		a, err := zipstore.Open(ctx, rs, key, zipstore.WithLogger(logger))
		if err != nil {
			return nil, "", fmt.Errorf(`open "%s" error: %w`, key, err)
		}

		if key, err = store.NewKey(part); err != nil {
			return nil, "", fmt.Errorf(`invalid nested archive "%s": %w`, part, err)
		}
		rs = a
	}

	return rs, key, nil
}

// newStore returns the store holding the outermost archive and the archive's key in that store.
func (s *Source) newStore(ctx context.Context, location string) (store.ReadableStore, store.Key, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		bucket, key, err := parseS3URI(location)
		if err != nil {
			return nil, "", err
		}

		client, err := config.NewS3ClientForBucket(ctx, bucket)
		if err != nil {
			return nil, "", fmt.Errorf("create s3 client error: %w", err)
		}

		cfg := config.ForBucket(bucket)
		ss, err := s3store.New(client, bucket, func(opts *s3store.Options) {
			opts.ExpectedBucketOwner = cfg.ExpectedBucketOwner
			opts.RequestsPerSecond = cfg.RequestsPerSecond
			if cfg.Concurrency > 0 {
				opts.Concurrency = cfg.Concurrency
			}
		})
		if err != nil {
			return nil, "", fmt.Errorf("create s3 store error: %w", err)
		}

		rs, err := s.cache(ss)
		return rs, key, err

	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, "", fmt.Errorf(`parse "%s" error: %w`, location, err)
		}

		key, err := store.NewKey(path.Base(u.Path))
		if err != nil || key == "." || key == "/" {
			return nil, "", fmt.Errorf(`"%s" does not name a file`, location)
		}

		cfg := config.ForURL(location)
		hs, err := httpstore.New(u.JoinPath("..").String(), func(opts *httpstore.Options) {
			opts.Header = cfg.Header
			opts.RequestsPerSecond = cfg.RequestsPerSecond
			if cfg.Concurrency > 0 {
				opts.Concurrency = cfg.Concurrency
			}
		})
		if err != nil {
			return nil, "", fmt.Errorf("create http store error: %w", err)
		}

		rs, err := s.cache(hs)
		return rs, key, err

	default:
		abs, err := filepath.Abs(location)
		if err != nil {
			return nil, "", fmt.Errorf(`resolve "%s" error: %w`, location, err)
		}

		return filesystem.New(filepath.Dir(abs)), store.Key(filepath.Base(abs)), nil
	}
}

// cache wraps remote stores with a block cache unless disabled.
func (s *Source) cache(rs store.ReadableStore) (store.ReadableStore, error) {
	if s.NoCache {
		return rs, nil
	}

	cfg := config.ForCache()
	return lru.New(rs, func(opts *lru.Options) {
		if cfg.Blocks > 0 {
			opts.Blocks = cfg.Blocks
		}
		if cfg.BlockSize > 0 {
			opts.BlockSize = cfg.BlockSize
		}
	})
}

// parseS3URI parses S3 URIs in format s3://bucket/key.
func parseS3URI(text string) (bucket string, key store.Key, err error) {
	b, k, ok := strings.Cut(strings.TrimPrefix(text, "s3://"), "/")
	if !ok || b == "" {
		return "", "", fmt.Errorf(`"%s" is not in format s3://bucket/key`, text)
	}

	if key, err = store.NewKey(k); err != nil {
		return "", "", fmt.Errorf(`"%s" is not in format s3://bucket/key: %w`, text, err)
	}

	return b, key, nil
}

// newPrefix turns a user-provided directory into a store.Prefix, adding the trailing "/" if missing.
func newPrefix(dir string) (store.Prefix, error) {
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	return store.NewPrefix(dir)
}
