package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"

	"github.com/nguyengg/zipstore"
	"github.com/nguyengg/zipstore/internal"
	"github.com/nguyengg/zipstore/store"
	"github.com/nguyengg/zipstore/store/storeio"
	"github.com/nguyengg/zipstore/zip/fsm"
	"github.com/schollz/progressbar/v3"
)

// DefaultChunkSize is the size of each ranged read when extracting stored files.
const DefaultChunkSize = 8 << 20

type Get struct {
	Source
	Output string `short:"o" long:"output" description:"the directory to extract files to" default:"."`
	Force  bool   `short:"f" long:"force" description:"overwrite existing files instead of skipping them"`
	Quiet  bool   `short:"q" long:"quiet" description:"do not show the progress bar"`
	Args   struct {
		Archive string   `positional-arg-name:"archive" description:"s3://bucket/key, http(s) URL, or local path of the zip archive" required:"yes"`
		Paths   []string `positional-arg-name:"path" description:"the files or directories within the archive to extract; everything if not given"`
	} `positional-args:"yes"`

	logger *log.Logger
}

func (c *Get) Execute(args []string) error {
	if err := checkArgs(args); err != nil {
		return err
	}

	ctx, stop := notifyContext()
	defer stop()

	if err := c.load(ctx); err != nil {
		return err
	}

	c.logger = internal.NewLogger(0, 1, c.Args.Archive)

	a, err := c.open(ctx, c.Args.Archive, c.logger)
	if err != nil {
		return err
	}

	keys, total, err := c.collect(ctx, a)
	if err != nil {
		return err
	}

	bar := internal.DefaultBytes(os.Stderr, int64(total), "extracting", progressbar.OptionSetVisibility(!c.Quiet))
	defer bar.Close()

	success := 0
	for _, key := range keys {
		switch err = c.extract(ctx, a, key, bar); {
		case err == nil:
			success++
		case errors.Is(err, context.Canceled):
			return err
		default:
			c.logger.Printf(`extract "%s" error: %v`, key, err)
		}
	}

	c.logger.Printf("successfully extracted %d/%d files", success, len(keys))
	if success != len(keys) {
		return fmt.Errorf("failed to extract %d/%d files", len(keys)-success, len(keys))
	}

	return nil
}

// collect returns the sorted keys selected by the positional paths and the sum of their uncompressed sizes.
//
// A path is a file if the archive has a file with that exact name, otherwise it is a directory.
func (c *Get) collect(ctx context.Context, a *zipstore.Adapter) (keys []store.Key, total uint64, err error) {
	if len(c.Args.Paths) == 0 {
		keys, err = a.List(ctx)
	}

	for _, p := range c.Args.Paths {
		if key, err := store.NewKey(p); err == nil {
			if _, ok, _ := a.SizeOf(ctx, key); ok {
				keys = append(keys, key)
				continue
			}
		}

		prefix, err := newPrefix(p)
		if err != nil {
			return nil, 0, fmt.Errorf(`invalid path "%s": %w`, p, err)
		}

		matches, err := a.ListPrefix(ctx, prefix)
		if err != nil {
			return nil, 0, err
		}
		if len(matches) == 0 {
			return nil, 0, fmt.Errorf(`path "%s" not found`, p)
		}

		keys = append(keys, matches...)
	}

	slices.Sort(keys)
	keys = slices.Compact(keys)

	for _, key := range keys {
		size, _, _ := a.SizeOf(ctx, key)
		total += size
	}

	return keys, total, err
}

// extract writes the file at key to its path under Output.
//
// Stored files are copied in chunks of DefaultChunkSize; compressed files are decompressed in one read.
func (c *Get) extract(ctx context.Context, a *zipstore.Adapter, key store.Key, bar *progressbar.ProgressBar) (err error) {
	name := filepath.FromSlash(string(key))
	if !filepath.IsLocal(name) {
		return fmt.Errorf("path escapes the output directory")
	}

	name = filepath.Join(c.Output, name)
	if err = os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return fmt.Errorf("create directory error: %w", err)
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if c.Force {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(name, flag, 0666)
	if err != nil {
		return fmt.Errorf("create file error: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(name)
		}
	}()

	e, _ := a.Entry(key)
	if e.Method != fsm.Store {
		data, _, err := a.Get(ctx, key)
		if err != nil {
			return err
		}

		_, err = f.Write(data)
		_ = bar.Add(len(data))
		return err
	}

	r, err := storeio.NewReader(a, key, func(opts *storeio.Options) {
		opts.BufferSize = DefaultChunkSize
		opts.CtxFn = func() context.Context {
			return ctx
		}
	})
	if err != nil {
		return err
	}

	_, err = io.Copy(io.MultiWriter(f, bar), r)
	return err
}
