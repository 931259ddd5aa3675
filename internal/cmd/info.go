package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/mholt/archives"
	"github.com/nguyengg/zipstore"
	"github.com/nguyengg/zipstore/internal"
	"github.com/nguyengg/zipstore/store"
	"github.com/nguyengg/zipstore/store/storeio"
	"github.com/nguyengg/zipstore/zip/fsm"
)

// IdentifyReadSize is the read-ahead size used to identify blobs that are not zip archives.
const IdentifyReadSize = 64 << 10

type Info struct {
	Source
	Args struct {
		Archives []string `positional-arg-name:"archive" description:"s3://bucket/key, http(s) URL, or local path of the zip archive" required:"yes"`
	} `positional-args:"yes"`

	output
}

func (c *Info) Execute(args []string) error {
	if err := checkArgs(args); err != nil {
		return err
	}

	ctx, stop := notifyContext()
	defer stop()

	if err := c.load(ctx); err != nil {
		return err
	}

	return forEach(ctx, c.Args.Archives, "info", func(ctx context.Context, location string, logger *log.Logger) error {
		rs, key, err := c.resolve(ctx, location, logger)
		if err != nil {
			return err
		}

		w := c.stdout()
		_, _ = fmt.Fprintf(w, "archive: %s\n", location)

		a, err := zipstore.OpenWithRoot(ctx, rs, key, c.Root, zipstore.WithLogger(internal.NewVerboseLogger(logger, c.Verbose)))
		if errors.Is(err, zipstore.ErrMalformedArchive) {
			// not a zip archive, or a damaged one; report what the leading bytes look like instead.
			return c.identify(ctx, w, rs, key, err)
		}
		if err != nil {
			return err
		}

		return c.describe(ctx, w, a)
	})
}

func (c *Info) describe(ctx context.Context, w io.Writer, a *zipstore.Adapter) error {
	size, err := a.Size(ctx)
	if err != nil {
		return err
	}

	keys, err := a.List(ctx)
	if err != nil {
		return err
	}

	var uncompressed uint64
	methods := make(map[fsm.Method]int)
	for _, key := range keys {
		e, _ := a.Entry(key)
		uncompressed += e.UncompressedSize
		methods[e.Method]++
	}

	_, _ = fmt.Fprintf(w, "format: zip\n")
	_, _ = fmt.Fprintf(w, "size: %s (%s bytes)\n", humanize.IBytes(size), humanize.Comma(int64(size)))
	_, _ = fmt.Fprintf(w, "files: %d\n", a.Len())
	_, _ = fmt.Fprintf(w, "uncompressed: %s (%s bytes)\n", humanize.IBytes(uncompressed), humanize.Comma(int64(uncompressed)))

	ids := make([]fsm.Method, 0, len(methods))
	for m := range methods {
		ids = append(ids, m)
	}
	slices.Sort(ids)
	for _, m := range ids {
		supported := ""
		if !fsm.Supported(m) {
			supported = " (unsupported)"
		}

		_, _ = fmt.Fprintf(w, "method %s: %d files%s\n", m, methods[m], supported)
	}

	if comment := a.Comment(); comment != "" {
		_, _ = fmt.Fprintf(w, "comment: %s\n", comment)
	}

	return nil
}

// identify reports the format of the blob at key from its leading bytes.
//
// cause is the error that prevented the blob from being opened as a zip archive; it is returned if the blob is not
// recognised either.
func (c *Info) identify(ctx context.Context, w io.Writer, rs store.ReadableStore, key store.Key, cause error) error {
	r, err := storeio.NewReader(rs, key, func(opts *storeio.Options) {
		opts.BufferSize = IdentifyReadSize
		opts.CtxFn = func() context.Context {
			return ctx
		}
	})
	if err != nil {
		return errors.Join(cause, err)
	}

	format, _, err := archives.Identify(ctx, "", r)
	if err != nil {
		if errors.Is(err, archives.NoMatch) {
			return cause
		}

		return errors.Join(cause, fmt.Errorf("identify error: %w", err))
	}
	if _, ok := format.(archives.Zip); ok {
		return cause
	}

	_, _ = fmt.Fprintf(w, "format: %s (%s)\n", format.Extension(), format.MediaType())
	_, _ = fmt.Fprintf(w, "size: %s (%s bytes)\n", humanize.IBytes(uint64(r.Size())), humanize.Comma(r.Size()))
	return nil
}
