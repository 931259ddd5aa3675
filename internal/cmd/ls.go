package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/zipstore"
	"github.com/nguyengg/zipstore/store"
)

type Ls struct {
	Source
	Long      bool `short:"l" long:"long" description:"show the compression method, uncompressed size, and modification time of files"`
	Recursive bool `short:"R" long:"recursive" description:"list every file under the directory instead of its immediate children"`
	Args      struct {
		Archives []string `positional-arg-name:"archive" description:"s3://bucket/key, http(s) URL, or local path of the zip archive" required:"yes"`
	} `positional-args:"yes"`
	Dir string `short:"d" long:"dir" description:"the directory within the archives to list"`

	output
}

func (c *Ls) Execute(args []string) error {
	if err := checkArgs(args); err != nil {
		return err
	}

	prefix, err := newPrefix(c.Dir)
	if err != nil {
		return fmt.Errorf(`invalid dir "%s": %w`, c.Dir, err)
	}

	ctx, stop := notifyContext()
	defer stop()

	if err = c.load(ctx); err != nil {
		return err
	}

	return forEach(ctx, c.Args.Archives, "ls", func(ctx context.Context, location string, logger *log.Logger) error {
		a, err := c.open(ctx, location, logger)
		if err != nil {
			return err
		}

		if len(c.Args.Archives) > 1 {
			_, _ = fmt.Fprintf(c.stdout(), "%s:\n", location)
		}

		return c.ls(ctx, a, prefix)
	})
}

func (c *Ls) ls(ctx context.Context, a *zipstore.Adapter, prefix store.Prefix) error {
	w := c.stdout()

	if c.Recursive {
		keys, err := a.ListPrefix(ctx, prefix)
		if err != nil {
			return err
		}

		for _, key := range keys {
			c.printKey(w, a, key)
		}

		return nil
	}

	res, err := a.ListDir(ctx, prefix)
	if err != nil {
		return err
	}

	// directories and files are interleaved by name like ls does.
	names := make([]string, 0, len(res.Keys)+len(res.Prefixes))
	isPrefix := make(map[string]bool, len(res.Prefixes))
	for _, p := range res.Prefixes {
		names = append(names, string(p))
		isPrefix[string(p)] = true
	}
	for _, k := range res.Keys {
		names = append(names, string(k))
	}
	sort.Strings(names)

	for _, name := range names {
		if isPrefix[name] {
			c.printPrefix(w, store.Prefix(name))
		} else {
			c.printKey(w, a, store.Key(name))
		}
	}

	return nil
}

func (c *Ls) printKey(w io.Writer, a *zipstore.Adapter, key store.Key) {
	if !c.Long {
		_, _ = fmt.Fprintln(w, key)
		return
	}

	e, _ := a.Entry(key)
	_, _ = fmt.Fprintf(w, "%-7s %10s %19s %s\n", e.Method, humanize.IBytes(e.UncompressedSize), e.Modified.Format(time.DateTime), key)
}

func (c *Ls) printPrefix(w io.Writer, prefix store.Prefix) {
	if !c.Long {
		_, _ = fmt.Fprintln(w, prefix)
		return
	}

	_, _ = fmt.Fprintf(w, "%-7s %10s %19s %s\n", "dir", "-", "-", prefix)
}
