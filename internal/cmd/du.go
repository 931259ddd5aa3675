package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/zipstore/store"
)

type Du struct {
	Source
	Bytes bool `short:"b" long:"bytes" description:"print sizes in bytes instead of human-readable units"`
	Args  struct {
		Archive string   `positional-arg-name:"archive" description:"s3://bucket/key, http(s) URL, or local path of the zip archive" required:"yes"`
		Dirs    []string `positional-arg-name:"dir" description:"the directories within the archive to summarise; the root if not given"`
	} `positional-args:"yes"`

	output
}

func (c *Du) Execute(args []string) error {
	if err := checkArgs(args); err != nil {
		return err
	}

	prefixes := make([]store.Prefix, 0, len(c.Args.Dirs))
	for _, dir := range c.Args.Dirs {
		prefix, err := newPrefix(dir)
		if err != nil {
			return fmt.Errorf(`invalid dir "%s": %w`, dir, err)
		}

		prefixes = append(prefixes, prefix)
	}
	if len(prefixes) == 0 {
		prefixes = append(prefixes, store.Root)
	}

	ctx, stop := notifyContext()
	defer stop()

	if err := c.load(ctx); err != nil {
		return err
	}

	return forEach(ctx, []string{c.Args.Archive}, "du", func(ctx context.Context, location string, logger *log.Logger) error {
		a, err := c.open(ctx, location, logger)
		if err != nil {
			return err
		}

		w := c.stdout()
		for _, prefix := range prefixes {
			compressed, err := a.SizePrefix(ctx, prefix)
			if err != nil {
				return err
			}

			keys, err := a.ListPrefix(ctx, prefix)
			if err != nil {
				return err
			}

			var uncompressed uint64
			for _, key := range keys {
				size, _, _ := a.SizeOf(ctx, key)
				uncompressed += size
			}

			name := string(prefix)
			if name == "" {
				name = "."
			}

			_, _ = fmt.Fprintf(w, "%s\t%s\t%d files\t%s\n", c.format(compressed), c.format(uncompressed), len(keys), name)
		}

		return nil
	})
}

func (c *Du) format(n uint64) string {
	if c.Bytes {
		return fmt.Sprintf("%d", n)
	}

	return humanize.IBytes(n)
}
