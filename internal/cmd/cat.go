package cmd

import (
	"fmt"

	"github.com/nguyengg/zipstore/internal"
	"github.com/nguyengg/zipstore/store"
)

type Cat struct {
	Source
	Offset uint64 `long:"offset" description:"start reading at this offset of each file"`
	Length int64  `long:"length" description:"read this many bytes; negative reads to the end of each file" default:"-1"`
	Suffix uint64 `long:"suffix" description:"read the last suffix bytes of each file instead; takes precedence over offset and length"`
	Args   struct {
		Archive string   `positional-arg-name:"archive" description:"s3://bucket/key, http(s) URL, or local path of the zip archive" required:"yes"`
		Files   []string `positional-arg-name:"file" description:"the files within the archive to print" required:"yes"`
	} `positional-args:"yes"`

	output
}

// byteRange returns the range selected by the flags.
func (c *Cat) byteRange() store.ByteRange {
	switch {
	case c.Suffix > 0:
		return store.Suffix(c.Suffix)
	case c.Length >= 0:
		return store.FromStart(c.Offset, uint64(c.Length))
	default:
		return store.FromOffset(c.Offset)
	}
}

func (c *Cat) Execute(args []string) error {
	if err := checkArgs(args); err != nil {
		return err
	}

	ctx, stop := notifyContext()
	defer stop()

	if err := c.load(ctx); err != nil {
		return err
	}

	a, err := c.open(ctx, c.Args.Archive, internal.NewLogger(0, 1, c.Args.Archive))
	if err != nil {
		return err
	}

	r := c.byteRange()
	for _, file := range c.Args.Files {
		key, err := store.NewKey(file)
		if err != nil {
			return fmt.Errorf(`invalid file "%s": %w`, file, err)
		}

		data, ok, err := a.GetPartial(ctx, key, r)
		if err != nil {
			return fmt.Errorf(`read "%s" error: %w`, key, err)
		}
		if !ok {
			return fmt.Errorf(`file "%s" not found`, key)
		}

		if _, err = c.stdout().Write(data); err != nil {
			return fmt.Errorf("write error: %w", err)
		}
	}

	return nil
}
