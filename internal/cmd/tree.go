package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/nguyengg/zipstore"
	"github.com/nguyengg/zipstore/store"
)

type Tree struct {
	Source
	Args struct {
		Archives []string `positional-arg-name:"archive" description:"s3://bucket/key, http(s) URL, or local path of the zip archive" required:"yes"`
	} `positional-args:"yes"`
	Dir string `short:"d" long:"dir" description:"the directory within the archives to start from"`

	output
}

func (c *Tree) Execute(args []string) error {
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

	return forEach(ctx, c.Args.Archives, "tree", func(ctx context.Context, location string, logger *log.Logger) error {
		a, err := c.open(ctx, location, logger)
		if err != nil {
			return err
		}

		w := c.stdout()
		if prefix == store.Root {
			_, _ = fmt.Fprintln(w, location)
		} else {
			_, _ = fmt.Fprintln(w, prefix)
		}

		t := &treeWalker{w: w, a: a}
		if err = t.walk(ctx, prefix, ""); err != nil {
			return err
		}

		_, _ = fmt.Fprintf(w, "\n%d directories, %d files\n", t.dirs, t.files)
		return nil
	})
}

type treeWalker struct {
	w           io.Writer
	a           *zipstore.Adapter
	dirs, files int
}

func (t *treeWalker) walk(ctx context.Context, prefix store.Prefix, indent string) error {
	res, err := t.a.ListDir(ctx, prefix)
	if err != nil {
		return err
	}

	type child struct {
		name     string
		isPrefix bool
	}

	children := make([]child, 0, len(res.Keys)+len(res.Prefixes))
	for _, p := range res.Prefixes {
		children = append(children, child{name: string(p), isPrefix: true})
	}
	for _, k := range res.Keys {
		children = append(children, child{name: string(k)})
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].name < children[j].name
	})

	for i, c := range children {
		connector, next := "├── ", "│   "
		if i == len(children)-1 {
			connector, next = "└── ", "    "
		}

		name := strings.TrimPrefix(c.name, string(prefix))
		_, _ = fmt.Fprintln(t.w, indent+connector+name)

		if !c.isPrefix {
			t.files++
			continue
		}

		t.dirs++
		if err = t.walk(ctx, store.Prefix(c.name), indent+next); err != nil {
			return err
		}
	}

	return nil
}
