package zipstore

import (
	"io"
	"log"
)

// Options customises Open and OpenAsync.
type Options struct {
	// Root limits the adapter to the archive paths that start with Root, and strips Root from them.
	//
	// Root is matched as a plain string prefix so it should normally end with "/". Archive paths that do not start
	// with Root, as well as Root itself, are not indexed. Empty by default.
	Root string

	// Logger is used to report index construction and entry decompression.
	//
	// By default, messages are discarded.
	Logger *log.Logger
}

func newOptions(optFns ...func(*Options)) *Options {
	opts := &Options{}
	for _, fn := range optFns {
		fn(opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	return opts
}

// WithRoot sets Options.Root.
func WithRoot(root string) func(*Options) {
	return func(opts *Options) {
		opts.Root = root
	}
}

// WithLogger sets Options.Logger.
func WithLogger(logger *log.Logger) func(*Options) {
	return func(opts *Options) {
		opts.Logger = logger
	}
}
