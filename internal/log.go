package internal

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Prefix creates a consistent prefix for all archive-based commands to use.
//
// i and n are the zero-based ordinal and expected count.
func Prefix(i, n int, name string) string {
	return fmt.Sprintf(`[%d/%d] "%s" - `, i+1, n, TruncateLeftWithPrefix(name, 40, "..."))
}

// NewLogger creates a logger that writes to os.Stderr using Prefix.
func NewLogger(i, n int, name string) *log.Logger {
	return log.New(os.Stderr, Prefix(i, n, name), 0)
}

// NewVerboseLogger returns logger if verbose is true, or a logger that discards everything otherwise.
func NewVerboseLogger(logger *log.Logger, verbose bool) *log.Logger {
	if verbose {
		return logger
	}

	return log.New(io.Discard, "", 0)
}

// TruncateLeftWithPrefix keeps the last n runes of text and prepends prefix only if truncation happens.
//
// Archive locations tend to differ in their last components so those are kept.
func TruncateLeftWithPrefix(text string, n int, prefix string) string {
	rs := []rune(text)
	if len(rs) <= n {
		return text
	}

	return prefix + string(rs[len(rs)-max(n, 0):])
}
