package main

import (
	"errors"

	"github.com/jessevdk/go-flags"
)

// exitCode returns 0 on success or help, 2 for usage errors, and 1 for everything else.
func exitCode(err error) int {
	if err == nil || flags.WroteHelp(err) {
		return 0
	}

	var fe *flags.Error
	if errors.As(err, &fe) {
		return 2
	}

	return 1
}
