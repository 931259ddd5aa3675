package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/zipstore/internal"
)

type Zipstore struct {
	Ls   Ls   `command:"ls" description:"list the files and directories of archives"`
	Tree Tree `command:"tree" description:"print the directory tree of archives"`
	Cat  Cat  `command:"cat" description:"write files of an archive to standard output"`
	Get  Get  `command:"get" alias:"x" description:"extract files of an archive to a local directory"`
	Du   Du   `command:"du" description:"summarise the compressed and uncompressed sizes of directories"`
	Info Info `command:"info" description:"describe archives, identifying the format of blobs that are not zip archives"`
}

func NewParser() (*flags.Parser, error) {
	opts := &Zipstore{}

	p := flags.NewNamedParser("zipstore", flags.Default)
	if _, err := p.AddGroup("Global Options", "", opts); err != nil {
		return nil, err
	}

	return p, nil
}

// output lets tests capture what commands write to standard output.
type output struct {
	w io.Writer
}

func (o *output) stdout() io.Writer {
	if o.w == nil {
		return os.Stdout
	}

	return o.w
}

// notifyContext returns a context that is cancelled on interrupt.
func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
}

func checkArgs(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	return nil
}

// forEach calls fn with a prefixed logger for every location, logging the failures.
//
// An error is returned if fn fails for any location.
func forEach(ctx context.Context, locations []string, action string, fn func(ctx context.Context, location string, logger *log.Logger) error) error {
	success := 0
	n := len(locations)
	for i, location := range locations {
		logger := internal.NewLogger(i, n, location)

		err := fn(ctx, location, logger)
		if err == nil {
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		logger.Printf("%s error: %v", action, err)
	}

	if n > 1 {
		log.Printf("successfully processed %d/%d archives", success, n)
	}

	if success != n {
		return fmt.Errorf("%s failed for %d/%d archives", action, n-success, n)
	}

	return nil
}
