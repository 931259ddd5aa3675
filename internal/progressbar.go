package internal

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// DefaultBytes is equivalent to progressbar.DefaultBytes but with higher progressbar.OptionThrottle.
//
// The bar is rendered to w, usually os.Stderr.
func DefaultBytes(w io.Writer, maxBytes int64, description string, options ...progressbar.Option) *progressbar.ProgressBar {
	return progressbar.NewOptions64(maxBytes,
		append([]progressbar.Option{
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(10),
			progressbar.OptionThrottle(1 * time.Second),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() {
				_, _ = fmt.Fprint(w, "\n")
			}),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetRenderBlankState(true)},
			options...)...)
}
