package util

import (
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// IsTerminal checks if the given file descriptor is a terminal
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// NewByteProgress returns a writer that renders a download bar on stderr.
// total may be -1 when the size is unknown. When stderr is not a terminal, or
// quiet mode is on, the returned writer discards everything.
func NewByteProgress(description string, total int64) io.Writer {
	if !IsTerminal(os.Stderr.Fd()) || IsQuiet() {
		return io.Discard
	}

	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
	)
}
