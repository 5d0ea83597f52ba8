// Package progress derives throttled, smoothed upload progress from raw
// transport callbacks and renders transfers in the terminal.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter is a single-transfer progress display.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
}

// CLIProgress renders one transfer as a progress bar. Used for downloads.
type CLIProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a progress bar writing to stderr.
func NewCLIProgress() *CLIProgress {
	return NewCLIProgressWithOutput(os.Stderr)
}

// NewCLIProgressWithOutput creates a progress bar writing to w.
func NewCLIProgressWithOutput(w io.Writer) *CLIProgress {
	return &CLIProgress{out: w}
}

// Start initializes the bar. A total <= 0 renders a spinner.
func (p *CLIProgress) Start(total int64, description string) {
	if total <= 0 {
		total = -1
	}
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar to current.
func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error prints err below the bar.
func (p *CLIProgress) Error(err error) {
	if err != nil {
		fmt.Fprintf(p.out, "\nError: %v\n", err)
	}
}

// Callback adapts the reporter to a (loaded, total) byte callback as used by
// api.Download. The bar is started lazily on the first call.
func Callback(r Reporter, description string) func(loaded, total int64) {
	started := false
	return func(loaded, total int64) {
		if !started {
			r.Start(total, description)
			started = true
		}
		r.Update(loaded)
	}
}

// NoOpProgress is a reporter that does nothing (quiet mode, non-terminal output).
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op progress reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

func (p *NoOpProgress) Start(total int64, description string) {}
func (p *NoOpProgress) Update(current int64)                  {}
func (p *NoOpProgress) Finish()                               {}
func (p *NoOpProgress) Error(err error)                       {}
