// Package progress renders upload bars and the folder crawl spinner on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Reporter counts units of work of unknown total.
type Reporter interface {
	Start(description string)
	Increment()
	Finish()
}

// Spinner reports folder loads during a tree crawl.
type Spinner struct {
	out   io.Writer
	bar   *progressbar.ProgressBar
	count int
}

// NewSpinner writes to stderr.
func NewSpinner() *Spinner {
	return &Spinner{out: os.Stderr}
}

// Start shows the spinner with description.
func (p *Spinner) Start(description string) {
	p.count = 0
	p.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("folders"),
		progressbar.OptionShowIts(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Increment counts one more loaded folder.
func (p *Spinner) Increment() {
	p.count++
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// Finish stops the spinner.
func (p *Spinner) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Count returns the number of increments since Start.
func (p *Spinner) Count() int {
	return p.count
}

// NoOpProgress is a reporter that does nothing (for piped or quiet output).
type NoOpProgress struct{}

func (NoOpProgress) Start(string) {}
func (NoOpProgress) Increment()   {}
func (NoOpProgress) Finish()      {}

// NewReporter returns a Spinner when stderr is a terminal and quiet is false.
func NewReporter(quiet bool) Reporter {
	if quiet || !term.IsTerminal(int(os.Stderr.Fd())) {
		return NoOpProgress{}
	}
	return NewSpinner()
}
