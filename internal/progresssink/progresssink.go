// Package progresssink defines the Sink interface the status aggregator
// reports through and a default implementation built on schollz/progressbar
// and k0kubun/go-ansi, the same pairing the toolkit's other commands use
// for byte-progress bars. Progress-bar *rendering* is explicitly out of the
// core engine's scope; only this interface is.
package progresssink

import (
	"fmt"
	"os"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
)

// Sink is the minimal interface the status aggregator depends on: inc,
// set_size, end.
type Sink interface {
	// Inc reports that n additional bytes have been copied.
	Inc(n int64)
	// SetSize adjusts the running total, called as the walker discovers
	// more regular files.
	SetSize(n int64)
	// End finalizes the sink once the status channel has drained.
	End()
}

var barTheme = progressbar.Theme{
	Saucer:        "[green]=[reset]",
	SaucerHead:    "[green]>[reset]",
	SaucerPadding: " ",
	BarStart:      "[",
	BarEnd:        "]",
}

// Bar is the default Sink, a byte-count progress bar written to an ANSI
// stdout writer.
type Bar struct {
	bar *progressbar.ProgressBar
}

// NewBar builds a Bar with an initial (possibly zero, adjustable via
// SetSize) total byte count.
func NewBar(desc string, initialSize int64) *Bar {
	bar := progressbar.NewOptions64(initialSize,
		progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionUseIECUnits(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(barTheme),
	)
	return &Bar{bar: bar}
}

func (b *Bar) Inc(n int64)     { _ = b.bar.Add64(n) }
func (b *Bar) SetSize(n int64) { b.bar.ChangeMax64(n) }
func (b *Bar) End()            { _ = b.bar.Finish() }

// Silent is a no-op Sink used under --no-progress.
type Silent struct{}

func (Silent) Inc(int64)     {}
func (Silent) SetSize(int64) {}
func (Silent) End()          {}
