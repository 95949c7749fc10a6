// Package progress reports traversal and extraction progress.
package progress

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives progress events. Implementations must tolerate Step
// being called from several goroutines.
type Reporter interface {
	// Begin starts a phase. A negative total means the count is unknown.
	Begin(desc string, total int)

	// Step records one finished item of the current phase.
	Step(item string)

	// End closes the current phase.
	End()
}

// Nop discards progress events.
type Nop struct{}

func (Nop) Begin(string, int) {}
func (Nop) Step(string)       {}
func (Nop) End()              {}

// Bar renders each phase as a terminal progress bar, or as a spinner when
// the total is unknown.
type Bar struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewBar returns a Bar writing to w.
func NewBar(w io.Writer) *Bar {
	return &Bar{w: w}
}

func (b *Bar) Begin(desc string, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Finish()
	}
	if total < 0 {
		total = -1
	}
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetPredictTime(total > 0),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer: "█", SaucerHead: "█", SaucerPadding: "░",
			BarStart: "[", BarEnd: "]",
		}),
	)
}

func (b *Bar) Step(string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Add(1)
	}
}

func (b *Bar) End() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Finish()
		b.bar = nil
	}
}

// Counter tallies events. Tests use it to observe reporting.
type Counter struct {
	mu     sync.Mutex
	Phases []string
	Steps  int
	Ends   int
}

func (c *Counter) Begin(desc string, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Phases = append(c.Phases, desc)
}

func (c *Counter) Step(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Steps++
}

func (c *Counter) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ends++
}
