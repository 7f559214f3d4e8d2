package service

import (
	"io"
	"os"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progress wraps one mpb bar. A quiet progress renders to io.Discard.
type progress struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

func newProgress(name string, total int64, quiet bool) *progress {
	var out io.Writer = os.Stderr
	if quiet {
		out = io.Discard
	}

	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(out))
	bar := p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name+": "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)
	return &progress{p: p, bar: bar}
}

func (pr *progress) Increment() {
	pr.bar.Increment()
}

// Done completes the bar at its current count, since totals are estimates,
// and waits for rendering to finish.
func (pr *progress) Done() {
	pr.bar.SetTotal(-1, true)
	pr.p.Wait()
}
