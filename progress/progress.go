// Package progress shows the progression of a batch on the terminal, with
// one bar counting the tasks and one transient bar per running download.
package progress

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/simulot/multidl/fetch"
	"github.com/simulot/multidl/task"
)

// unknownSize is the bar total used until the server gives the content length
const unknownSize = 100 * 1024 * 1024 * 1024

// Display holds the bars of a batch
type Display struct {
	pc     *mpb.Progress
	batch  *mpb.Bar
	total  int64
	output io.Writer
	width  int
}

// WithOutput sets where bars are drawn, os.Stderr by default
func WithOutput(w io.Writer) func(d *Display) {
	return func(d *Display) {
		d.output = w
	}
}

// WithWidth sets the width of bars
func WithWidth(w int) func(d *Display) {
	return func(d *Display) {
		d.width = w
	}
}

func left(s string, l int) string {
	if len(s) > l {
		return s[:l]
	}
	return s
}

// New creates the display of a batch of total tasks
func New(name string, total int, conf ...func(d *Display)) *Display {
	d := &Display{
		total:  int64(total),
		output: os.Stderr,
		width:  64,
	}
	for _, fn := range conf {
		fn(d)
	}
	d.pc = mpb.New(
		mpb.WithWidth(d.width),
		mpb.WithOutput(d.output),
	)
	d.batch = d.pc.AddBar(d.total,
		mpb.PrependDecorators(
			decor.Name(left(name, 20), decor.WC{W: 20 + 1, C: decor.DidentRight}),
			decor.CountersNoUnit(" %3d/%3d", decor.WC{W: 5 + 1, C: decor.DidentRight}),
		),
	)
	return d
}

// Progresser gives the bar following the download of t.
// It fits fetch.WithProgress.
func (d *Display) Progresser(t task.Task) fetch.Progresser {
	b := &fileBar{
		start: time.Now(),
		batch: d.batch,
	}
	b.bar = d.pc.AddBar(unknownSize,
		mpb.BarWidth(12),
		mpb.AppendDecorators(
			decor.AverageSpeed(decor.UnitKB, " %.1f", decor.WC{W: 15, C: decor.DidentRight}),
			decor.Name(filepath.Base(t.Destination)),
		),
		mpb.BarRemoveOnComplete(),
	)
	return b
}

// Wait completes the batch bar, skipped tasks never got a file bar, and
// waits for the display to end.
func (d *Display) Wait() {
	d.batch.SetTotal(d.total, true)
	d.pc.Wait()
}

type fileBar struct {
	bar      *mpb.Bar
	batch    *mpb.Bar
	start    time.Time
	lastSize int64
}

func (p *fileBar) Init(size int64) {
	p.start = time.Now()
	if size > 0 {
		p.bar.SetTotal(size, false)
	}
}

func (p *fileBar) Update(count int64, size int64) {
	p.bar.IncrInt64(count-p.lastSize, time.Since(p.start))
	p.lastSize = count
}

func (p *fileBar) Done(o task.Outcome) {
	total := p.lastSize
	if total <= 0 {
		total = 1
	}
	p.bar.SetTotal(total, true)
	p.batch.Increment()
}
