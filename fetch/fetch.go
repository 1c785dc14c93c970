// Package fetch retrieves one url into one local file.
package fetch

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	metrics "github.com/rcrowley/go-metrics"

	mhttp "github.com/simulot/multidl/net/http"
	"github.com/simulot/multidl/task"
)

// Metric names updated when a registry is given
const (
	MetricFetchTimer = "multidl.fetch"
	MetricBytes      = "multidl.bytes"
)

// Logger is the log sink of the fetcher
type Logger interface {
	Printf(string, ...interface{})
}

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// Progresser follows the transfer of one task.
// Size is -1 when the server doesn't give the content length.
type Progresser interface {
	Init(size int64)
	Update(count int64, size int64)
	Done(o task.Outcome)
}

// Fetcher performs blocking downloads. A Fetcher is safe for concurrent use.
type Fetcher struct {
	client   *mhttp.Client
	logger   Logger
	progress func(t task.Task) Progresser
	registry metrics.Registry
}

// WithClient sets the http client
func WithClient(c *mhttp.Client) func(f *Fetcher) {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithLogger sets the logger
func WithLogger(l Logger) func(f *Fetcher) {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// WithProgress gives a function returning a progresser for each task. It may return nil.
func WithProgress(fn func(t task.Task) Progresser) func(f *Fetcher) {
	return func(f *Fetcher) {
		f.progress = fn
	}
}

// WithMetrics times fetches and meters written bytes in the registry
func WithMetrics(r metrics.Registry) func(f *Fetcher) {
	return func(f *Fetcher) {
		f.registry = r
	}
}

// New creates a Fetcher and configures it
func New(conf ...func(f *Fetcher)) *Fetcher {
	f := &Fetcher{
		client: mhttp.DefaultClient,
		logger: nullLogger{},
	}
	for _, fn := range conf {
		fn(f)
	}
	return f
}

// DefaultFetcher is used by Fetch
var DefaultFetcher = New()

// Fetch downloads source into destination with the DefaultFetcher
func Fetch(source, destination string) task.Outcome {
	return DefaultFetcher.Fetch(task.Task{Source: source, Destination: destination})
}

// Exists tells if the destination is already there
func Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// Fetch downloads t.Source into t.Destination.
//
// An existing destination is never fetched again. Otherwise the destination
// is created, then the response body is streamed into it whatever the
// response status. A status other than 200 gives a BadStatus failure and
// leaves the written file in place.
func (f *Fetcher) Fetch(t task.Task) (o task.Outcome) {
	if Exists(t.Destination) {
		f.logger.Printf("%q already exists.", t.Destination)
		return task.SkippedOutcome()
	}

	var p Progresser
	if f.progress != nil {
		p = f.progress(t)
	}
	start := time.Now()
	defer func() {
		if p != nil {
			p.Done(o)
		}
		if f.registry != nil {
			metrics.GetOrRegisterTimer(MetricFetchTimer, f.registry).UpdateSince(start)
			metrics.GetOrRegisterMeter(MetricBytes, f.registry).Mark(o.Bytes)
		}
		switch o.Status {
		case task.Completed:
			f.logger.Printf("%q downloaded, %d bytes in %s.", t.Destination, o.Bytes, time.Since(start).Round(100*time.Millisecond))
		case task.Failed:
			f.logger.Printf("Can't download %q: %s", t.Source, o)
		}
	}()

	f.logger.Printf("Now downloading %q", t.Source)
	file, err := os.Create(t.Destination)
	if err != nil {
		return task.FailedIO(fmt.Errorf("can't create destination: %w", err))
	}

	n, code, err := f.stream(t.Source, file, p)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("can't close destination: %w", cerr)
	}
	if err != nil {
		o = task.FailedIO(err)
		o.Bytes = n
		return o
	}
	if code != http.StatusOK {
		return task.FailedStatus(code, n)
	}
	return task.CompletedOutcome(n)
}

// stream copies the response body of u into w and returns the number of bytes written and the status code.
func (f *Fetcher) stream(u string, w io.Writer, p Progresser) (int64, int, error) {
	resp, err := f.client.Open(u)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	bw := bufio.NewWriter(w)
	var dst io.Writer = bw
	if p != nil {
		p.Init(resp.Size)
		dst = &progressWriter{w: bw, p: p, size: resp.Size}
	}
	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, resp.StatusCode, fmt.Errorf("can't write %q: %w", u, err)
	}
	if err = bw.Flush(); err != nil {
		return n, resp.StatusCode, fmt.Errorf("can't flush %q: %w", u, err)
	}
	return n, resp.StatusCode, nil
}

type progressWriter struct {
	w     io.Writer
	p     Progresser
	size  int64
	count int64
}

func (pw *progressWriter) Write(b []byte) (int, error) {
	n, err := pw.w.Write(b)
	pw.count += int64(n)
	pw.p.Update(pw.count, pw.size)
	return n, err
}
