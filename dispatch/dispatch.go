// Package dispatch runs a batch of downloads concurrently.
//
// Dispatch is the single entry point. The Config picks one of three
// strategies:
//
//   - Unbounded starts one goroutine per task. Use it for small batches only,
//     every task opens its connection at the same time.
//   - BoundedQueue pushes the tasks into a queue of limited capacity read by a
//     fixed pool of workers. The caller blocks while the queue is full.
//   - DataParallel stripes the tasks over a fixed number of goroutines, each
//     fetching its share one after the other.
//
// Whatever the strategy, every task is attempted once and gets exactly one
// outcome in the BatchResult. A failed task never stops the others. The
// result is only returned once all goroutines of the batch have ended.
//
// A batch can't be cancelled once started. Two tasks with the same
// destination race on the existence check, which one writes the file is
// undefined.
package dispatch

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"

	"github.com/simulot/multidl/fetch"
	"github.com/simulot/multidl/results"
	"github.com/simulot/multidl/task"
	"github.com/simulot/multidl/workers"
)

// MetricBatchTimer times whole batches
const MetricBatchTimer = "multidl.batch"

// FetchFunc performs one task
type FetchFunc func(t task.Task) task.Outcome

// Logger is the log sink of the dispatcher
type Logger interface {
	Printf(string, ...interface{})
}

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// PanicError reports a task whose fetch panicked. It is fatal for the batch
// even though the task got a Failed outcome.
type PanicError struct {
	Index int
	Task  task.Task
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("dispatch: task %d (%s) panicked: %v", e.Index, e.Task, e.Value)
}

// Dispatcher runs batches
type Dispatcher struct {
	fetch    FetchFunc
	logger   Logger
	registry metrics.Registry
}

// WithFetchFunc replaces the function run for each task
func WithFetchFunc(fn FetchFunc) func(d *Dispatcher) {
	return func(d *Dispatcher) {
		d.fetch = fn
	}
}

// WithFetcher runs each task with the given fetcher
func WithFetcher(f *fetch.Fetcher) func(d *Dispatcher) {
	return func(d *Dispatcher) {
		d.fetch = f.Fetch
	}
}

// WithLogger gives a logger to the dispatcher
func WithLogger(l Logger) func(d *Dispatcher) {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithMetrics counts outcomes and times batches in the registry
func WithMetrics(r metrics.Registry) func(d *Dispatcher) {
	return func(d *Dispatcher) {
		d.registry = r
	}
}

// New creates a Dispatcher. By default tasks are run by fetch.DefaultFetcher.
func New(conf ...func(d *Dispatcher)) *Dispatcher {
	d := &Dispatcher{
		logger: nullLogger{},
	}
	for _, fn := range conf {
		fn(d)
	}
	if d.fetch == nil {
		d.fetch = func(t task.Task) task.Outcome {
			return fetch.DefaultFetcher.Fetch(t)
		}
	}
	return d
}

// DefaultDispatcher is used by Dispatch
var DefaultDispatcher = New()

// Dispatch runs the batch with the DefaultDispatcher
func Dispatch(ts task.TaskSet, cfg Config) (*results.BatchResult, error) {
	return DefaultDispatcher.Dispatch(ts, cfg)
}

// Dispatch runs every task of ts following cfg and returns once they all ended.
//
// The error is only about the dispatch itself: an invalid configuration,
// or a panic in a task. Task failures are in the BatchResult.
func (d *Dispatcher) Dispatch(ts task.TaskSet, cfg Config) (*results.BatchResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var aggOpts []func(a *results.Aggregator)
	if d.registry != nil {
		aggOpts = append(aggOpts, results.WithRegistry(d.registry))
	}
	agg := results.NewAggregator(ts.Len(), aggOpts...)
	if ts.Len() == 0 {
		return agg.Seal()
	}

	start := time.Now()
	d.logger.Printf("Batch %s: %d tasks, strategy %s", agg.ID(), ts.Len(), cfg)

	b := &batch{d: d, ts: ts, agg: agg}
	var err error
	switch cfg.Strategy {
	case Unbounded:
		b.unbounded()
	case BoundedQueue:
		err = b.boundedQueue(cfg.Capacity, cfg.Workers)
	case DataParallel:
		b.dataParallel(cfg.Workers)
	}
	if err != nil {
		return nil, err
	}

	r, err := agg.Seal()
	if err != nil {
		return nil, err
	}
	if d.registry != nil {
		metrics.GetOrRegisterTimer(MetricBatchTimer, d.registry).UpdateSince(start)
	}
	c := r.Counts()
	d.logger.Printf("Batch %s ended in %s: %d completed, %d skipped, %d failed",
		r.ID, time.Since(start).Round(100*time.Millisecond), c[task.Completed], c[task.Skipped], c[task.Failed])
	return r, b.fatal()
}

// batch is one run of Dispatch
type batch struct {
	d   *Dispatcher
	ts  task.TaskSet
	agg *results.Aggregator

	mu     sync.Mutex
	panics []error
}

// run fetches task i and records its outcome
func (b *batch) run(i int) (o task.Outcome) {
	t := b.ts.At(i)
	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Index: i, Task: t, Value: r, Stack: debug.Stack()}
			b.mu.Lock()
			b.panics = append(b.panics, err)
			b.mu.Unlock()
			o = task.FailedIO(err)
		}
		if err := b.agg.Record(i, o); err != nil {
			b.d.logger.Printf("Batch %s: %s", b.agg.ID(), err)
		}
	}()
	return b.d.fetch(t)
}

func (b *batch) fatal() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.panics...)
}

func (b *batch) unbounded() {
	var wg sync.WaitGroup
	for i := 0; i < b.ts.Len(); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.run(i)
		}(i)
	}
	wg.Wait()
}

func (b *batch) boundedQueue(capacity, size int) error {
	pool := workers.New(size, capacity, workers.WithLogger(b.d.logger))
	var err error
	for i := 0; i < b.ts.Len(); i++ {
		i := i
		err = pool.Submit(workers.NewRunAction(b.ts.At(i).String(), func() error {
			if o := b.run(i); !o.OK() {
				return errors.New(o.String())
			}
			return nil
		}))
		if err != nil {
			break
		}
	}
	pool.Close()
	if err != nil {
		return fmt.Errorf("dispatch: can't submit task: %w", err)
	}
	return nil
}

func (b *batch) dataParallel(w int) {
	n := b.ts.Len()
	if w <= 0 {
		w = runtime.NumCPU()
	}
	if w > n {
		w = n
	}
	var g errgroup.Group
	for p := 0; p < w; p++ {
		p := p
		g.Go(func() error {
			for i := p; i < n; i += w {
				b.run(i)
			}
			return nil
		})
	}
	g.Wait()
}
