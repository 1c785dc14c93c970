// Package workers runs work items on a fixed pool of goroutines fed by a bounded queue.
package workers

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned when submitting to a closed pool
var ErrClosed = errors.New("workers: pool is closed")

// WorkItem is an interface to work item used by the workers
type WorkItem interface {
	Run() error
	Name() string
}

// Logger is the log sink of the pool
type Logger interface {
	Printf(string, ...interface{})
}

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// Pool is a pool of workers.
//
// At most Capacity items wait in the queue and at most Size items run at a
// time. Submit blocks while the queue is full.
type Pool struct {
	submit   chan WorkItem  // Send work items to this channel, one of workers will run it
	workerg  sync.WaitGroup // To wait completion of all workers
	nbWorker int            // The number of concurrent workers
	running  int64
	logger   Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// WithLogger gives a logger to the pool
func WithLogger(l Logger) func(p *Pool) {
	return func(p *Pool) {
		p.logger = l
	}
}

// New creates a pool of size workers fed by a queue of the given capacity.
// size is at least 1, a capacity of 0 gives an unbuffered hand off.
func New(size, capacity int, conf ...func(p *Pool)) *Pool {
	if size < 1 {
		size = 1
	}
	if capacity < 0 {
		capacity = 0
	}
	p := &Pool{
		submit:   make(chan WorkItem, capacity),
		nbWorker: size,
		logger:   nullLogger{},
	}
	for _, fn := range conf {
		fn(p)
	}
	p.init()
	return p
}

// init creates a goroutine for each worker
func (p *Pool) init() {
	for i := 0; i < p.nbWorker; i++ {
		p.workerg.Add(1)
		go p.newWorker(i)
	}
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.nbWorker
}

// Capacity returns the queue capacity
func (p *Pool) Capacity() int {
	return cap(p.submit)
}

// Queued returns the number of items submitted and not yet taken by a worker
func (p *Pool) Queued() int {
	return len(p.submit)
}

// Running returns the number of items being run
func (p *Pool) Running() int {
	return int(atomic.LoadInt64(&p.running))
}

// Submit a work item to the pool. It blocks while the queue is full.
func (p *Pool) Submit(wi WorkItem) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	p.logger.Printf("Submit work: %s", wi.Name())
	p.submit <- wi
	return nil
}

// Close tells the workers that no more items will come, and waits for them
// to drain the queue and end.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.submit)
		p.mu.Unlock()
	})
	p.workerg.Wait()
	p.logger.Printf("Workerpool is ended")
}

// newWorker runs items until the queue is closed and empty
func (p *Pool) newWorker(id int) {
	defer p.workerg.Done()
	p.logger.Printf("Initializing worker %d", id)
	for i := range p.submit {
		atomic.AddInt64(&p.running, 1)
		t := time.Now()
		err := i.Run()
		atomic.AddInt64(&p.running, -1)
		if err == nil {
			p.logger.Printf("Done  [%d]: %s(%s)", id, i.Name(), time.Since(t).Round(100*time.Millisecond))
		} else {
			p.logger.Printf("Fail  [%d]: %s with error(%v)", id, i.Name(), err)
		}
	}
	p.logger.Printf("Worker %d is ended", id)
}

// RunAction is an helper to submit a work to the worker pool
type RunAction struct {
	name string
	fn   func() error
}

// NewRunAction creates a work item out of a name and a function
func NewRunAction(n string, fn func() error) RunAction {
	return RunAction{name: n, fn: fn}
}

// Name returns the names of the work
func (r RunAction) Name() string {
	return r.name
}

// Run invoke the function
func (r RunAction) Run() error {
	return r.fn()
}
