// Package results collects the outcome of every task of a batch.
//
// An Aggregator accepts exactly one outcome per task index, from any
// goroutine. The BatchResult is only handed out once the aggregator is
// sealed, which the dispatcher does after joining all its workers.
package results

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/simulot/multidl/task"
)

var (
	// ErrNotSealed is returned when the result is requested while workers may still run
	ErrNotSealed = errors.New("results: batch is not sealed")
	// ErrIncomplete is returned by Seal when some task has no outcome
	ErrIncomplete = errors.New("results: some tasks have no outcome")
	// ErrDuplicate is returned when a task index is recorded twice
	ErrDuplicate = errors.New("results: outcome already recorded")
	// ErrOutOfRange is returned for an index outside of the batch
	ErrOutOfRange = errors.New("results: task index out of range")
	// ErrSealed is returned when recording into a sealed aggregator
	ErrSealed = errors.New("results: batch is sealed")
)

// Metric names updated when a registry is given
const (
	MetricCompleted = "multidl.completed"
	MetricSkipped   = "multidl.skipped"
	MetricFailed    = "multidl.failed"
)

// BatchResult maps each task index to its outcome
type BatchResult struct {
	ID       string
	outcomes []task.Outcome
}

// Len returns the number of outcomes, equal to the task set length
func (r *BatchResult) Len() int {
	return len(r.outcomes)
}

// Outcome returns the outcome of task i
func (r *BatchResult) Outcome(i int) task.Outcome {
	return r.outcomes[i]
}

// Outcomes returns a copy of all outcomes, indexed like the task set
func (r *BatchResult) Outcomes() []task.Outcome {
	o := make([]task.Outcome, len(r.outcomes))
	copy(o, r.outcomes)
	return o
}

// Counts gives the number of outcomes per status
func (r *BatchResult) Counts() map[task.Status]int {
	c := map[task.Status]int{}
	for _, o := range r.outcomes {
		c[o.Status]++
	}
	return c
}

// Failures lists the indexes of failed tasks, in ascending order
func (r *BatchResult) Failures() []int {
	var f []int
	for i, o := range r.outcomes {
		if o.Status == task.Failed {
			f = append(f, i)
		}
	}
	sort.Ints(f)
	return f
}

// OK is true when no task failed
func (r *BatchResult) OK() bool {
	return len(r.Failures()) == 0
}

// Aggregator collects outcomes while a batch runs
type Aggregator struct {
	sync.Mutex
	id       string
	outcomes []task.Outcome
	recorded []bool
	count    int
	sealed   bool
	registry metrics.Registry
}

// WithRegistry counts outcomes into the given go-metrics registry
func WithRegistry(r metrics.Registry) func(a *Aggregator) {
	return func(a *Aggregator) {
		a.registry = r
	}
}

// WithID sets the batch ID instead of a random one
func WithID(id string) func(a *Aggregator) {
	return func(a *Aggregator) {
		a.id = id
	}
}

// NewAggregator prepares the collection of n outcomes
func NewAggregator(n int, conf ...func(a *Aggregator)) *Aggregator {
	a := &Aggregator{
		id:       uuid.NewString(),
		outcomes: make([]task.Outcome, n),
		recorded: make([]bool, n),
	}
	for _, fn := range conf {
		fn(a)
	}
	return a
}

// ID of the batch
func (a *Aggregator) ID() string {
	return a.id
}

// Record stores the outcome of task i. It is safe for concurrent use.
func (a *Aggregator) Record(i int, o task.Outcome) error {
	a.Lock()
	defer a.Unlock()
	switch {
	case a.sealed:
		return ErrSealed
	case i < 0 || i >= len(a.outcomes):
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	case a.recorded[i]:
		return fmt.Errorf("%w: %d", ErrDuplicate, i)
	}
	a.outcomes[i] = o
	a.recorded[i] = true
	a.count++
	a.count2metrics(o)
	return nil
}

func (a *Aggregator) count2metrics(o task.Outcome) {
	if a.registry == nil {
		return
	}
	var name string
	switch o.Status {
	case task.Completed:
		name = MetricCompleted
	case task.Skipped:
		name = MetricSkipped
	case task.Failed:
		name = MetricFailed
	default:
		return
	}
	metrics.GetOrRegisterCounter(name, a.registry).Inc(1)
}

// Recorded returns how many outcomes are in
func (a *Aggregator) Recorded() int {
	a.Lock()
	defer a.Unlock()
	return a.count
}

// Seal closes the collection. The caller guarantees that no worker is running anymore.
func (a *Aggregator) Seal() (*BatchResult, error) {
	a.Lock()
	defer a.Unlock()
	if a.count != len(a.outcomes) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIncomplete, a.count, len(a.outcomes))
	}
	a.sealed = true
	return a.result(), nil
}

// Result returns the batch result of a sealed aggregator
func (a *Aggregator) Result() (*BatchResult, error) {
	a.Lock()
	defer a.Unlock()
	if !a.sealed {
		return nil, ErrNotSealed
	}
	return a.result(), nil
}

func (a *Aggregator) result() *BatchResult {
	r := &BatchResult{
		ID:       a.id,
		outcomes: make([]task.Outcome, len(a.outcomes)),
	}
	copy(r.outcomes, a.outcomes)
	return r
}
