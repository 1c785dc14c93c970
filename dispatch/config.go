package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned by Dispatch for a configuration it can't run
var ErrInvalidConfig = errors.New("dispatch: invalid configuration")

// Strategy tells how tasks are spread over goroutines
type Strategy int

const (
	// Unbounded starts one goroutine per task
	Unbounded Strategy = iota
	// BoundedQueue feeds a fixed pool of workers through a bounded queue
	BoundedQueue
	// DataParallel splits the tasks among a fixed number of goroutines
	DataParallel
)

var strategyNames = map[Strategy]string{
	Unbounded:    "unbounded",
	BoundedQueue: "queue",
	DataParallel: "parallel",
}

var strategyAliases = map[string]Strategy{
	"unbounded":     Unbounded,
	"simple":        Unbounded,
	"queue":         BoundedQueue,
	"bounded":       BoundedQueue,
	"bounded-queue": BoundedQueue,
	"parallel":      DataParallel,
	"data-parallel": DataParallel,
}

func (s Strategy) String() string {
	if n, ok := strategyNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy reads a strategy name as given on the command line
func ParseStrategy(s string) (Strategy, error) {
	st, ok := strategyAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, s)
	}
	return st, nil
}

// Config selects the strategy and its sizes.
//
// Capacity is the queue length of BoundedQueue. Workers is the pool size
// of BoundedQueue and the number of partitions of DataParallel, where 0
// means one per CPU.
type Config struct {
	Strategy Strategy
	Capacity int
	Workers  int
}

// UnboundedConfig runs every task at once
func UnboundedConfig() Config {
	return Config{Strategy: Unbounded}
}

// BoundedQueueConfig runs tasks on workers goroutines, with at most capacity tasks waiting
func BoundedQueueConfig(capacity, workers int) Config {
	return Config{Strategy: BoundedQueue, Capacity: capacity, Workers: workers}
}

// DataParallelConfig splits tasks among workers goroutines, 0 for one per CPU
func DataParallelConfig(workers int) Config {
	return Config{Strategy: DataParallel, Workers: workers}
}

// Validate checks that the configuration can run
func (c Config) Validate() error {
	switch c.Strategy {
	case Unbounded:
		return nil
	case BoundedQueue:
		if c.Workers < 1 {
			return fmt.Errorf("%w: bounded queue needs at least one worker, got %d", ErrInvalidConfig, c.Workers)
		}
		if c.Capacity < 0 {
			return fmt.Errorf("%w: negative queue capacity %d", ErrInvalidConfig, c.Capacity)
		}
		return nil
	case DataParallel:
		if c.Workers < 0 {
			return fmt.Errorf("%w: negative worker count %d", ErrInvalidConfig, c.Workers)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown strategy %s", ErrInvalidConfig, c.Strategy)
}

func (c Config) String() string {
	switch c.Strategy {
	case BoundedQueue:
		return fmt.Sprintf("%s(capacity=%d, workers=%d)", c.Strategy, c.Capacity, c.Workers)
	case DataParallel:
		return fmt.Sprintf("%s(workers=%d)", c.Strategy, c.Workers)
	}
	return c.Strategy.String()
}
