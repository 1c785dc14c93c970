// Package task holds the batch vocabulary: the Task pairing a source URL with
// a destination path, the TaskSet submitted as one batch, and the Outcome
// produced once per Task.
package task

import (
	"errors"
	"fmt"
)

// ErrLengthMismatch is returned when sources and destinations don't pair up.
var ErrLengthMismatch = errors.New("task: sources and destinations have different lengths")

// Task is one download: Source is fetched into Destination.
type Task struct {
	Source      string
	Destination string
}

func (t Task) String() string {
	return fmt.Sprintf("%s -> %s", t.Source, t.Destination)
}

// TaskSet is the ordered, read only list of tasks of a batch.
type TaskSet struct {
	tasks []Task
}

// NewTaskSet pairs sources[i] with destinations[i].
func NewTaskSet(sources, destinations []string) (TaskSet, error) {
	if len(sources) != len(destinations) {
		return TaskSet{}, fmt.Errorf("%w: %d sources, %d destinations", ErrLengthMismatch, len(sources), len(destinations))
	}
	tasks := make([]Task, len(sources))
	for i := range sources {
		tasks[i] = Task{Source: sources[i], Destination: destinations[i]}
	}
	return TaskSet{tasks: tasks}, nil
}

// FromTasks builds a TaskSet out of already paired tasks.
func FromTasks(tasks ...Task) TaskSet {
	ts := TaskSet{tasks: make([]Task, len(tasks))}
	copy(ts.tasks, tasks)
	return ts
}

// Len returns the number of tasks.
func (ts TaskSet) Len() int {
	return len(ts.tasks)
}

// At returns the task at index i.
func (ts TaskSet) At(i int) Task {
	return ts.tasks[i]
}

// Tasks returns a copy of the tasks.
func (ts TaskSet) Tasks() []Task {
	r := make([]Task, len(ts.tasks))
	copy(r, ts.tasks)
	return r
}

// Append returns a new TaskSet with the tasks of other after those of ts.
func (ts TaskSet) Append(other TaskSet) TaskSet {
	r := TaskSet{tasks: make([]Task, 0, len(ts.tasks)+len(other.tasks))}
	r.tasks = append(r.tasks, ts.tasks...)
	r.tasks = append(r.tasks, other.tasks...)
	return r
}
