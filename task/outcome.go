package task

import (
	"fmt"
	"net/http"
)

// Status tells how a task ended.
type Status int

const (
	// Pending is the zero value, an outcome not produced yet.
	Pending Status = iota
	Completed
	Skipped
	Failed
)

var statusStrings = map[Status]string{
	Pending:   "pending",
	Completed: "completed",
	Skipped:   "skipped",
	Failed:    "failed",
}

func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Reason qualifies Skipped and Failed outcomes.
type Reason int

const (
	None Reason = iota
	AlreadyExists
	IOError
	BadStatus
)

var reasonStrings = map[Reason]string{
	None:          "",
	AlreadyExists: "already exists",
	IOError:       "i/o error",
	BadStatus:     "bad status",
}

func (r Reason) String() string {
	if str, ok := reasonStrings[r]; ok {
		return str
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Outcome is the result of one task.
//
// Code is set for BadStatus, Err for IOError. Bytes counts what was
// written to the destination, a failed task may have written some.
type Outcome struct {
	Status Status
	Reason Reason
	Code   int
	Err    error
	Bytes  int64
}

// CompletedOutcome is the outcome of a 200 response fully written.
func CompletedOutcome(n int64) Outcome {
	return Outcome{Status: Completed, Bytes: n}
}

// SkippedOutcome is the outcome of a task whose destination already exists.
func SkippedOutcome() Outcome {
	return Outcome{Status: Skipped, Reason: AlreadyExists}
}

// FailedIO wraps a local file or transport error.
func FailedIO(err error) Outcome {
	return Outcome{Status: Failed, Reason: IOError, Err: err}
}

// FailedStatus is the outcome of a non 200 response.
func FailedStatus(code int, n int64) Outcome {
	return Outcome{Status: Failed, Reason: BadStatus, Code: code, Bytes: n}
}

// OK is true for Completed and Skipped outcomes.
func (o Outcome) OK() bool {
	return o.Status == Completed || o.Status == Skipped
}

func (o Outcome) String() string {
	switch {
	case o.Status == Skipped:
		return fmt.Sprintf("skipped(%s)", o.Reason)
	case o.Status == Failed && o.Reason == BadStatus:
		return fmt.Sprintf("failed(%s %d %s)", o.Reason, o.Code, http.StatusText(o.Code))
	case o.Status == Failed:
		return fmt.Sprintf("failed(%s: %v)", o.Reason, o.Err)
	}
	return o.Status.String()
}
