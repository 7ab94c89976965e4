// Package profile records per-node execution timings and completion status.
package profile

import (
	"fmt"
	"time"
)

// NoWorkMessage is the status of a node that ran but found nothing to do.
const NoWorkMessage = "Did No Work"

// TaskState is what a finished unit of work reports about itself. Failure
// is not part of it: a failed node whose actions ran reports DidWork.
type TaskState struct {
	Skipped     bool
	SkipMessage string
	DidWork     bool
}

// ExecutionRecord holds the timing and completion status of one node.
//
// The status is written once, by Completed. Reading it earlier is a
// programming error and panics.
type ExecutionRecord struct {
	path      string
	start     time.Time
	finish    time.Time
	status    string
	completed bool
}

// NewExecutionRecord creates an unstarted record for the node at path.
func NewExecutionRecord(path string) *ExecutionRecord {
	return &ExecutionRecord{path: path}
}

// Path returns the node path.
func (r *ExecutionRecord) Path() string {
	return r.path
}

// Start sets the start time.
func (r *ExecutionRecord) Start(at time.Time) *ExecutionRecord {
	r.start = at
	return r
}

// Completed sets the finish time and derives the status from state: the
// skip message when skipped, "" when work was done, NoWorkMessage otherwise.
func (r *ExecutionRecord) Completed(at time.Time, state TaskState) *ExecutionRecord {
	r.finish = at
	switch {
	case state.Skipped:
		r.status = state.SkipMessage
	case state.DidWork:
		r.status = ""
	default:
		r.status = NoWorkMessage
	}
	r.completed = true
	return r
}

// IsCompleted reports whether Completed has been called.
func (r *ExecutionRecord) IsCompleted() bool {
	return r.completed
}

// Status returns the completion status. It panics if the record has not
// been completed.
func (r *ExecutionRecord) Status() string {
	if !r.completed {
		panic(fmt.Sprintf("execution record %s: status read before completion", r.path))
	}
	return r.status
}

// StartTime returns the start time.
func (r *ExecutionRecord) StartTime() time.Time {
	return r.start
}

// FinishTime returns the finish time, zero until completed.
func (r *ExecutionRecord) FinishTime() time.Time {
	return r.finish
}

// Elapsed returns the time between start and finish, or zero while the
// record is incomplete.
func (r *ExecutionRecord) Elapsed() time.Duration {
	if !r.completed || r.start.IsZero() {
		return 0
	}
	return r.finish.Sub(r.start)
}

func (r *ExecutionRecord) clone() *ExecutionRecord {
	c := *r
	return &c
}
