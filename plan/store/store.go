// Package store provides persistence for node execution records.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNotFound is returned when a plan has no stored executions.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// ErrTimeOutOfRange is returned when an execution time is outside what Unix
// nanoseconds can represent.
var ErrTimeOutOfRange = errors.New("execution time out of range")

var (
	minStorableTime = time.Unix(0, math.MinInt64)
	maxStorableTime = time.Unix(0, math.MaxInt64)
)

// Execution is the persisted outcome of one node of a plan.
type Execution struct {
	// Path is the node path, unique within a plan.
	Path string

	// Status is the completion status: a skip message, "" when the node did
	// work, or the "did no work" marker.
	Status string

	// Start and Finish bound the node's execution.
	Start  time.Time
	Finish time.Time
}

// Elapsed returns Finish - Start.
func (e Execution) Elapsed() time.Duration {
	return e.Finish.Sub(e.Start)
}

// unixNanos returns the stored form of Start and Finish. A zero time is
// stored as 0.
func (e Execution) unixNanos() (start, finish int64, err error) {
	if start, err = toUnixNanos(e.Start); err != nil {
		return 0, 0, fmt.Errorf("execution %s start: %w", e.Path, err)
	}
	if finish, err = toUnixNanos(e.Finish); err != nil {
		return 0, 0, fmt.Errorf("execution %s finish: %w", e.Path, err)
	}
	return start, finish, nil
}

func toUnixNanos(t time.Time) (int64, error) {
	if t.IsZero() {
		return 0, nil
	}
	if t.Before(minStorableTime) || t.After(maxStorableTime) {
		return 0, fmt.Errorf("%w: %s", ErrTimeOutOfRange, t)
	}
	return t.UnixNano(), nil
}

func fromUnixNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// Store persists execution records so build profiles can be compared across
// invocations.
//
// Implementations can use:
//   - In-memory storage (for testing, see memory.go)
//   - SQLite for a single developer machine (see sqlite.go)
//   - MySQL for a shared build-analytics database (see mysql.go)
//
// All implementations are safe for concurrent use.
type Store interface {
	// SaveExecution persists one execution. Saving the same plan and path
	// again replaces the earlier record.
	SaveExecution(ctx context.Context, planID string, exec Execution) error

	// SaveExecutions persists a batch atomically: either every record is
	// stored or none is.
	SaveExecutions(ctx context.Context, planID string, execs []Execution) error

	// LoadExecutions returns every execution of planID ordered by start
	// time, then path. Returns ErrNotFound if the plan has none.
	LoadExecutions(ctx context.Context, planID string) ([]Execution, error)

	// Close releases the store's resources. Closing twice is a no-op.
	Close() error
}
