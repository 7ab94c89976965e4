// Package plan provides the execution-plan graph used by a build scheduler.
package plan

import (
	"errors"
	"strings"
)

// ErrPlanSealed is returned when an edge or node is added after Seal.
// Edge sets are only mutable during the single-writer construction phase;
// once dispatch begins the only per-node mutation is the completion state.
var ErrPlanSealed = errors.New("plan is sealed: graph construction has finished")

// ErrSelfEdge is returned when a node is asked to depend on, or be ordered
// relative to, itself.
var ErrSelfEdge = errors.New("node cannot have an edge to itself")

// ErrForeignNode is returned when an edge connects nodes owned by different plans.
var ErrForeignNode = errors.New("node belongs to a different plan")

// ErrDuplicateNode is returned when a node path is registered twice.
var ErrDuplicateNode = errors.New("duplicate node path")

// ErrUnknownNode is returned when a handle or path does not resolve to a node.
var ErrUnknownNode = errors.New("unknown node")

// ErrNotPending is returned by Start when the node has already been started
// or has reached a terminal state.
var ErrNotPending = errors.New("node is not pending")

// ErrAlreadyComplete is returned when a terminal state is written twice.
// Every node transitions to a terminal state exactly once.
var ErrAlreadyComplete = errors.New("node has already completed")

// ErrCycle is returned by traversal when hard successors form a cycle.
var ErrCycle = errors.New("cycle in hard successors")

// PlanError describes a failed plan operation.
//
// Code is a machine-readable identifier (e.g. "DUPLICATE_NODE"), NodeID the
// path of the node the operation targeted, if any. Cause is the sentinel or
// underlying error, exposed through Unwrap so callers can use errors.Is.
type PlanError struct {
	Message string
	Code    string
	NodeID  string
	Cause   error
}

// Error implements the error interface.
func (e *PlanError) Error() string {
	var sb strings.Builder
	if e.Code != "" {
		sb.WriteString(e.Code)
		sb.WriteString(": ")
	}
	if e.NodeID != "" {
		sb.WriteString("node ")
		sb.WriteString(e.NodeID)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *PlanError) Unwrap() error {
	return e.Cause
}

// CycleError reports the nodes on a cycle found while walking hard successors.
// The first and last entries of Path are the same node.
type CycleError struct {
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return ErrCycle.Error() + ": " + strings.Join(e.Path, " -> ")
}

// Unwrap allows errors.Is(err, ErrCycle).
func (e *CycleError) Unwrap() error {
	return ErrCycle
}

func nodeError(code string, cause error, path string) error {
	return &PlanError{
		Message: cause.Error(),
		Code:    code,
		NodeID:  path,
		Cause:   cause,
	}
}
