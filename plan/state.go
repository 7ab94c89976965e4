package plan

// ExecutionState is the completion state of a single node.
//
// A node starts Pending, may move to Running when a worker picks it up, and
// ends in exactly one terminal state. Pending can also move straight to a
// terminal state when the scheduler skips the node or gives up on it because
// a dependency failed.
type ExecutionState int32

const (
	// StatePending means the node has not been dispatched.
	StatePending ExecutionState = iota
	// StateRunning means a worker is executing the node's work.
	StateRunning
	// StateExecuted means the work finished without failure.
	StateExecuted
	// StateFailed means the work finished with a failure.
	StateFailed
	// StateSkipped means the scheduler decided the work need not run.
	// A skipped node counts as successful for its dependents.
	StateSkipped
	// StateDependencyFailed means the node never ran because one of its
	// dependencies did not complete successfully.
	StateDependencyFailed
)

// String returns the lower-case name of the state.
func (s ExecutionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateExecuted:
		return "executed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	case StateDependencyFailed:
		return "dependency_failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a completion state.
func (s ExecutionState) Terminal() bool {
	return s >= StateExecuted
}

// Successful reports whether s is a terminal state dependents may build on.
func (s ExecutionState) Successful() bool {
	return s == StateExecuted || s == StateSkipped
}

// DependenciesState is the answer to "may this node's dependents proceed,
// and how".
type DependenciesState int

const (
	// NotComplete means at least one prerequisite has not finished.
	NotComplete DependenciesState = iota
	// CompleteAndSuccessful means every prerequisite finished and none failed.
	CompleteAndSuccessful
	// CompleteAndNotSuccessful means every prerequisite finished and at
	// least one did not succeed.
	CompleteAndNotSuccessful
)

// String returns the constant-style name of the state.
func (d DependenciesState) String() string {
	switch d {
	case NotComplete:
		return "NOT_COMPLETE"
	case CompleteAndSuccessful:
		return "COMPLETE_AND_SUCCESSFUL"
	case CompleteAndNotSuccessful:
		return "COMPLETE_AND_NOT_SUCCESSFUL"
	default:
		return "UNKNOWN"
	}
}

// Outcome is what the scheduler reports when a node's work has finished.
//
// Failure takes precedence over Skipped. DidWork distinguishes a node that
// ran and changed something from one that ran and found nothing to do; it
// only affects reporting. Set DidWork on a failed node whose actions ran,
// otherwise its execution record reads "Did No Work".
type Outcome struct {
	Failure     error
	Skipped     bool
	SkipMessage string
	DidWork     bool
}

func (o Outcome) state() ExecutionState {
	switch {
	case o.Failure != nil:
		return StateFailed
	case o.Skipped:
		return StateSkipped
	default:
		return StateExecuted
	}
}
