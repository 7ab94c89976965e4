package plan

import (
	"strings"
	"sync"
	"sync/atomic"
)

// NodeID is the stable handle of a node inside its Plan.
//
// Edges are stored as handles rather than pointers, so a bidirectional
// relationship (must-successor/must-predecessor, finalizer/finalized) is two
// independent insertions into two sets.
type NodeID int32

// Identity is the part of a node that orders it inside a NodeSet.
type Identity interface {
	ID() NodeID
	Path() string
}

// Node is a schedulable vertex of the execution plan.
//
// The hierarchy is closed: the concrete kinds are *TaskNode and *ActionNode,
// both built on BaseNode. Kind-specific behavior (successor views, the
// completion rule, finalizer promotion, diagnostics) is provided by each kind
// layering its own edge sets over the ones BaseNode knows about.
//
// All read methods are safe to call concurrently once the plan is sealed.
type Node interface {
	Identity

	// State returns the node's current execution state.
	State() ExecutionState
	// IsComplete reports whether the node reached a terminal state.
	IsComplete() bool
	// IsSuccessful reports whether the node completed in a state its
	// dependents may build on.
	IsSuccessful() bool
	// Failure returns the failure recorded by Finish, if any.
	Failure() error

	// CheckDependenciesComplete evaluates the dependency-completion rule.
	CheckDependenciesComplete() DependenciesState

	// AllSuccessors returns every ordering edge out of this node, advisory
	// edges included, in priority order.
	AllSuccessors() []NodeID
	// HardSuccessors returns the mandatory ordering edges only.
	HardSuccessors() []NodeID
	// AllSuccessorsInReverseOrder walks AllSuccessors back to front.
	AllSuccessorsInReverseOrder() []NodeID

	// DependencySuccessors returns the hard dependencies of this node.
	DependencySuccessors() []NodeID
	// DependencyPredecessors returns the nodes that hard-depend on this node.
	DependencyPredecessors() []NodeID
	// MustPredecessors returns the nodes that have this node as a must-successor.
	MustPredecessors() []NodeID
	// FinalizingSuccessors returns the nodes this node finalizes.
	FinalizingSuccessors() []NodeID
	// Finalizers returns the nodes that finalize this node.
	Finalizers() []NodeID

	// Group returns the node's current scheduling group.
	Group() NodeGroup
	// UpdateGroupOfFinalizer promotes the node's group when it is a finalizer.
	UpdateGroupOfFinalizer()

	// HealthDiagnostics renders the node's state and edges for deadlock reports.
	HealthDiagnostics() string

	base() *BaseNode
}

// groupSlot boxes the current group so it can be swapped atomically.
type groupSlot struct {
	group NodeGroup
}

// BaseNode carries the state and edges common to every node kind.
type BaseNode struct {
	plan *Plan
	id   NodeID
	path string

	dependencySuccessors   NodeSet
	dependencyPredecessors NodeSet
	mustPredecessors       NodeSet
	finalizers             NodeSet

	// mu serializes state transitions and guards failure. Readers of the
	// state itself use the atomic and never block.
	mu      sync.Mutex
	state   atomic.Int32
	failure error

	// gaugeCounted records whether Start incremented the running gauge.
	// Guarded by mu.
	gaugeCounted bool

	group atomic.Pointer[groupSlot]
}

func (n *BaseNode) init(p *Plan, id NodeID, path string) {
	n.plan = p
	n.id = id
	n.path = path
	n.group.Store(&groupSlot{group: Default})
}

func (n *BaseNode) base() *BaseNode {
	return n
}

// ID returns the node's handle.
func (n *BaseNode) ID() NodeID {
	return n.id
}

// Path returns the node's unique path within the plan.
func (n *BaseNode) Path() string {
	return n.path
}

// String returns the node path.
func (n *BaseNode) String() string {
	return n.path
}

// Plan returns the plan that owns the node.
func (n *BaseNode) Plan() *Plan {
	return n.plan
}

// State returns the current execution state.
func (n *BaseNode) State() ExecutionState {
	return ExecutionState(n.state.Load())
}

// IsComplete reports whether the node reached a terminal state.
func (n *BaseNode) IsComplete() bool {
	return n.State().Terminal()
}

// IsSuccessful reports whether the node executed or was skipped.
func (n *BaseNode) IsSuccessful() bool {
	return n.State().Successful()
}

// Failure returns the failure recorded when the node finished, or nil.
func (n *BaseNode) Failure() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.failure
}

// AddHardDependency records that this node cannot start until dep has
// completed successfully. Cycles are not detected here; see ExecutionOrder.
func (n *BaseNode) AddHardDependency(dep Node) error {
	if err := n.checkEdge(dep); err != nil {
		return err
	}
	return n.plan.mutate(n.path, func() {
		n.dependencySuccessors.Add(dep)
		dep.base().dependencyPredecessors.Add(n)
	})
}

// SetGroup moves the node into g. If the node has already been promoted to a
// finalizer, the finalizer decoration is kept on top of g.
func (n *BaseNode) SetGroup(g NodeGroup) error {
	if g == nil {
		g = Default
	}
	return n.plan.mutate(n.path, func() {
		if fg, ok := n.Group().(*FinalizerGroup); ok && fg.finalizer.base() == n {
			g = newFinalizerGroup(fg.finalizer, g)
		}
		n.group.Store(&groupSlot{group: g})
	})
}

// Group returns the node's current scheduling group. It never returns nil.
func (n *BaseNode) Group() NodeGroup {
	return n.group.Load().group
}

// DependencySuccessors returns the hard dependencies of this node.
func (n *BaseNode) DependencySuccessors() []NodeID {
	return n.dependencySuccessors.IDs()
}

// DependencyPredecessors returns the nodes that hard-depend on this node.
func (n *BaseNode) DependencyPredecessors() []NodeID {
	return n.dependencyPredecessors.IDs()
}

// MustPredecessors returns the nodes that have this node as a must-successor.
func (n *BaseNode) MustPredecessors() []NodeID {
	return n.mustPredecessors.IDs()
}

// FinalizingSuccessors is empty for nodes that cannot finalize anything.
func (n *BaseNode) FinalizingSuccessors() []NodeID {
	return nil
}

// Finalizers returns the nodes registered as finalizers of this node.
func (n *BaseNode) Finalizers() []NodeID {
	return n.finalizers.IDs()
}

func (n *BaseNode) addFinalizer(f Node) {
	n.finalizers.Add(f)
}

// AllSuccessors returns the hard dependencies.
func (n *BaseNode) AllSuccessors() []NodeID {
	return n.dependencySuccessors.IDs()
}

// HardSuccessors returns the hard dependencies.
func (n *BaseNode) HardSuccessors() []NodeID {
	return n.dependencySuccessors.IDs()
}

// AllSuccessorsInReverseOrder returns the hard dependencies in descending order.
func (n *BaseNode) AllSuccessorsInReverseOrder() []NodeID {
	return n.dependencySuccessors.Descending()
}

// UpdateGroupOfFinalizer does nothing for nodes that cannot finalize.
func (n *BaseNode) UpdateGroupOfFinalizer() {}

// CheckDependenciesComplete applies the hard-dependency rule.
func (n *BaseNode) CheckDependenciesComplete() DependenciesState {
	state := n.checkHardDependencies()
	n.plan.metrics.RecordDependencyCheck(state)
	return state
}

// checkHardDependencies reports NotComplete while any hard dependency is
// still pending; otherwise CompleteAndNotSuccessful if any of them failed.
func (n *BaseNode) checkHardDependencies() DependenciesState {
	deps := n.dependencySuccessors.IDs()
	for _, id := range deps {
		if !n.plan.node(id).IsComplete() {
			return NotComplete
		}
	}
	for _, id := range deps {
		if !n.plan.node(id).IsSuccessful() {
			return CompleteAndNotSuccessful
		}
	}
	return CompleteAndSuccessful
}

// Start moves a pending node to running.
func (n *BaseNode) Start() error {
	n.mu.Lock()
	if !n.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		n.mu.Unlock()
		return nodeError("NOT_PENDING", ErrNotPending, n.path)
	}
	n.gaugeCounted = n.plan.metrics.RecordStarted(n.plan.id)
	n.mu.Unlock()

	n.plan.nodeStarted(n)
	return nil
}

// Finish records the outcome of the node's work. The transition to a
// terminal state happens exactly once; later calls return ErrAlreadyComplete.
func (n *BaseNode) Finish(outcome Outcome) error {
	return n.complete(outcome.state(), outcome)
}

// MarkFailedDueToDependencies completes a node that will never run because
// a dependency did not succeed.
func (n *BaseNode) MarkFailedDueToDependencies() error {
	return n.complete(StateDependencyFailed, Outcome{})
}

func (n *BaseNode) complete(target ExecutionState, outcome Outcome) error {
	n.mu.Lock()
	prev := ExecutionState(n.state.Load())
	if prev.Terminal() {
		n.mu.Unlock()
		return nodeError("ALREADY_COMPLETE", ErrAlreadyComplete, n.path)
	}
	n.failure = outcome.Failure
	n.state.Store(int32(target))
	counted := prev == StateRunning && n.gaugeCounted
	n.mu.Unlock()

	n.plan.metrics.RecordFinished(n.plan.id, target, counted)
	n.plan.nodeFinished(n, target, outcome)
	return nil
}

// checkEdge rejects edges that would leave the plan or point back at n.
func (n *BaseNode) checkEdge(other Node) error {
	if other == nil {
		return nodeError("UNKNOWN_NODE", ErrUnknownNode, n.path)
	}
	if other.base().plan != n.plan {
		return nodeError("FOREIGN_NODE", ErrForeignNode, n.path)
	}
	if other.base() == n {
		return nodeError("SELF_EDGE", ErrSelfEdge, n.path)
	}
	return nil
}

// healthDiagnostics renders the common part of a node dump and lets the
// concrete kind append its own edges.
func (n *BaseNode) healthDiagnostics(deps DependenciesState, specific func(*strings.Builder)) string {
	var sb strings.Builder
	sb.WriteString(n.path)
	sb.WriteString(" (state=")
	sb.WriteString(n.State().String())
	sb.WriteString(", dependencies=")
	sb.WriteString(deps.String())
	sb.WriteString(", group=")
	sb.WriteString(n.Group().String())
	sb.WriteString(", dependencySuccessors=")
	sb.WriteString(n.plan.formatNodes(n.dependencySuccessors.IDs()))
	if specific != nil {
		specific(&sb)
	}
	sb.WriteString(")")
	return sb.String()
}

// ActionNode is a node that is not backed by a task, such as an artifact
// transform or a resolution step. It only takes part in hard dependencies.
type ActionNode struct {
	BaseNode
}

// HealthDiagnostics renders the node's state and hard dependencies.
func (n *ActionNode) HealthDiagnostics() string {
	return n.healthDiagnostics(n.checkHardDependencies(), nil)
}
