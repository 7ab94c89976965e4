package plan

import (
	"slices"
	"strings"
)

const (
	hookMustRunAfter   = "mustRunAfter"
	hookShouldRunAfter = "shouldRunAfter"
)

// TaskNode is a node backed by one task of a build.
//
// On top of hard dependencies it carries three ordering relationships:
//
//   - must-successors: mandatory ordering edges. A.AddMustSuccessor(B) keeps A
//     from being considered ready until B has completed, and records A as a
//     must-predecessor of B in the same step. Never removed.
//   - should-successors: advisory ordering edges. They steer traversal order
//     and may be dropped, for example to break a cycle.
//   - finalizing-successors: the nodes this node finalizes. A node with at
//     least one of them is a finalizer and is promoted into a FinalizerGroup
//     by UpdateGroupOfFinalizer.
type TaskNode struct {
	BaseNode

	buildPath string

	mustSuccessors       NodeSet
	shouldSuccessors     NodeSet
	finalizingSuccessors NodeSet
}

// BuildPath identifies the build unit the task belongs to.
func (n *TaskNode) BuildPath() string {
	return n.buildPath
}

// MustSuccessors returns the must-successors in ascending order.
func (n *TaskNode) MustSuccessors() []NodeID {
	return n.mustSuccessors.IDs()
}

// ShouldSuccessors returns the should-successors in ascending order.
func (n *TaskNode) ShouldSuccessors() []NodeID {
	return n.shouldSuccessors.IDs()
}

// FinalizingSuccessors returns the nodes this task finalizes.
func (n *TaskNode) FinalizingSuccessors() []NodeID {
	return n.finalizingSuccessors.IDs()
}

// IsFinalizer reports whether the node has been promoted into a FinalizerGroup.
func (n *TaskNode) IsFinalizer() bool {
	fg, ok := n.Group().(*FinalizerGroup)
	return ok && fg.finalizer == n
}

// AddMustSuccessor adds to as a must-successor and registers n as a
// must-predecessor of to.
func (n *TaskNode) AddMustSuccessor(to *TaskNode) error {
	if to == nil {
		return nodeError("UNKNOWN_NODE", ErrUnknownNode, n.path)
	}
	if err := n.checkEdge(to); err != nil {
		return err
	}
	err := n.plan.mutate(n.path, func() {
		n.mustSuccessors.Add(to)
		to.mustPredecessors.Add(n)
	})
	if err != nil {
		return err
	}
	n.deprecateHookReferencingNonLocalTask(hookMustRunAfter, to)
	return nil
}

// AddShouldSuccessor adds to as an advisory should-successor.
func (n *TaskNode) AddShouldSuccessor(to Node) error {
	if err := n.checkEdge(to); err != nil {
		return err
	}
	err := n.plan.mutate(n.path, func() {
		n.shouldSuccessors.Add(to)
	})
	if err != nil {
		return err
	}
	n.deprecateHookReferencingNonLocalTask(hookShouldRunAfter, to)
	return nil
}

// RemoveShouldSuccessor drops a should-successor. Removing an edge that was
// never added is a no-op.
func (n *TaskNode) RemoveShouldSuccessor(to Node) error {
	if to == nil {
		return nil
	}
	return n.plan.mutate(n.path, func() {
		n.shouldSuccessors.Remove(to)
	})
}

// AddFinalizingSuccessor makes n a finalizer of finalized. The group is not
// promoted here; the builder calls UpdateGroupOfFinalizer once every edge of
// the node is known.
func (n *TaskNode) AddFinalizingSuccessor(finalized Node) error {
	if err := n.checkEdge(finalized); err != nil {
		return err
	}
	return n.plan.mutate(n.path, func() {
		n.finalizingSuccessors.Add(finalized)
		finalized.base().addFinalizer(n)
	})
}

// UpdateGroupOfFinalizer decorates the current group with a FinalizerGroup
// when the node finalizes something. Promoting a node that is already a
// finalizer does nothing.
func (n *TaskNode) UpdateGroupOfFinalizer() {
	n.BaseNode.UpdateGroupOfFinalizer()
	if n.finalizingSuccessors.Empty() {
		return
	}
	for {
		slot := n.group.Load()
		if fg, ok := slot.group.(*FinalizerGroup); ok && fg.finalizer == n {
			return
		}
		promoted := &groupSlot{group: newFinalizerGroup(n, slot.group)}
		if n.group.CompareAndSwap(slot, promoted) {
			n.plan.finalizerPromoted(n, promoted.group)
			return
		}
	}
}

// CheckDependenciesComplete applies the hard-dependency rule and then also
// waits for every must-successor to complete, whatever its outcome.
func (n *TaskNode) CheckDependenciesComplete() DependenciesState {
	state := n.checkDependencies()
	n.plan.metrics.RecordDependencyCheck(state)
	return state
}

func (n *TaskNode) checkDependencies() DependenciesState {
	state := n.checkHardDependencies()
	if state != CompleteAndSuccessful {
		return state
	}
	for _, id := range n.mustSuccessors.IDs() {
		if !n.plan.node(id).IsComplete() {
			return NotComplete
		}
	}
	return CompleteAndSuccessful
}

// AllSuccessors returns should-successors, group successors, must-successors
// and hard dependencies, in that order.
func (n *TaskNode) AllSuccessors() []NodeID {
	return slices.Concat(
		n.shouldSuccessors.IDs(),
		n.Group().SuccessorsFor(n),
		n.mustSuccessors.IDs(),
		n.BaseNode.AllSuccessors(),
	)
}

// HardSuccessors returns group successors, must-successors and hard
// dependencies. Should-successors are never included.
func (n *TaskNode) HardSuccessors() []NodeID {
	return slices.Concat(
		n.Group().SuccessorsFor(n),
		n.mustSuccessors.IDs(),
		n.BaseNode.HardSuccessors(),
	)
}

// AllSuccessorsInReverseOrder walks AllSuccessors from the last set to the
// first, each set in descending order.
func (n *TaskNode) AllSuccessorsInReverseOrder() []NodeID {
	return slices.Concat(
		n.BaseNode.AllSuccessorsInReverseOrder(),
		n.mustSuccessors.Descending(),
		n.Group().SuccessorsInReverseOrderFor(n),
		n.shouldSuccessors.Descending(),
	)
}

// HealthDiagnostics renders the node's state, group successors and
// task-specific edges.
func (n *TaskNode) HealthDiagnostics() string {
	return n.healthDiagnostics(n.checkDependencies(), func(sb *strings.Builder) {
		sb.WriteString(", groupSuccessors=")
		sb.WriteString(n.plan.formatNodes(n.Group().SuccessorsFor(n)))
		if !n.mustSuccessors.Empty() {
			sb.WriteString(", mustSuccessors=")
			sb.WriteString(n.plan.formatNodes(n.mustSuccessors.IDs()))
		}
		if !n.finalizingSuccessors.Empty() {
			sb.WriteString(", finalizes=")
			sb.WriteString(n.plan.formatNodes(n.finalizingSuccessors.IDs()))
		}
	})
}

// deprecateHookReferencingNonLocalTask reports an ordering edge that reaches
// into another build. The edge is kept either way.
func (n *TaskNode) deprecateHookReferencingNonLocalTask(hook string, to Node) {
	other, ok := to.(*TaskNode)
	if !ok || other.buildPath == n.buildPath {
		return
	}
	n.plan.deprecation(n, other, hook)
}
