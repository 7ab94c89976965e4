package plan

import (
	"slices"
	"strconv"
)

// NodeGroup is the scheduling partition a node currently belongs to.
//
// A group can impose successor edges on its members that the members do not
// store themselves. Every node holds exactly one group at a time; the slot is
// swapped atomically, so a concurrent reader sees either the old group or the
// new one, never neither.
type NodeGroup interface {
	// SuccessorsFor returns the group-imposed successors of member n.
	SuccessorsFor(n Node) []NodeID
	// SuccessorsInReverseOrderFor returns the same edges back to front.
	SuccessorsInReverseOrderFor(n Node) []NodeID
	// String describes the group for diagnostics.
	String() string
}

// DefaultGroup is the group of nodes no other group claims. It imposes no edges.
type DefaultGroup struct{}

// Default is the shared default group.
var Default NodeGroup = DefaultGroup{}

// SuccessorsFor returns nil.
func (DefaultGroup) SuccessorsFor(Node) []NodeID { return nil }

// SuccessorsInReverseOrderFor returns nil.
func (DefaultGroup) SuccessorsInReverseOrderFor(Node) []NodeID { return nil }

func (DefaultGroup) String() string { return "default group" }

// OrdinalGroup gathers the nodes reachable from one requested entry point,
// identified by its position on the request. Successors added to the group
// apply to every member except the successor itself.
//
// Successors must be added during graph construction.
type OrdinalGroup struct {
	ordinal    int
	successors NodeSet
}

// NewOrdinalGroup creates the group for the given request position.
func NewOrdinalGroup(ordinal int) *OrdinalGroup {
	return &OrdinalGroup{ordinal: ordinal}
}

// Ordinal returns the request position of the group.
func (g *OrdinalGroup) Ordinal() int {
	return g.ordinal
}

// AddSuccessor orders every member of the group after n.
func (g *OrdinalGroup) AddSuccessor(n Identity) {
	g.successors.Add(n)
}

// SuccessorsFor returns the group successors other than n itself.
func (g *OrdinalGroup) SuccessorsFor(n Node) []NodeID {
	return withoutID(g.successors.IDs(), n.ID())
}

// SuccessorsInReverseOrderFor returns the group successors other than n, descending.
func (g *OrdinalGroup) SuccessorsInReverseOrderFor(n Node) []NodeID {
	return withoutID(g.successors.Descending(), n.ID())
}

func (g *OrdinalGroup) String() string {
	return "group " + strconv.Itoa(g.ordinal)
}

// FinalizerGroup decorates the group a finalizer belonged to before it was
// promoted.
//
// For the finalizer itself, the group adds edges to every node it finalizes
// and to each of their hard dependencies, so the finalizer cannot start until
// everything the finalized work needed has settled, even when the finalized
// work fails. For any other node the answers are exactly the delegate's. The
// delegate is never modified.
type FinalizerGroup struct {
	finalizer *TaskNode
	delegate  NodeGroup
}

func newFinalizerGroup(finalizer *TaskNode, delegate NodeGroup) *FinalizerGroup {
	return &FinalizerGroup{finalizer: finalizer, delegate: delegate}
}

// Finalizer returns the node this group was created for.
func (g *FinalizerGroup) Finalizer() *TaskNode {
	return g.finalizer
}

// Delegate returns the decorated group.
func (g *FinalizerGroup) Delegate() NodeGroup {
	return g.delegate
}

// SuccessorsFor returns the delegate's successors for n followed, for the
// finalizer, by the finalized nodes and their dependencies.
func (g *FinalizerGroup) SuccessorsFor(n Node) []NodeID {
	edges := g.delegate.SuccessorsFor(n)
	if n.ID() != g.finalizer.ID() {
		return edges
	}
	finalized := g.finalizedSuccessors()
	return slices.Concat(edges, finalized.IDs())
}

// SuccessorsInReverseOrderFor mirrors SuccessorsFor back to front.
func (g *FinalizerGroup) SuccessorsInReverseOrderFor(n Node) []NodeID {
	edges := g.delegate.SuccessorsInReverseOrderFor(n)
	if n.ID() != g.finalizer.ID() {
		return edges
	}
	finalized := g.finalizedSuccessors()
	return slices.Concat(finalized.Descending(), edges)
}

func (g *FinalizerGroup) finalizedSuccessors() *NodeSet {
	p := g.finalizer.plan
	var set NodeSet
	for _, id := range g.finalizer.finalizingSuccessors.IDs() {
		finalized := p.node(id)
		set.Add(finalized)
		for _, dep := range finalized.DependencySuccessors() {
			if dep != g.finalizer.ID() {
				set.Add(p.node(dep))
			}
		}
	}
	return &set
}

func (g *FinalizerGroup) String() string {
	return "finalizer " + g.finalizer.Path() + " of " + g.delegate.String()
}

func withoutID(ids []NodeID, id NodeID) []NodeID {
	return slices.DeleteFunc(ids, func(other NodeID) bool { return other == id })
}
