package plan

import (
	"errors"
	"slices"
	"strconv"
)

type visitState uint8

const (
	unvisited visitState = iota
	visiting
	visited
)

// ExecutionOrder linearizes the nodes reachable from roots so that every
// node appears after all of its successors.
//
// The walk is a depth-first post-order over AllSuccessors, so advisory
// should-successors influence the order as well. When the walk closes a
// cycle that contains a should-successor edge, that edge is dropped and the
// node it led to is walked later as a root of its own. Only a cycle made
// entirely of hard successors is returned, as a *CycleError. The outcome
// does not depend on which node of a cycle the walk reaches first. With no
// roots, every node of the plan is a root, taken in path order.
func (p *Plan) ExecutionOrder(roots ...NodeID) ([]NodeID, error) {
	nodes := p.Nodes()
	if len(roots) == 0 {
		var all NodeSet
		for _, n := range nodes {
			all.Add(n)
		}
		roots = all.IDs()
	}
	for _, id := range roots {
		if p.node(id) == nil {
			return nil, &PlanError{
				Message: "root does not belong to the plan",
				Code:    "UNKNOWN_NODE",
				Cause:   ErrUnknownNode,
			}
		}
	}

	w := &walker{
		plan:    p,
		state:   make([]visitState, len(nodes)),
		order:   make([]NodeID, 0, len(nodes)),
		dropped: make(map[edge]bool),
	}
	for len(roots) > 0 {
		for _, id := range roots {
			if w.state[id] != unvisited {
				continue
			}
			if err := w.visit(id, false); err != nil {
				return nil, err
			}
		}
		roots, w.deferred = w.deferred, nil
	}
	return w.order, nil
}

type edge struct {
	from, to NodeID
}

// frame is one node on the walk's stack.
type frame struct {
	id NodeID
	// soft is set when the node was entered through an edge that is only
	// a should-successor.
	soft bool
	// mark is the length of the order when the node was entered.
	mark int
}

// unwind asks the walk to return to the frame at depth and continue with
// its next successor.
type unwind struct {
	depth int
}

func (u *unwind) Error() string {
	return "unwind to depth " + strconv.Itoa(u.depth)
}

type walker struct {
	plan     *Plan
	state    []visitState
	stack    []frame
	order    []NodeID
	dropped  map[edge]bool
	deferred []NodeID
}

func (w *walker) visit(id NodeID, soft bool) error {
	depth := len(w.stack)
	w.state[id] = visiting
	w.stack = append(w.stack, frame{id: id, soft: soft, mark: len(w.order)})

	n := w.plan.node(id)
	hard := n.HardSuccessors()
	for _, succ := range n.AllSuccessors() {
		if w.dropped[edge{id, succ}] {
			continue
		}
		isHard := slices.Contains(hard, succ)

		switch w.state[succ] {
		case visited:
			continue
		case visiting:
			if !isHard {
				w.drop(id, succ)
				continue
			}
			if err := w.closeCycle(succ); err != nil {
				return err
			}
			continue
		}

		err := w.visit(succ, !isHard)
		var u *unwind
		if errors.As(err, &u) && u.depth == depth {
			continue
		}
		if err != nil {
			return err
		}
	}

	w.stack = w.stack[:depth]
	w.state[id] = visited
	w.order = append(w.order, id)
	return nil
}

// drop discards a should-successor edge and schedules its target as a root.
func (w *walker) drop(from, to NodeID) {
	w.dropped[edge{from, to}] = true
	w.deferred = append(w.deferred, to)
}

// closeCycle handles a hard edge from the top of the stack back to target.
// If every edge of the cycle is hard the cycle is reported. Otherwise the
// deepest should-successor edge on it is dropped and the walk under that
// edge is rolled back.
func (w *walker) closeCycle(target NodeID) error {
	start := slices.IndexFunc(w.stack, func(f frame) bool { return f.id == target })

	soft := -1
	for i := len(w.stack) - 1; i > start; i-- {
		if w.stack[i].soft {
			soft = i
			break
		}
	}
	if soft < 0 {
		ids := make([]NodeID, 0, len(w.stack)-start+1)
		for _, f := range w.stack[start:] {
			ids = append(ids, f.id)
		}
		return &CycleError{Path: w.plan.paths(append(ids, target))}
	}

	entered := w.stack[soft]
	for _, id := range w.order[entered.mark:] {
		w.state[id] = unvisited
	}
	w.order = w.order[:entered.mark]
	for _, f := range w.stack[soft:] {
		w.state[f.id] = unvisited
	}
	w.stack = w.stack[:soft]
	w.drop(w.stack[soft-1].id, entered.id)
	return &unwind{depth: soft - 1}
}

// Ready returns the pending nodes a scheduler may act on now, in path order.
//
// A node is ready when its dependency-completion check no longer reports
// NotComplete and every successor imposed by its group has completed, so a
// finalizer is not offered before the work it finalizes has settled. A ready
// node whose dependencies did not succeed is still returned; the scheduler
// decides whether to run it or call MarkFailedDueToDependencies.
func (p *Plan) Ready() []NodeID {
	var ready NodeSet
	for _, n := range p.Nodes() {
		if n.State() != StatePending {
			continue
		}
		if n.CheckDependenciesComplete() == NotComplete {
			continue
		}
		if !p.allComplete(n.Group().SuccessorsFor(n)) {
			continue
		}
		ready.Add(n)
	}
	return ready.IDs()
}

func (p *Plan) allComplete(ids []NodeID) bool {
	for _, id := range ids {
		if !p.node(id).IsComplete() {
			return false
		}
	}
	return true
}
