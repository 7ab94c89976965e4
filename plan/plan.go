package plan

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/execplan/plan/emit"
)

// Plan owns every node of one build's execution graph.
//
// A plan lives through two phases:
//
//  1. Construction: a single builder goroutine adds nodes and edges. Edge
//     mutations are serialized by the plan's construction lock, so each
//     bidirectional insertion (must-successor/must-predecessor,
//     finalizer/finalized) is observed either fully applied or not at all.
//  2. Dispatch: after Seal, edge sets are immutable. The scheduler and any
//     number of worker goroutines read successor views and completion
//     checks without locking; the only per-node mutation left is the
//     execution state, which each node changes exactly once to a terminal
//     value.
//
// Nodes are referenced by NodeID handles, which index the plan's arena.
type Plan struct {
	id string

	mu     sync.RWMutex
	nodes  []Node
	byPath map[string]NodeID
	sealed atomic.Bool

	seq atomic.Int64

	emitter emit.Emitter
	metrics *PrometheusMetrics
	clock   func() time.Time
	guide   string
}

// New creates an empty plan identified by id, which labels every event and
// metric the plan produces.
func New(id string, opts ...Option) (*Plan, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, &PlanError{Message: err.Error(), Code: "INVALID_OPTION", Cause: err}
		}
	}

	return &Plan{
		id:      id,
		byPath:  make(map[string]NodeID),
		emitter: cfg.emitter,
		metrics: cfg.metrics,
		clock:   cfg.clock,
		guide:   cfg.guide,
	}, nil
}

// ID returns the plan identifier.
func (p *Plan) ID() string {
	return p.id
}

// AddTask registers a task node. buildPath names the build the task belongs
// to; ordering edges between tasks of different builds are reported as
// deprecated.
func (p *Plan) AddTask(path, buildPath string) (*TaskNode, error) {
	n := &TaskNode{buildPath: buildPath}
	if err := p.register(path, n, &n.BaseNode); err != nil {
		return nil, err
	}
	return n, nil
}

// AddAction registers a node that is not backed by a task.
func (p *Plan) AddAction(path string) (*ActionNode, error) {
	n := &ActionNode{}
	if err := p.register(path, n, &n.BaseNode); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Plan) register(path string, n Node, b *BaseNode) error {
	if path == "" {
		return &PlanError{Message: "node path must not be empty", Code: "INVALID_PATH"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sealed.Load() {
		return nodeError("PLAN_SEALED", ErrPlanSealed, path)
	}
	if _, ok := p.byPath[path]; ok {
		return nodeError("DUPLICATE_NODE", ErrDuplicateNode, path)
	}

	id := NodeID(len(p.nodes))
	b.init(p, id, path)
	p.nodes = append(p.nodes, n)
	p.byPath[path] = id
	return nil
}

// Node resolves a handle.
func (p *Plan) Node(id NodeID) (Node, bool) {
	n := p.node(id)
	return n, n != nil
}

// Lookup resolves a node path.
func (p *Plan) Lookup(path string) (Node, bool) {
	if !p.sealed.Load() {
		p.mu.RLock()
		defer p.mu.RUnlock()
	}
	id, ok := p.byPath[path]
	if !ok {
		return nil, false
	}
	return p.nodes[id], true
}

// Nodes returns every node in creation order.
func (p *Plan) Nodes() []Node {
	if !p.sealed.Load() {
		p.mu.RLock()
		defer p.mu.RUnlock()
	}
	out := make([]Node, len(p.nodes))
	copy(out, p.nodes)
	return out
}

// Len returns the number of nodes.
func (p *Plan) Len() int {
	if !p.sealed.Load() {
		p.mu.RLock()
		defer p.mu.RUnlock()
	}
	return len(p.nodes)
}

// Sealed reports whether construction has finished.
func (p *Plan) Sealed() bool {
	return p.sealed.Load()
}

// Seal ends the construction phase. It promotes every finalizer into its
// FinalizerGroup and from then on rejects new nodes and edges with
// ErrPlanSealed. Sealing twice is a no-op.
func (p *Plan) Seal() {
	p.mu.Lock()
	if p.sealed.Load() {
		p.mu.Unlock()
		return
	}
	p.sealed.Store(true)
	nodes := p.nodes
	p.mu.Unlock()

	for _, n := range nodes {
		n.UpdateGroupOfFinalizer()
	}
	p.emit("", emit.MsgPlanSealed, map[string]interface{}{
		emit.MetaNodes: len(nodes),
	})
}

// mutate applies an edge change under the construction lock.
func (p *Plan) mutate(path string, fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sealed.Load() {
		return nodeError("PLAN_SEALED", ErrPlanSealed, path)
	}
	fn()
	return nil
}

// node resolves a handle, returning nil when it is out of range. After Seal
// the arena is immutable and is read without locking.
func (p *Plan) node(id NodeID) Node {
	if !p.sealed.Load() {
		p.mu.RLock()
		defer p.mu.RUnlock()
	}
	if id < 0 || int(id) >= len(p.nodes) {
		return nil
	}
	return p.nodes[id]
}

func (p *Plan) paths(ids []NodeID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n := p.node(id); n != nil {
			out = append(out, n.Path())
		}
	}
	return out
}

// formatNodes renders handles as "[:a, :b]".
func (p *Plan) formatNodes(ids []NodeID) string {
	return "[" + strings.Join(p.paths(ids), ", ") + "]"
}

func (p *Plan) nodeStarted(n *BaseNode) {
	p.emit(n.path, emit.MsgNodeStarted, nil)
}

func (p *Plan) nodeFinished(n *BaseNode, target ExecutionState, o Outcome) {
	if target == StateDependencyFailed {
		p.emit(n.path, emit.MsgNodeDependencyFailed, map[string]interface{}{
			emit.MetaState: target.String(),
		})
		return
	}

	meta := map[string]interface{}{
		emit.MetaState:       target.String(),
		emit.MetaSkipped:     o.Skipped,
		emit.MetaSkipMessage: o.SkipMessage,
		emit.MetaDidWork:     o.DidWork,
	}
	if o.Failure != nil {
		meta[emit.MetaError] = o.Failure.Error()
	}
	p.emit(n.path, emit.MsgNodeFinished, meta)
}

func (p *Plan) finalizerPromoted(n *TaskNode, g NodeGroup) {
	p.metrics.RecordFinalizerPromotion(p.id)
	p.emit(n.path, emit.MsgFinalizerPromoted, map[string]interface{}{
		emit.MetaGroup: g.String(),
	})
}

func (p *Plan) deprecation(from, to *TaskNode, hook string) {
	p.metrics.RecordCrossBuildReference(hook)
	p.emit(from.path, emit.MsgDeprecation, map[string]interface{}{
		emit.MetaHook:   hook,
		emit.MetaTarget: to.path,
		emit.MetaGuide:  p.guide,
	})
}

func (p *Plan) emit(path, msg string, meta map[string]interface{}) {
	p.emitter.Emit(emit.Event{
		PlanID: p.id,
		Seq:    p.seq.Add(1),
		NodeID: path,
		Msg:    msg,
		At:     p.clock(),
		Meta:   meta,
	})
}
