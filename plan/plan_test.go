package plan

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/execplan/plan/emit"
)

func newTestPlan(t *testing.T, opts ...Option) *Plan {
	t.Helper()
	p, err := New("build-1", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func mustTask(t *testing.T, p *Plan, path string) *TaskNode {
	t.Helper()
	return mustTaskIn(t, p, path, ":")
}

func mustTaskIn(t *testing.T, p *Plan, path, buildPath string) *TaskNode {
	t.Helper()
	n, err := p.AddTask(path, buildPath)
	if err != nil {
		t.Fatalf("AddTask(%s): %v", path, err)
	}
	return n
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func ids(nodes ...Node) []NodeID {
	out := make([]NodeID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	return out
}

func TestNew_Options(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := newTestPlan(t)
		if p.ID() != "build-1" {
			t.Errorf("ID() = %q", p.ID())
		}
		if p.guide != DefaultDeprecationGuide {
			t.Errorf("guide = %q, want default", p.guide)
		}
		if _, ok := p.emitter.(*emit.NullEmitter); !ok {
			t.Errorf("default emitter = %T, want *emit.NullEmitter", p.emitter)
		}
	})

	t.Run("nil emitter rejected", func(t *testing.T) {
		_, err := New("build-1", WithEmitter(nil))
		var pe *PlanError
		if !errors.As(err, &pe) || pe.Code != "INVALID_OPTION" {
			t.Errorf("err = %v, want PlanError INVALID_OPTION", err)
		}
	})

	t.Run("nil clock rejected", func(t *testing.T) {
		if _, err := New("build-1", WithClock(nil)); err == nil {
			t.Error("WithClock(nil) should fail")
		}
	})
}

func TestPlan_AddNodes(t *testing.T) {
	p := newTestPlan(t)
	compile := mustTask(t, p, ":app:compileJava")
	transform, err := p.AddAction("transform lib.jar")
	if err != nil {
		t.Fatalf("AddAction: %v", err)
	}

	if compile.ID() == transform.ID() {
		t.Error("nodes share a handle")
	}
	if compile.BuildPath() != ":" {
		t.Errorf("BuildPath() = %q", compile.BuildPath())
	}
	if compile.Plan() != p {
		t.Error("node does not point back at its plan")
	}
	if compile.State() != StatePending {
		t.Errorf("new node state = %v, want pending", compile.State())
	}
	if _, ok := compile.Group().(DefaultGroup); !ok {
		t.Errorf("new node group = %v, want default group", compile.Group())
	}

	n, ok := p.Lookup(":app:compileJava")
	if !ok || n != Node(compile) {
		t.Errorf("Lookup returned %v, %v", n, ok)
	}
	n, ok = p.Node(transform.ID())
	if !ok || n != Node(transform) {
		t.Errorf("Node(id) returned %v, %v", n, ok)
	}
	if _, ok := p.Node(NodeID(99)); ok {
		t.Error("Node(99) should not resolve")
	}
	if _, ok := p.Lookup(":missing"); ok {
		t.Error("Lookup(:missing) should not resolve")
	}
	if p.Len() != 2 || len(p.Nodes()) != 2 {
		t.Errorf("Len() = %d, Nodes() = %d, want 2", p.Len(), len(p.Nodes()))
	}
}

func TestPlan_AddNodeErrors(t *testing.T) {
	p := newTestPlan(t)
	mustTask(t, p, ":a")

	_, err := p.AddTask(":a", ":")
	if !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("duplicate path: err = %v, want ErrDuplicateNode", err)
	}
	_, err = p.AddAction(":a")
	if !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("duplicate action path: err = %v, want ErrDuplicateNode", err)
	}

	_, err = p.AddTask("", ":")
	var pe *PlanError
	if !errors.As(err, &pe) || pe.Code != "INVALID_PATH" {
		t.Errorf("empty path: err = %v, want INVALID_PATH", err)
	}

	p.Seal()
	_, err = p.AddTask(":b", ":")
	if !errors.Is(err, ErrPlanSealed) {
		t.Errorf("add after seal: err = %v, want ErrPlanSealed", err)
	}
}

func TestPlan_SealRejectsEdges(t *testing.T) {
	p := newTestPlan(t)
	a := mustTask(t, p, ":a")
	b := mustTask(t, p, ":b")
	must(t, a.AddShouldSuccessor(b))
	p.Seal()

	checks := map[string]error{
		"hard":         a.AddHardDependency(b),
		"must":         a.AddMustSuccessor(b),
		"should":       a.AddShouldSuccessor(b),
		"removeShould": a.RemoveShouldSuccessor(b),
		"finalizing":   a.AddFinalizingSuccessor(b),
		"group":        a.SetGroup(NewOrdinalGroup(1)),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrPlanSealed) {
			t.Errorf("%s after seal: err = %v, want ErrPlanSealed", name, err)
		}
	}
	if diff := cmp.Diff(ids(b), a.ShouldSuccessors()); diff != "" {
		t.Errorf("sealed edge set changed (-want +got):\n%s", diff)
	}
	if !p.Sealed() {
		t.Error("Sealed() = false")
	}
}

func TestPlan_SealPromotesFinalizers(t *testing.T) {
	events := emit.NewBufferedEmitter()
	p := newTestPlan(t, WithEmitter(events))
	work := mustTask(t, p, ":integTest")
	cleanup := mustTask(t, p, ":stopDatabase")
	must(t, cleanup.AddFinalizingSuccessor(work))

	if cleanup.IsFinalizer() {
		t.Fatal("AddFinalizingSuccessor must not promote on its own")
	}

	p.Seal()
	p.Seal()

	if !cleanup.IsFinalizer() {
		t.Error("Seal did not promote the finalizer")
	}
	if work.IsFinalizer() {
		t.Error("finalized node must not be promoted")
	}

	promotions := events.GetHistoryWithFilter("build-1", emit.HistoryFilter{Msg: emit.MsgFinalizerPromoted})
	if len(promotions) != 1 || promotions[0].NodeID != ":stopDatabase" {
		t.Errorf("promotion events = %+v, want one for :stopDatabase", promotions)
	}
	sealed := events.GetHistoryWithFilter("build-1", emit.HistoryFilter{Msg: emit.MsgPlanSealed})
	if len(sealed) != 1 {
		t.Fatalf("got %d plan_sealed events, want 1", len(sealed))
	}
	if sealed[0].Meta[emit.MetaNodes] != 2 {
		t.Errorf("plan_sealed nodes = %v, want 2", sealed[0].Meta[emit.MetaNodes])
	}
}

func TestPlan_LifecycleEvents(t *testing.T) {
	events := emit.NewBufferedEmitter()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := newTestPlan(t, WithEmitter(events), WithClock(func() time.Time { return at }))

	compile := mustTask(t, p, ":compile")
	test := mustTask(t, p, ":test")
	jar := mustTask(t, p, ":jar")
	must(t, jar.AddHardDependency(test))
	p.Seal()

	must(t, compile.Start())
	must(t, compile.Finish(Outcome{DidWork: true}))
	must(t, test.Start())
	must(t, test.Finish(Outcome{Failure: errors.New("3 tests failed")}))
	must(t, jar.MarkFailedDueToDependencies())

	history := events.GetHistory("build-1")
	type row struct {
		Seq  int64
		Node string
		Msg  string
	}
	var got []row
	for _, ev := range history {
		got = append(got, row{ev.Seq, ev.NodeID, ev.Msg})
		if !ev.At.Equal(at) {
			t.Errorf("event %d stamped %v, want %v", ev.Seq, ev.At, at)
		}
	}
	want := []row{
		{1, "", emit.MsgPlanSealed},
		{2, ":compile", emit.MsgNodeStarted},
		{3, ":compile", emit.MsgNodeFinished},
		{4, ":test", emit.MsgNodeStarted},
		{5, ":test", emit.MsgNodeFinished},
		{6, ":jar", emit.MsgNodeDependencyFailed},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	finished := history[4]
	if finished.StringMeta(emit.MetaState) != "failed" || finished.StringMeta(emit.MetaError) != "3 tests failed" {
		t.Errorf("failed node meta = %v", finished.Meta)
	}
	if !history[2].BoolMeta(emit.MetaDidWork) {
		t.Errorf("did_work not reported: %v", history[2].Meta)
	}
}

func TestPlan_CrossBuildDeprecation(t *testing.T) {
	events := emit.NewBufferedEmitter()
	p := newTestPlan(t, WithEmitter(events), WithDeprecationGuide("guide.html#x"))

	app := mustTaskIn(t, p, ":app:jar", ":")
	local := mustTaskIn(t, p, ":app:compile", ":")
	included := mustTaskIn(t, p, ":lib:jar", ":included")
	action, err := p.AddAction("resolve")
	must(t, err)

	must(t, app.AddMustSuccessor(local))
	must(t, app.AddShouldSuccessor(local))
	must(t, app.AddShouldSuccessor(action))
	must(t, app.AddMustSuccessor(included))
	must(t, app.AddShouldSuccessor(included))

	deprecations := events.GetHistoryWithFilter("build-1", emit.HistoryFilter{Msg: emit.MsgDeprecation})
	if len(deprecations) != 2 {
		t.Fatalf("got %d deprecations, want 2 (one per cross-build edge)", len(deprecations))
	}

	wantHooks := []string{"mustRunAfter", "shouldRunAfter"}
	for i, ev := range deprecations {
		if ev.NodeID != ":app:jar" {
			t.Errorf("deprecation %d node = %q", i, ev.NodeID)
		}
		if got := ev.StringMeta(emit.MetaHook); got != wantHooks[i] {
			t.Errorf("deprecation %d hook = %q, want %q", i, got, wantHooks[i])
		}
		if got := ev.StringMeta(emit.MetaTarget); got != ":lib:jar" {
			t.Errorf("deprecation %d target = %q", i, got)
		}
		if got := ev.StringMeta(emit.MetaGuide); got != "guide.html#x" {
			t.Errorf("deprecation %d guide = %q", i, got)
		}
	}

	// The edges are kept regardless.
	if !slices.Contains(app.MustSuccessors(), included.ID()) || !slices.Contains(app.ShouldSuccessors(), included.ID()) {
		t.Error("cross-build edges were not recorded")
	}
}

func TestPlanError_Format(t *testing.T) {
	err := nodeError("SELF_EDGE", ErrSelfEdge, ":a")
	want := "SELF_EDGE: node :a: node cannot have an edge to itself"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrSelfEdge) {
		t.Error("errors.Is(err, ErrSelfEdge) = false")
	}

	bare := &PlanError{Message: "bad"}
	if bare.Error() != "bad" {
		t.Errorf("Error() without code = %q", bare.Error())
	}

	cycle := &CycleError{Path: []string{":a", ":b", ":a"}}
	if cycle.Error() != "cycle in hard successors: :a -> :b -> :a" {
		t.Errorf("CycleError.Error() = %q", cycle.Error())
	}
	if !errors.Is(cycle, ErrCycle) {
		t.Error("errors.Is(cycle, ErrCycle) = false")
	}
}
