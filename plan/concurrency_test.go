package plan

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// layeredPlan builds n tasks where task i hard-depends on i-1 and i/2 and
// every fifth task is a should-successor of the next one.
func layeredPlan(t *testing.T, n int, opts ...Option) (*Plan, []*TaskNode) {
	t.Helper()
	p := newTestPlan(t, opts...)
	tasks := make([]*TaskNode, n)
	for i := range tasks {
		tasks[i] = mustTask(t, p, fmt.Sprintf(":t%03d", i))
	}
	for i := 1; i < n; i++ {
		must(t, tasks[i].AddHardDependency(tasks[i-1]))
		if half := i / 2; half != i-1 {
			must(t, tasks[i].AddHardDependency(tasks[half]))
		}
		if i%5 == 0 && i+1 < n {
			must(t, tasks[i+1].AddShouldSuccessor(tasks[i]))
		}
	}
	p.Seal()
	return p, tasks
}

func TestConcurrent_SchedulerLoop(t *testing.T) {
	const size = 60
	p, tasks := layeredPlan(t, size)

	var (
		mu       sync.Mutex
		finished = make(map[NodeID]int)
		seq      int
		done     atomic.Int32
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for int(done.Load()) < size {
				if err := ctx.Err(); err != nil {
					return err
				}
				for _, id := range p.Ready() {
					n := tasks[id]
					if err := n.Start(); err != nil {
						if errors.Is(err, ErrNotPending) {
							continue
						}
						return err
					}
					for _, dep := range n.DependencySuccessors() {
						if !tasks[dep].IsComplete() {
							return fmt.Errorf("%s started before %s completed", n.Path(), tasks[dep].Path())
						}
					}
					mu.Lock()
					seq++
					finished[id] = seq
					mu.Unlock()
					if err := n.Finish(Outcome{DidWork: true}); err != nil {
						return err
					}
					done.Add(1)
				}
				runtime.Gosched()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("scheduler: %v", err)
	}

	if len(finished) != size {
		t.Fatalf("finished %d nodes, want %d", len(finished), size)
	}
	for _, n := range tasks {
		if n.State() != StateExecuted {
			t.Errorf("%s state = %v", n.Path(), n.State())
		}
		for _, dep := range n.DependencySuccessors() {
			if finished[dep] >= finished[n.ID()] {
				t.Errorf("%s ran before its dependency %s", n.Path(), tasks[dep].Path())
			}
		}
	}
}

func TestConcurrent_TerminalTransitionOnce(t *testing.T) {
	p := newTestPlan(t)
	n := mustTask(t, p, ":contended")
	p.Seal()

	var wins atomic.Int32
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			var err error
			if i%2 == 0 {
				err = n.Finish(Outcome{Failure: fmt.Errorf("worker %d", i)})
			} else {
				err = n.MarkFailedDueToDependencies()
			}
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, ErrAlreadyComplete):
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := wins.Load(); got != 1 {
		t.Errorf("%d terminal transitions succeeded, want 1", got)
	}
	if !n.IsComplete() {
		t.Error("node not complete")
	}
	if n.State() == StateFailed && n.Failure() == nil {
		t.Error("failed state without failure")
	}
	if n.State() == StateDependencyFailed && n.Failure() != nil {
		t.Errorf("dependency_failed carries failure %v", n.Failure())
	}
}

func TestConcurrent_StartOnce(t *testing.T) {
	p := newTestPlan(t)
	n := mustTask(t, p, ":n")
	p.Seal()

	var wins atomic.Int32
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			if n.Start() == nil {
				wins.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if got := wins.Load(); got != 1 {
		t.Errorf("%d workers started the node, want 1", got)
	}
}

func TestConcurrent_ReadersDuringDispatch(t *testing.T) {
	p, tasks := layeredPlan(t, 40)

	ctx, cancel := context.WithCancel(context.Background())
	var readers errgroup.Group
	for r := 0; r < 4; r++ {
		readers.Go(func() error {
			for ctx.Err() == nil {
				for _, n := range tasks {
					_ = n.AllSuccessors()
					_ = n.HardSuccessors()
					_ = n.AllSuccessorsInReverseOrder()
					_ = n.CheckDependenciesComplete()
					_ = n.Group().SuccessorsFor(n)
				}
				_ = p.HealthReport().String()
				if _, err := p.ExecutionOrder(); err != nil {
					return err
				}
			}
			return nil
		})
	}

	var workers errgroup.Group
	for i := range tasks {
		workers.Go(func() error {
			return tasks[i].Finish(Outcome{Skipped: i%3 == 0})
		})
	}
	if err := workers.Wait(); err != nil {
		t.Fatalf("workers: %v", err)
	}
	cancel()
	if err := readers.Wait(); err != nil {
		t.Fatalf("readers: %v", err)
	}

	if unfinished := p.HealthReport().Unfinished(); len(unfinished) != 0 {
		t.Errorf("%d nodes unfinished", len(unfinished))
	}
}

func TestConcurrent_FinalizerPromotion(t *testing.T) {
	p := newTestPlan(t)
	work := mustTask(t, p, ":work")
	fin := mustTask(t, p, ":fin")
	must(t, fin.AddFinalizingSuccessor(work))

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			fin.UpdateGroupOfFinalizer()
			return nil
		})
	}
	_ = g.Wait()

	fg, ok := fin.Group().(*FinalizerGroup)
	if !ok {
		t.Fatalf("group = %T", fin.Group())
	}
	if _, nested := fg.Delegate().(*FinalizerGroup); nested {
		t.Error("concurrent promotion wrapped the group twice")
	}
}
