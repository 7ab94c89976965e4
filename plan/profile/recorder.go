package profile

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/execplan/plan/emit"
	"github.com/dshills/execplan/plan/store"
)

// Recorder builds ExecutionRecords from the events of a single plan.
//
// It implements emit.Emitter, so it is attached to a plan like any other
// sink:
//
//	recorder := profile.NewRecorder()
//	p, _ := plan.New("build-1", plan.WithEmitter(emit.NewMultiEmitter(logEmitter, recorder)))
//
// node_started opens a record; node_finished completes it, opening one on the
// spot for nodes that were finished without being started (skipped nodes).
// Nodes that never ran because a dependency failed get no record.
type Recorder struct {
	mu      sync.Mutex
	records map[string]*ExecutionRecord
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{records: make(map[string]*ExecutionRecord)}
}

// Emit consumes one plan event.
func (r *Recorder) Emit(event emit.Event) {
	switch event.Msg {
	case emit.MsgNodeStarted:
		r.mu.Lock()
		r.records[event.NodeID] = NewExecutionRecord(event.NodeID).Start(event.At)
		r.mu.Unlock()

	case emit.MsgNodeFinished:
		state := TaskState{
			Skipped:     event.BoolMeta(emit.MetaSkipped),
			SkipMessage: event.StringMeta(emit.MetaSkipMessage),
			DidWork:     event.BoolMeta(emit.MetaDidWork),
		}

		r.mu.Lock()
		rec, ok := r.records[event.NodeID]
		if !ok {
			rec = NewExecutionRecord(event.NodeID).Start(event.At)
			r.records[event.NodeID] = rec
		}
		rec.Completed(event.At, state)
		r.mu.Unlock()
	}
}

// Record returns a snapshot of the record for path.
func (r *Recorder) Record(path string) (*ExecutionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[path]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// Records returns snapshots of every record, ordered by start time, then path.
func (r *Recorder) Records() []*ExecutionRecord {
	r.mu.Lock()
	out := make([]*ExecutionRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.clone())
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b *ExecutionRecord) int {
		if c := a.start.Compare(b.start); c != 0 {
			return c
		}
		return cmp.Compare(a.path, b.path)
	})
	return out
}

// Executions converts the completed records to their persisted form.
func (r *Recorder) Executions() []store.Execution {
	var out []store.Execution
	for _, rec := range r.Records() {
		if !rec.IsCompleted() {
			continue
		}
		out = append(out, store.Execution{
			Path:   rec.Path(),
			Status: rec.Status(),
			Start:  rec.StartTime(),
			Finish: rec.FinishTime(),
		})
	}
	return out
}

// Persist writes the completed records of planID to every store
// concurrently, one atomic batch per store. The first failure cancels the
// remaining writes and is returned.
func (r *Recorder) Persist(ctx context.Context, planID string, stores ...store.Store) error {
	execs := r.Executions()
	if len(execs) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, st := range stores {
		g.Go(func() error {
			return st.SaveExecutions(ctx, planID, execs)
		})
	}
	return g.Wait()
}
