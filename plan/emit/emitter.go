// Package emit provides event emission for execution-plan observability.
package emit

// Emitter receives events produced while a plan is built and dispatched.
//
// The plan reports node lifecycle transitions, finalizer promotions and
// deprecation warnings through an Emitter, so the graph core never depends on
// a concrete logging or tracing backend.
//
// Implementations should be:
//   - Non-blocking: the graph primitives never wait on delivery
//   - Thread-safe: events arrive concurrently from scheduler and worker goroutines
//   - Resilient: Emit must not panic; delivery problems are handled internally
type Emitter interface {
	// Emit delivers one event. It is fire-and-forget.
	Emit(event Event)
}

// MultiEmitter fans every event out to a fixed list of emitters, in order.
//
// Example:
//
//	recorder := profile.NewRecorder()
//	emitter := emit.NewMultiEmitter(emit.NewSlogEmitter(nil), recorder)
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates a MultiEmitter. Nil entries are dropped.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	m := &MultiEmitter{emitters: make([]Emitter, 0, len(emitters))}
	for _, e := range emitters {
		if e != nil {
			m.emitters = append(m.emitters, e)
		}
	}
	return m
}

// Emit forwards event to every emitter.
func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}
