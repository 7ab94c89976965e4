package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// Events are kept per plan ID in the order they were emitted and can be
// queried afterwards, which makes the emitter convenient for tests and for
// post-build analysis of short-lived plans.
//
// Warning: all events are kept until Clear is called.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	p, _ := plan.New("build-1", plan.WithEmitter(emitter))
//	// ... build and dispatch ...
//	deprecations := emitter.GetHistoryWithFilter("build-1", emit.HistoryFilter{Msg: emit.MsgDeprecation})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // planID -> events
}

// HistoryFilter specifies criteria for filtering event history.
//
// All fields are optional. When several are set they are combined with AND
// logic.
type HistoryFilter struct {
	NodeID string // Filter by node path (empty = no filter)
	Msg    string // Filter by message (empty = no filter)
	MinSeq *int64 // Minimum sequence number (nil = no filter)
	MaxSeq *int64 // Maximum sequence number (nil = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.PlanID] = append(b.events[event.PlanID], event)
}

// GetHistory returns a copy of every event stored for planID, in emission
// order. Unknown plans yield an empty, non-nil slice.
func (b *BufferedEmitter) GetHistory(planID string) []Event {
	return b.GetHistoryWithFilter(planID, HistoryFilter{})
}

// GetHistoryWithFilter returns a copy of the events for planID that match filter.
func (b *BufferedEmitter) GetHistoryWithFilter(planID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Event, 0, len(b.events[planID]))
	for _, event := range b.events[planID] {
		if matchesFilter(event, filter) {
			result = append(result, event)
		}
	}
	return result
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.NodeID != "" && event.NodeID != filter.NodeID {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.MinSeq != nil && event.Seq < *filter.MinSeq {
		return false
	}
	if filter.MaxSeq != nil && event.Seq > *filter.MaxSeq {
		return false
	}
	return true
}

// Clear removes stored events for planID, or for every plan when planID is empty.
func (b *BufferedEmitter) Clear(planID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if planID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, planID)
}
