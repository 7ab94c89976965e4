package emit

import "time"

// Event messages produced by a plan.
const (
	// MsgNodeStarted is emitted when a pending node moves to running.
	MsgNodeStarted = "node_started"
	// MsgNodeFinished is emitted when a node's work finishes. Meta carries
	// MetaState, MetaSkipped, MetaSkipMessage and MetaDidWork, plus
	// MetaError on failure.
	MsgNodeFinished = "node_finished"
	// MsgNodeDependencyFailed is emitted when a node is completed without
	// running because a dependency did not succeed.
	MsgNodeDependencyFailed = "node_dependency_failed"
	// MsgFinalizerPromoted is emitted when a node's group is decorated with
	// finalizer behavior.
	MsgFinalizerPromoted = "finalizer_promoted"
	// MsgDeprecation is emitted for ordering edges that reach into another
	// build. Meta carries MetaHook, MetaTarget and MetaGuide.
	MsgDeprecation = "deprecation"
	// MsgPlanSealed is emitted once graph construction has finished.
	MsgPlanSealed = "plan_sealed"
)

// Well-known Meta keys.
const (
	MetaState       = "state"
	MetaSkipped     = "skipped"
	MetaSkipMessage = "skip_message"
	MetaDidWork     = "did_work"
	MetaError       = "error"
	MetaHook        = "hook"
	MetaTarget      = "target"
	MetaGuide       = "guide"
	MetaGroup       = "group"
	MetaNodes       = "nodes"
)

// Event is one observation about a plan.
type Event struct {
	// PlanID identifies the plan (one build invocation) that emitted the event.
	PlanID string

	// Seq is the plan-wide sequence number of the event, starting at 1.
	Seq int64

	// NodeID is the path of the node the event is about. Empty for plan-level events.
	NodeID string

	// Msg names the event, e.g. MsgNodeStarted.
	Msg string

	// At is when the event was produced, according to the plan's clock.
	At time.Time

	// Meta holds event-specific data keyed by the Meta* constants.
	Meta map[string]interface{}
}

// BoolMeta returns Meta[key] as a bool, false when absent.
func (e Event) BoolMeta(key string) bool {
	v, _ := e.Meta[key].(bool)
	return v
}

// StringMeta returns Meta[key] as a string, "" when absent.
func (e Event) StringMeta(key string) string {
	v, _ := e.Meta[key].(string)
	return v
}
