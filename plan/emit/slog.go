package emit

import (
	"context"
	"log/slog"
	"sort"
)

// SlogEmitter implements Emitter by writing structured log records.
//
// Every record carries a component attribute plus the plan ID, sequence
// number and node path. Meta entries are added as attributes in key order.
// Deprecations and failures are logged at Warn, lifecycle events at Debug,
// everything else at Info.
//
// Example:
//
//	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
//	emitter := emit.NewSlogEmitter(slog.New(handler))
type SlogEmitter struct {
	logger *slog.Logger
}

// NewSlogEmitter creates a SlogEmitter. A nil logger means slog.Default().
func NewSlogEmitter(logger *slog.Logger) *SlogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEmitter{
		logger: logger.With(slog.String("component", "execplan")),
	}
}

// Emit logs the event.
func (s *SlogEmitter) Emit(event Event) {
	attrs := make([]slog.Attr, 0, 3+len(event.Meta))
	attrs = append(attrs,
		slog.String("plan_id", event.PlanID),
		slog.Int64("seq", event.Seq),
	)
	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node", event.NodeID))
	}

	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Meta[k]))
	}

	s.logger.LogAttrs(context.Background(), levelFor(event), messageFor(event), attrs...)
}

func levelFor(event Event) slog.Level {
	switch {
	case event.Msg == MsgDeprecation:
		return slog.LevelWarn
	case event.Meta[MetaError] != nil:
		return slog.LevelWarn
	case event.Msg == MsgNodeStarted || event.Msg == MsgNodeFinished:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func messageFor(event Event) string {
	if event.Msg != MsgDeprecation {
		return event.Msg
	}
	return "Using " + event.StringMeta(MetaHook) +
		" to reference tasks from another build has been deprecated." +
		" This will fail with an error in the next major version." +
		" See " + event.StringMeta(MetaGuide) + " for more details."
}
