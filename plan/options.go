package plan

import (
	"errors"
	"time"

	"github.com/dshills/execplan/plan/emit"
)

// DefaultDeprecationGuide is the upgrade-guide reference attached to
// cross-build ordering deprecations when WithDeprecationGuide is not used.
const DefaultDeprecationGuide = "upgrading_version_6.html#referencing_tasks_from_included_builds"

// Option is a functional option for configuring a Plan.
//
// Example:
//
//	p, err := plan.New("build-1",
//	    plan.WithEmitter(emit.NewSlogEmitter(logger)),
//	    plan.WithMetrics(metrics),
//	)
type Option func(*planConfig) error

// planConfig collects options before they are applied to a Plan.
type planConfig struct {
	emitter emit.Emitter
	metrics *PrometheusMetrics
	clock   func() time.Time
	guide   string
}

func defaultConfig() planConfig {
	return planConfig{
		emitter: emit.NewNullEmitter(),
		clock:   time.Now,
		guide:   DefaultDeprecationGuide,
	}
}

// WithEmitter sets the sink for node lifecycle events, finalizer promotions
// and deprecation warnings.
//
// Default: emit.NullEmitter (events are discarded).
//
// Use emit.NewMultiEmitter to send events to several sinks, for example a
// SlogEmitter for the console and a profile.Recorder for timings.
func WithEmitter(emitter emit.Emitter) Option {
	return func(cfg *planConfig) error {
		if emitter == nil {
			return errors.New("emitter must not be nil")
		}
		cfg.emitter = emitter
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	p, _ := plan.New("build-1", plan.WithMetrics(plan.NewPrometheusMetrics(registry)))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *planConfig) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithClock sets the time source used to stamp events. Tests use it to get
// reproducible timestamps.
func WithClock(clock func() time.Time) Option {
	return func(cfg *planConfig) error {
		if clock == nil {
			return errors.New("clock must not be nil")
		}
		cfg.clock = clock
		return nil
	}
}

// WithDeprecationGuide sets the upgrade-guide reference carried by
// deprecation events.
func WithDeprecationGuide(guide string) Option {
	return func(cfg *planConfig) error {
		cfg.guide = guide
		return nil
	}
}
