package plan

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus metrics about plan dispatch.
//
// Metrics exposed (all namespaced with "execplan_"):
//
// 1. running_nodes (gauge): Number of nodes currently in the running state.
// Labels: plan_id.
// Use: Monitor worker utilization.
//
// 2. nodes_finished_total (counter): Nodes that reached a terminal state.
// Labels: plan_id, state (executed, failed, skipped, dependency_failed).
// Use: Track outcomes of a build.
//
// 3. dependency_checks_total (counter): Evaluations of the dependency-completion rule.
// Labels: result (NOT_COMPLETE, COMPLETE_AND_SUCCESSFUL, COMPLETE_AND_NOT_SUCCESSFUL).
// Use: Spot schedulers that poll too eagerly.
//
// 4. finalizer_promotions_total (counter): Nodes promoted into a finalizer group.
// Labels: plan_id.
//
// 5. cross_build_references_total (counter): Ordering edges that reach into another build.
// Labels: hook (mustRunAfter, shouldRunAfter).
// Use: Measure how much of a build still relies on deprecated references.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := plan.NewPrometheusMetrics(registry)
//	p, _ := plan.New("build-1", plan.WithMetrics(metrics))
//
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// A nil *PrometheusMetrics is valid and records nothing.
type PrometheusMetrics struct {
	runningNodes *prometheus.GaugeVec

	nodesFinished        *prometheus.CounterVec
	dependencyChecks     *prometheus.CounterVec
	finalizerPromotions  *prometheus.CounterVec
	crossBuildReferences *prometheus.CounterVec

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers the plan metrics with registry.
// A nil registry means prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.runningNodes = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "execplan",
		Name:      "running_nodes",
		Help:      "Number of plan nodes currently running",
	}, []string{"plan_id"})

	pm.nodesFinished = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "execplan",
		Name:      "nodes_finished_total",
		Help:      "Plan nodes that reached a terminal state",
	}, []string{"plan_id", "state"})

	pm.dependencyChecks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "execplan",
		Name:      "dependency_checks_total",
		Help:      "Evaluations of the dependency-completion rule, by result",
	}, []string{"result"})

	pm.finalizerPromotions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "execplan",
		Name:      "finalizer_promotions_total",
		Help:      "Nodes promoted into a finalizer group",
	}, []string{"plan_id"})

	pm.crossBuildReferences = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "execplan",
		Name:      "cross_build_references_total",
		Help:      "Ordering edges referencing a task from another build",
	}, []string{"hook"})

	return pm
}

func (pm *PrometheusMetrics) on() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordStarted increments the running gauge of planID. It reports whether
// the gauge was incremented; the caller passes that back to RecordFinished
// so a node started while metrics were disabled is never decremented.
func (pm *PrometheusMetrics) RecordStarted(planID string) bool {
	if !pm.on() {
		return false
	}
	pm.runningNodes.WithLabelValues(planID).Inc()
	return true
}

// RecordFinished counts a terminal transition. counted is the result of the
// node's RecordStarted call, false if it never ran; the running gauge is
// decremented only when it is true, even if metrics were disabled since.
func (pm *PrometheusMetrics) RecordFinished(planID string, state ExecutionState, counted bool) {
	if pm == nil {
		return
	}
	if counted {
		pm.runningNodes.WithLabelValues(planID).Dec()
	}
	if !pm.on() {
		return
	}
	pm.nodesFinished.WithLabelValues(planID, state.String()).Inc()
}

// RecordDependencyCheck counts one evaluation of the dependency-completion rule.
func (pm *PrometheusMetrics) RecordDependencyCheck(result DependenciesState) {
	if !pm.on() {
		return
	}
	pm.dependencyChecks.WithLabelValues(result.String()).Inc()
}

// RecordFinalizerPromotion counts a node promoted into a finalizer group.
func (pm *PrometheusMetrics) RecordFinalizerPromotion(planID string) {
	if !pm.on() {
		return
	}
	pm.finalizerPromotions.WithLabelValues(planID).Inc()
}

// RecordCrossBuildReference counts an ordering edge into another build.
func (pm *PrometheusMetrics) RecordCrossBuildReference(hook string) {
	if !pm.on() {
		return
	}
	pm.crossBuildReferences.WithLabelValues(hook).Inc()
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset clears the running gauge. Counters are cumulative and are kept.
// This does not unregister metrics from the registry. Call it only while no
// node is running, or the gauge goes negative when those nodes finish.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.runningNodes.Reset()
}
