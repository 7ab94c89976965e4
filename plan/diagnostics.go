package plan

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// HealthReport is a point-in-time snapshot of a plan, used to explain why a
// build stopped making progress.
type HealthReport struct {
	PlanID string       `yaml:"plan"`
	Sealed bool         `yaml:"sealed"`
	Nodes  []NodeHealth `yaml:"nodes"`
}

// NodeHealth describes one node of a HealthReport.
type NodeHealth struct {
	Path                 string   `yaml:"path"`
	Kind                 string   `yaml:"kind"`
	BuildPath            string   `yaml:"build,omitempty"`
	State                string   `yaml:"state"`
	Dependencies         string   `yaml:"dependencies"`
	Group                string   `yaml:"group"`
	DependencySuccessors []string `yaml:"dependencySuccessors,omitempty"`
	GroupSuccessors      []string `yaml:"groupSuccessors,omitempty"`
	MustSuccessors       []string `yaml:"mustSuccessors,omitempty"`
	ShouldSuccessors     []string `yaml:"shouldSuccessors,omitempty"`
	Finalizes            []string `yaml:"finalizes,omitempty"`

	complete    bool
	diagnostics string
}

// HealthReport captures the state and edges of every node, in path order.
// Taking a report does not count towards dependency-check metrics.
func (p *Plan) HealthReport() *HealthReport {
	var order NodeSet
	for _, n := range p.Nodes() {
		order.Add(n)
	}

	r := &HealthReport{PlanID: p.id, Sealed: p.Sealed()}
	for _, id := range order.IDs() {
		r.Nodes = append(r.Nodes, p.nodeHealth(p.node(id)))
	}
	return r
}

func (p *Plan) nodeHealth(n Node) NodeHealth {
	h := NodeHealth{
		Path:                 n.Path(),
		State:                n.State().String(),
		Group:                n.Group().String(),
		DependencySuccessors: p.paths(n.DependencySuccessors()),
		GroupSuccessors:      p.paths(n.Group().SuccessorsFor(n)),
		complete:             n.IsComplete(),
		diagnostics:          n.HealthDiagnostics(),
	}

	switch t := n.(type) {
	case *TaskNode:
		h.Kind = "task"
		h.BuildPath = t.buildPath
		h.Dependencies = t.checkDependencies().String()
		h.MustSuccessors = p.paths(t.MustSuccessors())
		h.ShouldSuccessors = p.paths(t.ShouldSuccessors())
		h.Finalizes = p.paths(t.FinalizingSuccessors())
	case *ActionNode:
		h.Kind = "action"
		h.Dependencies = t.checkHardDependencies().String()
	}
	return h
}

// Unfinished returns the nodes that have not reached a terminal state.
func (r *HealthReport) Unfinished() []NodeHealth {
	var out []NodeHealth
	for _, n := range r.Nodes {
		if !n.complete {
			out = append(out, n)
		}
	}
	return out
}

// String renders one diagnostics line per unfinished node.
func (r *HealthReport) String() string {
	unfinished := r.Unfinished()

	var sb strings.Builder
	fmt.Fprintf(&sb, "plan %s: %d of %d nodes unfinished", r.PlanID, len(unfinished), len(r.Nodes))
	for _, n := range unfinished {
		sb.WriteString("\n  ")
		sb.WriteString(n.diagnostics)
	}
	return sb.String()
}

// WriteYAML writes the full report, finished nodes included, as YAML.
func (r *HealthReport) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode health report: %w", err)
	}
	return enc.Close()
}
