package plan

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gopkg.in/yaml.v3"
)

func stalledPlan(t *testing.T) (*Plan, *TaskNode, *TaskNode, *TaskNode) {
	t.Helper()
	p := newTestPlan(t)
	compile := mustTask(t, p, ":compile")
	test := mustTask(t, p, ":test")
	stop := mustTask(t, p, ":stopServer")
	must(t, test.AddHardDependency(compile))
	must(t, stop.AddFinalizingSuccessor(test))
	p.Seal()

	must(t, compile.Start())
	must(t, compile.Finish(Outcome{Failure: errors.New("compilation failed")}))
	return p, compile, test, stop
}

func TestHealthReport_String(t *testing.T) {
	p, _, test, stop := stalledPlan(t)

	report := p.HealthReport()
	want := "plan build-1: 2 of 3 nodes unfinished" +
		"\n  " + stop.HealthDiagnostics() +
		"\n  " + test.HealthDiagnostics()
	if got := report.String(); got != want {
		t.Errorf("String():\n got %s\nwant %s", got, want)
	}

	var unfinished []string
	for _, h := range report.Unfinished() {
		unfinished = append(unfinished, h.Path)
	}
	if diff := cmp.Diff([]string{":stopServer", ":test"}, unfinished); diff != "" {
		t.Errorf("Unfinished() mismatch (-want +got):\n%s", diff)
	}
}

func TestHealthReport_Fields(t *testing.T) {
	p, _, _, _ := stalledPlan(t)
	a, err := p.AddAction("late")
	if !errors.Is(err, ErrPlanSealed) || a != nil {
		t.Fatalf("AddAction after seal = %v, %v", a, err)
	}

	report := p.HealthReport()
	if report.PlanID != "build-1" || !report.Sealed {
		t.Errorf("report header = %q sealed=%v", report.PlanID, report.Sealed)
	}

	want := []NodeHealth{
		{
			Path:         ":compile",
			Kind:         "task",
			BuildPath:    ":",
			State:        "failed",
			Dependencies: "COMPLETE_AND_SUCCESSFUL",
			Group:        "default group",
		},
		{
			Path:            ":stopServer",
			Kind:            "task",
			BuildPath:       ":",
			State:           "pending",
			Dependencies:    "COMPLETE_AND_SUCCESSFUL",
			Group:           "finalizer :stopServer of default group",
			GroupSuccessors: []string{":compile", ":test"},
			Finalizes:       []string{":test"},
		},
		{
			Path:                 ":test",
			Kind:                 "task",
			BuildPath:            ":",
			State:                "pending",
			Dependencies:         "COMPLETE_AND_NOT_SUCCESSFUL",
			Group:                "default group",
			DependencySuccessors: []string{":compile"},
		},
	}
	opts := cmp.Options{cmpopts.IgnoreUnexported(NodeHealth{}), cmpopts.EquateEmpty()}
	if diff := cmp.Diff(want, report.Nodes, opts); diff != "" {
		t.Errorf("report nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestHealthReport_ActionNode(t *testing.T) {
	p := newTestPlan(t)
	a, err := p.AddAction("resolve compileClasspath")
	must(t, err)

	report := p.HealthReport()
	if len(report.Nodes) != 1 {
		t.Fatalf("got %d nodes", len(report.Nodes))
	}
	h := report.Nodes[0]
	if h.Kind != "action" || h.BuildPath != "" || h.Dependencies != "COMPLETE_AND_SUCCESSFUL" {
		t.Errorf("action health = %+v", h)
	}
	if report.Sealed {
		t.Error("unsealed plan reported as sealed")
	}
	if !strings.Contains(report.String(), a.HealthDiagnostics()) {
		t.Errorf("String() does not include %q", a.HealthDiagnostics())
	}
}

func TestHealthReport_WriteYAML(t *testing.T) {
	p, _, _, _ := stalledPlan(t)
	report := p.HealthReport()

	var buf bytes.Buffer
	if err := report.WriteYAML(&buf); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"plan: build-1", "sealed: true", "finalizes:"} {
		if !strings.Contains(out, want) {
			t.Errorf("YAML output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "mustSuccessors") {
		t.Errorf("empty edge sets should be omitted:\n%s", out)
	}

	var decoded HealthReport
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	opts := cmp.Options{cmpopts.IgnoreUnexported(NodeHealth{}), cmpopts.EquateEmpty()}
	if diff := cmp.Diff(report, &decoded, opts); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
