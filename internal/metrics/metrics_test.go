package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordExecution("taskOverview", "completed")
	m.RecordExecution("taskOverview", "completed")
	m.RecordExecution("debugMode", "failed")
	m.SetActiveAgents(3)
	m.AddIssue("critical")
	m.ObservePhase("taskOverview", "Generating Dashboard", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.ModeExecutions.WithLabelValues("taskOverview", "completed")); got != 2 {
		t.Fatalf("completed executions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ActiveAgents); got != 3 {
		t.Fatalf("active agents = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Issues.WithLabelValues("critical")); got != 1 {
		t.Fatalf("critical issues = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.PhaseDuration); n != 1 {
		t.Fatalf("phase duration series = %d, want 1", n)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 4 {
		t.Fatalf("expected 4 metric families, got %d", len(families))
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordExecution("x", "y")
	m.ObservePhase("x", "y", time.Second)
	m.SetActiveAgents(1)
	m.AddIssue("critical")
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.RecordExecution("documentation", "completed")
	if got := testutil.ToFloat64(m.ModeExecutions.WithLabelValues("documentation", "completed")); got != 1 {
		t.Fatalf("unregistered collectors should still count, got %v", got)
	}
}
