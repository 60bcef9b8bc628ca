package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/jaegis/internal/agents"
	"github.com/kingrea/jaegis/internal/diagnostics"
	"github.com/kingrea/jaegis/internal/logbook"
	"github.com/kingrea/jaegis/internal/mode"
	"github.com/kingrea/jaegis/internal/progress"
)

func TestParseAnalysis(t *testing.T) {
	data := []byte(`
project_type: " web "
recommended_agents: [architect, " dev ", architect, ""]
notes: greenfield
`)
	analysis, err := ParseAnalysis(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := ProjectAnalysis{ProjectType: "web", RecommendedAgents: []agents.AgentID{"architect", "dev"}, Notes: "greenfield"}
	if diff := cmp.Diff(want, analysis); diff != "" {
		t.Fatalf("analysis mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadAnalysisMissingFile(t *testing.T) {
	_, err := LoadAnalysis(filepath.Join(t.TempDir(), "analysis.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestResolvePreferencesDefaultsToTrue(t *testing.T) {
	got := resolvePreferences(nil)
	want := UserPreferences{AutoActivateAgents: true, EnableMonitoring: true, ProgressNotifications: true}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestStoreMissingSnapshot(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "session.json"))
	if _, err := store.Load(); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	original := &Session{
		ActiveAgents: []agents.AgentID{"dev"},
		Issues:       []diagnostics.Issue{{Message: "x"}},
		Progress:     progress.WorkflowProgress{CompletedTasks: []string{"a"}},
	}
	clone := original.Clone()
	clone.ActiveAgents[0] = "qa"
	clone.Issues[0].Message = "y"
	clone.Progress.CompletedTasks[0] = "b"
	if original.ActiveAgents[0] != "dev" || original.Issues[0].Message != "x" || original.Progress.CompletedTasks[0] != "a" {
		t.Fatalf("clone shares memory with original: %+v", original)
	}
}

func TestDelayWorkerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, err := DelayWorker{Delay: time.Hour}.Execute(ctx, PhaseRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("cancelled worker should return immediately")
	}
}

func TestLogbookDisplayWritesPhasesOnce(t *testing.T) {
	book, err := logbook.New(filepath.Join(t.TempDir(), "progress.log"))
	if err != nil {
		t.Fatal(err)
	}
	display := NewLogbookDisplay(book)
	base := progress.WorkflowProgress{Mode: mode.TaskOverview, Status: progress.StatusRunning}
	first := base
	first.Phase, first.Progress = "Analyzing Task Structure", 30
	display.OnProgress(first)
	display.OnProgress(first)
	done := first
	done.Status = progress.StatusCompleted
	display.OnFinish(done)
	display.OnIssues([]diagnostics.Issue{{Severity: diagnostics.SeverityCritical, File: "foo.ts", Line: 10, Message: "boom"}})

	lines, total := book.Tail(10)
	if total != 3 {
		t.Fatalf("expected 3 entries, got %d: %v", total, lines)
	}
	if !strings.Contains(lines[0], "[taskOverview] Analyzing Task Structure (30%)") {
		t.Fatalf("unexpected phase line %q", lines[0])
	}
	if !strings.Contains(lines[1], "completed") || !strings.Contains(lines[2], "foo.ts:10") {
		t.Fatalf("unexpected lines %v", lines)
	}
}

func TestMultiDisplayFansOut(t *testing.T) {
	a, b := &recordingDisplay{}, &recordingDisplay{}
	multi := MultiDisplay{a, nil, b}
	multi.OnProgress(progress.WorkflowProgress{Phase: "p"})
	multi.OnError(errors.New("boom"))
	multi.OnIssues(nil)
	multi.OnFinish(progress.WorkflowProgress{Phase: "p", Status: progress.StatusCompleted})
	for _, d := range []*recordingDisplay{a, b} {
		if len(d.progress) != 1 || len(d.errs) != 1 || len(d.issues) != 1 || len(d.finished) != 1 {
			t.Fatalf("display missed a notification: %+v", d)
		}
	}
}
