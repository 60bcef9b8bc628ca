package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kingrea/jaegis/internal/agents"
	"github.com/kingrea/jaegis/internal/config"
	"github.com/kingrea/jaegis/internal/diagnostics"
	"github.com/kingrea/jaegis/internal/eventbridge"
	"github.com/kingrea/jaegis/internal/metrics"
	"github.com/kingrea/jaegis/internal/mode"
	"github.com/kingrea/jaegis/internal/progress"
	"github.com/kingrea/jaegis/internal/workspace"
)

type fakeWorkspace struct {
	root     string
	existing map[string]bool
}

func (w fakeWorkspace) Root() string { return w.root }

func (w fakeWorkspace) Exists(_ context.Context, rel string) (bool, error) {
	return w.existing[rel], nil
}

type recordingDisplay struct {
	mu       sync.Mutex
	progress []progress.WorkflowProgress
	errs     []error
	issues   [][]diagnostics.Issue
	finished []progress.WorkflowProgress
}

func (d *recordingDisplay) OnFinish(p progress.WorkflowProgress) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finished = append(d.finished, p)
}

func (d *recordingDisplay) OnProgress(p progress.WorkflowProgress) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.progress = append(d.progress, p)
}

func (d *recordingDisplay) OnError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, err)
}

func (d *recordingDisplay) OnIssues(issues []diagnostics.Issue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.issues = append(d.issues, issues)
}

type step struct {
	Phase    string
	Progress int
}

// steps maps every progress notification to its (phase, progress) pair.
func (d *recordingDisplay) steps() []step {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]step, 0, len(d.progress))
	for _, p := range d.progress {
		out = append(out, step{Phase: p.Phase, Progress: p.Progress})
	}
	return out
}

type scriptedPrompter struct {
	mu       sync.Mutex
	answers  []string
	messages []string
}

func (p *scriptedPrompter) ShowChoice(_ context.Context, message string, options []string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	if len(p.answers) == 0 {
		return "", false, nil
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, true, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []eventbridge.Event
	failOn string
}

func (l *eventLog) Emit(_ context.Context, evt eventbridge.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if evt.Name == l.failOn {
		return errors.New("bus offline")
	}
	l.events = append(l.events, evt)
	return nil
}

func (l *eventLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, evt := range l.events {
		out = append(out, evt.Name)
	}
	return out
}

func newTestExecutor(display *recordingDisplay, opts ...Option) *Executor {
	base := []Option{
		WithWorkspace(fakeWorkspace{root: "/work"}),
		WithDisplay(display),
		WithDefaultWorker(DelayWorker{}),
	}
	return NewExecutor(append(base, opts...)...)
}

func analysisFor(ids ...agents.AgentID) ProjectAnalysis {
	return ProjectAnalysis{ProjectType: "web", RecommendedAgents: ids}
}

func TestExecuteModeFollowsPhaseTables(t *testing.T) {
	for _, m := range mode.All() {
		t.Run(string(m), func(t *testing.T) {
			display := &recordingDisplay{}
			session, err := newTestExecutor(display).ExecuteMode(context.Background(), string(m), analysisFor("dev"))
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			var want []step
			for _, phase := range mode.Phases(m) {
				want = append(want, step{Phase: phase.Name, Progress: phase.Progress})
			}
			got := display.steps()
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("phase sequence mismatch (-want +got):\n%s", diff)
			}
			last := -1
			for _, p := range display.progress {
				if p.Progress < last {
					t.Fatalf("progress decreased: %d after %d", p.Progress, last)
				}
				last = p.Progress
			}
			terminal, _ := mode.Terminal(m)
			if m == mode.FullDevelopment {
				if session.Status() != progress.StatusHandedOff || session.Progress.Progress != 50 {
					t.Fatalf("expected handed_off at 50, got %s at %d", session.Status(), session.Progress.Progress)
				}
			} else if session.Status() != progress.StatusCompleted || last != 100 || terminal.Progress != 100 {
				t.Fatalf("expected completed at 100, got %s at %d", session.Status(), last)
			}
			if len(display.finished) != 1 || display.finished[0].Status != session.Status() {
				t.Fatalf("expected one finish notification with %s, got %+v", session.Status(), display.finished)
			}
		})
	}
}

func TestTaskOverviewScenario(t *testing.T) {
	display := &recordingDisplay{}
	session, err := newTestExecutor(display).ExecuteMode(context.Background(), "taskOverview", analysisFor())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	wantSteps := []step{
		{"Analyzing Task Structure", 30},
		{"Generating Dashboard", 70},
		{"Task Overview Complete", 100},
	}
	if diff := cmp.Diff(wantSteps, display.steps()); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Analyzing Task Structure", "Generating Dashboard"}, display.progress[2].CompletedTasks); diff != "" {
		t.Fatalf("terminal phase notification should carry earlier tasks (-want +got):\n%s", diff)
	}
	wantTasks := []string{"Analyzing Task Structure", "Generating Dashboard", "Task Overview Complete"}
	if len(display.finished) != 1 {
		t.Fatalf("expected one finish notification, got %d", len(display.finished))
	}
	if diff := cmp.Diff(wantTasks, display.finished[0].CompletedTasks); diff != "" {
		t.Fatalf("finish tasks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantTasks, session.Progress.CompletedTasks); diff != "" {
		t.Fatalf("completed tasks mismatch (-want +got):\n%s", diff)
	}
	if len(session.Progress.RemainingTasks) != 0 {
		t.Fatalf("expected no remaining tasks, got %v", session.Progress.RemainingTasks)
	}
	if len(session.Context.ExistingArtifacts) != 0 {
		t.Fatalf("expected no artifacts, got %v", session.Context.ExistingArtifacts)
	}
	if len(session.Results) != 3 {
		t.Fatalf("expected 3 phase results, got %d", len(session.Results))
	}
}

func TestInvalidModeEmitsNothing(t *testing.T) {
	display := &recordingDisplay{}
	exec := newTestExecutor(display)
	session, err := exec.ExecuteMode(context.Background(), "not_a_real_mode", analysisFor("dev"))
	var invalid *mode.InvalidModeError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidModeError, got %v", err)
	}
	if session != nil {
		t.Fatalf("expected no session, got %+v", session)
	}
	if len(display.progress) != 0 {
		t.Fatalf("expected zero progress updates, got %d", len(display.progress))
	}
	if len(display.errs) != 1 {
		t.Fatalf("expected one OnError, got %d", len(display.errs))
	}
}

func TestNoWorkspaceFailsBeforeInitialize(t *testing.T) {
	display := &recordingDisplay{}
	events := &eventLog{}
	exec := NewExecutor(WithDisplay(display), WithEmitter(events))
	_, err := exec.ExecuteMode(context.Background(), "documentation", analysisFor("dev"))
	if !errors.Is(err, workspace.ErrNoWorkspace) {
		t.Fatalf("expected NoWorkspaceError, got %v", err)
	}
	if _, ok := exec.Latest(); ok {
		t.Fatalf("reporter must not be initialized without a workspace")
	}
	if len(display.progress) != 0 || len(events.names()) != 0 {
		t.Fatalf("expected no progress and no events, got %d / %v", len(display.progress), events.names())
	}
}

func TestDebugModeReportsIssues(t *testing.T) {
	display := &recordingDisplay{}
	source := diagnostics.SourceFunc(func(context.Context) (diagnostics.Snapshot, error) {
		return diagnostics.Snapshot{
			"foo.ts": {{
				Severity: diagnostics.RawError,
				Message:  "Cannot find name 'x'",
				Range:    diagnostics.Range{Start: diagnostics.Position{Line: 10}},
			}},
		}, nil
	})
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	exec := newTestExecutor(display, WithCollector(diagnostics.NewCollector(source)), WithMetrics(m))
	session, err := exec.ExecuteMode(context.Background(), "debugMode", analysisFor())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := []diagnostics.Issue{{
		Severity: diagnostics.SeverityCritical,
		Category: diagnostics.CategoryQuality,
		Message:  "Cannot find name 'x'",
		File:     "foo.ts",
		Line:     10,
	}}
	if len(display.issues) != 1 {
		t.Fatalf("expected one OnIssues call, got %d", len(display.issues))
	}
	if diff := cmp.Diff(want, display.issues[0]); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, session.Issues); diff != "" {
		t.Fatalf("session issues mismatch (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(m.Issues.WithLabelValues("critical")); got != 1 {
		t.Fatalf("expected 1 critical issue metric, got %v", got)
	}
}

func TestAgentActivationAndEvents(t *testing.T) {
	events := &eventLog{}
	exec := newTestExecutor(&recordingDisplay{}, WithEmitter(events))
	session, err := exec.ExecuteMode(context.Background(), "taskOverview", analysisFor("pm", "dev", "pm"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if diff := cmp.Diff([]agents.AgentID{"pm", "dev"}, session.ActiveAgents); diff != "" {
		t.Fatalf("active agents mismatch (-want +got):\n%s", diff)
	}
	wantNames := []string{
		eventbridge.EventWorkspaceInitialized,
		eventbridge.EventAgentsActivated,
		eventbridge.EventModeCompleted,
	}
	if diff := cmp.Diff(wantNames, events.names()); diff != "" {
		t.Fatalf("emitted events mismatch (-want +got):\n%s", diff)
	}
	if len(session.Events) != len(wantNames) {
		t.Fatalf("expected session to record %d events, got %d", len(wantNames), len(session.Events))
	}
	for _, evt := range session.Events {
		if evt.SessionID != session.ID {
			t.Fatalf("event %s missing session id", evt.Name)
		}
	}
}

func TestAutoActivateDisabledSkipsActivation(t *testing.T) {
	events := &eventLog{}
	prefs := MapPreferences{config.PrefAutoActivateAgents: false}
	exec := newTestExecutor(&recordingDisplay{}, WithEmitter(events), WithPreferences(prefs))
	session, err := exec.ExecuteMode(context.Background(), "taskOverview", analysisFor("dev"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(session.ActiveAgents) != 0 {
		t.Fatalf("expected no active agents, got %v", session.ActiveAgents)
	}
	for _, name := range events.names() {
		if name == eventbridge.EventAgentsActivated {
			t.Fatalf("agentsActivated must not be emitted")
		}
	}
}

func TestWorkspaceEventFailureIsNotFatal(t *testing.T) {
	events := &eventLog{failOn: eventbridge.EventWorkspaceInitialized}
	session, err := newTestExecutor(&recordingDisplay{}, WithEmitter(events)).
		ExecuteMode(context.Background(), "taskOverview", analysisFor("dev"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if session.Status() != progress.StatusCompleted {
		t.Fatalf("expected completed, got %s", session.Status())
	}
}

func TestActivationFailureIsFatal(t *testing.T) {
	display := &recordingDisplay{}
	events := &eventLog{failOn: eventbridge.EventAgentsActivated}
	session, err := newTestExecutor(display, WithEmitter(events)).
		ExecuteMode(context.Background(), "documentation", analysisFor("dev"))
	if !errors.Is(err, agents.ErrActivation) {
		t.Fatalf("expected ActivationError, got %v", err)
	}
	if session.Status() != progress.StatusFailed || session.Progress.Progress != 0 {
		t.Fatalf("expected failed at 0, got %s at %d", session.Status(), session.Progress.Progress)
	}
	if len(session.Results) != 0 {
		t.Fatalf("no phase may run after failed activation, got %v", session.Results)
	}
	if len(display.errs) != 1 {
		t.Fatalf("expected one OnError, got %d", len(display.errs))
	}
}

func TestPhaseFailureLeavesFailedState(t *testing.T) {
	display := &recordingDisplay{}
	events := &eventLog{}
	cause := errors.New("disk full")
	worker := WorkerFunc(func(_ context.Context, req PhaseRequest) (PhaseResult, error) {
		if req.Phase.Name == "Architecture Design" {
			return PhaseResult{}, cause
		}
		return PhaseResult{Summary: "ok"}, nil
	})
	exec := newTestExecutor(display, WithEmitter(events), WithWorker(mode.Documentation, worker))
	session, err := exec.ExecuteMode(context.Background(), "documentation", analysisFor("dev"))
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if session.Status() != progress.StatusFailed {
		t.Fatalf("expected failed, got %s", session.Status())
	}
	if session.Progress.Phase != "Architecture Design" || session.Progress.Progress != 60 {
		t.Fatalf("expected to stop at Architecture Design@60, got %s@%d", session.Progress.Phase, session.Progress.Progress)
	}
	if diff := cmp.Diff([]string{"Project Analysis", "PRD Development"}, session.Progress.CompletedTasks); diff != "" {
		t.Fatalf("completed tasks mismatch (-want +got):\n%s", diff)
	}
	if len(display.errs) != 1 {
		t.Fatalf("expected one OnError, got %d", len(display.errs))
	}
	wantSteps := []step{{"Project Analysis", 10}, {"PRD Development", 30}, {"Architecture Design", 60}}
	if diff := cmp.Diff(wantSteps, display.steps()); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}
	if len(display.finished) != 1 || display.finished[0].Status != progress.StatusFailed || display.finished[0].Error == "" {
		t.Fatalf("expected one failed finish notification, got %+v", display.finished)
	}
	names := events.names()
	if names[len(names)-1] != eventbridge.EventModeFailed {
		t.Fatalf("expected modeFailed last, got %v", names)
	}
}

func TestGateDeclineStops(t *testing.T) {
	display := &recordingDisplay{}
	prompter := &scriptedPrompter{answers: []string{"Cancel"}}
	session, err := newTestExecutor(display, WithPrompter(prompter)).
		ExecuteMode(context.Background(), "fullDevelopment", analysisFor("dev"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if session.Status() != progress.StatusStopped || session.Progress.Progress != 10 {
		t.Fatalf("expected stopped at 10, got %s at %d", session.Status(), session.Progress.Progress)
	}
	if diff := cmp.Diff([]string{"Development Planning"}, session.Progress.CompletedTasks); diff != "" {
		t.Fatalf("completed tasks mismatch (-want +got):\n%s", diff)
	}
	if session.Choice != "Cancel" {
		t.Fatalf("expected choice to be recorded, got %q", session.Choice)
	}
	if diff := cmp.Diff([]step{{"Development Planning", 10}}, display.steps()); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}
	if len(display.finished) != 1 || display.finished[0].Status != progress.StatusStopped {
		t.Fatalf("expected one stopped finish notification, got %+v", display.finished)
	}
}

func TestCompletionPromptChainsIntoFullDevelopment(t *testing.T) {
	prompter := &scriptedPrompter{answers: []string{"Start Full Development", "Continue"}}
	session, err := newTestExecutor(&recordingDisplay{}, WithPrompter(prompter)).
		ExecuteMode(context.Background(), "documentation", analysisFor("dev"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if session.Next == nil {
		t.Fatalf("expected a chained session")
	}
	if session.Next.Mode != mode.FullDevelopment || session.Next.Status() != progress.StatusHandedOff {
		t.Fatalf("unexpected chained session %s/%s", session.Next.Mode, session.Next.Status())
	}
	if session.Last() != session.Next {
		t.Fatalf("Last should follow the chain")
	}
}

func TestChainDepthBound(t *testing.T) {
	prompter := &scriptedPrompter{answers: []string{"Start Full Development"}}
	session, err := newTestExecutor(&recordingDisplay{}, WithPrompter(prompter), WithMaxChainDepth(0)).
		ExecuteMode(context.Background(), "documentation", analysisFor("dev"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if session.Next != nil {
		t.Fatalf("chaining must be disabled at depth 0")
	}
	if session.Choice != "Start Full Development" {
		t.Fatalf("choice should still be recorded, got %q", session.Choice)
	}
}

func TestOpenDocumentsPublishesArtifacts(t *testing.T) {
	events := &eventLog{}
	ws := fakeWorkspace{root: "/work", existing: map[string]bool{"docs/prd.md": true, "README.md": true}}
	prompter := &scriptedPrompter{answers: []string{"Open Documents"}}
	exec := newTestExecutor(&recordingDisplay{}, WithWorkspace(ws), WithEmitter(events), WithPrompter(prompter))
	session, err := exec.ExecuteMode(context.Background(), "documentation", analysisFor("dev"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if diff := cmp.Diff([]string{"docs/prd.md", "README.md"}, session.Context.ExistingArtifacts); diff != "" {
		t.Fatalf("artifacts mismatch (-want +got):\n%s", diff)
	}
	last := session.Events[len(session.Events)-1]
	if last.Name != eventbridge.EventDocumentsRequested {
		t.Fatalf("expected documentsRequested last, got %s", last.Name)
	}
	payload, ok := last.Payload.(DocumentsPayload)
	if !ok || len(payload.Documents) != 2 {
		t.Fatalf("unexpected payload %#v", last.Payload)
	}
}

func TestProgressNotificationsDisabled(t *testing.T) {
	display := &recordingDisplay{}
	prefs := MapPreferences{config.PrefProgressNotifications: false}
	session, err := newTestExecutor(display, WithPreferences(prefs)).
		ExecuteMode(context.Background(), "taskOverview", analysisFor())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(display.progress) != 0 {
		t.Fatalf("expected no progress notifications, got %d", len(display.progress))
	}
	if session.Progress.Progress != 100 {
		t.Fatalf("session should still track progress, got %d", session.Progress.Progress)
	}
}

func TestLatestReflectsRunningPhase(t *testing.T) {
	var exec *Executor
	var seen []int
	worker := WorkerFunc(func(_ context.Context, req PhaseRequest) (PhaseResult, error) {
		latest, ok := exec.Latest()
		if !ok {
			return PhaseResult{}, errors.New("no latest session")
		}
		seen = append(seen, latest.Progress.Progress)
		return PhaseResult{}, nil
	})
	exec = newTestExecutor(&recordingDisplay{}, WithDefaultWorker(worker))
	if _, err := exec.ExecuteMode(context.Background(), "taskOverview", analysisFor()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if diff := cmp.Diff([]int{30, 70, 100}, seen); diff != "" {
		t.Fatalf("latest progress mismatch (-want +got):\n%s", diff)
	}
}

func TestMetricsAndStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := NewStore(filepath.Join(t.TempDir(), "state", "session.json"))
	exec := newTestExecutor(&recordingDisplay{}, WithMetrics(m), WithStore(store))
	session, err := exec.ExecuteMode(context.Background(), "githubIntegration", analysisFor("dev", "qa"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := testutil.ToFloat64(m.ModeExecutions.WithLabelValues("githubIntegration", "completed")); got != 1 {
		t.Fatalf("expected one completed execution, got %v", got)
	}
	if got := testutil.ToFloat64(m.ActiveAgents); got != 2 {
		t.Fatalf("expected 2 active agents, got %v", got)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != session.ID || loaded.Progress.Status != progress.StatusCompleted {
		t.Fatalf("unexpected persisted session %+v", loaded.Progress)
	}
}

func TestCancelledContextFailsPhase(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	worker := WorkerFunc(func(ctx context.Context, req PhaseRequest) (PhaseResult, error) {
		if req.Index == 0 {
			return PhaseResult{}, nil
		}
		cancel()
		return DelayWorker{Delay: time.Minute}.Execute(ctx, req)
	})
	display := &recordingDisplay{}
	session, err := newTestExecutor(display, WithDefaultWorker(worker)).ExecuteMode(ctx, "taskOverview", analysisFor())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if session.Status() != progress.StatusFailed || session.Progress.Progress != 70 {
		t.Fatalf("expected failed at 70, got %s at %d", session.Status(), session.Progress.Progress)
	}
}

func TestIsUserFacing(t *testing.T) {
	exec := NewExecutor(WithWorkspace(&fakeWorkspace{root: t.TempDir()}))
	_, err := exec.ExecuteMode(context.Background(), "nope", ProjectAnalysis{})
	if !IsUserFacing(err) {
		t.Fatalf("invalid mode should be user facing: %v", err)
	}
	if IsUserFacing(errors.New("disk full")) {
		t.Fatalf("plain errors are not user facing")
	}
}
