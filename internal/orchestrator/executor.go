// Package orchestrator runs a workflow mode: it builds the execution
// context, activates the recommended agents, walks the mode's phase table
// and returns the resulting Session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/jaegis/internal/agents"
	"github.com/kingrea/jaegis/internal/diagnostics"
	"github.com/kingrea/jaegis/internal/eventbridge"
	"github.com/kingrea/jaegis/internal/metrics"
	"github.com/kingrea/jaegis/internal/mode"
	"github.com/kingrea/jaegis/internal/progress"
	"github.com/kingrea/jaegis/internal/workspace"
)

// DiagnosticsPhase is the debugMode phase that collects diagnostics.
const DiagnosticsPhase = "Running Diagnostics"

const defaultMaxChainDepth = 3

// Logger matches logging.Logger's Printf.
type Logger interface {
	Printf(format string, args ...any)
}

// Payloads of the events the executor publishes.
type (
	WorkspacePayload struct {
		WorkspaceFolder string `json:"workspaceFolder"`
		Timestamp       string `json:"timestamp"`
	}
	DocumentsPayload struct {
		Documents []string `json:"documents"`
	}
	OutcomePayload struct {
		Mode   mode.Mode       `json:"mode"`
		Status progress.Status `json:"status"`
		Phase  string          `json:"phase,omitempty"`
		Error  string          `json:"error,omitempty"`
	}
)

// Option configures an Executor.
type Option func(*Executor)

// WithWorkspace sets the workspace collaborator. Without one every
// execution fails with *workspace.NoWorkspaceError.
func WithWorkspace(ws workspace.Workspace) Option {
	return func(e *Executor) { e.workspace = ws }
}

// WithEmitter sets where domain events are published.
func WithEmitter(em eventbridge.Emitter) Option {
	return func(e *Executor) { e.emitter = em }
}

// WithDisplay sets the status display.
func WithDisplay(d Display) Option {
	return func(e *Executor) {
		if d != nil {
			e.display = d
		}
	}
}

// WithPrompter sets the prompt collaborator. Without one gates proceed and
// completion prompts are skipped.
func WithPrompter(p Prompter) Option {
	return func(e *Executor) { e.prompter = p }
}

// WithPreferences sets the user-preference source.
func WithPreferences(p Preferences) Option {
	return func(e *Executor) { e.preferences = p }
}

// WithCollector sets the debugMode diagnostics collector.
func WithCollector(c *diagnostics.Collector) Option {
	return func(e *Executor) { e.collector = c }
}

// WithWorker sets the phase worker for one mode.
func WithWorker(m mode.Mode, w PhaseWorker) Option {
	return func(e *Executor) {
		if w != nil {
			e.workers[m] = w
		}
	}
}

// WithDefaultWorker sets the worker for modes without their own.
func WithDefaultWorker(w PhaseWorker) Option {
	return func(e *Executor) {
		if w != nil {
			e.fallback = w
		}
	}
}

// WithMetrics records executions into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithStore persists every finished session.
func WithStore(s SessionStore) Option {
	return func(e *Executor) { e.store = s }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock injects a deterministic clock.
func WithClock(clock func() time.Time) Option {
	return func(e *Executor) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithArtifacts overrides the artifact names scanned into the context.
func WithArtifacts(names []string) Option {
	return func(e *Executor) { e.artifacts = append([]string{}, names...) }
}

// WithDefaultAgents sets the agents used when the analysis recommends none.
func WithDefaultAgents(ids []agents.AgentID) Option {
	return func(e *Executor) { e.defaultAgents = agents.Normalize(ids) }
}

// WithMaxChainDepth bounds how many chained modes one call may run. Zero
// disables chaining.
func WithMaxChainDepth(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.maxChainDepth = n
		}
	}
}

// Executor sequences mode executions. Apart from Latest it holds no
// per-run state, so concurrent ExecuteMode calls each own their session.
type Executor struct {
	workspace     workspace.Workspace
	emitter       eventbridge.Emitter
	display       Display
	prompter      Prompter
	preferences   Preferences
	collector     *diagnostics.Collector
	workers       map[mode.Mode]PhaseWorker
	fallback      PhaseWorker
	metrics       *metrics.Metrics
	store         SessionStore
	logger        Logger
	clock         func() time.Time
	artifacts     []string
	defaultAgents []agents.AgentID
	maxChainDepth int

	mu     sync.RWMutex
	latest *run
}

// NewExecutor builds an executor from options.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		display:       nopDisplay{},
		workers:       make(map[mode.Mode]PhaseWorker),
		fallback:      DelayWorker{},
		logger:        nopLogger{},
		clock:         time.Now,
		artifacts:     append([]string{}, workspace.WellKnownArtifacts...),
		maxChainDepth: defaultMaxChainDepth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// run is the in-flight bookkeeping for one session.
type run struct {
	mu       sync.Mutex
	session  *Session
	reporter *progress.Reporter
}

func (r *run) update(fn func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.session)
}

func (r *run) snapshot() Session {
	r.mu.Lock()
	out := r.session.Clone()
	r.mu.Unlock()
	out.Progress = r.reporter.Snapshot()
	return out
}

// Latest returns a copy of the most recently started session with its live
// progress. ok is false before the first execution initializes.
func (e *Executor) Latest() (Session, bool) {
	e.mu.RLock()
	r := e.latest
	e.mu.RUnlock()
	if r == nil {
		return Session{}, false
	}
	return r.snapshot(), true
}

// ExecuteMode runs modeName against analysis. On failure the display gets
// exactly one OnError and the partial session (if one was started) is
// returned with the error.
func (e *Executor) ExecuteMode(ctx context.Context, modeName string, analysis ProjectAnalysis) (*Session, error) {
	session, err := e.execute(ctx, modeName, analysis, 0)
	if err != nil {
		e.logger.Printf("orchestrator: %s failed: %v", strings.TrimSpace(modeName), err)
		e.display.OnError(err)
	}
	return session, err
}

func (e *Executor) execute(ctx context.Context, modeName string, analysis ProjectAnalysis, depth int) (*Session, error) {
	ws := e.workspace
	if ws == nil || strings.TrimSpace(ws.Root()) == "" {
		return nil, &workspace.NoWorkspaceError{}
	}
	m, err := mode.Parse(modeName)
	if err != nil {
		return nil, err
	}

	session, err := e.buildSession(ctx, ws, m, analysis)
	if err != nil {
		return nil, err
	}
	prefs := session.Context.UserPreferences

	var sink progress.Display
	if prefs.ProgressNotifications {
		sink = progressOnly{e.display}
	}
	reporter := progress.NewReporter(sink, progress.WithLogger(e.logger), progress.WithClock(e.clock))
	if _, err := reporter.Initialize(m); err != nil {
		return nil, err
	}
	session.Progress = reporter.Snapshot()
	r := &run{session: session, reporter: reporter}
	e.mu.Lock()
	e.latest = r
	e.mu.Unlock()

	if prefs.AutoActivateAgents {
		if err := e.activate(ctx, r, prefs); err != nil {
			return e.fail(ctx, r, "", err)
		}
	}

	status, err := e.runPhases(ctx, r, m, prefs)
	if err != nil {
		return e.fail(ctx, r, reporter.Snapshot().Phase, err)
	}

	reporter.Finish(status)
	r.update(func(s *Session) {
		s.Progress = reporter.Snapshot()
		s.FinishedAt = e.clock()
	})
	if prefs.EnableMonitoring {
		e.metrics.RecordExecution(string(m), string(status))
	}
	e.publish(ctx, r, eventbridge.EventModeCompleted, OutcomePayload{Mode: m, Status: status})
	e.logger.Printf("orchestrator: %s finished with status %s", m, status)

	var chainErr error
	if status == progress.StatusCompleted {
		chainErr = e.complete(ctx, r, m, analysis, depth)
	}
	e.save(r)
	return r.session, chainErr
}

func (e *Executor) buildSession(ctx context.Context, ws workspace.Workspace, m mode.Mode, analysis ProjectAnalysis) (*Session, error) {
	selected := agents.Normalize(analysis.RecommendedAgents)
	if len(selected) == 0 {
		selected = append([]agents.AgentID{}, e.defaultAgents...)
	}
	artifacts := workspace.ScanArtifacts(ctx, ws, e.artifacts)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("orchestrator: %s: build context: %w", m, err)
	}
	now := e.clock()
	id := uuid.NewString()
	session := &Session{
		ID:   id,
		Mode: m,
		Context: ExecutionContext{
			SessionID:         id,
			Mode:              m,
			ProjectRoot:       ws.Root(),
			ProjectAnalysis:   analysis,
			SelectedAgents:    selected,
			UserPreferences:   resolvePreferences(e.preferences),
			ExistingArtifacts: artifacts,
		},
		ActiveAgents: []agents.AgentID{},
		Issues:       []diagnostics.Issue{},
		Events:       []eventbridge.Event{},
		StartedAt:    now,
	}

	evt := eventbridge.New(eventbridge.EventWorkspaceInitialized, WorkspacePayload{
		WorkspaceFolder: ws.Root(),
		Timestamp:       eventbridge.Timestamp(now),
	}, now)
	evt.SessionID = id
	session.Events = append(session.Events, evt)
	if e.emitter != nil {
		if err := e.emitter.Emit(ctx, evt); err != nil {
			e.logger.Printf("orchestrator: emit %s: %v", evt.Name, err)
		}
	}
	return session, nil
}

func (e *Executor) activate(ctx context.Context, r *run, prefs UserPreferences) error {
	sessionID := r.session.ID
	tracker := agents.NewTracker(e.sessionEmitter(sessionID)).WithClock(e.clock)
	evt, err := tracker.Activate(ctx, r.session.Context.SelectedAgents)
	if err != nil {
		return err
	}
	evt.SessionID = sessionID
	active := tracker.Active()
	r.update(func(s *Session) {
		s.ActiveAgents = active
		s.Events = append(s.Events, evt)
	})
	if prefs.EnableMonitoring {
		e.metrics.SetActiveAgents(len(active))
	}
	return nil
}

// runPhases walks the phase table and returns the terminal status.
func (e *Executor) runPhases(ctx context.Context, r *run, m mode.Mode, prefs UserPreferences) (progress.Status, error) {
	status := progress.StatusCompleted
	if m == mode.FullDevelopment {
		status = progress.StatusHandedOff
	}
	worker := e.worker(m)
	for i, phase := range mode.Phases(m) {
		if phase.Gate != nil {
			proceed, err := e.gate(ctx, r, phase.Gate)
			if err != nil {
				return "", fmt.Errorf("orchestrator: %s: gate before %q: %w", m, phase.Name, err)
			}
			if !proceed {
				e.logger.Printf("orchestrator: %s stopped at gate before %q", m, phase.Name)
				return progress.StatusStopped, nil
			}
		}
		if err := r.reporter.Update(progress.Step(phase.Name, phase.Progress)); err != nil {
			return "", fmt.Errorf("orchestrator: %s: phase %q: %w", m, phase.Name, err)
		}
		if m == mode.DebugMode && phase.Name == DiagnosticsPhase {
			e.collectIssues(ctx, r, prefs)
		}

		began := e.clock()
		result, err := worker.Execute(ctx, PhaseRequest{
			SessionID: r.session.ID,
			Mode:      m,
			Phase:     phase,
			Index:     i,
			Context:   r.session.Context,
		})
		elapsed := e.clock().Sub(began)
		if prefs.EnableMonitoring {
			e.metrics.ObservePhase(string(m), phase.Name, elapsed)
		}
		if err != nil {
			return "", fmt.Errorf("orchestrator: %s: phase %q: %w", m, phase.Name, err)
		}
		r.update(func(s *Session) {
			s.Results = append(s.Results, PhaseOutcome{
				Phase:     phase.Name,
				Summary:   result.Summary,
				Artifacts: append([]string{}, result.Artifacts...),
				Duration:  elapsed,
			})
		})
		r.reporter.CompleteTask(phase.Name)
	}
	return status, nil
}

// gate asks the gate question. Without a prompter the gate proceeds.
func (e *Executor) gate(ctx context.Context, r *run, p *mode.Prompt) (bool, error) {
	if e.prompter == nil {
		return true, nil
	}
	choice, ok, err := e.prompter.ShowChoice(ctx, p.Message, append([]string{}, p.Options...))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	r.update(func(s *Session) { s.Choice = choice })
	return choice == p.Accept, nil
}

func (e *Executor) collectIssues(ctx context.Context, r *run, prefs UserPreferences) {
	issues := e.collector.Collect(ctx)
	r.update(func(s *Session) { s.Issues = append([]diagnostics.Issue{}, issues...) })
	if prefs.EnableMonitoring {
		for _, issue := range issues {
			e.metrics.AddIssue(string(issue.Severity))
		}
	}
	e.display.OnIssues(issues)
}

// complete offers the completion prompt and follows its choice. A prompt
// failure is logged; the mode itself already succeeded.
func (e *Executor) complete(ctx context.Context, r *run, m mode.Mode, analysis ProjectAnalysis, depth int) error {
	prompt := mode.CompletionPrompt(m)
	if prompt == nil || e.prompter == nil {
		return nil
	}
	choice, ok, err := e.prompter.ShowChoice(ctx, prompt.Message, append([]string{}, prompt.Options...))
	if err != nil {
		e.logger.Printf("orchestrator: %s completion prompt: %v", m, err)
		return nil
	}
	if !ok {
		return nil
	}
	r.update(func(s *Session) { s.Choice = choice })

	if action, ok := prompt.ActionFor(choice); ok && action == mode.ActionOpenDocuments {
		docs := append([]string{}, r.session.Context.ExistingArtifacts...)
		e.publish(ctx, r, eventbridge.EventDocumentsRequested, DocumentsPayload{Documents: docs})
	}

	next, ok := prompt.NextMode(choice)
	if !ok {
		return nil
	}
	if depth >= e.maxChainDepth {
		e.logger.Printf("orchestrator: not chaining %s -> %s: chain depth %d reached", m, next, e.maxChainDepth)
		return nil
	}
	nested, err := e.execute(ctx, string(next), analysis, depth+1)
	r.update(func(s *Session) { s.Next = nested })
	if err != nil {
		return fmt.Errorf("orchestrator: chained %s from %s: %w", next, m, err)
	}
	return nil
}

func (e *Executor) fail(ctx context.Context, r *run, phase string, err error) (*Session, error) {
	r.reporter.Fail(err)
	m := r.session.Mode
	r.update(func(s *Session) {
		s.Progress = r.reporter.Snapshot()
		s.Error = err.Error()
		s.FinishedAt = e.clock()
	})
	if r.session.Context.UserPreferences.EnableMonitoring {
		e.metrics.RecordExecution(string(m), string(progress.StatusFailed))
	}
	e.publish(context.WithoutCancel(ctx), r, eventbridge.EventModeFailed, OutcomePayload{
		Mode:   m,
		Status: progress.StatusFailed,
		Phase:  phase,
		Error:  err.Error(),
	})
	e.save(r)
	return r.session, err
}

// publish records a domain event on the session and hands it to the
// emitter. Emit failures are logged only.
func (e *Executor) publish(ctx context.Context, r *run, name string, payload any) {
	evt := eventbridge.New(name, payload, e.clock())
	evt.SessionID = r.session.ID
	r.update(func(s *Session) { s.Events = append(s.Events, evt) })
	if e.emitter == nil {
		return
	}
	if err := e.emitter.Emit(ctx, evt); err != nil {
		e.logger.Printf("orchestrator: emit %s: %v", name, err)
	}
}

func (e *Executor) sessionEmitter(sessionID string) eventbridge.Emitter {
	if e.emitter == nil {
		return nil
	}
	return eventbridge.EmitterFunc(func(ctx context.Context, evt eventbridge.Event) error {
		if evt.SessionID == "" {
			evt.SessionID = sessionID
		}
		return e.emitter.Emit(ctx, evt)
	})
}

func (e *Executor) worker(m mode.Mode) PhaseWorker {
	if w, ok := e.workers[m]; ok {
		return w
	}
	return e.fallback
}

func (e *Executor) save(r *run) {
	if e.store == nil {
		return
	}
	snapshot := r.snapshot()
	if err := e.store.Save(&snapshot); err != nil {
		e.logger.Printf("orchestrator: save session %s: %v", snapshot.ID, err)
	}
}

// IsUserFacing reports whether err is one of the typed errors a caller is
// expected to show verbatim.
func IsUserFacing(err error) bool {
	return errors.Is(err, workspace.ErrNoWorkspace) ||
		errors.Is(err, mode.ErrInvalidMode) ||
		errors.Is(err, agents.ErrActivation)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
