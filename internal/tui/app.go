// internal/tui/app.go
//
// The run screen for a single mode execution. It follows The Elm
// Architecture like every bubbletea program:
//
// 1. Model: the latest WorkflowProgress plus any open prompt
// 2. Update: orchestrator callbacks and key presses arrive as messages
// 3. View: renders progress, tasks, agents, issues and the prompt
//
// The executor runs inside a tea.Cmd; its callbacks come back through Bridge.

package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/jaegis/internal/agents"
	"github.com/kingrea/jaegis/internal/diagnostics"
	"github.com/kingrea/jaegis/internal/logbook"
	"github.com/kingrea/jaegis/internal/mode"
	"github.com/kingrea/jaegis/internal/orchestrator"
	"github.com/kingrea/jaegis/internal/progress"
)

const refreshInterval = 500 * time.Millisecond

// Runner executes the mode. It is called once, from a tea.Cmd.
type Runner func(ctx context.Context) (*orchestrator.Session, error)

// LatestFunc returns the live session, typically Executor.Latest.
type LatestFunc func() (orchestrator.Session, bool)

// AppOption customizes App construction.
type AppOption func(*App)

// WithLogbook shows the tail of the progress logbook under the board.
func WithLogbook(book *logbook.Logbook) AppOption {
	return func(a *App) { a.logbook = book }
}

// WithLatest polls the live session for the active agent set.
func WithLatest(fn LatestFunc) AppOption {
	return func(a *App) { a.latest = fn }
}

type runFinishedMsg struct {
	session *orchestrator.Session
	err     error
}

type refreshMsg struct{}

type openPrompt struct {
	message   string
	options   []string
	selection int
	reply     chan<- promptReply
}

// App is the Bubble Tea model.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	run    Runner
	latest LatestFunc

	mode     mode.Mode
	state    progress.WorkflowProgress
	agents   []agents.AgentID
	issues   []diagnostics.Issue
	err      error
	prompt   *openPrompt
	session  *orchestrator.Session
	finished bool

	bar     bprogress.Model
	spinner spinner.Model
	logbook *logbook.Logbook

	width     int
	statusMsg string
}

// NewApp creates the model for one execution of m.
func NewApp(ctx context.Context, m mode.Mode, run Runner, opts ...AppOption) *App {
	runCtx, cancel := context.WithCancel(ctx)
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = titleStyle
	a := &App{
		ctx:       runCtx,
		cancel:    cancel,
		run:       run,
		mode:      m,
		state:     progress.WorkflowProgress{Mode: m, Phase: progress.InitialPhase, RemainingTasks: mode.Tasks(m), Status: progress.StatusRunning},
		bar:       bprogress.New(bprogress.WithDefaultGradient(), bprogress.WithWidth(40)),
		spinner:   spin,
		statusMsg: "Running... ctrl+c to abort",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Session returns the finished session, if any.
func (a *App) Session() *orchestrator.Session {
	return a.session
}

// Err returns the execution error, if any.
func (a *App) Err() error {
	return a.err
}

// Init starts the execution and the spinner.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.startRun(), a.scheduleRefresh())
}

func (a *App) startRun() tea.Cmd {
	if a.run == nil {
		return nil
	}
	ctx, run := a.ctx, a.run
	return func() tea.Msg {
		session, err := run(ctx)
		return runFinishedMsg{session: session, err: err}
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	if a.latest == nil {
		return nil
	}
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

// Update handles callbacks, timers and keys.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.bar.Width = max(10, min(60, msg.Width-20))
		return a, nil

	case progressMsg:
		a.state = msg.progress
		return a, nil

	case issuesMsg:
		a.issues = msg.issues
		return a, nil

	case errorMsg:
		a.err = msg.err
		return a, nil

	case promptMsg:
		a.dismissPrompt()
		a.prompt = &openPrompt{message: msg.message, options: msg.options, reply: msg.reply}
		a.statusMsg = "↑/↓ to choose · enter to confirm · esc to dismiss"
		return a, nil

	case refreshMsg:
		if a.finished || a.latest == nil {
			return a, nil
		}
		if session, ok := a.latest(); ok {
			a.agents = session.ActiveAgents
		}
		return a, a.scheduleRefresh()

	case runFinishedMsg:
		a.finished = true
		a.dismissPrompt()
		a.session = msg.session
		if msg.session != nil {
			last := msg.session.Last()
			a.state = last.Progress
			a.agents = last.ActiveAgents
			if len(last.Issues) > 0 {
				a.issues = last.Issues
			}
		}
		if msg.err != nil {
			a.err = msg.err
		}
		a.statusMsg = "Finished · press q to exit"
		return a, nil

	case spinner.TickMsg:
		if a.finished {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		a.dismissPrompt()
		a.cancel()
		return a, tea.Quit
	}
	if a.prompt != nil {
		switch key {
		case "up", "k":
			if a.prompt.selection > 0 {
				a.prompt.selection--
			}
		case "down", "j":
			if a.prompt.selection < len(a.prompt.options)-1 {
				a.prompt.selection++
			}
		case "enter":
			a.answerPrompt()
		case "esc":
			a.dismissPrompt()
		}
		return a, nil
	}
	if a.finished {
		switch key {
		case "q", "esc", "enter":
			a.cancel()
			return a, tea.Quit
		}
	}
	return a, nil
}

func (a *App) answerPrompt() {
	p := a.prompt
	a.prompt = nil
	a.statusMsg = "Running... ctrl+c to abort"
	if p == nil || len(p.options) == 0 {
		return
	}
	p.reply <- promptReply{choice: p.options[p.selection], ok: true}
}

func (a *App) dismissPrompt() {
	p := a.prompt
	a.prompt = nil
	if p != nil {
		p.reply <- promptReply{}
	}
}

// View renders the board.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 80
	}
	sections := []string{
		headerStyle.Render("⬡ JAEGIS · " + string(a.mode)),
		panelStyle.Width(max(30, width-4)).Render(a.renderProgress()),
	}
	if a.prompt != nil {
		sections = append(sections, panelStyle.Render(a.renderPrompt()))
	}
	if len(a.issues) > 0 {
		sections = append(sections, panelStyle.Render(a.renderIssues()))
	}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	if a.err != nil {
		sections = append(sections, errorStyle.Render("✗ "+a.err.Error()))
	}
	sections = append(sections, mutedStyle.MarginTop(1).Render(a.statusMsg))
	return strings.Join(sections, "\n")
}

func (a *App) renderProgress() string {
	phase := a.state.Phase
	if !a.finished {
		phase = a.spinner.View() + " " + phase
	}
	lines := []string{
		fmt.Sprintf("%s %s", titleStyle.Render("Phase:"), phase),
		a.bar.ViewAs(float64(a.state.Progress) / 100),
		fmt.Sprintf("%s %s", titleStyle.Render("Status:"), StatusStyle(a.state.Status).Render(string(a.state.Status))),
	}
	for _, task := range a.state.CompletedTasks {
		lines = append(lines, doneStyle.Render("✓ ")+task)
	}
	for _, task := range a.state.RemainingTasks {
		lines = append(lines, pendingStyle.Render("· "+task))
	}
	if len(a.agents) > 0 {
		names := make([]string, 0, len(a.agents))
		for _, id := range a.agents {
			names = append(names, string(id))
		}
		lines = append(lines, detailStyle.Render("Agents: "+strings.Join(names, ", ")))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderPrompt() string {
	lines := []string{titleStyle.Render(a.prompt.message)}
	for i, opt := range a.prompt.options {
		if i == a.prompt.selection {
			lines = append(lines, selectStyle.Render("▸ "+opt))
			continue
		}
		lines = append(lines, pendingStyle.Render("  "+opt))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderIssues() string {
	lines := []string{titleStyle.Render(fmt.Sprintf("Issues (%d)", len(a.issues)))}
	for _, issue := range a.issues {
		label := SeverityStyle(issue.Severity).Render(string(issue.Severity))
		lines = append(lines, fmt.Sprintf("%s %s:%d %s", label, issue.File, issue.Line, issue.Message))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, _ := a.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	head := titleStyle.Render(fmt.Sprintf("LOG · %s", fileName))
	body := mutedStyle.Render(strings.Join(lines, "\n"))
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, head, body))
}
