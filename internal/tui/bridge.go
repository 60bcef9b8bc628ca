package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/jaegis/internal/diagnostics"
	"github.com/kingrea/jaegis/internal/progress"
)

// Sender is the part of *tea.Program the bridge needs.
type Sender interface {
	Send(tea.Msg)
}

type progressMsg struct{ progress progress.WorkflowProgress }

type errorMsg struct{ err error }

type issuesMsg struct{ issues []diagnostics.Issue }

type promptReply struct {
	choice string
	ok     bool
}

type promptMsg struct {
	message string
	options []string
	reply   chan<- promptReply
}

// Bridge forwards orchestrator callbacks into a running Bubble Tea
// program. It implements orchestrator.Display and orchestrator.Prompter.
type Bridge struct {
	mu     sync.RWMutex
	sender Sender
}

// NewBridge creates a bridge. Attach must be called before the executor
// starts producing callbacks; until then they are dropped.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach connects the bridge to a program.
func (b *Bridge) Attach(s Sender) {
	b.mu.Lock()
	b.sender = s
	b.mu.Unlock()
}

func (b *Bridge) send(msg tea.Msg) bool {
	b.mu.RLock()
	s := b.sender
	b.mu.RUnlock()
	if s == nil {
		return false
	}
	s.Send(msg)
	return true
}

func (b *Bridge) OnProgress(p progress.WorkflowProgress) {
	b.send(progressMsg{progress: p.Clone()})
}

// OnFinish forwards the terminal state so the board shows the final status
// before the run returns.
func (b *Bridge) OnFinish(p progress.WorkflowProgress) {
	b.send(progressMsg{progress: p.Clone()})
}

func (b *Bridge) OnError(err error) {
	if err != nil {
		b.send(errorMsg{err: err})
	}
}

func (b *Bridge) OnIssues(issues []diagnostics.Issue) {
	b.send(issuesMsg{issues: append([]diagnostics.Issue{}, issues...)})
}

// ShowChoice asks the program to render a choice and blocks until the user
// answers, dismisses it, or ctx ends.
func (b *Bridge) ShowChoice(ctx context.Context, message string, options []string) (string, bool, error) {
	reply := make(chan promptReply, 1)
	if !b.send(promptMsg{message: message, options: append([]string{}, options...), reply: reply}) {
		return "", false, nil
	}
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case r := <-reply:
		return r.choice, r.ok, nil
	}
}
