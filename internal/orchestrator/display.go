package orchestrator

import (
	"context"
	"sync"

	"github.com/kingrea/jaegis/internal/diagnostics"
	"github.com/kingrea/jaegis/internal/logbook"
	"github.com/kingrea/jaegis/internal/progress"
)

// Display is the status-display collaborator. A Display that also
// implements progress.Finisher is told the terminal state once per session.
type Display interface {
	OnProgress(progress.WorkflowProgress)
	OnError(error)
	OnIssues([]diagnostics.Issue)
}

// Prompter presents a choice to the user. ok is false when the prompt was
// dismissed without an answer.
type Prompter interface {
	ShowChoice(ctx context.Context, message string, options []string) (choice string, ok bool, err error)
}

// PrompterFunc adapts a function into a Prompter.
type PrompterFunc func(ctx context.Context, message string, options []string) (string, bool, error)

// ShowChoice executes f.
func (f PrompterFunc) ShowChoice(ctx context.Context, message string, options []string) (string, bool, error) {
	return f(ctx, message, options)
}

// MultiDisplay fans every notification out to each display in order.
type MultiDisplay []Display

func (m MultiDisplay) OnProgress(p progress.WorkflowProgress) {
	for _, d := range m {
		if d != nil {
			d.OnProgress(p.Clone())
		}
	}
}

func (m MultiDisplay) OnFinish(p progress.WorkflowProgress) {
	for _, d := range m {
		if f, ok := d.(progress.Finisher); ok {
			f.OnFinish(p.Clone())
		}
	}
}

func (m MultiDisplay) OnError(err error) {
	for _, d := range m {
		if d != nil {
			d.OnError(err)
		}
	}
}

func (m MultiDisplay) OnIssues(issues []diagnostics.Issue) {
	for _, d := range m {
		if d != nil {
			d.OnIssues(append([]diagnostics.Issue{}, issues...))
		}
	}
}

// LogbookDisplay writes phase transitions and outcomes to the logbook.
type LogbookDisplay struct {
	book *logbook.Logbook

	mu        sync.Mutex
	lastPhase string
	lastValue int
}

// NewLogbookDisplay wraps book. A nil book yields a silent display.
func NewLogbookDisplay(book *logbook.Logbook) *LogbookDisplay {
	return &LogbookDisplay{book: book, lastValue: -1}
}

func (l *LogbookDisplay) OnProgress(p progress.WorkflowProgress) {
	if l == nil || l.book == nil {
		return
	}
	l.mu.Lock()
	changed := p.Phase != l.lastPhase || p.Progress != l.lastValue
	l.lastPhase, l.lastValue = p.Phase, p.Progress
	l.mu.Unlock()
	if changed {
		l.book.Phase(string(p.Mode), p.Phase, p.Progress)
	}
}

// OnFinish records the outcome and forgets the last phase so a chained
// session starts a fresh history.
func (l *LogbookDisplay) OnFinish(p progress.WorkflowProgress) {
	if l == nil || l.book == nil {
		return
	}
	l.book.Outcome(string(p.Mode), string(p.Status), p.Error)
	l.reset()
}

func (l *LogbookDisplay) OnError(err error) {
	if l == nil || l.book == nil || err == nil {
		return
	}
	l.book.Error("%v", err)
}

func (l *LogbookDisplay) OnIssues(issues []diagnostics.Issue) {
	if l == nil || l.book == nil {
		return
	}
	for _, issue := range issues {
		l.book.Warn("%s %s:%d %s", issue.Severity, issue.File, issue.Line, issue.Message)
	}
}

func (l *LogbookDisplay) reset() {
	l.mu.Lock()
	l.lastPhase, l.lastValue = "", -1
	l.mu.Unlock()
}

// progressOnly adapts a Display to progress.Display and progress.Finisher.
type progressOnly struct{ Display }

func (p progressOnly) OnProgress(wp progress.WorkflowProgress) {
	if p.Display != nil {
		p.Display.OnProgress(wp)
	}
}

func (p progressOnly) OnFinish(wp progress.WorkflowProgress) {
	if f, ok := p.Display.(progress.Finisher); ok {
		f.OnFinish(wp)
	}
}

type nopDisplay struct{}

func (nopDisplay) OnProgress(progress.WorkflowProgress) {}
func (nopDisplay) OnError(error)                        {}
func (nopDisplay) OnIssues([]diagnostics.Issue)         {}
