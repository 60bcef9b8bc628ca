package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/jaegis/internal/diagnostics"
	"github.com/kingrea/jaegis/internal/progress"
	"github.com/kingrea/jaegis/internal/tui"
)

var (
	phaseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
)

// ConsoleDisplay prints one line per progress notification and one line for
// the outcome.
type ConsoleDisplay struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleDisplay writes to w.
func NewConsoleDisplay(w io.Writer) *ConsoleDisplay {
	return &ConsoleDisplay{w: w}
}

func (c *ConsoleDisplay) OnProgress(p progress.WorkflowProgress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s %s %s\n",
		phaseStyle.Render(fmt.Sprintf("[%3d%%]", p.Progress)),
		p.Phase,
		mutedStyle.Render(fmt.Sprintf("(%d done, %d left)", len(p.CompletedTasks), len(p.RemainingTasks))),
	)
}

// OnFinish prints the terminal status of a session.
func (c *ConsoleDisplay) OnFinish(p progress.WorkflowProgress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s %s (%d%%)\n", tui.StatusStyle(p.Status).Render(string(p.Status)), p.Phase, p.Progress)
}

func (c *ConsoleDisplay) OnError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, errorStyle.Render("error: ")+err.Error())
}

func (c *ConsoleDisplay) OnIssues(issues []diagnostics.Issue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(issues) == 0 {
		fmt.Fprintln(c.w, mutedStyle.Render("no diagnostics reported"))
		return
	}
	for _, issue := range issues {
		fmt.Fprintf(c.w, "  %s %s:%d %s\n",
			tui.SeverityStyle(issue.Severity).Render(string(issue.Severity)),
			issue.File, issue.Line, issue.Message)
	}
}

// LinePrompter asks choices on w and reads the answer from r, either the
// option number or its text. An empty line, EOF or an unknown answer
// dismisses the prompt.
type LinePrompter struct {
	mu     sync.Mutex
	reader *bufio.Reader
	w      io.Writer
}

// NewLinePrompter reads from r and writes to w.
func NewLinePrompter(r io.Reader, w io.Writer) *LinePrompter {
	return &LinePrompter{reader: bufio.NewReader(r), w: w}
}

func (p *LinePrompter) ShowChoice(ctx context.Context, message string, options []string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, promptStyle.Render(message))
	for i, opt := range options {
		fmt.Fprintf(p.w, "  %d) %s\n", i+1, opt)
	}
	fmt.Fprint(p.w, "> ")

	type result struct {
		line string
		err  error
	}
	lines := make(chan result, 1)
	go func() {
		line, err := p.reader.ReadString('\n')
		lines <- result{line: line, err: err}
	}()
	var res result
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res = <-lines:
	}
	answer := strings.TrimSpace(res.line)
	if answer == "" {
		if res.err != nil && res.err != io.EOF {
			return "", false, res.err
		}
		return "", false, nil
	}
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], true, nil
	}
	for _, opt := range options {
		if strings.EqualFold(opt, answer) {
			return opt, true, nil
		}
	}
	fmt.Fprintln(p.w, mutedStyle.Render(fmt.Sprintf("%q is not one of the options; dismissed", answer)))
	return "", false, nil
}
