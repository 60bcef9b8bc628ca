package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/jaegis/internal/agents"
	"github.com/kingrea/jaegis/internal/mode"
	"github.com/kingrea/jaegis/internal/orchestrator"
	"github.com/kingrea/jaegis/internal/tui"
)

type runFlags struct {
	agents   []string
	analysis string
	noTUI    bool
	delay    time.Duration
}

func newRunCommand(root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <mode>",
		Short: "Execute a workflow mode",
		Long: "Execute one workflow mode against the project. Run 'jaegis modes' for\n" +
			"the list of modes and their phases.",
		Args: cobra.ExactArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return mode.Names(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(cmd, root, flags, args[0])
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&flags.agents, "agents", nil, "recommended agents (comma separated); replaces the analysis list")
	f.StringVar(&flags.analysis, "analysis", "", "YAML project analysis file")
	f.BoolVar(&flags.noTUI, "no-tui", false, "print plain progress lines instead of the interactive board")
	f.DurationVar(&flags.delay, "delay", -1, "time spent in each phase (overrides execution.phase_delay)")
	return cmd
}

func runMode(cmd *cobra.Command, root *rootFlags, flags *runFlags, modeName string) error {
	dir, err := root.projectDir()
	if err != nil {
		return err
	}
	analysis, err := loadAnalysis(flags)
	if err != nil {
		return err
	}
	rt, err := newRuntime(dir, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()
	if flags.delay >= 0 {
		rt.cfg.SetPhaseDelay(flags.delay)
	}

	ctx := cmd.Context()
	if err := rt.startServer(ctx); err != nil {
		return err
	}

	if flags.noTUI {
		display := NewConsoleDisplay(cmd.OutOrStdout())
		prompter := NewLinePrompter(cmd.InOrStdin(), cmd.OutOrStdout())
		exec := rt.buildExecutor(display, prompter)
		session, err := exec.ExecuteMode(ctx, modeName, analysis)
		if err != nil {
			// Already shown by the display.
			return silentError{err}
		}
		printSummary(cmd, session)
		return nil
	}

	bridge := tui.NewBridge()
	exec := rt.buildExecutor(bridge, bridge)
	run := func(ctx context.Context) (*orchestrator.Session, error) {
		return exec.ExecuteMode(ctx, modeName, analysis)
	}
	app := tui.NewApp(ctx, mode.Mode(strings.TrimSpace(modeName)), run,
		tui.WithLogbook(rt.book),
		tui.WithLatest(exec.Latest),
	)
	program := tea.NewProgram(app,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	bridge.Attach(program)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run board: %w", err)
	}
	if err := app.Err(); err != nil {
		if orchestrator.IsUserFacing(err) {
			fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("error: ")+err.Error())
			return silentError{err}
		}
		return fmt.Errorf("run %s: %w", strings.TrimSpace(modeName), err)
	}
	printSummary(cmd, app.Session())
	return nil
}

func loadAnalysis(flags *runFlags) (orchestrator.ProjectAnalysis, error) {
	var analysis orchestrator.ProjectAnalysis
	if flags.analysis != "" {
		loaded, err := orchestrator.LoadAnalysis(flags.analysis)
		if err != nil {
			return analysis, err
		}
		analysis = loaded
	}
	if len(flags.agents) > 0 {
		analysis.RecommendedAgents = agents.Normalize(agents.FromStrings(flags.agents))
	}
	return analysis, nil
}

func printSummary(cmd *cobra.Command, session *orchestrator.Session) {
	if session == nil {
		return
	}
	out := cmd.OutOrStdout()
	for s := session; s != nil; s = s.Next {
		fmt.Fprintf(out, "%s %s: %s at %d%%\n",
			mutedStyle.Render("session "+shortID(s.ID)),
			s.Mode,
			tui.StatusStyle(s.Status()).Render(string(s.Status())),
			s.Progress.Progress,
		)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// silentError carries an error the display already rendered; only the exit
// code is left to report.
type silentError struct{ err error }

func (e silentError) Error() string { return e.err.Error() }
func (e silentError) Unwrap() error { return e.err }
