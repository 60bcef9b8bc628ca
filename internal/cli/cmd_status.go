package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/jaegis/internal/config"
	"github.com/kingrea/jaegis/internal/logbook"
	"github.com/kingrea/jaegis/internal/orchestrator"
	"github.com/kingrea/jaegis/internal/tui"
)

type statusFlags struct {
	lines int
}

func newStatusCommand(root *rootFlags) *cobra.Command {
	flags := &statusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last session and recent progress log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := root.projectDir()
			if err != nil {
				return err
			}
			cfg, err := config.NewConfig(dir)
			if err != nil {
				return err
			}
			return printStatus(cmd, cfg, flags.lines)
		},
	}
	cmd.Flags().IntVarP(&flags.lines, "lines", "n", 10, "number of logbook lines to show")
	return cmd
}

func printStatus(cmd *cobra.Command, cfg *config.Config, lines int) error {
	out := cmd.OutOrStdout()
	session, err := orchestrator.NewStore(cfg.SessionStatePath()).Load()
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		fmt.Fprintln(out, "No session recorded yet. Run 'jaegis run <mode>' to start one.")
	case err != nil:
		return fmt.Errorf("load session: %w", err)
	default:
		for s := session; s != nil; s = s.Next {
			printSession(cmd, s)
		}
	}

	book, err := logbook.New(cfg.ProgressLogPath())
	if err != nil {
		return err
	}
	tail, total := book.Tail(lines)
	if total == 0 {
		return nil
	}
	fmt.Fprintf(out, "\nLog (%d of %d entries):\n", len(tail), total)
	for _, line := range tail {
		fmt.Fprintf(out, "  %s\n", line)
	}
	return nil
}

func printSession(cmd *cobra.Command, s *orchestrator.Session) {
	out := cmd.OutOrStdout()
	p := s.Progress
	fmt.Fprintf(out, "Session:  %s\n", s.ID)
	fmt.Fprintf(out, "Mode:     %s\n", s.Mode)
	fmt.Fprintf(out, "Status:   %s\n", tui.StatusStyle(p.Status).Render(string(p.Status)))
	fmt.Fprintf(out, "Phase:    %s (%d%%)\n", p.Phase, p.Progress)
	if len(p.CompletedTasks) > 0 {
		fmt.Fprintf(out, "Done:     %s\n", strings.Join(p.CompletedTasks, ", "))
	}
	if len(p.RemainingTasks) > 0 {
		fmt.Fprintf(out, "Left:     %s\n", strings.Join(p.RemainingTasks, ", "))
	}
	if len(s.ActiveAgents) > 0 {
		names := make([]string, 0, len(s.ActiveAgents))
		for _, id := range s.ActiveAgents {
			names = append(names, string(id))
		}
		fmt.Fprintf(out, "Agents:   %s\n", strings.Join(names, ", "))
	}
	if len(s.Issues) > 0 {
		fmt.Fprintf(out, "Issues:   %d\n", len(s.Issues))
	}
	if s.Choice != "" {
		fmt.Fprintf(out, "Choice:   %s\n", s.Choice)
	}
	if s.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", s.Error)
	}
	if !s.StartedAt.IsZero() && !s.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Took:     %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
}
