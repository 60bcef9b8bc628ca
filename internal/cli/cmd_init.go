package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/jaegis/internal/config"
	"github.com/kingrea/jaegis/internal/workspace"
)

type initFlags struct {
	monitoring bool
	agents     []string
}

func newInitCommand(root *rootFlags) *cobra.Command {
	flags := &initFlags{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the .jaegis directory and default config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := root.projectDir()
			if err != nil {
				return err
			}
			ws, err := workspace.Open(dir)
			if err != nil {
				return err
			}
			if err := config.InitDir(ws.Root()); err != nil {
				return fmt.Errorf("initialize %s: %w", config.JaegisDir, err)
			}
			cfg, err := config.NewConfig(ws.Root())
			if err != nil {
				return err
			}
			changed := false
			if cmd.Flags().Changed("enable-monitoring") {
				if cfg.Project.Preferences == nil {
					cfg.Project.Preferences = map[string]bool{}
				}
				cfg.Project.Preferences[config.PrefEnableMonitoring] = flags.monitoring
				changed = true
			}
			if cmd.Flags().Changed("agents") {
				cfg.Project.Execution.DefaultAgents = flags.agents
				changed = true
			}
			if changed {
				if err := cfg.Save(); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", cfg.JaegisProjectDir)
			fmt.Fprintf(cmd.OutOrStdout(), "Config: %s\n", cfg.ProjectConfigPath())
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.monitoring, "enable-monitoring", false, "serve /health, /progress and /metrics while a mode runs")
	cmd.Flags().StringSliceVar(&flags.agents, "agents", nil, "default agents used when an analysis recommends none")
	return cmd
}
