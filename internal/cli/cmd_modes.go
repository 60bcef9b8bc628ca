package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kingrea/jaegis/internal/mode"
)

type modesFlags struct {
	phases bool
}

func newModesCommand() *cobra.Command {
	flags := &modesFlags{}
	cmd := &cobra.Command{
		Use:   "modes",
		Short: "List the available workflow modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, m := range mode.All() {
				fmt.Fprintf(w, "%s\t%s\n", phaseStyle.Render(string(m)), m.Description())
				if !flags.phases {
					continue
				}
				for _, phase := range mode.Phases(m) {
					gate := ""
					if phase.Gate != nil {
						gate = " (asks: " + strings.Join(phase.Gate.Options, "/") + ")"
					}
					fmt.Fprintf(w, "\t  %3d%%  %s%s\n", phase.Progress, phase.Name, gate)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&flags.phases, "phases", false, "also print each mode's phase table")
	return cmd
}
