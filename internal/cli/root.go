// Package cli wires the jaegis commands onto the orchestrator.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// Streams are the terminal handles commands read from and write to.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type rootFlags struct {
	dir string
}

// NewRootCommand builds the command tree.
func NewRootCommand(streams Streams) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "jaegis",
		Short: "Run workflow modes against the current project",
		Long: "jaegis drives a project through a fixed workflow mode (documentation,\n" +
			"full development, debugging...) and reports progress as it goes.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)
	root.PersistentFlags().StringVarP(&flags.dir, "dir", "C", "", "project directory (defaults to the working directory)")

	root.AddCommand(newInitCommand(flags))
	root.AddCommand(newModesCommand())
	root.AddCommand(newRunCommand(flags))
	root.AddCommand(newStatusCommand(flags))
	return root
}

func (f *rootFlags) projectDir() (string, error) {
	if f.dir != "" {
		return f.dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(ctx context.Context, args []string, streams Streams) int {
	root := NewRootCommand(streams)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var silent silentError
		if !errors.As(err, &silent) {
			fmt.Fprintln(streams.Err, err)
		}
		return 1
	}
	return 0
}
