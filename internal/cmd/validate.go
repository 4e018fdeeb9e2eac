package cmd

import (
	"fmt"

	"github.com/harrison/buildgraph/internal/planner"
	"github.com/spf13/cobra"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the build file",
		Long: `Parse the build file and check it for:
  - Duplicate target names
  - Relations naming unknown targets
  - Dependency and ordering cycles
  - Trigger cycles reachable from any target
  - Malformed artifact patterns and requirements

Exit code: 0 if valid, 2 if errors found`,
		Args: cobra.NoArgs,
		RunE: validateCommand,
	}

	return cmd
}

func validateCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ws, err := loadWorkspace(cmd, out)
	if err != nil {
		return err
	}

	// Trigger cycles only surface once a plan pulls the cycle in.
	for _, t := range ws.graph.Targets() {
		if _, err := planner.Plan(ws.graph, t.Name); err != nil {
			return exitError(fmt.Sprintf("planning %s failed", t.Name), err)
		}
	}

	fmt.Fprintf(out, "Build file %s is valid.\n", ws.file.Path)
	return nil
}
