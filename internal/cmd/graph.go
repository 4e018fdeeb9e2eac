package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/harrison/buildgraph/internal/filelock"
	"github.com/harrison/buildgraph/internal/planner"
	"github.com/spf13/cobra"
)

// NewGraphCommand creates and returns the graph subcommand
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [target...]",
		Short: "Write the target graph in Graphviz DOT format",
		Long: `Write every declared target and its relations in Graphviz DOT format.
dependsOn edges are solid, before/after edges dashed and trigger edges dotted.
When targets are given, the targets their plan would run are drawn bold.

Examples:
  buildgraph graph | dot -Tsvg > build.svg
  buildgraph graph Test --output build.dot`,
		RunE: graphCommand,
	}

	cmd.Flags().StringP("output", "o", "", "Write the graph to this file instead of stdout")

	return cmd
}

func graphCommand(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd, nil)
	if err != nil {
		return err
	}

	var highlight []string
	if len(args) > 0 {
		plan, err := planner.Plan(ws.graph, args...)
		if err != nil {
			return exitError("planning failed", err)
		}
		highlight = plan.Names()
	}

	var buf bytes.Buffer
	if err := ws.graph.WriteDot(&buf, filepath.Base(ws.root), highlight...); err != nil {
		return fmt.Errorf("failed to render graph: %w", err)
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := filelock.AtomicWrite(output, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Graph written to %s\n", output)
	return nil
}
