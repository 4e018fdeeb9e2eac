package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/params"
	"github.com/spf13/cobra"
)

// NewListCommand creates and returns the list subcommand
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List targets and parameters",
		Long: `List the declared targets in declaration order, marking the default
target with '*', followed by the build parameters and their resolved values.
Secret parameters are masked.`,
		Args: cobra.NoArgs,
		RunE: listCommand,
	}

	addParamFlags(cmd)

	return cmd
}

func listCommand(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd, nil)
	if err != nil {
		return err
	}
	provider, err := ws.provider(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	writeTargetList(out, ws.graph.Targets(), ws.file.Default)
	fmt.Fprintln(out)
	writeParameterList(out, provider)
	return nil
}

func writeTargetList(w io.Writer, targets []models.Target, defaultTarget string) {
	fmt.Fprintf(w, "Targets (%d):\n", len(targets))
	width := 0
	for _, t := range targets {
		width = max(width, len(t.Name))
	}
	for _, t := range targets {
		marker := " "
		if defaultTarget != "" && models.SameName(t.Name, defaultTarget) {
			marker = "*"
		}
		line := fmt.Sprintf("  %s %-*s  %s", marker, width, t.Name, t.Description)
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func writeParameterList(w io.Writer, provider *params.Provider) {
	declared := make(map[string]params.Parameter)
	for _, d := range provider.Declared() {
		declared[models.NormalizeName(d.Name)] = d
	}

	names := provider.Names()
	fmt.Fprintf(w, "Parameters (%d):\n", len(names))
	width := 0
	for _, n := range names {
		width = max(width, len(n))
	}
	for _, n := range names {
		value, source := provider.Lookup(n)
		decl := declared[models.NormalizeName(n)]
		shown := value
		switch {
		case source == params.SourceNone:
			shown = "(not set)"
		case decl.Secret:
			shown = "****"
		}
		line := fmt.Sprintf("  %-*s  %s", width, n, shown)
		if source != params.SourceNone {
			line += fmt.Sprintf(" [%s]", source)
		}
		if decl.Description != "" {
			line += "  " + decl.Description
		}
		fmt.Fprintln(w, line)
	}
}
