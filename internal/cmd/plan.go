package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/harrison/buildgraph/internal/graph"
	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/planner"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewPlanCommand creates and returns the plan subcommand
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [target...]",
		Short: "Show the execution plan without running it",
		Long: `Resolve the requested targets (or the build file's default target) into
an execution plan and print it: the order targets would run in, why each one
is included, and which targets trigger it.

Examples:
  buildgraph plan Test
  buildgraph plan Coverage --format yaml`,
		RunE: planCommand,
	}

	cmd.Flags().String("format", "text", "Output format (text, yaml)")

	return cmd
}

func planCommand(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "yaml" {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --format %q, must be one of: text, yaml", format))
	}

	ws, err := loadWorkspace(cmd, nil)
	if err != nil {
		return err
	}
	requested, err := ws.requestedTargets(args)
	if err != nil {
		return err
	}
	plan, err := planner.Plan(ws.graph, requested...)
	if err != nil {
		return exitError("planning failed", err)
	}

	if format == "yaml" {
		return writePlanYAML(cmd.OutOrStdout(), plan, ws.graph)
	}
	writePlanText(cmd.OutOrStdout(), plan)
	return nil
}

// writePlanText prints one numbered line per planned target.
func writePlanText(w io.Writer, plan *models.Plan) {
	fmt.Fprintf(w, "Execution plan for %s (%d target(s)):\n", strings.Join(plan.Requested, ", "), plan.Len())

	width := 0
	for _, e := range plan.Entries {
		width = max(width, len(e.Target.Name))
	}
	for i, e := range plan.Entries {
		reason := e.Reason.String()
		switch {
		case e.Reason == models.ReasonTriggered:
			reason = "triggered by " + strings.Join(e.TriggerSources, ", ")
		case len(e.Enables) > 0:
			reason = "dependency of " + strings.Join(e.Enables, ", ")
		}
		fmt.Fprintf(w, "  %2d. %-*s  %s\n", i+1, width, e.Target.Name, reason)
	}
}

type planDocument struct {
	Requested []string     `yaml:"requested"`
	Targets   []planTarget `yaml:"targets"`
}

type planTarget struct {
	Name        string   `yaml:"name"`
	Reason      string   `yaml:"reason"`
	DependsOn   []string `yaml:"depends_on,omitempty"`
	TriggeredBy []string `yaml:"triggered_by,omitempty"`
	Enables     []string `yaml:"enables,omitempty"`
	Produces    []string `yaml:"produces,omitempty"`
}

func writePlanYAML(w io.Writer, plan *models.Plan, g *graph.Graph) error {
	doc := planDocument{Requested: plan.Requested}
	for _, e := range plan.Entries {
		doc.Targets = append(doc.Targets, planTarget{
			Name:        e.Target.Name,
			Reason:      e.Reason.String(),
			DependsOn:   g.Dependencies(e.Target.Name),
			TriggeredBy: e.TriggerSources,
			Enables:     e.Enables,
			Produces:    e.Target.Produces,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	return enc.Close()
}
