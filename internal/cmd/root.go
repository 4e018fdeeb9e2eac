package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for buildgraph
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buildgraph",
		Short: "Dependency-aware build target runner",
		Long: `buildgraph runs the targets of a build definition (build.yaml, build.hcl
or BUILD.md) in dependency order.

Targets declare what they depend on, what they must run before or after,
which targets trigger them and which artifacts they consume and produce.
buildgraph turns a request into a deterministic execution plan, checks the
plan's requirements up front and then runs it one target at a time.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
		// main prints the error and picks the exit code
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("file", "f", "", "Build file to load (default: build.yaml, build.yml, build.hcl or BUILD.md in the build root)")
	cmd.PersistentFlags().String("config", "", "Path to config file (default: .buildgraph/config.yaml)")

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewPlanCommand())
	cmd.AddCommand(NewGraphCommand())
	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
