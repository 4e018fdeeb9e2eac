package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/buildgraph/internal/config"
	"github.com/harrison/buildgraph/internal/display"
	"github.com/harrison/buildgraph/internal/graph"
	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/params"
	"github.com/harrison/buildgraph/internal/parser"
	"github.com/spf13/cobra"
)

// workspace is everything a command needs once the build file is loaded.
type workspace struct {
	root  string
	cfg   *config.Config
	file  *parser.BuildFile
	graph *graph.Graph
}

// loadConfig finds the build root and loads its configuration. merge, when
// non-nil, applies command flags before paths are resolved and validated.
func loadConfig(cmd *cobra.Command, merge func(*config.Config) error) (string, *config.Config, error) {
	root, err := config.FindRoot(".")
	if err != nil {
		return "", nil, WrapExitError(ExitCommandError, "failed to locate build root", err)
	}

	configPath, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return "", nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load config from %s", configPath), err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(root)
		if err != nil {
			return "", nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}

	if cmd.Flags().Changed("file") {
		file, _ := cmd.Flags().GetString("file")
		abs, err := filepath.Abs(file)
		if err != nil {
			return "", nil, WrapExitError(ExitCommandError, "invalid --file", err)
		}
		cfg.MergeWithFlags(&abs, nil, nil, nil, nil)
	}
	if merge != nil {
		if err := merge(cfg); err != nil {
			return "", nil, WrapExitError(ExitCommandError, "invalid flags", err)
		}
	}

	cfg.Resolve(root)
	if err := cfg.Validate(); err != nil {
		return "", nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return root, cfg, nil
}

// loadBuild picks and parses the build file and builds its graph. Progress
// messages go to progress when it is non-nil; warnings always go to warn.
func loadBuild(root string, cfg *config.Config, progress, warn io.Writer) (*workspace, error) {
	path := cfg.BuildFile
	if path == "" {
		files := config.BuildFiles(root)
		if len(files) == 0 {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("no build file found in %s (looked for %s)", root, strings.Join(config.BuildFileNames, ", ")))
		}
		if len(files) > 1 {
			display.WarnMultipleBuildFiles(files).Display(warn)
		}
		path = files[0]
	}

	if progress != nil {
		display.LoadingBuildFile(progress, path)
	}
	bf, err := parser.ParseFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid build file", err)
	}

	reg, err := bf.Registry()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid build file", err)
	}
	g, err := graph.Build(reg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid target graph", err)
	}
	if progress != nil {
		display.BuildFileLoaded(progress, bf.Format.String(), len(bf.Targets), len(bf.Parameters))
	}

	return &workspace{root: root, cfg: cfg, file: bf, graph: g}, nil
}

// loadWorkspace is loadConfig followed by loadBuild.
func loadWorkspace(cmd *cobra.Command, progress io.Writer) (*workspace, error) {
	root, cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, err
	}
	return loadBuild(root, cfg, progress, cmd.ErrOrStderr())
}

// requestedTargets returns args, or the build file's default target when
// args is empty.
func (ws *workspace) requestedTargets(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if ws.file.Default == "" {
		return nil, NewExitError(ExitCommandError, "no targets requested and the build file declares no default target")
	}
	return []string{ws.file.Default}, nil
}

// addParamFlags registers the parameter flags shared by run and list.
func addParamFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("configuration", "c", "", "Build configuration (default: Debug locally, Release on a server)")
	cmd.Flags().StringArrayP("param", "p", nil, "Set a build parameter (name=value, repeatable)")
}

// provider builds the parameter provider from the --param and
// --configuration flags, the config file and the build file declarations.
func (ws *workspace) provider(cmd *cobra.Command) (*params.Provider, error) {
	pairs, _ := cmd.Flags().GetStringArray("param")
	flags, err := params.ParseAssignments(pairs)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --param", err)
	}
	if cmd.Flags().Changed("configuration") {
		configuration, _ := cmd.Flags().GetString("configuration")
		flags[models.ConfigurationParam] = configuration
	}

	return params.NewProvider(params.Options{
		Flags:       flags,
		Config:      ws.cfg.Parameters,
		Declared:    ws.file.Parameters,
		Interactive: params.IsInteractive(os.Stdout, os.LookupEnv),
	}), nil
}
