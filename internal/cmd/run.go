package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/harrison/buildgraph/internal/config"
	"github.com/harrison/buildgraph/internal/display"
	"github.com/harrison/buildgraph/internal/executor"
	"github.com/harrison/buildgraph/internal/filelock"
	"github.com/harrison/buildgraph/internal/history"
	"github.com/harrison/buildgraph/internal/logger"
	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/params"
	"github.com/harrison/buildgraph/internal/planner"
	"github.com/spf13/cobra"
)

// NewRunCommand creates and returns the run subcommand
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [target...]",
		Short: "Plan and execute build targets",
		Long: `Resolve the requested targets into an execution plan and run it.

Without targets the build file's default target is run. Dependencies run
first, in a deterministic order; targets triggered by a planned target run
only when one of their triggers succeeded. A failed target skips everything
that depends on it while independent targets keep running.

Configuration is loaded from .buildgraph/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  buildgraph run                          # run the default target
  buildgraph run Test Pack                # run Test and Pack with their dependencies
  buildgraph run Pack -c Release          # select the build configuration
  buildgraph run NugetPush -p NugetApiKey=...
  buildgraph run Test --skip Restore      # skip one planned target
  buildgraph run Test --dry-run           # show the plan without executing
  buildgraph run --timeout 10m --stop-on-failure

Exit code: 0 on success, 1 if a target failed or a requirement was not met,
2 for invalid build files, unknown targets, cycles and bad flags`,
		RunE: runCommand,
	}

	addParamFlags(cmd)
	cmd.Flags().StringArray("skip", nil, "Skip a planned target without skipping its dependents (repeatable)")
	cmd.Flags().String("timeout", "", "Default per-target timeout (e.g., 30s, 10m, 1h)")
	cmd.Flags().Bool("stop-on-failure", false, "Skip every remaining target after the first failure")
	cmd.Flags().Bool("dry-run", false, "Show the plan without executing targets")
	cmd.Flags().BoolP("verbose", "v", false, "Show detailed execution information")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().Bool("no-history", false, "Do not record this invocation in the history database")
	cmd.Flags().Bool("wait-lock", false, "Wait for another invocation in this workspace to finish instead of failing")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	root, cfg, err := loadConfig(cmd, func(cfg *config.Config) error {
		return mergeRunFlags(cmd, cfg)
	})
	if err != nil {
		return err
	}

	ws, err := loadBuild(root, cfg, out, cmd.ErrOrStderr())
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

	skips, _ := cmd.Flags().GetStringArray("skip")
	var skip, notPlanned []string
	for _, s := range skips {
		if plan.Contains(s) {
			skip = append(skip, s)
		} else {
			notPlanned = append(notPlanned, s)
		}
	}
	if len(notPlanned) > 0 {
		display.WarnSkipNotPlanned(notPlanned).Display(out)
	}

	provider, err := ws.provider(cmd)
	if err != nil {
		return err
	}
	bc := provider.BuildContext(params.BuildOptions{
		RootDir:      root,
		ArtifactsDir: cfg.ArtifactsDir,
		Invoked:      plan.Requested,
	})

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		fmt.Fprintln(out)
		writePlanText(out, plan)
		fmt.Fprintf(out, "\nDry-run mode: configuration %s, no targets executed.\n", bc.Configuration())
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	waitLock, _ := cmd.Flags().GetBool("wait-lock")
	lock, err := filelock.Acquire(ctx, filepath.Join(root, config.DirName), waitLock)
	if err != nil {
		if errors.Is(err, filelock.ErrLocked) {
			return WrapExitError(ExitCommandError, "cannot start", err)
		}
		return WrapExitError(ExitFailure, "cannot start", err)
	}
	defer lock.Unlock()

	// Determine log level: verbose flag overrides config
	logLevel := cfg.LogLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logLevel = "debug"
	}

	consoleLog := logger.NewConsoleLoggerWithColor(out, logLevel, cfg.Color)
	loggers := []executor.Logger{consoleLog}
	sinks := []logger.OutputSink{consoleLog}

	fileLog, err := logger.NewFileLogger(cfg.LogDir, logLevel)
	if err != nil {
		consoleLog.LogWarn(fmt.Sprintf("File logging disabled: %v", err))
	} else {
		defer fileLog.Close()
		loggers = append(loggers, fileLog)
		sinks = append(sinks, fileLog)
	}

	exec := executor.New(ws.graph, executor.Options{
		Build:          bc,
		Logger:         logger.NewMultiLogger(loggers...),
		Output:         logger.TeeOutput(sinks...),
		DefaultTimeout: cfg.Timeout,
		StopOnFailure:  cfg.StopOnFailure,
		Skip:           skip,
	})
	orch := executor.NewOrchestrator(exec, cmd.ErrOrStderr())

	startedAt := time.Now()
	result, runErr := orch.ExecutePlan(ctx, plan)

	if executor.IsRequirementError(runErr) {
		consoleLog.LogError(runErr.Error())
		if fileLog != nil {
			fileLog.LogError(runErr.Error())
		}
	}

	if cfg.History.Enabled {
		inv := historyRecord(ws.file.Path, bc, plan, result, runErr, startedAt)
		if inv != nil {
			if err := recordHistory(ctx, cfg.History, inv); err != nil {
				consoleLog.LogWarn(fmt.Sprintf("Failed to record history: %v", err))
			}
		}
	}

	if fileLog != nil {
		consoleLog.LogInfo(fmt.Sprintf("Run log: %s", fileLog.RunFile()))
	}

	if runErr != nil {
		return exitError("build failed", runErr)
	}
	return nil
}

// mergeRunFlags applies the run flags that override configuration keys.
func mergeRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	var timeoutPtr *time.Duration
	if cmd.Flags().Changed("timeout") {
		timeoutStr, _ := cmd.Flags().GetString("timeout")
		d, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("invalid --timeout %q: %w", timeoutStr, err)
		}
		timeoutPtr = &d
	}

	var logDirPtr *string
	if cmd.Flags().Changed("log-dir") {
		logDir, _ := cmd.Flags().GetString("log-dir")
		abs, err := filepath.Abs(logDir)
		if err != nil {
			return fmt.Errorf("invalid --log-dir: %w", err)
		}
		logDirPtr = &abs
	}

	var stopPtr *bool
	if cmd.Flags().Changed("stop-on-failure") {
		stop, _ := cmd.Flags().GetBool("stop-on-failure")
		stopPtr = &stop
	}

	var noHistoryPtr *bool
	if cmd.Flags().Changed("no-history") {
		noHistory, _ := cmd.Flags().GetBool("no-history")
		noHistoryPtr = &noHistory
	}

	cfg.MergeWithFlags(nil, timeoutPtr, logDirPtr, stopPtr, noHistoryPtr)
	return nil
}

// historyRecord converts the outcome of a run into a history entry. It
// returns nil when there is nothing worth recording.
func historyRecord(buildFile string, bc *models.BuildContext, plan *models.Plan, result *models.InvocationResult, runErr error, startedAt time.Time) *history.Invocation {
	if result != nil {
		return history.FromResult(buildFile, result)
	}
	if !executor.IsRequirementError(runErr) {
		return nil
	}
	return &history.Invocation{
		ID:            bc.InvocationID(),
		BuildFile:     buildFile,
		Requested:     plan.Requested,
		Configuration: bc.Configuration(),
		Outcome:       history.OutcomeRequirementFailed,
		Error:         runErr.Error(),
		StartedAt:     startedAt,
		Duration:      time.Since(startedAt),
	}
}

func recordHistory(ctx context.Context, hc config.HistoryConfig, inv *history.Invocation) error {
	store, err := history.NewStore(hc.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RecordInvocation(ctx, inv); err != nil {
		return err
	}
	if _, err := store.Prune(ctx, hc.KeepInvocations); err != nil {
		return err
	}
	return nil
}
