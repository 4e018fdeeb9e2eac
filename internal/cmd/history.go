package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/harrison/buildgraph/internal/history"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates and returns the history subcommand
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded invocations",
		Long: `Show the most recent invocations recorded in .buildgraph/history.db.

Examples:
  buildgraph history                 # latest invocations
  buildgraph history --target Test   # how Test fared recently
  buildgraph history --id <id>       # every target of one invocation`,
		Args: cobra.NoArgs,
		RunE: historyCommand,
	}

	cmd.Flags().Int("limit", 10, "Maximum number of entries to show")
	cmd.Flags().String("target", "", "Show the recent results of one target")
	cmd.Flags().String("id", "", "Show one invocation in detail")

	return cmd
}

func historyCommand(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if _, err := os.Stat(cfg.History.DBPath); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "No invocations recorded yet.")
		return nil
	}

	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	limit, _ := cmd.Flags().GetInt("limit")
	target, _ := cmd.Flags().GetString("target")
	id, _ := cmd.Flags().GetString("id")

	switch {
	case id != "":
		inv, err := store.Get(ctx, id)
		if errors.Is(err, history.ErrNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("invocation %s not found", id))
		}
		if err != nil {
			return err
		}
		writeInvocation(out, inv)
	case target != "":
		runs, err := store.TargetHistory(ctx, target, limit)
		if err != nil {
			return err
		}
		writeTargetHistory(out, target, runs)
	default:
		invs, err := store.Recent(ctx, limit)
		if err != nil {
			return err
		}
		writeInvocations(out, invs)
	}
	return nil
}

const historyTimeFormat = "2006-01-02 15:04:05"

func writeInvocations(w io.Writer, invs []*history.Invocation) {
	if len(invs) == 0 {
		fmt.Fprintln(w, "No invocations recorded yet.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-19s  %-17s  %9s  %s\n", "ID", "Started", "Outcome", "Duration", "Targets")
	for _, inv := range invs {
		outcome := inv.Outcome
		if inv.Interrupted {
			outcome += "*"
		}
		fmt.Fprintf(w, "%-36s  %-19s  %-17s  %9s  %s\n",
			inv.ID, inv.StartedAt.Local().Format(historyTimeFormat), outcome,
			roundDuration(inv.Duration), strings.Join(inv.Requested, ", "))
	}
}

func writeInvocation(w io.Writer, inv *history.Invocation) {
	fmt.Fprintf(w, "Invocation:    %s\n", inv.ID)
	fmt.Fprintf(w, "Build file:    %s\n", inv.BuildFile)
	fmt.Fprintf(w, "Requested:     %s\n", strings.Join(inv.Requested, ", "))
	fmt.Fprintf(w, "Configuration: %s\n", inv.Configuration)
	fmt.Fprintf(w, "Started:       %s\n", inv.StartedAt.Local().Format(historyTimeFormat))
	fmt.Fprintf(w, "Duration:      %s\n", roundDuration(inv.Duration))
	outcome := inv.Outcome
	if inv.Interrupted {
		outcome += " (interrupted)"
	}
	fmt.Fprintf(w, "Outcome:       %s\n", outcome)
	if inv.Error != "" {
		fmt.Fprintf(w, "Error:         %s\n", inv.Error)
	}
	if len(inv.Targets) == 0 {
		return
	}

	fmt.Fprintln(w)
	width := len("Target")
	for _, t := range inv.Targets {
		width = max(width, len(t.Name))
	}
	fmt.Fprintf(w, "%-*s  %-9s  %9s  %s\n", width, "Target", "State", "Duration", "Details")
	for _, t := range inv.Targets {
		line := fmt.Sprintf("%-*s  %-9s  %9s  %s", width, t.Name, t.State, roundDuration(t.Duration), targetDetail(t))
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func writeTargetHistory(w io.Writer, target string, runs []history.TargetRecord) {
	if len(runs) == 0 {
		fmt.Fprintf(w, "No recorded runs of %s.\n", target)
		return
	}
	fmt.Fprintf(w, "%-36s  %-19s  %-9s  %9s  %s\n", "Invocation", "Started", "State", "Duration", "Details")
	for _, r := range runs {
		line := fmt.Sprintf("%-36s  %-19s  %-9s  %9s  %s",
			r.InvocationID, r.StartedAt.Local().Format(historyTimeFormat), r.State,
			roundDuration(r.Duration), targetDetail(r))
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func targetDetail(t history.TargetRecord) string {
	if t.Error != "" {
		first, _, _ := strings.Cut(t.Error, "\n")
		return first
	}
	if t.SkipReason == "" {
		return ""
	}
	if t.SkippedFor != "" {
		return fmt.Sprintf("%s (%s)", t.SkipReason, t.SkippedFor)
	}
	return t.SkipReason
}

func roundDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
