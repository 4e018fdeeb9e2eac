// Package logger reports buildgraph invocations.
//
// ConsoleLogger writes human-readable progress to a terminal or any writer,
// FileLogger keeps a per-run log plus one output file per target, and
// MultiLogger fans events out to several loggers. All implementations are
// safe for concurrent use and satisfy executor.Logger.
package logger

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/buildgraph/internal/executor"
	"github.com/harrison/buildgraph/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

var (
	_ executor.Logger = (*ConsoleLogger)(nil)
	_ executor.Logger = (*FileLogger)(nil)
	_ executor.Logger = (*MultiLogger)(nil)
	_ executor.Logger = (*NoOpLogger)(nil)
)

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	default:
		return "info"
	}
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "250ms", "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case d >= time.Second:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}

// painter colours s; plain output uses noPaint.
type painter func(s string, attrs ...color.Attribute) string

func noPaint(s string, _ ...color.Attribute) string { return s }

// planLines renders an execution plan: one summary line, then one line per entry.
func planLines(plan *models.Plan, paint painter) (string, []string) {
	summary := fmt.Sprintf("Plan: %d target(s): %s", plan.Len(), strings.Join(plan.Names(), " > "))
	details := make([]string, 0, plan.Len())
	for i, e := range plan.Entries {
		line := fmt.Sprintf("  %2d. %s (%s)", i+1, paint(e.Target.Name, color.Bold), e.Reason)
		if len(e.TriggerSources) > 0 {
			line += " <- " + strings.Join(e.TriggerSources, ", ")
		}
		if len(e.Enables) > 0 {
			line += " -> " + strings.Join(e.Enables, ", ")
		}
		details = append(details, line)
	}
	return summary, details
}

func startLine(entry models.PlanEntry, paint painter) string {
	msg := "Starting " + paint(entry.Target.Name, color.Bold)
	if entry.Reason == models.ReasonTriggered && len(entry.TriggerSources) > 0 {
		msg += " (triggered by " + strings.Join(entry.TriggerSources, ", ") + ")"
	}
	return msg
}

// resultLine renders a terminal target state and picks the level it is logged at.
func resultLine(tr models.TargetResult, paint painter) (string, string) {
	switch tr.State {
	case models.StateSucceeded:
		return "info", fmt.Sprintf("%s %s (%s)", tr.Name, paint("succeeded", color.FgGreen), formatDuration(tr.Duration))
	case models.StateFailed:
		return "error", fmt.Sprintf("%s %s (%s): %v", tr.Name, paint("failed", color.FgRed), formatDuration(tr.Duration), tr.Err)
	case models.StateSkipped:
		level := "info"
		if tr.SkipReason.IsFailure() {
			level = "warn"
		}
		return level, fmt.Sprintf("%s %s: %s", tr.Name, paint("skipped", color.FgYellow), skipDetail(tr))
	default:
		return "debug", fmt.Sprintf("%s %s", tr.Name, tr.State)
	}
}

func skipDetail(tr models.TargetResult) string {
	switch tr.SkipReason {
	case models.SkipDependencyFailed:
		return fmt.Sprintf("%s (%s failed)", tr.SkipReason, tr.SkippedFor)
	case models.SkipStopped:
		return fmt.Sprintf("%s (after %s failed)", tr.SkipReason, tr.SkippedFor)
	default:
		return string(tr.SkipReason)
	}
}

// summaryLines renders the final report: every planned target with its
// terminal state and failure cause, followed by the outcome.
func summaryLines(result models.InvocationResult, paint painter) []string {
	width := len("Target")
	for _, tr := range result.Results {
		width = max(width, len(tr.Name))
	}

	lines := []string{
		paint("=== Build Summary ===", color.Bold),
		fmt.Sprintf("%-*s  %-9s  %8s  %s", width, "Target", "State", "Duration", "Details"),
	}
	for _, tr := range result.Results {
		state := fmt.Sprintf("%-9s", tr.State)
		duration := "-"
		details := ""
		switch tr.State {
		case models.StateSucceeded:
			state = paint(state, color.FgGreen)
		case models.StateFailed:
			state = paint(state, color.FgRed)
			details = firstLine(fmt.Sprint(tr.Err))
		case models.StateSkipped:
			state = paint(state, color.FgYellow)
			details = skipDetail(tr)
		}
		if !tr.StartedAt.IsZero() {
			duration = formatDuration(tr.Duration)
		}
		lines = append(lines, strings.TrimRight(fmt.Sprintf("%-*s  %s  %8s  %s", width, tr.Name, state, duration, details), " "))
	}

	outcome := paint(result.Outcome.String(), color.FgGreen)
	if result.Outcome != models.OutcomeSuccess {
		outcome = paint(result.Outcome.String(), color.FgRed)
	}
	tail := fmt.Sprintf("Outcome: %s (%d succeeded, %d failed, %d skipped) in %s",
		outcome, len(result.Succeeded()), len(result.Failed()), len(result.Skipped()), formatDuration(result.Duration))
	if result.Interrupted {
		tail += ", interrupted"
	}
	return append(lines, tail)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// MultiLogger forwards every event to each of its loggers in order.
type MultiLogger struct {
	loggers []executor.Logger
}

// NewMultiLogger creates a MultiLogger; nil loggers are ignored.
func NewMultiLogger(loggers ...executor.Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

func (m *MultiLogger) LogPlan(plan *models.Plan) {
	for _, l := range m.loggers {
		l.LogPlan(plan)
	}
}

func (m *MultiLogger) LogTargetStart(entry models.PlanEntry) {
	for _, l := range m.loggers {
		l.LogTargetStart(entry)
	}
}

func (m *MultiLogger) LogTargetResult(result models.TargetResult) {
	for _, l := range m.loggers {
		l.LogTargetResult(result)
	}
}

func (m *MultiLogger) LogSummary(result models.InvocationResult) {
	for _, l := range m.loggers {
		l.LogSummary(result)
	}
}

// NoOpLogger is a Logger implementation that discards all log messages.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogPlan(plan *models.Plan)                  {}
func (n *NoOpLogger) LogTargetStart(entry models.PlanEntry)      {}
func (n *NoOpLogger) LogTargetResult(result models.TargetResult) {}
func (n *NoOpLogger) LogSummary(result models.InvocationResult)  {}
