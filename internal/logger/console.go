package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/harrison/buildgraph/internal/models"
	"github.com/mattn/go-isatty"
)

// ConsoleLogger logs invocation progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking execution flow.
// It supports log level filtering to control message verbosity.
// Color output is automatically enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// logLevel determines the minimum log level for messages to be output.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return NewConsoleLoggerWithColor(writer, logLevel, "auto")
}

// NewConsoleLoggerWithColor is NewConsoleLogger with an explicit color mode:
// "always", "never" or "auto" (color only when writer is a terminal).
func NewConsoleLoggerWithColor(writer io.Writer, logLevel, mode string) *ConsoleLogger {
	useColor := false
	switch strings.ToLower(mode) {
	case "always":
		useColor = writer != nil
	case "never":
	default:
		useColor = isTerminal(writer)
	}

	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: useColor,
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
// NO_COLOR (via color.NoColor) disables colors even on a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	fd := f.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return false
	}
	return !color.NoColor
}

// shouldLog checks if a message at the given level should be logged.
// Returns true if messageLevel >= configured logLevel.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// paint applies attrs when color output is enabled, regardless of color.NoColor.
func (cl *ConsoleLogger) paint(s string, attrs ...color.Attribute) string {
	if !cl.colorOutput || len(attrs) == 0 {
		return s
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(s)
}

// LogTrace logs a trace-level message (most verbose).
// Format: "[HH:MM:SS] [TRACE] <message>"
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

// logWithLevel is a helper that logs a message at the specified level if filtering allows it.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", ts, cl.levelLabel(level), message)
}

// levelLabel colors a level name.
func (cl *ConsoleLogger) levelLabel(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return cl.paint(level, color.FgHiBlack)
	case "DEBUG":
		return cl.paint(level, color.FgCyan)
	case "INFO":
		return cl.paint(level, color.FgBlue)
	case "WARN":
		return cl.paint(level, color.FgYellow)
	case "ERROR":
		return cl.paint(level, color.FgRed)
	default:
		return level
	}
}

// LogPlan logs the planned target order at INFO level and each entry's
// inclusion reason at DEBUG level.
func (cl *ConsoleLogger) LogPlan(plan *models.Plan) {
	summary, details := planLines(plan, cl.paint)
	cl.LogInfo(summary)
	for _, line := range details {
		cl.LogDebug(line)
	}
}

// LogTargetStart logs the start of a target at INFO level.
func (cl *ConsoleLogger) LogTargetStart(entry models.PlanEntry) {
	cl.LogInfo(startLine(entry, cl.paint))
}

// LogTargetResult logs a target's terminal state. Failures are logged at
// ERROR level, skips caused by a failure at WARN, everything else at INFO.
func (cl *ConsoleLogger) LogTargetResult(result models.TargetResult) {
	level, message := resultLine(result, cl.paint)
	cl.logWithLevel(strings.ToUpper(level), message)
}

// LogSummary logs the final report at INFO level. A run that did not
// succeed is always reported, even at higher levels.
func (cl *ConsoleLogger) LogSummary(result models.InvocationResult) {
	if cl.writer == nil {
		return
	}
	level := "info"
	if result.Outcome != models.OutcomeSuccess {
		level = "error"
	}
	if !cl.shouldLog(level) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var sb strings.Builder
	for _, line := range summaryLines(result, cl.paint) {
		fmt.Fprintf(&sb, "[%s] %s\n", ts, line)
	}
	io.WriteString(cl.writer, sb.String())
}

// TargetOutput streams a target's action output to the console, each line
// prefixed with the target name. Output is suppressed above INFO level.
func (cl *ConsoleLogger) TargetOutput(target string) (io.Writer, func()) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return nil, nil
	}
	pw := newPrefixWriter(lockedWriter{mu: &cl.mutex, w: cl.writer}, cl.paint(target+" |", color.FgHiBlack)+" ")
	return pw, func() { _ = pw.Finish() }
}
