package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/buildgraph/internal/models"
)

// FileLogger logs invocation events to files in the log directory.
// It creates timestamped per-run log files, one output file per target under
// targets/, and maintains a latest.log symlink pointing to the most recent run.
type FileLogger struct {
	logDir     string
	runLog     *os.File
	runFile    string
	targetsDir string
	logLevel   string
	mu         sync.Mutex
}

// NewFileLogger creates a FileLogger writing to logDir at the given level.
// It creates the directory if it doesn't exist, opens a timestamped run log
// file, and creates/updates the latest.log symlink.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	targetsDir := filepath.Join(logDir, "targets")
	if err := os.MkdirAll(targetsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create targets directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	fl := &FileLogger{
		logDir:     logDir,
		runLog:     file,
		runFile:    runFile,
		targetsDir: targetsDir,
		logLevel:   normalizeLogLevel(logLevel),
	}

	fl.writeRunLog("=== buildgraph run log ===\n")
	fl.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))
	return fl, nil
}

// RunFile returns the path of this run's log file.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

// TargetLogPath returns the file a target's output is written to.
func (fl *FileLogger) TargetLogPath(target string) string {
	return filepath.Join(fl.targetsDir, safeFileName(target)+".log")
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

func (fl *FileLogger) LogDebug(message string) { fl.logWithLevel("DEBUG", message) }
func (fl *FileLogger) LogInfo(message string)  { fl.logWithLevel("INFO", message) }
func (fl *FileLogger) LogWarn(message string)  { fl.logWithLevel("WARN", message) }
func (fl *FileLogger) LogError(message string) { fl.logWithLevel("ERROR", message) }

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// LogPlan records the plan with every entry's inclusion reason.
func (fl *FileLogger) LogPlan(plan *models.Plan) {
	summary, details := planLines(plan, noPaint)
	fl.LogInfo(summary)
	for _, line := range details {
		fl.LogInfo(line)
	}
}

func (fl *FileLogger) LogTargetStart(entry models.PlanEntry) {
	fl.LogInfo(startLine(entry, noPaint))
}

func (fl *FileLogger) LogTargetResult(result models.TargetResult) {
	level, message := resultLine(result, noPaint)
	fl.logWithLevel(strings.ToUpper(level), message)
}

// LogSummary records the final report; it is written at every level.
func (fl *FileLogger) LogSummary(result models.InvocationResult) {
	ts := timestamp()
	var sb strings.Builder
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "[%s] Invocation: %s (configuration %s)\n", ts, result.ID, result.Configuration)
	for _, line := range summaryLines(result, noPaint) {
		fmt.Fprintf(&sb, "[%s] %s\n", ts, line)
	}
	fmt.Fprintf(&sb, "[%s] Completed at: %s\n", ts, time.Now().Format(time.RFC3339))
	fl.writeRunLog(sb.String())
}

// TargetOutput opens targets/<name>.log, truncating output of earlier runs.
// Failure to open the file is noted in the run log and the output is only
// sent to the other sinks.
func (fl *FileLogger) TargetOutput(target string) (io.Writer, func()) {
	path := fl.TargetLogPath(target)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fl.LogWarn(fmt.Sprintf("failed to open target log %s: %v", path, err))
		return nil, nil
	}
	fmt.Fprintf(file, "=== %s (%s) ===\n", target, time.Now().Format(time.RFC3339))
	return file, func() { file.Close() }
}

// Close flushes and closes the run log file.
// It should be called when the logger is no longer needed.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}
	return nil
}

// writeRunLog is a thread-safe helper to write to the run log file.
func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		fl.runLog.Sync()
	}
}

// safeFileName maps a target name onto a portable file name.
func safeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
