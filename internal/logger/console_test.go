package logger

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrison/buildgraph/internal/models"
)

func testPlan() *models.Plan {
	return &models.Plan{
		Requested: []string{"Test"},
		Entries: []models.PlanEntry{
			{Target: models.Target{Name: "Compile"}, Reason: models.ReasonDependency},
			{Target: models.Target{Name: "Test"}, Reason: models.ReasonRequested},
			{Target: models.Target{Name: "Coverage"}, Reason: models.ReasonTriggered, TriggerSources: []string{"Test"}},
		},
	}
}

func testResult() models.InvocationResult {
	start := time.Now()
	return models.InvocationResult{
		ID:            "inv-1",
		Requested:     []string{"Test"},
		Configuration: "Release",
		Outcome:       models.OutcomePartialFailure,
		Results: []models.TargetResult{
			{Name: "Compile", State: models.StateSucceeded, StartedAt: start, Duration: 1500 * time.Millisecond},
			{Name: "Test", State: models.StateFailed, StartedAt: start, Duration: 2 * time.Second, Err: errors.New("dotnet exited with code 1\nstack")},
			{Name: "Coverage", State: models.StateSkipped, SkipReason: models.SkipDependencyFailed, SkippedFor: "Test"},
		},
		Duration: 3500 * time.Millisecond,
	}
}

func TestNewConsoleLogger(t *testing.T) {
	t.Run("with valid writer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewConsoleLogger(buf, "DEBUG")

		if logger.writer != buf {
			t.Error("writer not set correctly")
		}
		if logger.logLevel != "debug" {
			t.Errorf("expected log level %q, got %q", "debug", logger.logLevel)
		}
		if logger.colorOutput {
			t.Error("expected no color for a buffer")
		}
	})

	t.Run("invalid level defaults to info", func(t *testing.T) {
		logger := NewConsoleLogger(nil, "loud")
		if logger.logLevel != "info" {
			t.Errorf("expected log level %q, got %q", "info", logger.logLevel)
		}
	})

	t.Run("color modes", func(t *testing.T) {
		if !NewConsoleLoggerWithColor(&bytes.Buffer{}, "info", "always").colorOutput {
			t.Error("always should enable color")
		}
		if NewConsoleLoggerWithColor(&bytes.Buffer{}, "info", "never").colorOutput {
			t.Error("never should disable color")
		}
		if NewConsoleLoggerWithColor(nil, "info", "always").colorOutput {
			t.Error("nil writer should never use color")
		}
	})
}

func TestTimestampFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	NewConsoleLogger(buf, "info").LogInfo("hello")

	pattern := regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] \[INFO\] hello\n$`)
	if !pattern.MatchString(buf.String()) {
		t.Errorf("unexpected format: %q", buf.String())
	}
}

func TestLogLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
		skip  []string
	}{
		{level: "trace", want: []string{"[TRACE] t", "[DEBUG] d", "[INFO] i", "[WARN] w", "[ERROR] e"}},
		{level: "info", want: []string{"[INFO] i", "[WARN] w", "[ERROR] e"}, skip: []string{"TRACE", "DEBUG"}},
		{level: "error", want: []string{"[ERROR] e"}, skip: []string{"TRACE", "DEBUG", "INFO", "WARN"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := NewConsoleLogger(buf, tt.level)
			logger.LogTrace("t")
			logger.LogDebug("d")
			logger.LogInfo("i")
			logger.LogWarn("w")
			logger.LogError("e")

			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("expected %q in output:\n%s", s, out)
				}
			}
			for _, s := range tt.skip {
				if strings.Contains(out, s) {
					t.Errorf("did not expect %q in output:\n%s", s, out)
				}
			}
		})
	}
}

func TestLogPlan(t *testing.T) {
	t.Run("info shows the order", func(t *testing.T) {
		buf := &bytes.Buffer{}
		NewConsoleLogger(buf, "info").LogPlan(testPlan())

		out := buf.String()
		if !strings.Contains(out, "Plan: 3 target(s): Compile > Test > Coverage") {
			t.Errorf("missing plan summary:\n%s", out)
		}
		if strings.Contains(out, "(dependency)") {
			t.Errorf("entry details should be debug only:\n%s", out)
		}
	})

	t.Run("debug shows reasons", func(t *testing.T) {
		buf := &bytes.Buffer{}
		NewConsoleLogger(buf, "debug").LogPlan(testPlan())

		out := buf.String()
		for _, want := range []string{"1. Compile (dependency)", "2. Test (requested)", "3. Coverage (triggered) <- Test"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})
}

func TestLogTargetStart(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewConsoleLogger(buf, "info")
	plan := testPlan()
	logger.LogTargetStart(plan.Entries[0])
	logger.LogTargetStart(plan.Entries[2])

	out := buf.String()
	if !strings.Contains(out, "[INFO] Starting Compile\n") {
		t.Errorf("missing start line:\n%s", out)
	}
	if !strings.Contains(out, "Starting Coverage (triggered by Test)") {
		t.Errorf("missing trigger source:\n%s", out)
	}
}

func TestLogTargetResult(t *testing.T) {
	tests := []struct {
		name   string
		result models.TargetResult
		want   string
	}{
		{
			name:   "succeeded",
			result: models.TargetResult{Name: "Compile", State: models.StateSucceeded, Duration: 90 * time.Second},
			want:   "[INFO] Compile succeeded (1m30s)",
		},
		{
			name:   "failed",
			result: models.TargetResult{Name: "Test", State: models.StateFailed, Duration: 2 * time.Second, Err: errors.New("boom")},
			want:   "[ERROR] Test failed (2s): boom",
		},
		{
			name:   "skipped for failure",
			result: models.TargetResult{Name: "Pack", State: models.StateSkipped, SkipReason: models.SkipDependencyFailed, SkippedFor: "Compile"},
			want:   "[WARN] Pack skipped: dependency-failed (Compile failed)",
		},
		{
			name:   "stopped",
			result: models.TargetResult{Name: "Pack", State: models.StateSkipped, SkipReason: models.SkipStopped, SkippedFor: "Test"},
			want:   "[WARN] Pack skipped: stopped (after Test failed)",
		},
		{
			name:   "not triggered",
			result: models.TargetResult{Name: "Coverage", State: models.StateSkipped, SkipReason: models.SkipNotTriggered},
			want:   "[INFO] Coverage skipped: not-triggered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			NewConsoleLogger(buf, "info").LogTargetResult(tt.result)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q, got %q", tt.want, buf.String())
			}
		})
	}

	t.Run("warn level hides success", func(t *testing.T) {
		buf := &bytes.Buffer{}
		NewConsoleLogger(buf, "warn").LogTargetResult(tests[0].result)
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %q", buf.String())
		}
	})
}

func TestLogSummary(t *testing.T) {
	buf := &bytes.Buffer{}
	NewConsoleLogger(buf, "info").LogSummary(testResult())

	out := buf.String()
	for _, want := range []string{
		"=== Build Summary ===",
		"Compile   Succeeded",
		"Test      Failed",
		"dotnet exited with code 1",
		"Coverage  Skipped",
		"dependency-failed (Test failed)",
		"Outcome: PartialFailure (1 succeeded, 1 failed, 1 skipped) in 3s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in summary:\n%s", want, out)
		}
	}
	if strings.Contains(out, "stack") {
		t.Errorf("summary should only show the first error line:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("unexpected color codes:\n%s", out)
	}
}

func TestLogSummaryLevels(t *testing.T) {
	success := models.InvocationResult{Outcome: models.OutcomeSuccess}

	buf := &bytes.Buffer{}
	NewConsoleLogger(buf, "warn").LogSummary(success)
	if buf.Len() != 0 {
		t.Errorf("successful summary should be hidden at warn, got %q", buf.String())
	}

	buf.Reset()
	NewConsoleLogger(buf, "error").LogSummary(testResult())
	if !strings.Contains(buf.String(), "Outcome: PartialFailure") {
		t.Errorf("failed summary should be shown at error, got %q", buf.String())
	}
}

func TestLogSummaryInterrupted(t *testing.T) {
	result := testResult()
	result.Interrupted = true

	buf := &bytes.Buffer{}
	NewConsoleLogger(buf, "info").LogSummary(result)
	if !strings.Contains(buf.String(), ", interrupted") {
		t.Errorf("expected interrupted marker:\n%s", buf.String())
	}
}

func TestColorOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewConsoleLoggerWithColor(buf, "info", "always")
	logger.LogTargetResult(models.TargetResult{Name: "Compile", State: models.StateSucceeded})

	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("expected ANSI codes, got %q", buf.String())
	}
}

func TestTargetOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewConsoleLogger(buf, "info")

	w, done := logger.TargetOutput("Compile")
	io.WriteString(w, "line one\nline ")
	io.WriteString(w, "two")
	done()

	want := "Compile | line one\nCompile | line two\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}

	quiet := NewConsoleLogger(buf, "warn")
	if w, done := quiet.TargetOutput("Compile"); w != nil || done != nil {
		t.Error("expected no output writer above info level")
	}
}

func TestConcurrentLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewConsoleLogger(buf, "info")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.LogInfo("message")
		}()
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "[INFO] message\n"); got != 20 {
		t.Errorf("expected 20 complete lines, got %d", got)
	}
}

func TestNilWriter(t *testing.T) {
	logger := NewConsoleLogger(nil, "trace")
	logger.LogInfo("dropped")
	logger.LogPlan(testPlan())
	logger.LogTargetStart(testPlan().Entries[0])
	logger.LogTargetResult(models.TargetResult{Name: "A", State: models.StateSucceeded})
	logger.LogSummary(testResult())
	if w, _ := logger.TargetOutput("A"); w != nil {
		t.Error("expected nil output writer")
	}
}

func TestDurationFormatting(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0ms"},
		{250 * time.Millisecond, "250ms"},
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m30s"},
		{2 * time.Minute, "2m"},
		{time.Hour, "1h"},
		{2*time.Hour + 15*time.Minute, "2h15m"},
		{time.Hour + 5*time.Second, "1h0m5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
