package cmd

import (
	"errors"
	"fmt"

	"github.com/harrison/buildgraph/internal/graph"
	"github.com/harrison/buildgraph/internal/planner"
	"github.com/harrison/buildgraph/internal/registry"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Every planned target succeeded or was skipped harmlessly
	ExitFailure      = 1 // A target failed or a requirement was not met
	ExitCommandError = 2 // Bad flags, invalid build file or structural graph error
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil, the ExitError code when err wraps one, and
// otherwise classifies err by its type.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if IsStructural(err) {
		return ExitCommandError
	}
	return ExitFailure
}

// IsStructural reports whether err describes a malformed target set rather
// than a failure while building.
func IsStructural(err error) bool {
	var (
		dup     *registry.DuplicateTargetError
		unknown *registry.UnknownTargetError
		cycle   *graph.CycleError
		trigger *planner.TriggerCycleError
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &dup), errors.As(err, &unknown), errors.As(err, &cycle), errors.As(err, &trigger):
		return true
	case errors.Is(err, planner.ErrNoTargets):
		return true
	}
	return false
}

// exitError attaches the exit code matching err's kind.
func exitError(message string, err error) error {
	if err == nil {
		return nil
	}
	if IsStructural(err) {
		return WrapExitError(ExitCommandError, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}
