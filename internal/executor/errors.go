package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/buildgraph/internal/models"
)

// ContractPhase identifies which side of an artifact contract was violated.
type ContractPhase int

const (
	// PhaseConsumes is checked before the action runs.
	PhaseConsumes ContractPhase = iota
	// PhaseProduces is checked after the action succeeds.
	PhaseProduces
)

// String returns the string representation of ContractPhase.
func (p ContractPhase) String() string {
	switch p {
	case PhaseConsumes:
		return "consumes"
	case PhaseProduces:
		return "produces"
	default:
		return "unknown"
	}
}

// RequirementFailure is one unmet requirement of one target.
type RequirementFailure struct {
	Target      string
	Requirement string
	Err         error
}

// RequirementError is returned when any requirement of any planned target is
// unmet. No target runs when it is returned.
type RequirementError struct {
	Failures []RequirementFailure
}

// Error implements the error interface for RequirementError.
func (e *RequirementError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d requirement(s) not met", len(e.Failures)))
	for _, f := range e.Failures {
		sb.WriteString(fmt.Sprintf("\n  - target %s: %s", f.Target, f.Requirement))
		if f.Err != nil {
			sb.WriteString(fmt.Sprintf(": %v", f.Err))
		}
	}
	return sb.String()
}

// Unwrap returns the individual predicate errors.
func (e *RequirementError) Unwrap() []error {
	var errs []error
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// ExecutionFailure wraps the error an action reported.
type ExecutionFailure struct {
	Target    string    // Target whose action failed
	Err       error     // Underlying error
	Timestamp time.Time // When the failure was observed
}

// NewExecutionFailure creates a new ExecutionFailure with the current timestamp.
func NewExecutionFailure(target string, err error) *ExecutionFailure {
	return &ExecutionFailure{Target: target, Err: err, Timestamp: time.Now()}
}

// Error implements the error interface for ExecutionFailure.
func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("target %s: %v", e.Target, e.Err)
}

// Unwrap returns the underlying error for error wrapping support.
func (e *ExecutionFailure) Unwrap() error {
	return e.Err
}

// ArtifactContractViolation reports declared artifacts that were not found.
type ArtifactContractViolation struct {
	Target   string
	Phase    ContractPhase
	Patterns []string // Patterns that matched nothing
}

// Error implements the error interface for ArtifactContractViolation.
func (e *ArtifactContractViolation) Error() string {
	return fmt.Sprintf("target %s: %s contract violated: no artifact matches %s",
		e.Target, e.Phase, strings.Join(e.Patterns, ", "))
}

// TimeoutError represents a target that exceeded its timeout.
type TimeoutError struct {
	Target    string        // Target that timed out
	Timeout   time.Duration // Duration after which timeout occurred
	Timestamp time.Time     // When the timeout occurred
}

// NewTimeoutError creates a new TimeoutError with the current timestamp.
func NewTimeoutError(target string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{Target: target, Timeout: timeout, Timestamp: time.Now()}
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("target %s: timeout after %v", e.Target, e.Timeout)
}

// Unwrap returns context.DeadlineExceeded to support error wrapping.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// IllegalTransitionError reports a run-state move the lifecycle does not allow.
type IllegalTransitionError struct {
	Target string
	From   models.RunState
	To     models.RunState
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("target %s: illegal transition %s -> %s", e.Target, e.From, e.To)
}

// ExecutionError aggregates the outcome of an invocation that did not fully succeed.
type ExecutionError struct {
	Total       int      // Number of planned targets
	Failed      []string // Targets that reached Failed
	Skipped     []string // Targets skipped because of a failure or interrupt
	Errors      []error  // Failure causes, in plan order
	Interrupted bool     // The run was stopped by an operator interrupt
}

// Error implements the error interface for ExecutionError.
func (e *ExecutionError) Error() string {
	var sb strings.Builder
	if e.Interrupted {
		sb.WriteString("execution interrupted: ")
	} else {
		sb.WriteString("execution failed: ")
	}
	sb.WriteString(fmt.Sprintf("%d/%d target(s) failed, %d skipped", len(e.Failed), e.Total, len(e.Skipped)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("\n  - %v", err))
	}
	return sb.String()
}

// Unwrap returns the per-target errors so errors.Is and errors.As can traverse them.
func (e *ExecutionError) Unwrap() []error {
	return e.Errors
}

// IsTimeoutError checks if the error is or wraps a TimeoutError or context.DeadlineExceeded.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRequirementError checks if the error is or wraps a RequirementError.
func IsRequirementError(err error) bool {
	var re *RequirementError
	return err != nil && errors.As(err, &re)
}

// IsExecutionError checks if the error is or wraps an ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return err != nil && errors.As(err, &ee)
}

// IsContractViolation checks if the error is or wraps an ArtifactContractViolation.
func IsContractViolation(err error) bool {
	var cv *ArtifactContractViolation
	return err != nil && errors.As(err, &cv)
}
