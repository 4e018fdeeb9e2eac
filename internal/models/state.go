package models

import "fmt"

// RunState is the per-invocation lifecycle state of a target.
type RunState int

const (
	StatePending RunState = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateSkipped
)

// String returns the human-readable name of the state
func (s RunState) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateRunning:
		return "Running"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	case StateSkipped:
		return "Skipped"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// IsTerminal reports whether no further transition is possible from s.
func (s RunState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateSkipped
}

// CanTransition reports whether from -> to is a legal lifecycle move.
//
//	Pending -> Running | Skipped
//	Running -> Succeeded | Failed
func CanTransition(from, to RunState) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateSkipped
	case StateRunning:
		return to == StateSucceeded || to == StateFailed
	default:
		return false
	}
}

// SkipReason records why a target ended up Skipped.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipOperator         SkipReason = "operator"          // --skip on the command line
	SkipDependencyFailed SkipReason = "dependency-failed" // a dependsOn ancestor failed or was failure-skipped
	SkipNotTriggered     SkipReason = "not-triggered"     // no trigger source succeeded
	SkipStopped          SkipReason = "stopped"           // full-stop policy after an earlier failure
	SkipInterrupted      SkipReason = "interrupted"       // operator abort before the target started
)

// IsFailure reports whether a skip of this kind means the invocation did not
// do everything it was asked to do.
func (r SkipReason) IsFailure() bool {
	switch r {
	case SkipDependencyFailed, SkipStopped, SkipInterrupted:
		return true
	default:
		return false
	}
}
