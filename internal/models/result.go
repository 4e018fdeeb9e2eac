package models

import "time"

// Outcome is the overall result of an invocation.
type Outcome int

const (
	OutcomeSuccess        Outcome = iota // every planned target succeeded (or was intentionally left out)
	OutcomePartialFailure                // at least one target failed or was skipped because of a failure
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "Success"
	}
	return "PartialFailure"
}

// TargetResult represents the terminal state of a single planned target
type TargetResult struct {
	Name       string        // Declared target name
	State      RunState      // Terminal state
	SkipReason SkipReason    // Why the target was skipped (State == StateSkipped)
	SkippedFor string        // Target whose failure caused the skip (SkipDependencyFailed)
	Err        error         // Failure cause (State == StateFailed)
	StartedAt  time.Time     // Zero if the target never ran
	Duration   time.Duration // Time spent running the action and contract checks
}

// InvocationResult represents the aggregate result of executing a plan
type InvocationResult struct {
	ID            string         // Invocation identifier
	Requested     []string       // Entry targets
	Configuration string         // Resolved build configuration
	Outcome       Outcome        // Success or PartialFailure
	Interrupted   bool           // Operator abort stopped the run early
	Results       []TargetResult // One entry per planned target, in plan order
	StartedAt     time.Time
	Duration      time.Duration
}

// Succeeded returns the results of targets that reached StateSucceeded
func (r *InvocationResult) Succeeded() []TargetResult {
	return r.filter(func(tr TargetResult) bool { return tr.State == StateSucceeded })
}

// Failed returns the results of targets that reached StateFailed
func (r *InvocationResult) Failed() []TargetResult {
	return r.filter(func(tr TargetResult) bool { return tr.State == StateFailed })
}

// Skipped returns the results of targets that reached StateSkipped
func (r *InvocationResult) Skipped() []TargetResult {
	return r.filter(func(tr TargetResult) bool { return tr.State == StateSkipped })
}

// Result looks up the result for a target by name.
func (r *InvocationResult) Result(name string) (TargetResult, bool) {
	key := NormalizeName(name)
	for _, tr := range r.Results {
		if NormalizeName(tr.Name) == key {
			return tr, true
		}
	}
	return TargetResult{}, false
}

func (r *InvocationResult) filter(keep func(TargetResult) bool) []TargetResult {
	var out []TargetResult
	for _, tr := range r.Results {
		if keep(tr) {
			out = append(out, tr)
		}
	}
	return out
}
