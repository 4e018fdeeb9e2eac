package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Action is the side-effecting body of a target. The engine treats it as opaque.
type Action interface {
	Invoke(ctx context.Context, inv Invocation) error
}

// ActionFunc adapts an ordinary function to the Action interface.
type ActionFunc func(ctx context.Context, inv Invocation) error

// Invoke calls f(ctx, inv).
func (f ActionFunc) Invoke(ctx context.Context, inv Invocation) error {
	return f(ctx, inv)
}

// Requirement is a predicate that must hold before any target of a plan runs.
// Check returns nil when the requirement is satisfied and an explanatory error otherwise.
type Requirement struct {
	Description string
	Check       func(bc *BuildContext) error
}

// Target represents a single declared unit of build work
type Target struct {
	Name        string        // Declared name, used for display
	Description string        // One-line help text
	DependsOn   []string      // Targets that must succeed before this one starts (and are pulled into the plan)
	Before      []string      // Soft ordering: this target runs before these when both are planned
	After       []string      // Soft ordering: this target runs after these when both are planned
	TriggeredBy []string      // Targets whose success pulls this target into the plan
	Triggers    []string      // Inverse of TriggeredBy, declared on the source side
	Consumes    []string      // Artifact patterns (or target names) that must exist before the action runs
	Produces    []string      // Artifact patterns that must match after a successful action
	Requires    []Requirement // Predicates evaluated before the plan starts
	Action      Action        // Body; nil means the target only groups its dependencies
	Timeout     time.Duration // Per-target timeout override (0 = use configured default)
	SourceFile  string        // Build file the target was declared in
}

// Key returns the case-normalized name used for lookups and comparisons.
func (t Target) Key() string {
	return NormalizeName(t.Name)
}

// Validate checks that the target carries the fields the engine needs
func (t Target) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("target name is required")
	}
	if t.Timeout < 0 {
		return errors.New("target timeout cannot be negative")
	}
	for _, req := range t.Requires {
		if req.Check == nil {
			return errors.New("requirement " + req.Description + " has no check")
		}
	}
	return nil
}

// NormalizeName folds a target name so that "Compile", "compile" and "COMPILE"
// refer to the same target.
func NormalizeName(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// SameName reports whether a and b refer to the same target.
func SameName(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
