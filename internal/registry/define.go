package registry

import (
	"context"
	"time"

	"github.com/harrison/buildgraph/internal/models"
)

// Option configures a target under construction.
type Option func(*models.Target)

// Define assembles a target from options. The returned value shares no slices
// with the caller.
//
//	compile := registry.Define("Compile",
//		registry.DependsOn("Restore"),
//		registry.Executes(build),
//	)
func Define(name string, opts ...Option) models.Target {
	t := models.Target{Name: name}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Description sets the help text shown by the list command.
func Description(text string) Option {
	return func(t *models.Target) { t.Description = text }
}

// DependsOn adds hard dependencies.
func DependsOn(names ...string) Option {
	return func(t *models.Target) { t.DependsOn = appendCopy(t.DependsOn, names) }
}

// Before adds soft "runs before" ordering constraints.
func Before(names ...string) Option {
	return func(t *models.Target) { t.Before = appendCopy(t.Before, names) }
}

// After adds soft "runs after" ordering constraints.
func After(names ...string) Option {
	return func(t *models.Target) { t.After = appendCopy(t.After, names) }
}

// TriggeredBy makes the target join the plan whenever one of names runs and succeeds.
func TriggeredBy(names ...string) Option {
	return func(t *models.Target) { t.TriggeredBy = appendCopy(t.TriggeredBy, names) }
}

// Triggers is the inverse of TriggeredBy, declared on the source target.
func Triggers(names ...string) Option {
	return func(t *models.Target) { t.Triggers = appendCopy(t.Triggers, names) }
}

// Consumes declares artifacts (patterns or target names) that must exist before the action runs.
func Consumes(patterns ...string) Option {
	return func(t *models.Target) { t.Consumes = appendCopy(t.Consumes, patterns) }
}

// Produces declares artifact patterns that must match after a successful action.
func Produces(patterns ...string) Option {
	return func(t *models.Target) { t.Produces = appendCopy(t.Produces, patterns) }
}

// Requires appends requirement predicates, evaluated in order.
func Requires(reqs ...models.Requirement) Option {
	return func(t *models.Target) {
		t.Requires = append(append([]models.Requirement(nil), t.Requires...), reqs...)
	}
}

// Executes sets the action.
func Executes(action models.Action) Option {
	return func(t *models.Target) { t.Action = action }
}

// ExecutesFunc sets a plain function as the action.
func ExecutesFunc(fn func(ctx context.Context, inv models.Invocation) error) Option {
	return Executes(models.ActionFunc(fn))
}

// WithTimeout overrides the configured per-target timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *models.Target) { t.Timeout = d }
}

// DeclaredIn records the build file a target came from.
func DeclaredIn(path string) Option {
	return func(t *models.Target) { t.SourceFile = path }
}

func appendCopy(dst, src []string) []string {
	out := make([]string, 0, len(dst)+len(src))
	out = append(out, dst...)
	return append(out, src...)
}
