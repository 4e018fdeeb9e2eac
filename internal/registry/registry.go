// Package registry holds the declared build targets of one process run.
//
// Targets are registered once at start-up, in declaration order, and the
// registry is frozen as soon as the graph builder consumes it. Every lookup
// is case-insensitive (see models.NormalizeName).
package registry

import (
	"errors"
	"fmt"

	"github.com/harrison/buildgraph/internal/models"
)

// ErrFrozen is returned by Register once the registry has been frozen.
var ErrFrozen = errors.New("registry is frozen")

// DuplicateTargetError is returned when a target name is registered twice.
type DuplicateTargetError struct {
	Name     string // Name being registered
	Existing string // Name already present under the same normalized key
}

func (e *DuplicateTargetError) Error() string {
	if e.Existing != "" && e.Existing != e.Name {
		return fmt.Sprintf("target %s: duplicate target name (already declared as %s)", e.Name, e.Existing)
	}
	return fmt.Sprintf("target %s: duplicate target name", e.Name)
}

// UnknownTargetError is returned when a name does not resolve to a registered target.
type UnknownTargetError struct {
	Name     string // Missing name
	Referrer string // Target (or "<request>") that mentioned the name
	Relation string // Relation the name appeared in, e.g. "dependsOn"
}

func (e *UnknownTargetError) Error() string {
	switch {
	case e.Referrer == "":
		return fmt.Sprintf("unknown target %s", e.Name)
	case e.Relation == "":
		return fmt.Sprintf("target %s: references unknown target %s", e.Referrer, e.Name)
	default:
		return fmt.Sprintf("target %s: %s references unknown target %s", e.Referrer, e.Relation, e.Name)
	}
}

// Registry stores targets by normalized name and remembers declaration order.
type Registry struct {
	targets map[string]models.Target
	order   []string // normalized keys in declaration order
	frozen  bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{targets: make(map[string]models.Target)}
}

// Register adds a target. It fails with *DuplicateTargetError if a target with the
// same normalized name already exists.
func (r *Registry) Register(t models.Target) error {
	if r.frozen {
		return fmt.Errorf("register %s: %w", t.Name, ErrFrozen)
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("register %q: %w", t.Name, err)
	}
	key := t.Key()
	if existing, ok := r.targets[key]; ok {
		return &DuplicateTargetError{Name: t.Name, Existing: existing.Name}
	}
	r.targets[key] = t
	r.order = append(r.order, key)
	return nil
}

// MustRegister is Register for statically declared targets; it panics on error.
func (r *Registry) MustRegister(targets ...models.Target) {
	for _, t := range targets {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns the target registered under name.
func (r *Registry) Get(name string) (models.Target, error) {
	t, ok := r.targets[models.NormalizeName(name)]
	if !ok {
		return models.Target{}, &UnknownTargetError{Name: name}
	}
	return t, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.targets[models.NormalizeName(name)]
	return ok
}

// Index returns the declaration position of name, or -1.
func (r *Registry) Index(name string) int {
	key := models.NormalizeName(name)
	for i, k := range r.order {
		if k == key {
			return i
		}
	}
	return -1
}

// Targets returns every target in declaration order.
func (r *Registry) Targets() []models.Target {
	out := make([]models.Target, len(r.order))
	for i, key := range r.order {
		out[i] = r.targets[key]
	}
	return out
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	return len(r.order)
}

// Freeze makes the registry read-only. Freezing twice is a no-op.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen
}
