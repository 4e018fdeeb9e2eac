// Package graph compiles a target registry into a validated directed graph.
//
// Nodes are identified by their declaration index so that every traversal can
// break ties deterministically. Three edge kinds are kept apart:
//
//   - dependsOn: dependency -> dependent, hard precedence and inclusion
//   - ordering (before/after): same direction, precedence only
//   - trigger: source -> triggered target, conditional inclusion
//
// Cycle analysis covers dependsOn and ordering edges; trigger edges are left to
// the planner because whether they matter depends on the invocation.
package graph

import (
	"strings"

	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/registry"
)

// CycleError reports a cycle in the dependsOn/before/after relations.
// Path lists the cycle's targets with the first target repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// Contains reports whether name lies on the cycle.
func (e *CycleError) Contains(name string) bool {
	for _, n := range e.Path {
		if models.SameName(n, name) {
			return true
		}
	}
	return false
}

// Graph is the validated, read-only view of a registry.
type Graph struct {
	targets []models.Target
	index   map[string]int // normalized name -> node id

	deps       [][]int // deps[i]: dependsOn of i
	dependents [][]int // inverse of deps
	orderNext  [][]int // orderNext[i]: nodes that must come after i when both are planned
	triggers   [][]int // triggers[i]: nodes triggered by i
	sources    [][]int // inverse of triggers
	consumes   [][]string
}

// Build validates the registry and compiles it into a Graph. The registry is frozen
// on return, whether or not validation succeeded.
func Build(reg *registry.Registry) (*Graph, error) {
	reg.Freeze()

	targets := reg.Targets()
	n := len(targets)
	g := &Graph{
		targets:    targets,
		index:      make(map[string]int, n),
		deps:       make([][]int, n),
		dependents: make([][]int, n),
		orderNext:  make([][]int, n),
		triggers:   make([][]int, n),
		sources:    make([][]int, n),
		consumes:   make([][]string, n),
	}
	for i, t := range targets {
		g.index[t.Key()] = i
	}

	for i, t := range targets {
		for _, name := range t.DependsOn {
			j, err := g.resolve(t.Name, "dependsOn", name)
			if err != nil {
				return nil, err
			}
			g.deps[i] = appendUnique(g.deps[i], j)
			g.dependents[j] = appendUnique(g.dependents[j], i)
		}
		for _, name := range t.Before {
			j, err := g.resolve(t.Name, "before", name)
			if err != nil {
				return nil, err
			}
			g.addOrdering(i, j)
		}
		for _, name := range t.After {
			j, err := g.resolve(t.Name, "after", name)
			if err != nil {
				return nil, err
			}
			g.addOrdering(j, i)
		}
		for _, name := range t.TriggeredBy {
			j, err := g.resolve(t.Name, "triggeredBy", name)
			if err != nil {
				return nil, err
			}
			g.addTrigger(j, i)
		}
		for _, name := range t.Triggers {
			j, err := g.resolve(t.Name, "triggers", name)
			if err != nil {
				return nil, err
			}
			g.addTrigger(i, j)
		}
	}

	// A consumes entry naming a target stands for that target's produces patterns.
	for i, t := range targets {
		for _, entry := range t.Consumes {
			if j, ok := g.index[models.NormalizeName(entry)]; ok {
				g.consumes[i] = append(g.consumes[i], targets[j].Produces...)
				continue
			}
			g.consumes[i] = append(g.consumes[i], entry)
		}
	}

	if err := g.checkCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) resolve(referrer, relation, name string) (int, error) {
	j, ok := g.index[models.NormalizeName(name)]
	if !ok {
		return 0, &registry.UnknownTargetError{Name: name, Referrer: referrer, Relation: relation}
	}
	return j, nil
}

func (g *Graph) addOrdering(first, second int) {
	g.orderNext[first] = appendUnique(g.orderNext[first], second)
}

func (g *Graph) addTrigger(source, target int) {
	g.triggers[source] = appendUnique(g.triggers[source], target)
	g.sources[target] = appendUnique(g.sources[target], source)
}

// checkCycles runs a DFS with colour marking over dependsOn and ordering edges,
// visiting nodes in declaration order so the reported cycle is stable.
func (g *Graph) checkCycles() error {
	const (
		white = 0 // not visited
		gray  = 1 // on the current path
		black = 2 // finished
	)

	colors := make([]int, len(g.targets))
	var stack []int

	var dfs func(int) *CycleError
	dfs = func(node int) *CycleError {
		colors[node] = gray
		stack = append(stack, node)

		for _, next := range g.successors(node) {
			switch colors[next] {
			case gray:
				return g.cycleFrom(stack, next)
			case white:
				if err := dfs(next); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[node] = black
		return nil
	}

	for i := range g.targets {
		if colors[i] == white {
			if err := dfs(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// successors returns every node that must come after node: dependents first,
// then ordering successors, each in declaration order of insertion.
func (g *Graph) successors(node int) []int {
	out := make([]int, 0, len(g.dependents[node])+len(g.orderNext[node]))
	out = append(out, g.dependents[node]...)
	for _, n := range g.orderNext[node] {
		out = appendUnique(out, n)
	}
	return out
}

func (g *Graph) cycleFrom(stack []int, start int) *CycleError {
	var path []string
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == start {
			for _, id := range stack[i:] {
				path = append(path, g.targets[id].Name)
			}
			break
		}
	}
	path = append(path, g.targets[start].Name)
	return &CycleError{Path: path}
}

func appendUnique(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.targets) }

// Node returns the target with declaration index id.
func (g *Graph) Node(id int) models.Target { return g.targets[id] }

// ID resolves a target name to its node id.
func (g *Graph) ID(name string) (int, bool) {
	id, ok := g.index[models.NormalizeName(name)]
	return id, ok
}

// Lookup returns the target registered under name.
func (g *Graph) Lookup(name string) (models.Target, error) {
	id, ok := g.ID(name)
	if !ok {
		return models.Target{}, &registry.UnknownTargetError{Name: name}
	}
	return g.targets[id], nil
}

// Targets returns every target in declaration order.
func (g *Graph) Targets() []models.Target {
	return append([]models.Target(nil), g.targets...)
}

// DependencyIDs returns the dependsOn targets of id.
func (g *Graph) DependencyIDs(id int) []int { return g.deps[id] }

// DependentIDs returns the targets that list id in dependsOn.
func (g *Graph) DependentIDs(id int) []int { return g.dependents[id] }

// OrderSuccessorIDs returns targets that must follow id through before/after.
func (g *Graph) OrderSuccessorIDs(id int) []int { return g.orderNext[id] }

// TriggeredIDs returns the targets triggered by id.
func (g *Graph) TriggeredIDs(id int) []int { return g.triggers[id] }

// TriggerSourceIDs returns the targets whose success triggers id.
func (g *Graph) TriggerSourceIDs(id int) []int { return g.sources[id] }

// Dependencies returns the names of the targets name depends on.
func (g *Graph) Dependencies(name string) []string { return g.names(name, g.deps) }

// Dependents returns the names of targets depending on name.
func (g *Graph) Dependents(name string) []string { return g.names(name, g.dependents) }

// TriggerSources returns the names of targets that trigger name.
func (g *Graph) TriggerSources(name string) []string { return g.names(name, g.sources) }

// Consumes returns the resolved artifact patterns name consumes.
func (g *Graph) Consumes(name string) []string {
	id, ok := g.ID(name)
	if !ok {
		return nil
	}
	return append([]string(nil), g.consumes[id]...)
}

func (g *Graph) names(name string, adj [][]int) []string {
	id, ok := g.ID(name)
	if !ok {
		return nil
	}
	out := make([]string, len(adj[id]))
	for i, j := range adj[id] {
		out[i] = g.targets[j].Name
	}
	return out
}

// TransitiveDependents returns every target reachable from name through
// dependsOn edges in the dependent direction, in declaration order.
func (g *Graph) TransitiveDependents(name string) []string {
	id, ok := g.ID(name)
	if !ok {
		return nil
	}
	seen := make([]bool, len(g.targets))
	var walk func(int)
	walk = func(n int) {
		for _, d := range g.dependents[n] {
			if !seen[d] {
				seen[d] = true
				walk(d)
			}
		}
	}
	walk(id)

	var out []string
	for i, s := range seen {
		if s {
			out = append(out, g.targets[i].Name)
		}
	}
	return out
}
