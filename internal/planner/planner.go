// Package planner resolves the ordered execution plan for an invocation.
package planner

import (
	"container/heap"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"github.com/harrison/buildgraph/internal/graph"
	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/registry"
)

// ErrNoTargets is returned when Plan is called without entry targets.
var ErrNoTargets = errors.New("no targets requested")

// TriggerCycleError reports trigger relations that cannot be resolved into a
// finite, ordered plan.
type TriggerCycleError struct {
	Path   []string // Targets involved, in discovery order
	Reason string   // What went wrong
}

func (e *TriggerCycleError) Error() string {
	return fmt.Sprintf("trigger cycle: %s (%s)", strings.Join(e.Path, " -> "), e.Reason)
}

// Plan computes the execution plan for the requested entry targets:
//
//  1. the dependsOn closure of the requested targets forms the base set, which
//     is sorted topologically with dependsOn as hard precedence, before/after
//     as additional precedence and declaration order breaking the remaining
//     ties;
//  2. targets triggered by a planned target form the next round together with
//     their dependsOn closure that is not planned yet; each round is sorted the
//     same way and appended, until a round adds nothing.
//
// Dependencies planned only for triggered targets are conditional: their
// entries list the triggered targets they serve in Enables.
//
// The result is deterministic for a given graph and request.
func Plan(g *graph.Graph, requested ...string) (*models.Plan, error) {
	if len(requested) == 0 {
		return nil, ErrNoTargets
	}

	n := uint(g.Len())
	base := bitset.New(n)
	reasons := make([]models.InclusionReason, g.Len())

	var entryNames []string
	for _, name := range requested {
		id, ok := g.ID(name)
		if !ok {
			return nil, &registry.UnknownTargetError{Name: name}
		}
		if base.Test(uint(id)) && reasons[id] == models.ReasonRequested {
			continue
		}
		entryNames = append(entryNames, g.Node(id).Name)
		base.Set(uint(id))
		reasons[id] = models.ReasonRequested
	}
	for _, name := range entryNames {
		id, _ := g.ID(name)
		addClosure(g, base, reasons, id)
	}

	planned := base.Clone()
	rounds := []*bitset.BitSet{base}
	enables := make([][]int, g.Len())
	for {
		round := triggerRound(g, planned, reasons, enables)
		if round.None() {
			break
		}
		rounds = append(rounds, round)
		planned.InPlaceUnion(round)
	}
	if err := checkTriggerCycles(g, planned); err != nil {
		return nil, err
	}

	var order []int
	for _, round := range rounds {
		order = append(order, sortRound(g, round)...)
	}
	position := make(map[int]int, len(order))
	for i, id := range order {
		position[id] = i
	}
	if err := checkOrdering(g, order, position); err != nil {
		return nil, err
	}

	plan := &models.Plan{Requested: entryNames, Entries: make([]models.PlanEntry, 0, len(order))}
	for i, id := range order {
		entry := models.PlanEntry{Target: g.Node(id), Reason: reasons[id]}
		if reasons[id] == models.ReasonTriggered {
			for _, src := range g.TriggerSourceIDs(id) {
				if pos, ok := position[src]; ok && pos < i {
					entry.TriggerSources = append(entry.TriggerSources, g.Node(src).Name)
				}
			}
		}
		for _, trig := range enables[id] {
			entry.Enables = append(entry.Enables, g.Node(trig).Name)
		}
		plan.Entries = append(plan.Entries, entry)
	}
	return plan, nil
}

// addClosure adds every dependsOn ancestor of id that is not in set yet.
func addClosure(g *graph.Graph, set *bitset.BitSet, reasons []models.InclusionReason, id int) {
	for _, dep := range g.DependencyIDs(id) {
		if set.Test(uint(dep)) {
			continue
		}
		set.Set(uint(dep))
		reasons[dep] = models.ReasonDependency
		addClosure(g, set, reasons, dep)
	}
}

// triggerRound collects the unplanned targets triggered by planned targets,
// plus the part of their dependsOn closure that is not planned
// unconditionally.
func triggerRound(g *graph.Graph, planned *bitset.BitSet, reasons []models.InclusionReason, enables [][]int) *bitset.BitSet {
	round := bitset.New(uint(g.Len()))
	for i, ok := planned.NextSet(0); ok; i, ok = planned.NextSet(i + 1) {
		for _, trig := range g.TriggeredIDs(int(i)) {
			if !planned.Test(uint(trig)) {
				round.Set(uint(trig))
				reasons[trig] = models.ReasonTriggered
			}
		}
	}

	triggered := round.Clone()
	for t, ok := triggered.NextSet(0); ok; t, ok = triggered.NextSet(t + 1) {
		addConditional(g, planned, round, reasons, enables, int(t), int(t))
	}
	return round
}

// addConditional plans the dependsOn closure of id on behalf of the triggered
// target trig. Dependencies that already run unconditionally are left alone;
// every other one records that trig needs it.
func addConditional(g *graph.Graph, planned, round *bitset.BitSet, reasons []models.InclusionReason, enables [][]int, id, trig int) {
	for _, dep := range g.DependencyIDs(id) {
		switch {
		case planned.Test(uint(dep)):
			if reasons[dep] != models.ReasonTriggered && len(enables[dep]) == 0 {
				continue
			}
		case !round.Test(uint(dep)):
			round.Set(uint(dep))
			reasons[dep] = models.ReasonDependency
		}
		if slices.Contains(enables[dep], trig) {
			continue
		}
		enables[dep] = append(enables[dep], trig)
		addConditional(g, planned, round, reasons, enables, dep, trig)
	}
}

// checkTriggerCycles rejects planned targets that trigger each other.
func checkTriggerCycles(g *graph.Graph, in *bitset.BitSet) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make([]int, g.Len())
	var stack []int

	var dfs func(int) error
	dfs = func(node int) error {
		colors[node] = gray
		stack = append(stack, node)
		for _, next := range g.TriggeredIDs(node) {
			if !in.Test(uint(next)) {
				continue
			}
			switch colors[next] {
			case gray:
				var path []string
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						for _, id := range stack[i:] {
							path = append(path, g.Node(id).Name)
						}
						break
					}
				}
				path = append(path, g.Node(next).Name)
				return &TriggerCycleError{Path: path, Reason: "targets trigger each other"}
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

	for i, ok := in.NextSet(0); ok; i, ok = in.NextSet(i + 1) {
		if colors[i] == white {
			if err := dfs(int(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// idHeap is a min-heap of node ids; lower ids were declared earlier.
type idHeap []int

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *idHeap) Pop() any {
	old := *h
	v := old[len(old)-1]
	*h = old[:len(old)-1]
	return v
}

// sortRound orders the members of one round with Kahn's algorithm, always
// picking the earliest-declared ready target. Dependencies outside the round
// are planned earlier and impose nothing.
func sortRound(g *graph.Graph, round *bitset.BitSet) []int {
	succ := make(map[int][]int)
	inDegree := make(map[int]int)
	addEdge := func(from, to int) {
		if slices.Contains(succ[from], to) {
			return
		}
		succ[from] = append(succ[from], to)
		inDegree[to]++
	}

	for i, ok := round.NextSet(0); ok; i, ok = round.NextSet(i + 1) {
		id := int(i)
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
		for _, dep := range g.DependencyIDs(id) {
			if round.Test(uint(dep)) {
				addEdge(dep, id)
			}
		}
		for _, next := range g.OrderSuccessorIDs(id) {
			if round.Test(uint(next)) {
				addEdge(id, next)
			}
		}
	}

	ready := &idHeap{}
	for id, degree := range inDegree {
		if degree == 0 {
			*ready = append(*ready, id)
		}
	}
	heap.Init(ready)

	// dependsOn and before/after together are acyclic, so every member is emitted.
	order := make([]int, 0, len(inDegree))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(int)
		order = append(order, id)
		for _, next := range succ[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}
	return order
}

// checkOrdering rejects before/after relations between planned targets that
// the round structure cannot honour, such as a triggered target declared to
// run before its own trigger source.
func checkOrdering(g *graph.Graph, order []int, position map[int]int) error {
	for i, id := range order {
		for _, next := range g.OrderSuccessorIDs(id) {
			if pos, ok := position[next]; ok && pos < i {
				return &TriggerCycleError{
					Path:   []string{g.Node(id).Name, g.Node(next).Name},
					Reason: "trigger order contradicts before/after ordering",
				}
			}
		}
	}
	return nil
}
