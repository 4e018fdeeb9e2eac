package models

// InclusionReason records how a target entered an execution plan.
type InclusionReason int

const (
	ReasonRequested  InclusionReason = iota // named on the command line (or the default target)
	ReasonDependency                        // pulled in through dependsOn
	ReasonTriggered                         // pulled in because a trigger source is planned
)

func (r InclusionReason) String() string {
	switch r {
	case ReasonRequested:
		return "requested"
	case ReasonDependency:
		return "dependency"
	case ReasonTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// PlanEntry is one position in an execution plan
type PlanEntry struct {
	Target         Target
	Reason         InclusionReason
	TriggerSources []string // planned targets that trigger this one (Reason == ReasonTriggered)
	Enables        []string // triggered targets this dependency was planned for
}

// Conditional reports whether the entry only runs when a trigger fires: it is
// a triggered target, or a dependency planned solely for triggered targets.
func (e PlanEntry) Conditional() bool {
	return e.Reason == ReasonTriggered || len(e.Enables) > 0
}

// Plan is the ordered, duplicate-free sequence of targets selected for one invocation.
// It is built by the planner and never modified afterwards.
type Plan struct {
	Requested []string    // Entry targets as requested, in request order
	Entries   []PlanEntry // Targets in execution order
}

// Len returns the number of planned targets
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Entries)
}

// Names returns the declared names of the planned targets in order.
func (p *Plan) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		names[i] = e.Target.Name
	}
	return names
}

// Index returns the position of name in the plan, or -1.
func (p *Plan) Index(name string) int {
	if p == nil {
		return -1
	}
	key := NormalizeName(name)
	for i, e := range p.Entries {
		if e.Target.Key() == key {
			return i
		}
	}
	return -1
}

// Contains reports whether name is part of the plan.
func (p *Plan) Contains(name string) bool {
	return p.Index(name) >= 0
}
