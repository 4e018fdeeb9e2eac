package executor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/harrison/buildgraph/internal/artifact"
	"github.com/harrison/buildgraph/internal/graph"
	"github.com/harrison/buildgraph/internal/models"
)

// Logger defines the interface for reporting invocation progress and results.
type Logger interface {
	LogPlan(plan *models.Plan)
	LogTargetStart(entry models.PlanEntry)
	LogTargetResult(result models.TargetResult)
	LogSummary(result models.InvocationResult)
}

// OutputFunc returns the writer a target's action output goes to, plus a
// function called once the target has finished.
type OutputFunc func(target string) (io.Writer, func())

// Options configures an Executor.
type Options struct {
	Build          *models.BuildContext // Immutable invocation context; required
	Artifacts      *artifact.Checker    // Contract checker; defaults to one rooted at Build.RootDir()
	Logger         Logger               // Optional
	Output         OutputFunc           // Optional; output is discarded when nil
	DefaultTimeout time.Duration        // Per-target timeout when the target sets none (0 = no timeout)
	StopOnFailure  bool                 // Skip every remaining target after the first failure
	Skip           []string             // Targets forced to Skipped by the operator
	TimeoutGrace   time.Duration        // How long a timed-out action may take to return (default 1s)
}

// defaultTimeoutGrace bounds the wait for a timed-out action to return.
const defaultTimeoutGrace = time.Second

// Executor runs an execution plan strictly in order on the calling goroutine.
type Executor struct {
	graph *graph.Graph
	opts  Options
}

// New creates an Executor for plans built from g.
func New(g *graph.Graph, opts Options) *Executor {
	if g == nil {
		panic("graph cannot be nil")
	}
	if opts.Build == nil {
		opts.Build = models.NewBuildContext(models.BuildContextOptions{})
	}
	if opts.Artifacts == nil {
		opts.Artifacts = artifact.NewChecker(opts.Build.RootDir())
	}
	if opts.TimeoutGrace <= 0 {
		opts.TimeoutGrace = defaultTimeoutGrace
	}
	return &Executor{graph: g, opts: opts}
}

// run holds the mutable bookkeeping of one invocation.
type run struct {
	plan     *models.Plan
	results  []models.TargetResult
	position map[string]int // normalized name -> plan index
}

func newRun(plan *models.Plan) *run {
	r := &run{
		plan:     plan,
		results:  make([]models.TargetResult, len(plan.Entries)),
		position: make(map[string]int, len(plan.Entries)),
	}
	for i, e := range plan.Entries {
		r.results[i] = models.TargetResult{Name: e.Target.Name, State: models.StatePending}
		r.position[e.Target.Key()] = i
	}
	return r
}

// transition moves the target at plan index i to state to.
func (r *run) transition(i int, to models.RunState) error {
	from := r.results[i].State
	if !models.CanTransition(from, to) {
		return &IllegalTransitionError{Target: r.results[i].Name, From: from, To: to}
	}
	r.results[i].State = to
	return nil
}

func (r *run) skip(i int, reason models.SkipReason, because string) {
	if r.results[i].State != models.StatePending {
		return
	}
	_ = r.transition(i, models.StateSkipped)
	r.results[i].SkipReason = reason
	r.results[i].SkippedFor = because
}

// cascade skips the planned, still pending targets among dependents, the
// transitive dependsOn dependents of the failed target at plan index i.
func (r *run) cascade(i int, dependents []string) {
	failed := r.results[i].Name
	for _, name := range dependents {
		if j, ok := r.position[models.NormalizeName(name)]; ok {
			r.skip(j, models.SkipDependencyFailed, failed)
		}
	}
}

func (r *run) state(name string) (models.RunState, bool) {
	i, ok := r.position[models.NormalizeName(name)]
	if !ok {
		return models.StatePending, false
	}
	return r.results[i].State, true
}

// Execute runs plan. Requirements of every planned target are checked first; if
// any is unmet a *RequirementError is returned and nothing runs. Otherwise every
// target reaches a terminal state and the returned result lists them in plan
// order. The error is a *ExecutionError whenever the outcome is not Success.
//
// Cancelling ctx stops the run before the next target starts; the target that
// is already running is allowed to finish or time out.
func (e *Executor) Execute(ctx context.Context, plan *models.Plan) (*models.InvocationResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan cannot be nil")
	}

	r := newRun(plan)
	skipped := make(map[string]bool, len(e.opts.Skip))
	for _, name := range e.opts.Skip {
		skipped[models.NormalizeName(name)] = true
	}

	if err := e.checkRequirements(plan, skipped); err != nil {
		return nil, err
	}

	if e.opts.Logger != nil {
		e.opts.Logger.LogPlan(plan)
	}

	result := &models.InvocationResult{
		ID:            e.opts.Build.InvocationID(),
		Requested:     append([]string(nil), plan.Requested...),
		Configuration: e.opts.Build.Configuration(),
		StartedAt:     time.Now(),
	}

	stopped := ""
	for i, entry := range plan.Entries {
		if r.results[i].State != models.StatePending {
			e.report(r.results[i])
			continue
		}

		switch {
		case ctx.Err() != nil:
			result.Interrupted = true
			r.skip(i, models.SkipInterrupted, "")
		case stopped != "":
			r.skip(i, models.SkipStopped, stopped)
		case skipped[entry.Target.Key()]:
			r.skip(i, models.SkipOperator, "")
		case entry.Conditional() && !r.wanted(i):
			r.skip(i, models.SkipNotTriggered, "")
		default:
			e.runTarget(ctx, r, i)
			if r.results[i].State == models.StateFailed {
				r.cascade(i, e.graph.TransitiveDependents(entry.Target.Name))
				if e.opts.StopOnFailure {
					stopped = entry.Target.Name
				}
			}
		}
		e.report(r.results[i])
	}

	result.Results = r.results
	result.Duration = time.Since(result.StartedAt)

	execErr := aggregate(result)
	if execErr != nil {
		result.Outcome = models.OutcomePartialFailure
	}
	if e.opts.Logger != nil {
		e.opts.Logger.LogSummary(*result)
	}
	if execErr != nil {
		return result, execErr
	}
	return result, nil
}

func (e *Executor) report(tr models.TargetResult) {
	if e.opts.Logger != nil {
		e.opts.Logger.LogTargetResult(tr)
	}
}

// wanted reports whether the conditional entry at plan index i may still be
// needed: one of its trigger sources succeeded or has yet to run, or a
// pending triggered target it is a dependency for is wanted. Every source of
// the entry at the current position has already reached a terminal state.
func (r *run) wanted(i int) bool {
	entry := r.plan.Entries[i]
	for _, src := range entry.TriggerSources {
		if st, ok := r.state(src); ok && (st == models.StateSucceeded || st == models.StatePending) {
			return true
		}
	}
	for _, name := range entry.Enables {
		j, ok := r.position[models.NormalizeName(name)]
		if ok && r.results[j].State == models.StatePending && r.wanted(j) {
			return true
		}
	}
	return false
}

// checkRequirements evaluates every requirement of every planned target that
// the operator has not skipped, collecting all failures.
func (e *Executor) checkRequirements(plan *models.Plan, skipped map[string]bool) error {
	var failures []RequirementFailure
	for _, entry := range plan.Entries {
		if skipped[entry.Target.Key()] {
			continue
		}
		for _, req := range entry.Target.Requires {
			if err := checkRequirement(req, e.opts.Build); err != nil {
				failures = append(failures, RequirementFailure{
					Target:      entry.Target.Name,
					Requirement: req.Description,
					Err:         err,
				})
			}
		}
	}
	if len(failures) > 0 {
		return &RequirementError{Failures: failures}
	}
	return nil
}

func checkRequirement(req models.Requirement, bc *models.BuildContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("requirement panicked: %v", p)
		}
	}()
	return req.Check(bc)
}

// runTarget moves the target at plan index i through Running to Succeeded or Failed.
func (e *Executor) runTarget(ctx context.Context, r *run, i int) {
	entry := r.plan.Entries[i]
	target := entry.Target

	_ = r.transition(i, models.StateRunning)
	r.results[i].StartedAt = time.Now()
	if e.opts.Logger != nil {
		e.opts.Logger.LogTargetStart(entry)
	}

	err := e.invoke(ctx, target)

	r.results[i].Duration = time.Since(r.results[i].StartedAt)
	if err != nil {
		_ = r.transition(i, models.StateFailed)
		r.results[i].Err = err
		return
	}
	_ = r.transition(i, models.StateSucceeded)
}

// invoke checks consumes, runs the action under the target's timeout and checks produces.
func (e *Executor) invoke(ctx context.Context, target models.Target) error {
	if consumes := e.graph.Consumes(target.Name); len(consumes) > 0 {
		missing, err := e.opts.Artifacts.Missing(consumes)
		if err != nil {
			return NewExecutionFailure(target.Name, err)
		}
		if len(missing) > 0 {
			return &ArtifactContractViolation{Target: target.Name, Phase: PhaseConsumes, Patterns: missing}
		}
	}

	if target.Action != nil {
		if err := e.runAction(ctx, target); err != nil {
			return err
		}
	}

	if len(target.Produces) > 0 {
		missing, err := e.opts.Artifacts.Missing(target.Produces)
		if err != nil {
			return NewExecutionFailure(target.Name, err)
		}
		if len(missing) > 0 {
			return &ArtifactContractViolation{Target: target.Name, Phase: PhaseProduces, Patterns: missing}
		}
	}
	return nil
}

// runAction invokes the action on its own goroutine so a timeout can be
// enforced even when the action ignores its context. An operator interrupt
// does not reach a running action.
//
// After a timeout the action gets TimeoutGrace to return before its output is
// closed. Command actions are killed through their context; a Go action that
// ignores ctx past the grace period is abandoned and may keep running while
// later targets start.
func (e *Executor) runAction(ctx context.Context, target models.Target) error {
	timeout := target.Timeout
	if timeout == 0 {
		timeout = e.opts.DefaultTimeout
	}

	actionCtx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(actionCtx, timeout)
		defer cancel()
	}

	out := io.Discard
	if e.opts.Output != nil {
		w, done := e.opts.Output(target.Name)
		if w != nil {
			out = w
		}
		if done != nil {
			defer done()
		}
	}

	inv := models.Invocation{
		Target: target.Name,
		Build:  e.opts.Build,
		Stdout: out,
		Stderr: out,
	}

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				errCh <- fmt.Errorf("action panicked: %v", p)
			}
		}()
		errCh <- target.Action.Invoke(actionCtx, inv)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			return nil
		}
		if timeout > 0 && actionCtx.Err() == context.DeadlineExceeded {
			return NewTimeoutError(target.Name, timeout)
		}
		return NewExecutionFailure(target.Name, err)
	case <-actionCtx.Done():
		select {
		case <-errCh:
		case <-time.After(e.opts.TimeoutGrace):
		}
		return NewTimeoutError(target.Name, timeout)
	}
}

// aggregate builds the ExecutionError for a result, or nil when every target
// either succeeded or was intentionally left out.
func aggregate(result *models.InvocationResult) *ExecutionError {
	execErr := &ExecutionError{Total: len(result.Results), Interrupted: result.Interrupted}
	for _, tr := range result.Results {
		switch {
		case tr.State == models.StateFailed:
			execErr.Failed = append(execErr.Failed, tr.Name)
			execErr.Errors = append(execErr.Errors, tr.Err)
		case tr.State == models.StateSkipped && tr.SkipReason.IsFailure():
			execErr.Skipped = append(execErr.Skipped, tr.Name)
		}
	}
	if len(execErr.Failed) == 0 && len(execErr.Skipped) == 0 && !execErr.Interrupted {
		return nil
	}
	return execErr
}
