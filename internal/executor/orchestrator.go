package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/harrison/buildgraph/internal/models"
)

// PlanExecutor defines the behavior required to execute a plan.
type PlanExecutor interface {
	Execute(ctx context.Context, plan *models.Plan) (*models.InvocationResult, error)
}

// Orchestrator wraps a PlanExecutor with operator-interrupt handling.
type Orchestrator struct {
	executor PlanExecutor
	notice   io.Writer
	signals  []os.Signal
}

// NewOrchestrator creates a new Orchestrator instance.
// notice receives a one-line message when an interrupt arrives and may be nil.
func NewOrchestrator(executor PlanExecutor, notice io.Writer) *Orchestrator {
	if executor == nil {
		panic("executor cannot be nil")
	}
	return &Orchestrator{
		executor: executor,
		notice:   notice,
		signals:  []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
}

// ExecutePlan runs plan, turning SIGINT/SIGTERM into a cancellation that stops
// the executor before the next target starts.
func (o *Orchestrator) ExecutePlan(ctx context.Context, plan *models.Plan) (*models.InvocationResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan cannot be nil")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, o.signals...)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			if o.notice != nil {
				fmt.Fprintln(o.notice, "\nReceived interrupt signal, stopping after the current target...")
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return o.executor.Execute(ctx, plan)
}
