package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/planner"
	"github.com/harrison/buildgraph/internal/registry"
)

// mockPlanExecutor is a test double for PlanExecutor.
type mockPlanExecutor struct {
	executeFunc func(ctx context.Context, plan *models.Plan) (*models.InvocationResult, error)
}

func (m *mockPlanExecutor) Execute(ctx context.Context, plan *models.Plan) (*models.InvocationResult, error) {
	if m.executeFunc != nil {
		return m.executeFunc(ctx, plan)
	}
	return &models.InvocationResult{}, nil
}

// syncBuffer is a bytes.Buffer safe for the signal goroutine to write to.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewOrchestrator(t *testing.T) {
	t.Run("nil executor panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic for nil executor")
			}
		}()
		NewOrchestrator(nil, nil)
	})

	t.Run("nil notice is ok", func(t *testing.T) {
		if NewOrchestrator(&mockPlanExecutor{}, nil) == nil {
			t.Error("expected non-nil orchestrator")
		}
	})
}

func TestOrchestratorExecutePlan(t *testing.T) {
	planErr := errors.New("execution failed")

	tests := []struct {
		name    string
		plan    *models.Plan
		result  *models.InvocationResult
		execErr error
		wantErr bool
	}{
		{
			name:   "successful plan execution",
			plan:   &models.Plan{Requested: []string{"A"}},
			result: &models.InvocationResult{Outcome: models.OutcomeSuccess},
		},
		{
			name:    "executor error is returned",
			plan:    &models.Plan{Requested: []string{"A"}},
			result:  &models.InvocationResult{Outcome: models.OutcomePartialFailure},
			execErr: planErr,
			wantErr: true,
		},
		{
			name:    "nil plan",
			plan:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			exec := &mockPlanExecutor{
				executeFunc: func(ctx context.Context, plan *models.Plan) (*models.InvocationResult, error) {
					called = true
					if plan != tt.plan {
						t.Error("executor received a different plan")
					}
					return tt.result, tt.execErr
				},
			}

			res, err := NewOrchestrator(exec, nil).ExecutePlan(context.Background(), tt.plan)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExecutePlan() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.plan == nil {
				if called {
					t.Error("executor must not run for a nil plan")
				}
				return
			}
			if res != tt.result {
				t.Errorf("ExecutePlan() result = %v, want %v", res, tt.result)
			}
		})
	}
}

func TestOrchestratorCancelsAfterReturn(t *testing.T) {
	var runCtx context.Context
	exec := &mockPlanExecutor{
		executeFunc: func(ctx context.Context, plan *models.Plan) (*models.InvocationResult, error) {
			runCtx = ctx
			return &models.InvocationResult{}, nil
		},
	}

	if _, err := NewOrchestrator(exec, nil).ExecutePlan(context.Background(), &models.Plan{}); err != nil {
		t.Fatalf("ExecutePlan() error = %v", err)
	}
	if runCtx.Err() == nil {
		t.Error("the run context should be released once the plan finished")
	}
}

func TestOrchestratorRunsRealExecutor(t *testing.T) {
	g := setup(t, registry.Define("A"))

	plan, err := planner.Plan(g, "A")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	res, err := NewOrchestrator(New(g, Options{}), nil).ExecutePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("ExecutePlan() error = %v", err)
	}
	if res.Outcome != models.OutcomeSuccess {
		t.Errorf("Outcome = %v, want Success", res.Outcome)
	}
}

// TestOrchestratorSignalHandling tests actual signal handling with real signals.
// This test is more integration-style and may be flaky in some environments.
func TestOrchestratorSignalHandling(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping signal handling test in short mode")
	}

	started := make(chan struct{})
	exec := &mockPlanExecutor{
		executeFunc: func(ctx context.Context, plan *models.Plan) (*models.InvocationResult, error) {
			close(started)
			<-ctx.Done()
			return &models.InvocationResult{Interrupted: true}, ctx.Err()
		},
	}
	notice := &syncBuffer{}
	orch := NewOrchestrator(exec, notice)

	resultChan := make(chan error, 1)
	go func() {
		_, err := orch.ExecutePlan(context.Background(), &models.Plan{})
		resultChan <- err
	}()

	<-started
	// Give orchestrator time to set up signal handling
	time.Sleep(50 * time.Millisecond)

	proc, _ := os.FindProcess(os.Getpid())
	if err := proc.Signal(syscall.SIGINT); err != nil {
		t.Fatalf("failed to send SIGINT: %v", err)
	}

	select {
	case err := <-resultChan:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not respond to SIGINT")
	}

	if !strings.Contains(notice.String(), "Received interrupt signal") {
		t.Errorf("expected interrupt notice, got %q", notice.String())
	}
}
