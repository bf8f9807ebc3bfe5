package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/citizenly/autopilot/internal/capability"
	"github.com/citizenly/autopilot/internal/confirmation"
	"github.com/citizenly/autopilot/internal/eventbus"
	"github.com/citizenly/autopilot/internal/executor"
	"github.com/citizenly/autopilot/internal/memory"
	"github.com/citizenly/autopilot/internal/policy"
	"github.com/citizenly/autopilot/internal/task"
	"github.com/citizenly/autopilot/pkg/cerr"
	"github.com/citizenly/autopilot/pkg/panicerr"
)

// Engine is the caller-facing coordinator. It owns the create → decide →
// execute → confirm loop; all queue mutations for one owner are serialized
// by the task store underneath it.
type Engine struct {
	factory      *task.Factory
	store        *task.Store
	registry     *capability.Registry
	memories     *memory.Store
	adapter      *executor.Adapter
	confirmer    *confirmation.Workflow
	bus          *eventbus.Bus
	defaultLevel policy.Level

	wg conc.WaitGroup

	mu      sync.Mutex
	running map[string]struct{}
}

func New(
	factory *task.Factory,
	store *task.Store,
	registry *capability.Registry,
	memories *memory.Store,
	adapter *executor.Adapter,
	confirmer *confirmation.Workflow,
	bus *eventbus.Bus,
	defaultLevel policy.Level,
) *Engine {
	return &Engine{
		factory:      factory,
		store:        store,
		registry:     registry,
		memories:     memories,
		adapter:      adapter,
		confirmer:    confirmer,
		bus:          bus,
		defaultLevel: defaultLevel,
		running:      make(map[string]struct{}),
	}
}

// Wait blocks until all in-flight executions have finished. Called on
// shutdown after the HTTP server has drained.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// CreateTask builds the task, queues it, and auto-executes it when the
// automation policy allows. An explicitly disabled capability blocks
// creation; an unregistered type is deferred to execution.
func (e *Engine) CreateTask(ctx context.Context, req *task.CreateRequest) (*task.Task, error) {
	if c, err := e.registry.Get(req.Type); err == nil && !c.Enabled {
		return nil, cerr.NewError(cerr.FailedPrecondition,
			fmt.Sprintf("capability %q is disabled", req.Type), nil)
	}

	t, err := e.factory.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := e.store.Add(ctx, t); err != nil {
		return nil, err
	}
	e.bus.PublishNew(eventbus.EventTaskCreated, t.OwnerID, t.ID, map[string]string{
		"type":     string(t.Type),
		"priority": string(t.Priority),
	})

	level, err := e.automationLevel(ctx, t.OwnerID)
	if err != nil {
		slog.WarnContext(ctx, "failed to resolve automation level, using default",
			"owner_id", t.OwnerID, "error", err)
		level = e.defaultLevel
	}
	if policy.ShouldAutoRun(level, t) {
		e.execute(t.OwnerID, t.ID)
	}
	return t, nil
}

// ExecuteTask manually triggers execution of an active task. The call
// returns once execution has been accepted; completion is observed through
// the queues and the event stream.
func (e *Engine) ExecuteTask(ctx context.Context, ownerID, id string) error {
	t, queue, err := e.store.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if queue != task.QueueActive {
		return cerr.NewError(cerr.FailedPrecondition,
			fmt.Sprintf("task %s is %s and cannot be executed", id, t.Status), nil)
	}
	if !e.execute(ownerID, id) {
		return cerr.NewError(cerr.FailedPrecondition,
			fmt.Sprintf("task %s is already executing", id), nil)
	}
	return nil
}

// execute starts an execution goroutine for the task unless one is already
// running for it. The in-flight set is keyed per owner and task so a second
// trigger cannot race the executor into a double run.
func (e *Engine) execute(ownerID, id string) bool {
	key := ownerID + "/" + id
	e.mu.Lock()
	if _, inFlight := e.running[key]; inFlight {
		e.mu.Unlock()
		return false
	}
	e.running[key] = struct{}{}
	e.mu.Unlock()

	e.wg.Go(func() {
		defer func() {
			e.mu.Lock()
			delete(e.running, key)
			e.mu.Unlock()
		}()
		err := panicerr.Safe(func() error {
			return e.adapter.Run(context.Background(), ownerID, id)
		})()
		if err != nil {
			slog.Error("task execution finished with failure", "owner_id", ownerID, "task_id", id, "error", err)
		}
	})
	return true
}

// Confirm resolves a pending confirmation decision.
func (e *Engine) Confirm(ctx context.Context, ownerID, id string, approved bool, feedback string) (*task.Task, error) {
	return e.confirmer.Confirm(ctx, ownerID, id, approved, feedback)
}

// AuditTrail returns the confirmation decisions recorded for a task.
func (e *Engine) AuditTrail(ctx context.Context, taskID string) ([]*confirmation.AuditEntry, error) {
	return e.confirmer.Trail(ctx, taskID)
}

// Cancel stops a pending or in-progress task. Cancelling mid-execution is
// best effort: the external executor is not guaranteed to stop, but its
// late result is suppressed.
func (e *Engine) Cancel(ctx context.Context, ownerID, id string) (*task.Task, error) {
	t, err := e.store.Cancel(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	e.bus.PublishNew(eventbus.EventTaskCancelled, ownerID, id, nil)
	return t, nil
}

// SetAutomationLevel persists the owner's global automation dial.
func (e *Engine) SetAutomationLevel(ctx context.Context, ownerID, level string) error {
	parsed, err := policy.ParseLevel(level)
	if err != nil {
		return err
	}
	return e.memories.SetAutomationLevel(ctx, ownerID, string(parsed))
}

// SetConfirmationThreshold persists a per-type confirmation threshold.
func (e *Engine) SetConfirmationThreshold(ctx context.Context, ownerID, taskType string, threshold float64) error {
	if !task.Type(taskType).Valid() {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown task type %q", taskType), nil)
	}
	return e.memories.SetConfirmationThreshold(ctx, ownerID, taskType, threshold)
}

func (e *Engine) automationLevel(ctx context.Context, ownerID string) (policy.Level, error) {
	stored, err := e.memories.AutomationLevel(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if stored == "" {
		return e.defaultLevel, nil
	}
	return policy.ParseLevel(stored)
}
