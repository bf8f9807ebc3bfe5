package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/citizenly/autopilot/internal/capability"
	"github.com/citizenly/autopilot/internal/eventbus"
	"github.com/citizenly/autopilot/internal/memory"
	"github.com/citizenly/autopilot/internal/policy"
	"github.com/citizenly/autopilot/internal/task"
	"github.com/citizenly/autopilot/pkg/cerr"
)

// Adapter drives a single task through execution: capability lookup,
// delegation to the external executor, result interpretation and the
// resulting queue transition. It is the only component that blocks.
type Adapter struct {
	exec       Executor
	registry   *capability.Registry
	store      *task.Store
	memories   *memory.Store
	bus        *eventbus.Bus
	retryDelay time.Duration
}

func NewAdapter(exec Executor, registry *capability.Registry, store *task.Store, memories *memory.Store, bus *eventbus.Bus, retryDelay time.Duration) *Adapter {
	return &Adapter{
		exec:       exec,
		registry:   registry,
		store:      store,
		memories:   memories,
		bus:        bus,
		retryDelay: retryDelay,
	}
}

// Run executes the task until it reaches a post-execution state. Transitions
// are applied in the order results are received; a task cancelled while the
// executor is in flight has its late result dropped rather than applied.
func (a *Adapter) Run(ctx context.Context, ownerID, id string) error {
	t, err := a.store.Begin(ctx, ownerID, id)
	if err != nil {
		return err
	}
	a.bus.PublishNew(eventbus.EventTaskStatusChanged, ownerID, id, map[string]string{"status": string(t.Status)})

	c, err := a.registry.Get(string(t.Type))
	if err != nil || !c.Enabled {
		reason := fmt.Sprintf("capability %q is not available", t.Type)
		if _, failErr := a.store.Fail(ctx, ownerID, id, task.FailureCapabilityUnavailable, reason); failErr != nil && !suppressed(failErr) {
			return failErr
		}
		a.bus.PublishNew(eventbus.EventTaskFailed, ownerID, id, map[string]string{"code": task.FailureCapabilityUnavailable})
		return cerr.NewError(cerr.FailedPrecondition, reason, err)
	}

	thresholds, err := a.memories.ConfirmationThresholds(ctx, ownerID)
	if err != nil {
		slog.WarnContext(ctx, "failed to read confirmation thresholds", "owner_id", ownerID, "error", err)
	}

	for {
		res := a.invoke(ctx, t)

		switch res.Status {
		case StatusSuccess:
			a.writeBack(ctx, t, res.Payload)
			if policy.ConfirmationNeeded(t, c, thresholds) {
				if _, err := a.store.AwaitConfirmation(ctx, ownerID, id); err != nil {
					return a.suppress(ctx, id, err)
				}
				a.bus.PublishNew(eventbus.EventConfirmationRequested, ownerID, id, nil)
				return nil
			}
			if _, err := a.store.Complete(ctx, ownerID, id); err != nil {
				return a.suppress(ctx, id, err)
			}
			a.registry.Touch(string(t.Type))
			a.bus.PublishNew(eventbus.EventTaskCompleted, ownerID, id, nil)
			return nil

		case StatusNeedsConfirmation:
			if _, err := a.store.AwaitConfirmation(ctx, ownerID, id); err != nil {
				return a.suppress(ctx, id, err)
			}
			a.bus.PublishNew(eventbus.EventConfirmationRequested, ownerID, id, nil)
			return nil

		case StatusTransientFailure:
			if t.RetryCount < t.MaxRetries {
				updated, err := a.store.RecordRetry(ctx, ownerID, id)
				if err != nil {
					return a.suppress(ctx, id, err)
				}
				t = updated
				slog.InfoContext(ctx, "retrying task after transient failure",
					"task_id", id, "retry_count", t.RetryCount, "max_retries", t.MaxRetries)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(a.retryDelay):
				}
				continue
			}
			reason := fmt.Sprintf("gave up after %d attempts: %s", t.RetryCount+1, res.Error)
			if _, err := a.store.Fail(ctx, ownerID, id, task.FailureRetryBudgetExhausted, reason); err != nil {
				return a.suppress(ctx, id, err)
			}
			a.bus.PublishNew(eventbus.EventTaskFailed, ownerID, id, map[string]string{"code": task.FailureRetryBudgetExhausted})
			return cerr.NewError(cerr.ResourceExhausted, "retry budget exhausted", fmt.Errorf("%s", res.Error))

		default:
			if _, err := a.store.Fail(ctx, ownerID, id, task.FailurePermanent, res.Error); err != nil {
				return a.suppress(ctx, id, err)
			}
			a.bus.PublishNew(eventbus.EventTaskFailed, ownerID, id, map[string]string{"code": task.FailurePermanent})
			return cerr.NewError(cerr.Aborted, "executor refused task", fmt.Errorf("%s", res.Error))
		}
	}
}

// invoke delegates to the external executor and normalizes its answer: a
// transport error is retryable, any unrecognized shape is a permanent
// failure.
func (a *Adapter) invoke(ctx context.Context, t *task.Task) *Result {
	res, err := a.exec.Execute(ctx, t)
	if err != nil {
		return &Result{Status: StatusTransientFailure, Error: err.Error()}
	}
	if res == nil || !res.Status.Valid() {
		return &Result{Status: StatusPermanentFailure, Error: "executor returned an unrecognized result shape"}
	}
	return res
}

// writeBack merges citizen-provided data discovered during execution into
// the owner's memory. Only document-producing types feed the profile.
func (a *Adapter) writeBack(ctx context.Context, t *task.Task, payload string) {
	if t.Type != task.TypeTaxPreparation && t.Type != task.TypeFormFilling {
		return
	}
	if payload == "" {
		return
	}
	data := gjson.Get(payload, "citizen_data")
	if !data.IsObject() {
		return
	}
	updated := false
	data.ForEach(func(key, value gjson.Result) bool {
		category := key.String()
		if !memory.IsValidCategory(category) || !value.IsObject() {
			return true
		}
		partial, ok := value.Value().(map[string]any)
		if !ok {
			return true
		}
		if _, err := a.memories.MergeCategory(ctx, t.OwnerID, category, partial); err != nil {
			slog.ErrorContext(ctx, "failed to merge execution results into memory",
				"owner_id", t.OwnerID, "task_id", t.ID, "category", category, "error", err)
			return true
		}
		updated = true
		return true
	})
	if updated {
		a.bus.PublishNew(eventbus.EventMemoryUpdated, t.OwnerID, t.ID, nil)
	}
}

// suppress drops InvalidState transition errors caused by a concurrent
// cancel: the result of an already-cancelled task must not be observable.
func (a *Adapter) suppress(ctx context.Context, id string, err error) error {
	if suppressed(err) {
		slog.DebugContext(ctx, "dropping execution result for task no longer in flight", "task_id", id, "error", err)
		return nil
	}
	return err
}

func suppressed(err error) bool {
	return cerr.IsCode(err, cerr.FailedPrecondition)
}
