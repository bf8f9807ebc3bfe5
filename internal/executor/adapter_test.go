package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citizenly/autopilot/internal/capability"
	"github.com/citizenly/autopilot/internal/eventbus"
	"github.com/citizenly/autopilot/internal/executor"
	"github.com/citizenly/autopilot/internal/memory"
	memoryrepo "github.com/citizenly/autopilot/internal/memory/repositoryimpl"
	"github.com/citizenly/autopilot/internal/task"
	taskrepo "github.com/citizenly/autopilot/internal/task/repositoryimpl"
	"github.com/citizenly/autopilot/pkg/cerr"
	"github.com/citizenly/autopilot/pkg/storage"
)

// fakeExecutor replays a scripted sequence of answers. The last entry
// repeats once the script runs out.
type fakeExecutor struct {
	mu     sync.Mutex
	script []func() (*executor.Result, error)
	calls  int
}

func (f *fakeExecutor) Execute(ctx context.Context, t *task.Task) (*executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	return f.script[i]()
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func result(status executor.ResultStatus, payload string) func() (*executor.Result, error) {
	return func() (*executor.Result, error) {
		return &executor.Result{Status: status, Payload: payload}, nil
	}
}

type fixture struct {
	exec     *fakeExecutor
	registry *capability.Registry
	store    *task.Store
	memories *memory.Store
	bus      *eventbus.Bus
	adapter  *executor.Adapter
}

func newFixture(t *testing.T, script ...func() (*executor.Result, error)) *fixture {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		exec:     &fakeExecutor{script: script},
		registry: capability.NewRegistry(),
		store:    task.NewStore(taskrepo.NewYAMLRepository(local)),
		memories: memory.NewStore(memoryrepo.NewYAMLRepository(local)),
		bus:      eventbus.New(),
	}
	f.adapter = executor.NewAdapter(f.exec, f.registry, f.store, f.memories, f.bus, time.Millisecond)
	return f
}

func (f *fixture) addTask(t *testing.T, typ task.Type, maxRetries int, confirmationRequired bool) *task.Task {
	t.Helper()
	now := time.Now()
	tk := &task.Task{
		ID:                   ulid.Make().String(),
		Type:                 typ,
		Title:                "test task",
		Status:               task.StatusPending,
		Priority:             task.PriorityMedium,
		OwnerID:              "owner-1",
		ConfirmationRequired: confirmationRequired,
		AutomationLevel:      task.AutomationSemiAuto,
		MaxRetries:           maxRetries,
		CreatedAt:            now,
		LastUpdated:          now,
	}
	require.NoError(t, f.store.Add(context.Background(), tk))
	return tk
}

func (f *fixture) queueOf(t *testing.T, id string) (task.Status, task.Queue) {
	t.Helper()
	tk, q, err := f.store.Get(context.Background(), "owner-1", id)
	require.NoError(t, err)
	return tk.Status, q
}

func drainEvents(ch <-chan *eventbus.Event) []eventbus.EventType {
	var out []eventbus.EventType
	for {
		select {
		case e := <-ch:
			out = append(out, e.Type)
		default:
			return out
		}
	}
}

func TestRunSuccessRoutesToConfirmation(t *testing.T) {
	f := newFixture(t, result(executor.StatusSuccess, `{"summary":"done"}`))
	tk := f.addTask(t, task.TypeResearch, 3, true)
	subID, events := f.bus.Subscribe(16)
	defer f.bus.Unsubscribe(subID)

	require.NoError(t, f.adapter.Run(context.Background(), "owner-1", tk.ID))

	status, queue := f.queueOf(t, tk.ID)
	assert.Equal(t, task.StatusAwaitingConfirmation, status)
	assert.Equal(t, task.QueuePendingConfirmation, queue)
	assert.Contains(t, drainEvents(events), eventbus.EventConfirmationRequested)
}

func TestRunSuccessWithoutConfirmationCompletes(t *testing.T) {
	f := newFixture(t, result(executor.StatusSuccess, ""))
	tk := f.addTask(t, task.TypeResearch, 3, false)

	require.NoError(t, f.adapter.Run(context.Background(), "owner-1", tk.ID))

	status, queue := f.queueOf(t, tk.ID)
	assert.Equal(t, task.StatusCompleted, status)
	assert.Equal(t, task.QueueCompleted, queue)

	c, err := f.registry.Get("research")
	require.NoError(t, err)
	assert.NotNil(t, c.LastUsed)
}

func TestRunThresholdWaivesConfirmation(t *testing.T) {
	f := newFixture(t, result(executor.StatusSuccess, ""))
	ctx := context.Background()
	// Default research accuracy is 0.9; a threshold at 0.9 is met.
	require.NoError(t, f.memories.SetConfirmationThreshold(ctx, "owner-1", "research", 0.9))
	tk := f.addTask(t, task.TypeResearch, 3, true)

	require.NoError(t, f.adapter.Run(ctx, "owner-1", tk.ID))

	status, _ := f.queueOf(t, tk.ID)
	assert.Equal(t, task.StatusCompleted, status)
}

func TestRunThresholdAboveAccuracyStillConfirms(t *testing.T) {
	f := newFixture(t, result(executor.StatusSuccess, ""))
	ctx := context.Background()
	require.NoError(t, f.memories.SetConfirmationThreshold(ctx, "owner-1", "research", 0.99))
	tk := f.addTask(t, task.TypeResearch, 3, true)

	require.NoError(t, f.adapter.Run(ctx, "owner-1", tk.ID))

	status, _ := f.queueOf(t, tk.ID)
	assert.Equal(t, task.StatusAwaitingConfirmation, status)
}

func TestRunNeedsConfirmationResult(t *testing.T) {
	f := newFixture(t, result(executor.StatusNeedsConfirmation, ""))
	tk := f.addTask(t, task.TypeResearch, 3, false)

	require.NoError(t, f.adapter.Run(context.Background(), "owner-1", tk.ID))

	// The executor's explicit request overrides the waived requirement.
	status, queue := f.queueOf(t, tk.ID)
	assert.Equal(t, task.StatusAwaitingConfirmation, status)
	assert.Equal(t, task.QueuePendingConfirmation, queue)
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t,
		func() (*executor.Result, error) {
			return &executor.Result{Status: executor.StatusTransientFailure, Error: "flaky"}, nil
		},
		func() (*executor.Result, error) {
			return &executor.Result{Status: executor.StatusTransientFailure, Error: "flaky"}, nil
		},
		result(executor.StatusSuccess, ""),
	)
	tk := f.addTask(t, task.TypeResearch, 3, false)

	require.NoError(t, f.adapter.Run(context.Background(), "owner-1", tk.ID))

	assert.Equal(t, 3, f.exec.callCount())
	got, _, err := f.store.Get(context.Background(), "owner-1", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.RetryCount)
}

func TestRunExhaustsRetryBudget(t *testing.T) {
	f := newFixture(t, func() (*executor.Result, error) {
		return &executor.Result{Status: executor.StatusTransientFailure, Error: "still down"}, nil
	})
	tk := f.addTask(t, task.TypeResearch, 2, false)
	subID, events := f.bus.Subscribe(16)
	defer f.bus.Unsubscribe(subID)

	err := f.adapter.Run(context.Background(), "owner-1", tk.ID)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.ResourceExhausted))

	// Exactly the initial attempt plus MaxRetries retries.
	assert.Equal(t, 3, f.exec.callCount())

	got, queue, err := f.store.Get(context.Background(), "owner-1", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, task.FailureRetryBudgetExhausted, got.FailureCode)
	assert.Equal(t, task.QueueCompleted, queue)
	assert.Contains(t, drainEvents(events), eventbus.EventTaskFailed)
}

func TestRunTransportErrorIsTransient(t *testing.T) {
	f := newFixture(t,
		func() (*executor.Result, error) { return nil, errors.New("connection refused") },
		result(executor.StatusSuccess, ""),
	)
	tk := f.addTask(t, task.TypeResearch, 3, false)

	require.NoError(t, f.adapter.Run(context.Background(), "owner-1", tk.ID))
	assert.Equal(t, 2, f.exec.callCount())
}

func TestRunPermanentFailure(t *testing.T) {
	f := newFixture(t, func() (*executor.Result, error) {
		return &executor.Result{Status: executor.StatusPermanentFailure, Error: "unsupported form revision"}, nil
	})
	tk := f.addTask(t, task.TypeResearch, 3, false)

	err := f.adapter.Run(context.Background(), "owner-1", tk.ID)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.Aborted))

	assert.Equal(t, 1, f.exec.callCount(), "permanent failures are not retried")
	got, _, err := f.store.Get(context.Background(), "owner-1", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, task.FailurePermanent, got.FailureCode)
}

func TestRunUnrecognizedResultShapeIsPermanent(t *testing.T) {
	f := newFixture(t, func() (*executor.Result, error) {
		return &executor.Result{Status: "partying"}, nil
	})
	tk := f.addTask(t, task.TypeResearch, 3, false)

	err := f.adapter.Run(context.Background(), "owner-1", tk.ID)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.Aborted))
}

func TestRunDisabledCapability(t *testing.T) {
	f := newFixture(t, result(executor.StatusSuccess, ""))
	require.NoError(t, f.registry.SetEnabled("research", false))
	tk := f.addTask(t, task.TypeResearch, 3, false)

	err := f.adapter.Run(context.Background(), "owner-1", tk.ID)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	assert.Zero(t, f.exec.callCount(), "executor must not be invoked")
	got, _, err := f.store.Get(context.Background(), "owner-1", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, task.FailureCapabilityUnavailable, got.FailureCode)
}

func TestRunWritesCitizenDataBack(t *testing.T) {
	payload := `{"citizen_data":{"financial_data":{"tax_id":"DE123"},"bogus_category":{"x":1}}}`
	f := newFixture(t, result(executor.StatusSuccess, payload))
	tk := f.addTask(t, task.TypeTaxPreparation, 3, false)
	subID, events := f.bus.Subscribe(16)
	defer f.bus.Unsubscribe(subID)

	require.NoError(t, f.adapter.Run(context.Background(), "owner-1", tk.ID))

	doc, err := f.memories.Read(context.Background(), "owner-1", memory.CategoryFinancial)
	require.NoError(t, err)
	assert.Equal(t, "DE123", doc["tax_id"])
	assert.Contains(t, drainEvents(events), eventbus.EventMemoryUpdated)
}

func TestRunNoWriteBackForNonDocumentTypes(t *testing.T) {
	payload := `{"citizen_data":{"financial_data":{"tax_id":"DE123"}}}`
	f := newFixture(t, result(executor.StatusSuccess, payload))
	tk := f.addTask(t, task.TypeResearch, 3, false)

	require.NoError(t, f.adapter.Run(context.Background(), "owner-1", tk.ID))

	doc, err := f.memories.Read(context.Background(), "owner-1", memory.CategoryFinancial)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRunUnknownTask(t *testing.T) {
	f := newFixture(t, result(executor.StatusSuccess, ""))
	err := f.adapter.Run(context.Background(), "owner-1", "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
