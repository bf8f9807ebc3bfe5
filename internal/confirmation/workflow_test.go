package confirmation_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/citizenly/autopilot/internal/confirmation"
	auditrepo "github.com/citizenly/autopilot/internal/confirmation/repositoryimpl"
	"github.com/citizenly/autopilot/internal/eventbus"
	"github.com/citizenly/autopilot/internal/task"
	taskrepo "github.com/citizenly/autopilot/internal/task/repositoryimpl"
	"github.com/citizenly/autopilot/pkg/cerr"
	"github.com/citizenly/autopilot/pkg/storage"
)

func newWorkflow(t *testing.T) (*confirmation.Workflow, *task.Store, *eventbus.Bus) {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := task.NewStore(taskrepo.NewYAMLRepository(local))
	bus := eventbus.New()
	return confirmation.NewWorkflow(store, auditrepo.NewYAMLRepository(local), bus), store, bus
}

func awaitingTask(t *testing.T, store *task.Store) *task.Task {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	tk := &task.Task{
		ID:                   ulid.Make().String(),
		Type:                 task.TypeEmailGeneration,
		Title:                "draft reply",
		Status:               task.StatusPending,
		Priority:             task.PriorityMedium,
		OwnerID:              "owner-1",
		Config:               `{"recipient":"a@example.com"}`,
		ConfirmationRequired: true,
		AutomationLevel:      task.AutomationSemiAuto,
		MaxRetries:           task.DefaultMaxRetries,
		CreatedAt:            now,
		LastUpdated:          now,
	}
	require.NoError(t, store.Add(ctx, tk))
	_, err := store.Begin(ctx, "owner-1", tk.ID)
	require.NoError(t, err)
	_, err = store.AwaitConfirmation(ctx, "owner-1", tk.ID)
	require.NoError(t, err)
	return tk
}

func TestConfirmApprove(t *testing.T) {
	ctx := context.Background()
	w, store, bus := newWorkflow(t)
	tk := awaitingTask(t, store)
	subID, events := bus.Subscribe(4)
	defer bus.Unsubscribe(subID)

	got, err := w.Confirm(ctx, "owner-1", tk.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)

	_, queue, err := store.Get(ctx, "owner-1", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.QueueCompleted, queue)

	event := <-events
	assert.Equal(t, eventbus.EventConfirmationResolved, event.Type)
	assert.Equal(t, "true", event.Metadata["approved"])
}

func TestConfirmRejectReturnsToActive(t *testing.T) {
	ctx := context.Background()
	w, store, _ := newWorkflow(t)
	tk := awaitingTask(t, store)

	got, err := w.Confirm(ctx, "owner-1", tk.ID, false, "use a friendlier tone")
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, got.Status)
	assert.Equal(t, 0, got.RetryCount, "rejection does not consume the retry budget")

	_, queue, err := store.Get(ctx, "owner-1", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.QueueActive, queue)

	notes := gjson.Get(got.Config, "feedback.notes")
	require.True(t, notes.IsArray())
	assert.Equal(t, "use a friendlier tone", notes.Array()[0].String())
	assert.Equal(t, "a@example.com", gjson.Get(got.Config, "recipient").String())
}

func TestConfirmRejectTwiceAccumulatesFeedback(t *testing.T) {
	ctx := context.Background()
	w, store, _ := newWorkflow(t)
	tk := awaitingTask(t, store)

	_, err := w.Confirm(ctx, "owner-1", tk.ID, false, "first pass")
	require.NoError(t, err)
	_, err = store.AwaitConfirmation(ctx, "owner-1", tk.ID)
	require.NoError(t, err)

	got, err := w.Confirm(ctx, "owner-1", tk.ID, false, "second pass")
	require.NoError(t, err)

	notes := gjson.Get(got.Config, "feedback.notes").Array()
	require.Len(t, notes, 2)
	assert.Equal(t, "first pass", notes[0].String())
	assert.Equal(t, "second pass", notes[1].String())
	assert.Equal(t, 0, got.RetryCount)
}

func TestConfirmRequiresAwaitingConfirmation(t *testing.T) {
	ctx := context.Background()
	w, store, _ := newWorkflow(t)

	now := time.Now()
	tk := &task.Task{
		ID:              ulid.Make().String(),
		Type:            task.TypeResearch,
		Title:           "pending task",
		Status:          task.StatusPending,
		Priority:        task.PriorityMedium,
		OwnerID:         "owner-1",
		AutomationLevel: task.AutomationSemiAuto,
		MaxRetries:      task.DefaultMaxRetries,
		CreatedAt:       now,
		LastUpdated:     now,
	}
	require.NoError(t, store.Add(ctx, tk))

	_, err := w.Confirm(ctx, "owner-1", tk.ID, true, "")
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	// The failed confirmation must not have moved the task.
	got, queue, err := store.Get(ctx, "owner-1", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.Equal(t, task.QueueActive, queue)
}

func TestConfirmUnknownTask(t *testing.T) {
	w, _, _ := newWorkflow(t)
	_, err := w.Confirm(context.Background(), "owner-1", "missing", true, "")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestConfirmRecordsAuditTrail(t *testing.T) {
	ctx := context.Background()
	w, store, _ := newWorkflow(t)
	tk := awaitingTask(t, store)

	_, err := w.Confirm(ctx, "owner-1", tk.ID, false, "needs sources")
	require.NoError(t, err)
	_, err = store.AwaitConfirmation(ctx, "owner-1", tk.ID)
	require.NoError(t, err)
	_, err = w.Confirm(ctx, "owner-1", tk.ID, true, "")
	require.NoError(t, err)

	entries, err := w.Trail(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Approved)
	assert.Equal(t, "needs sources", entries[0].Feedback)
	assert.True(t, entries[1].Approved)
	for _, e := range entries {
		assert.Equal(t, tk.ID, e.TaskID)
		assert.Equal(t, "owner-1", e.OwnerID)
	}
}
