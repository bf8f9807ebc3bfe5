package confirmation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tidwall/sjson"

	"github.com/citizenly/autopilot/internal/eventbus"
	"github.com/citizenly/autopilot/internal/task"
	"github.com/citizenly/autopilot/pkg/cerr"
)

// Workflow accepts human approve/reject decisions for tasks awaiting
// confirmation and routes them back through the task store.
type Workflow struct {
	store *task.Store
	audit Repository
	bus   *eventbus.Bus
}

func NewWorkflow(store *task.Store, audit Repository, bus *eventbus.Bus) *Workflow {
	return &Workflow{
		store: store,
		audit: audit,
		bus:   bus,
	}
}

// Confirm resolves a pending confirmation. The task must currently be in
// the pending-confirmation queue; anything else fails without mutating the
// task. A rejection is a normal transition back to active rework, not an
// error, and does not count against the retry budget.
func (w *Workflow) Confirm(ctx context.Context, ownerID, taskID string, approved bool, feedback string) (*task.Task, error) {
	cur, queue, err := w.store.Get(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	if queue != task.QueuePendingConfirmation {
		return nil, cerr.NewError(cerr.FailedPrecondition,
			fmt.Sprintf("task %s is not awaiting confirmation", taskID), nil)
	}

	var t *task.Task
	if approved {
		t, err = w.store.Complete(ctx, ownerID, taskID)
	} else {
		t, err = w.store.ReturnToActive(ctx, ownerID, taskID, withFeedback(cur.Config, feedback))
	}
	if err != nil {
		return nil, err
	}

	w.recordAudit(ctx, t, approved, feedback)
	w.bus.PublishNew(eventbus.EventConfirmationResolved, ownerID, taskID, map[string]string{
		"approved": map[bool]string{true: "true", false: "false"}[approved],
	})
	return t, nil
}

// Trail returns the recorded decisions for a task, oldest first.
func (w *Workflow) Trail(ctx context.Context, taskID string) ([]*AuditEntry, error) {
	return w.audit.List(ctx, taskID)
}

func (w *Workflow) recordAudit(ctx context.Context, t *task.Task, approved bool, feedback string) {
	entry := &AuditEntry{
		ID:        ulid.Make().String(),
		TaskID:    t.ID,
		OwnerID:   t.OwnerID,
		Approved:  approved,
		Feedback:  feedback,
		CreatedAt: time.Now(),
	}
	if err := w.audit.Append(ctx, entry); err != nil {
		// Audit persistence never blocks the confirmation itself.
		slog.ErrorContext(ctx, "failed to record confirmation audit entry", "task_id", t.ID, "error", err)
	}
}

// withFeedback attaches the reviewer's feedback to the task config so the
// next execution attempt can take it into account.
func withFeedback(config, feedback string) string {
	if feedback == "" {
		return config
	}
	if config == "" {
		config = "{}"
	}
	out, err := sjson.Set(config, "feedback.notes.-1", feedback)
	if err != nil {
		return config
	}
	return out
}
