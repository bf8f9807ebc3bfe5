package task

import "context"

// Queue identifies which of the three task collections a task lives in.
type Queue string

const (
	QueueActive              Queue = "active"
	QueuePendingConfirmation Queue = "pending_confirmation"
	QueueCompleted           Queue = "completed"
)

var Queues = []Queue{QueueActive, QueuePendingConfirmation, QueueCompleted}

// Repository persists tasks one file per id under a queue prefix, so queue
// membership survives restarts.
type Repository interface {
	Save(ctx context.Context, q Queue, t *Task) error
	Delete(ctx context.Context, q Queue, id string) error
	LoadAll(ctx context.Context) (map[Queue][]*Task, error)
}
