package task

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/citizenly/autopilot/pkg/cerr"
)

// Store is the lifecycle state machine: three disjoint per-owner
// collections (active, pending-confirmation, completed) with an atomic move
// protocol between them. All mutations for one owner are serialized behind
// that owner's lock; owners never contend with each other.
//
// Terminal tasks (completed, exhausted failed, cancelled) live in the
// completed collection so they stay auditable instead of disappearing.
type Store struct {
	repo   Repository
	mu     sync.Mutex
	owners map[string]*ownerQueues
}

type ownerQueues struct {
	mu     sync.Mutex
	queues map[Queue]map[string]*Task
}

func newOwnerQueues() *ownerQueues {
	return &ownerQueues{
		queues: map[Queue]map[string]*Task{
			QueueActive:              {},
			QueuePendingConfirmation: {},
			QueueCompleted:           {},
		},
	}
}

func NewStore(repo Repository) *Store {
	return &Store{
		repo:   repo,
		owners: make(map[string]*ownerQueues),
	}
}

// Load populates the in-memory queues from persisted state. Called once at
// process start, before the store serves any traffic.
//
// A move persists the destination copy before removing the source, so a crash
// between the two writes leaves the same task in two queues. Load keeps the
// most recently updated copy and removes the stale one so every task surfaces
// in exactly one queue again.
func (s *Store) Load(ctx context.Context) error {
	byQueue, err := s.repo.LoadAll(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range Queues {
		for _, t := range byQueue[q] {
			o, ok := s.owners[t.OwnerID]
			if !ok {
				o = newOwnerQueues()
				s.owners[t.OwnerID] = o
			}
			if existing, held := o.find(t.ID); existing != nil {
				if !t.LastUpdated.After(existing.LastUpdated) {
					s.removeStale(ctx, q, t.ID)
					continue
				}
				delete(o.queues[held], t.ID)
				s.removeStale(ctx, held, t.ID)
			}
			o.queues[q][t.ID] = t
		}
	}
	return nil
}

func (s *Store) removeStale(ctx context.Context, q Queue, id string) {
	if err := s.repo.Delete(ctx, q, id); err != nil && !cerr.IsCode(err, cerr.NotFound) {
		slog.WarnContext(ctx, "failed to remove stale task copy",
			"queue", string(q), "task_id", id, "error", err)
	}
}

func (s *Store) owner(ownerID string) *ownerQueues {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.owners[ownerID]
	if !ok {
		o = newOwnerQueues()
		s.owners[ownerID] = o
	}
	return o
}

func (o *ownerQueues) find(id string) (*Task, Queue) {
	for _, q := range Queues {
		if t, ok := o.queues[q][id]; ok {
			return t, q
		}
	}
	return nil, ""
}

// Add inserts a freshly created pending task into the active queue.
func (s *Store) Add(ctx context.Context, t *Task) error {
	if t.Status != StatusPending {
		return cerr.NewError(cerr.InvalidArgument, "new tasks must be pending", nil)
	}
	o := s.owner(t.OwnerID)
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, _ := o.find(t.ID); existing != nil {
		return cerr.NewError(cerr.AlreadyExists, "task already exists", nil)
	}
	if err := s.repo.Save(ctx, QueueActive, t); err != nil {
		return err
	}
	o.queues[QueueActive][t.ID] = t
	return nil
}

// Get returns a copy of the task and the queue it currently lives in.
func (s *Store) Get(ctx context.Context, ownerID, id string) (*Task, Queue, error) {
	o := s.owner(ownerID)
	o.mu.Lock()
	defer o.mu.Unlock()

	t, q := o.find(id)
	if t == nil {
		return nil, "", cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return t.clone(), q, nil
}

// List returns copies of the tasks in one queue, oldest first.
func (s *Store) List(ctx context.Context, ownerID string, q Queue) ([]*Task, error) {
	switch q {
	case QueueActive, QueuePendingConfirmation, QueueCompleted:
	default:
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown queue %q", q), nil)
	}
	o := s.owner(ownerID)
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*Task, 0, len(o.queues[q]))
	for _, t := range o.queues[q] {
		out = append(out, t.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// transition applies mutate to the task and moves it from its current queue
// to dest as one logical operation. The task is persisted in dest before the
// source copy is removed, and the in-memory swap happens last, so no
// observer ever sees the task in zero or two queues.
func (s *Store) transition(ctx context.Context, ownerID, id string, allowed map[Status]struct{}, dest Queue, mutate func(*Task)) (*Task, error) {
	o := s.owner(ownerID)
	o.mu.Lock()
	defer o.mu.Unlock()

	cur, src := o.find(id)
	if cur == nil {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	if _, ok := allowed[cur.Status]; !ok {
		return nil, cerr.NewError(cerr.FailedPrecondition,
			fmt.Sprintf("task %s is %s, operation not permitted", id, cur.Status), nil)
	}

	next := cur.clone()
	mutate(next)
	next.LastUpdated = time.Now()

	if err := s.repo.Save(ctx, dest, next); err != nil {
		return nil, err
	}
	if src != dest {
		if err := s.repo.Delete(ctx, src, id); err != nil && !cerr.IsCode(err, cerr.NotFound) {
			return nil, err
		}
		delete(o.queues[src], id)
	}
	o.queues[dest][id] = next
	return next.clone(), nil
}

var inProgressOnly = map[Status]struct{}{StatusInProgress: {}}

// Begin marks the task in progress ahead of an execution attempt. A task
// rejected back from confirmation is already in_progress and may begin again.
func (s *Store) Begin(ctx context.Context, ownerID, id string) (*Task, error) {
	return s.transition(ctx, ownerID, id,
		map[Status]struct{}{StatusPending: {}, StatusInProgress: {}},
		QueueActive,
		func(t *Task) { t.Status = StatusInProgress })
}

// RecordRetry increments the retry counter after an executor-reported
// transient failure. It is the only place RetryCount changes.
func (s *Store) RecordRetry(ctx context.Context, ownerID, id string) (*Task, error) {
	return s.transition(ctx, ownerID, id, inProgressOnly, QueueActive,
		func(t *Task) { t.RetryCount++ })
}

// Complete finishes a task, either directly from execution or from an
// approved confirmation.
func (s *Store) Complete(ctx context.Context, ownerID, id string) (*Task, error) {
	return s.transition(ctx, ownerID, id,
		map[Status]struct{}{StatusInProgress: {}, StatusAwaitingConfirmation: {}},
		QueueCompleted,
		func(t *Task) { t.Status = StatusCompleted })
}

// AwaitConfirmation parks the task in the pending-confirmation queue until a
// human approves or rejects it.
func (s *Store) AwaitConfirmation(ctx context.Context, ownerID, id string) (*Task, error) {
	return s.transition(ctx, ownerID, id, inProgressOnly, QueuePendingConfirmation,
		func(t *Task) { t.Status = StatusAwaitingConfirmation })
}

// Fail records a terminal failure. The task moves to the completed
// collection with the failure attached rather than being deleted.
func (s *Store) Fail(ctx context.Context, ownerID, id, code, reason string) (*Task, error) {
	return s.transition(ctx, ownerID, id, inProgressOnly, QueueCompleted,
		func(t *Task) {
			t.Status = StatusFailed
			t.FailureCode = code
			t.FailureReason = reason
		})
}

// ReturnToActive sends a rejected task back for rework. RetryCount is left
// untouched: rejection is a human-quality judgment, not an execution fault.
func (s *Store) ReturnToActive(ctx context.Context, ownerID, id, config string) (*Task, error) {
	return s.transition(ctx, ownerID, id,
		map[Status]struct{}{StatusAwaitingConfirmation: {}},
		QueueActive,
		func(t *Task) {
			t.Status = StatusInProgress
			t.Config = config
		})
}

// Cancel is permitted only while the task is pending or in progress. Tasks
// awaiting confirmation must be explicitly confirmed or rejected.
func (s *Store) Cancel(ctx context.Context, ownerID, id string) (*Task, error) {
	return s.transition(ctx, ownerID, id,
		map[Status]struct{}{StatusPending: {}, StatusInProgress: {}},
		QueueCompleted,
		func(t *Task) { t.Status = StatusCancelled })
}
