package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/citizenly/autopilot/internal/task"
	"github.com/citizenly/autopilot/pkg/cerr"
	"github.com/citizenly/autopilot/pkg/storage"
)

const tasksPrefix = "tasks"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(q task.Queue, id string) string {
	return fmt.Sprintf("%s/%s/%s.yaml", tasksPrefix, q, id)
}

func (r *YAMLRepository) Save(ctx context.Context, q task.Queue, t *task.Task) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal task: %w", err))
	}
	if err := r.storage.Write(ctx, path(q, t.ID), data); err != nil {
		return cerr.WrapStorageWriteError("task", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, q task.Queue, id string) error {
	if err := r.storage.Delete(ctx, path(q, id)); err != nil {
		return cerr.WrapStorageDeleteError("task", err)
	}
	return nil
}

func (r *YAMLRepository) LoadAll(ctx context.Context) (map[task.Queue][]*task.Task, error) {
	out := make(map[task.Queue][]*task.Task, len(task.Queues))
	for _, q := range task.Queues {
		paths, err := r.storage.List(ctx, fmt.Sprintf("%s/%s", tasksPrefix, q))
		if err != nil {
			return nil, cerr.WrapStorageReadError("tasks", err)
		}
		sort.Strings(paths)
		for _, p := range paths {
			data, err := r.storage.Read(ctx, p)
			if err != nil {
				continue
			}
			var t task.Task
			if err := yaml.Unmarshal(data, &t); err != nil {
				continue
			}
			out[q] = append(out[q], &t)
		}
	}
	return out, nil
}
