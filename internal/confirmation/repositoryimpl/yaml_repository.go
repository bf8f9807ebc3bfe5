package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/citizenly/autopilot/internal/confirmation"
	"github.com/citizenly/autopilot/pkg/cerr"
	"github.com/citizenly/autopilot/pkg/storage"
)

const auditPrefix = "audit"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(taskID, entryID string) string {
	return fmt.Sprintf("%s/%s/%s.yaml", auditPrefix, taskID, entryID)
}

func (r *YAMLRepository) Append(ctx context.Context, e *confirmation.AuditEntry) error {
	data, err := yaml.Marshal(e)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal audit entry: %w", err))
	}
	if err := r.storage.Write(ctx, path(e.TaskID, e.ID), data); err != nil {
		return cerr.WrapStorageWriteError("audit entry", err)
	}
	return nil
}

func (r *YAMLRepository) List(ctx context.Context, taskID string) ([]*confirmation.AuditEntry, error) {
	paths, err := r.storage.List(ctx, fmt.Sprintf("%s/%s", auditPrefix, taskID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("audit trail", err)
	}
	// ULID entry ids sort chronologically.
	sort.Strings(paths)

	var entries []*confirmation.AuditEntry
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var e confirmation.AuditEntry
		if err := yaml.Unmarshal(data, &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}
