package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/citizenly/autopilot/internal/memory"
	"github.com/citizenly/autopilot/pkg/cerr"
	"github.com/citizenly/autopilot/pkg/storage"
)

const memoriesPrefix = "memories"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(ownerID string) string {
	return fmt.Sprintf("%s/%s.yaml", memoriesPrefix, ownerID)
}

func (r *YAMLRepository) Get(ctx context.Context, ownerID string) (*memory.Memory, error) {
	data, err := r.storage.Read(ctx, path(ownerID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("memory", err)
	}
	var m memory.Memory
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal memory: %w", err))
	}
	return &m, nil
}

func (r *YAMLRepository) Save(ctx context.Context, m *memory.Memory) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal memory: %w", err))
	}
	if err := r.storage.Write(ctx, path(m.OwnerID), data); err != nil {
		return cerr.WrapStorageWriteError("memory", err)
	}
	return nil
}
