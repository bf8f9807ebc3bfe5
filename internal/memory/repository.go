package memory

import "context"

type Repository interface {
	Get(ctx context.Context, ownerID string) (*Memory, error)
	Save(ctx context.Context, m *Memory) error
}
