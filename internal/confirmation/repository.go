package confirmation

import "context"

type Repository interface {
	Append(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, taskID string) ([]*AuditEntry, error)
}
