package executor

import (
	"context"

	"github.com/citizenly/autopilot/internal/task"
)

// ResultStatus is the status vocabulary of the external executor boundary.
type ResultStatus string

const (
	StatusSuccess           ResultStatus = "success"
	StatusNeedsConfirmation ResultStatus = "needs_confirmation"
	StatusTransientFailure  ResultStatus = "transient_failure"
	StatusPermanentFailure  ResultStatus = "permanent_failure"
)

func (s ResultStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusNeedsConfirmation, StatusTransientFailure, StatusPermanentFailure:
		return true
	}
	return false
}

// Result is what the external executor reports back. Payload is an opaque
// JSON document; the adapter only inspects the citizen_data subtree for
// profile write-back.
type Result struct {
	Status  ResultStatus `json:"status"`
	Payload string       `json:"payload,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Executor is the opaque capability that performs the actual domain work
// (tax filing, email generation, legal analysis, ...). The engine never
// looks inside it.
type Executor interface {
	Execute(ctx context.Context, t *task.Task) (*Result, error)
}
