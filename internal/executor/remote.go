package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/citizenly/autopilot/internal/task"
)

// HTTPExecutor delegates execution to an external worker over HTTP. The
// worker receives the full task and answers with the Result shape; anything
// else is reported as a permanent failure by the adapter.
type HTTPExecutor struct {
	url    string
	client *http.Client
}

func NewHTTPExecutor(url string, timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, t *task.Task) (*Result, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build executor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executor unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("executor returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return &Result{
			Status: StatusPermanentFailure,
			Error:  fmt.Sprintf("executor rejected task with status %d", resp.StatusCode),
		}, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read executor response: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return &Result{
			Status: StatusPermanentFailure,
			Error:  fmt.Sprintf("executor returned malformed response: %v", err),
		}, nil
	}
	return &res, nil
}
