package internal

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/citizenly/autopilot/internal/eventbus"
	"github.com/citizenly/autopilot/internal/task"
	"github.com/citizenly/autopilot/pkg/cerr"
)

const ownerHeader = "X-Owner-ID"

func ownerID(r *http.Request) (string, error) {
	owner := r.Header.Get(ownerHeader)
	if owner == "" {
		return "", cerr.NewError(cerr.InvalidArgument, ownerHeader+" header is required", nil)
	}
	return owner, nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "failed to decode request body", err)
	}
	return nil
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := ownerID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req task.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	req.OwnerID = owner
	t, err := s.engine.CreateTask(ctx, &req)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

type taskListResponse struct {
	Tasks []*task.Task `json:"tasks"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := ownerID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	queue := task.Queue(r.URL.Query().Get("queue"))
	if queue == "" {
		queue = task.QueueActive
	}
	tasks, err := s.store.List(ctx, owner, queue)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &taskListResponse{Tasks: tasks})
}

type taskResponse struct {
	Task  *task.Task `json:"task"`
	Queue task.Queue `json:"queue"`
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := ownerID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, queue, err := s.store.Get(ctx, owner, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &taskResponse{Task: t, Queue: queue})
}

func (s *Server) handleExecuteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := ownerID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.engine.ExecuteTask(ctx, owner, id); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"id": id, "status": "accepted"})
}

type confirmRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

func (s *Server) handleConfirmTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := ownerID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := s.engine.Confirm(ctx, owner, chi.URLParam(r, "id"), req.Approved, req.Feedback)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := ownerID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := s.engine.Cancel(ctx, owner, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := s.engine.AuditTrail(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"entries": entries})
}

type automationLevelRequest struct {
	Level string `json:"level"`
}

func (s *Server) handleSetAutomationLevel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := ownerID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req automationLevelRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.engine.SetAutomationLevel(ctx, owner, req.Level); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"level": req.Level})
}

type thresholdRequest struct {
	Threshold float64 `json:"threshold"`
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := ownerID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req thresholdRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	taskType := chi.URLParam(r, "type")
	if err := s.engine.SetConfirmationThreshold(ctx, owner, taskType, req.Threshold); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"type": taskType, "threshold": req.Threshold})
}

func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), map[string]any{"capabilities": s.registry.List()})
}

type capabilityEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetCapabilityEnabled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req capabilityEnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.registry.SetEnabled(id, req.Enabled); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.bus.PublishNew(eventbus.EventCapabilityUpdated, "", "", map[string]string{
		"capability": id,
		"enabled":    strconv.FormatBool(req.Enabled),
	})
	cerr.SetJSONResponse(ctx, map[string]any{"id": id, "enabled": req.Enabled})
}

func (s *Server) handleReadMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := ownerID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	category := chi.URLParam(r, "category")
	data, err := s.memories.Read(ctx, owner, category)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	cerr.SetJSONResponse(ctx, map[string]any{"category": category, "data": data})
}

func (s *Server) handleMergeMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := ownerID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var partial map[string]any
	if err := decodeJSON(r, &partial); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	category := chi.URLParam(r, "category")
	m, err := s.memories.MergeCategory(ctx, owner, category, partial)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.bus.PublishNew(eventbus.EventMemoryUpdated, owner, "", map[string]string{"category": category})
	cerr.SetJSONResponse(ctx, map[string]any{"category": category, "data": m.Categories[category]})
}
