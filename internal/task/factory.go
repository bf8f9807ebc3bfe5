package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/citizenly/autopilot/internal/memory"
	"github.com/citizenly/autopilot/pkg/cerr"
)

// CreateRequest is the partial task supplied by the caller. Everything not
// set here is defaulted by the factory. Config is raw JSON so callers can
// send the document inline rather than double-encoded as a string.
type CreateRequest struct {
	Type                 string          `json:"type"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	OwnerID              string          `json:"-"`
	Priority             string          `json:"priority,omitempty"`
	Config               json.RawMessage `json:"config,omitempty"`
	ConfirmationRequired *bool           `json:"confirmation_required,omitempty"`
	AutomationLevel      string          `json:"automation_level,omitempty"`
}

// Factory builds well-formed task records from partial requests. It does
// not validate the type against the capability registry: a missing
// capability surfaces later at execution, keeping creation synchronous and
// side-effect-free.
type Factory struct {
	memories *memory.Store
}

func NewFactory(memories *memory.Store) *Factory {
	return &Factory{memories: memories}
}

func (f *Factory) Create(ctx context.Context, req *CreateRequest) (*Task, error) {
	if req.OwnerID == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "owner id is required", nil)
	}
	if req.Title == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "title is required", nil)
	}
	typ := Type(req.Type)
	if !typ.Valid() {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown task type %q", req.Type), nil)
	}

	priority := PriorityMedium
	if req.Priority != "" {
		priority = Priority(req.Priority)
		if !priority.Valid() {
			return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown priority %q", req.Priority), nil)
		}
	}

	level := AutomationSemiAuto
	if req.AutomationLevel != "" {
		level = AutomationLevel(req.AutomationLevel)
		if !level.Valid() {
			return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown automation level %q", req.AutomationLevel), nil)
		}
	}

	confirmationRequired := true
	if req.ConfirmationRequired != nil {
		confirmationRequired = *req.ConfirmationRequired
	}

	cfg := string(req.Config)
	if cfg != "" && !gjson.Valid(cfg) {
		return nil, cerr.NewError(cerr.InvalidArgument, "config must be a JSON document", nil)
	}
	cfg = f.attachPreferences(ctx, req.OwnerID, cfg)

	now := time.Now()
	return &Task{
		ID:                   ulid.Make().String(),
		Type:                 typ,
		Title:                req.Title,
		Description:          req.Description,
		Status:               StatusPending,
		Priority:             priority,
		OwnerID:              req.OwnerID,
		Config:               cfg,
		ConfirmationRequired: confirmationRequired,
		AutomationLevel:      level,
		RetryCount:           0,
		MaxRetries:           DefaultMaxRetries,
		CreatedAt:            now,
		LastUpdated:          now,
	}, nil
}

// attachPreferences snapshots the owner's preferences into the config so
// the executor can personalize its output. A memory read failure never
// blocks creation.
func (f *Factory) attachPreferences(ctx context.Context, ownerID, cfg string) string {
	prefs, err := f.memories.Read(ctx, ownerID, memory.CategoryPreferences)
	if err != nil {
		slog.WarnContext(ctx, "failed to read preferences for new task", "owner_id", ownerID, "error", err)
		return cfg
	}
	if len(prefs) == 0 {
		return cfg
	}
	if cfg == "" {
		cfg = "{}"
	}
	out, err := sjson.Set(cfg, "citizen_preferences", prefs)
	if err != nil {
		slog.WarnContext(ctx, "failed to attach preferences to task config", "owner_id", ownerID, "error", err)
		return cfg
	}
	return out
}
