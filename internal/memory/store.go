package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/citizenly/autopilot/pkg/cerr"
)

// Store serves the per-owner profile with merge-only updates. Merges to the
// same category are last-write-wins; the mutex keeps the read-modify-write
// cycle atomic so a lost update is bounded to one category.
type Store struct {
	repo Repository
	mu   sync.Mutex
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// Load returns the owner's memory, provisioning an empty one if none exists
// yet. Provisioning is idempotent, not an error path.
func (s *Store) Load(ctx context.Context, ownerID string) (*Memory, error) {
	if ownerID == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "owner id is required", nil)
	}
	m, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return newMemory(ownerID), nil
		}
		return nil, err
	}
	if m.Categories == nil {
		m.Categories = make(map[string]map[string]any)
	}
	return m, nil
}

// MergeCategory shallow-merges partial data into the named category and
// stamps LastUpdated.
func (s *Store) MergeCategory(ctx context.Context, ownerID, category string, partial map[string]any) (*Memory, error) {
	if !IsValidCategory(category) {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown memory category %q", category), nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.Load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	doc := m.Categories[category]
	if doc == nil {
		doc = make(map[string]any, len(partial))
		m.Categories[category] = doc
	}
	for k, v := range partial {
		doc[k] = v
	}
	m.LastUpdated = time.Now()
	if err := s.repo.Save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Read returns the category document, or nil if the category is unset.
func (s *Store) Read(ctx context.Context, ownerID, category string) (map[string]any, error) {
	if !IsValidCategory(category) {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown memory category %q", category), nil)
	}
	m, err := s.Load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return m.Categories[category], nil
}

// AutomationLevel returns the owner's persisted global automation level, or
// "" if the owner never set one.
func (s *Store) AutomationLevel(ctx context.Context, ownerID string) (string, error) {
	doc, err := s.Read(ctx, ownerID, CategoryAutomation)
	if err != nil {
		return "", err
	}
	if level, ok := doc[SettingGlobalLevel].(string); ok {
		return level, nil
	}
	return "", nil
}

func (s *Store) SetAutomationLevel(ctx context.Context, ownerID, level string) error {
	_, err := s.MergeCategory(ctx, ownerID, CategoryAutomation, map[string]any{
		SettingGlobalLevel: level,
	})
	return err
}

// ConfirmationThresholds returns the per-type confirmation thresholds map.
// Missing or malformed entries are skipped.
func (s *Store) ConfirmationThresholds(ctx context.Context, ownerID string) (map[string]float64, error) {
	doc, err := s.Read(ctx, ownerID, CategoryAutomation)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	raw, ok := doc[SettingThresholds].(map[string]any)
	if !ok {
		return out, nil
	}
	for k, v := range raw {
		if f, ok := toFloat(v); ok {
			out[k] = f
		}
	}
	return out, nil
}

func (s *Store) SetConfirmationThreshold(ctx context.Context, ownerID, taskType string, threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return cerr.NewError(cerr.InvalidArgument, "threshold must be between 0 and 1", nil)
	}
	s.mu.Lock()
	m, err := s.Load(ctx, ownerID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	doc := m.Categories[CategoryAutomation]
	if doc == nil {
		doc = make(map[string]any)
		m.Categories[CategoryAutomation] = doc
	}
	raw, ok := doc[SettingThresholds].(map[string]any)
	if !ok {
		raw = make(map[string]any)
		doc[SettingThresholds] = raw
	}
	raw[taskType] = threshold
	m.LastUpdated = time.Now()
	err = s.repo.Save(ctx, m)
	s.mu.Unlock()
	return err
}

func toFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	}
	return 0, false
}
