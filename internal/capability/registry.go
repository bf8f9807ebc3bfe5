package capability

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/citizenly/autopilot/pkg/cerr"
)

// defaults is the built-in capability table seeded at process start. An
// optional capability file (see loader.go) can override it.
var defaults = []Capability{
	{ID: "tax_preparation", Category: CategoryTax, Enabled: true, AutomationLevel: 0.8, Accuracy: 0.95},
	{ID: "email_generation", Category: CategoryCommunication, Enabled: true, AutomationLevel: 0.9, Accuracy: 0.88},
	{ID: "legal_analysis", Category: CategoryLegal, Enabled: true, AutomationLevel: 0.6, Accuracy: 0.82},
	{ID: "market_strategy", Category: CategoryFinancial, Enabled: true, AutomationLevel: 0.7, Accuracy: 0.75},
	{ID: "form_filling", Category: CategoryAutomation, Enabled: true, AutomationLevel: 0.95, Accuracy: 0.98},
	{ID: "research", Category: CategoryResearch, Enabled: true, AutomationLevel: 0.85, Accuracy: 0.9},
	{ID: "client_communication", Category: CategoryCommunication, Enabled: true, AutomationLevel: 0.75, Accuracy: 0.85},
	{ID: "automation", Category: CategoryAutomation, Enabled: true, AutomationLevel: 0.9, Accuracy: 0.92},
}

// Registry is the in-memory capability catalog. Reads never block on
// anything but the mutex; mutation happens only through SetEnabled, Apply
// and Touch.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]*Capability
}

func NewRegistry() *Registry {
	r := &Registry{
		caps: make(map[string]*Capability, len(defaults)),
	}
	for _, c := range defaults {
		cp := c
		r.caps[c.ID] = &cp
	}
	return r
}

// Get returns a copy of the capability so callers can never mutate registry
// state behind the lock.
func (r *Registry) Get(id string) (*Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("capability %q not registered", id), nil)
	}
	cp := *c
	return &cp, nil
}

func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.caps[id]
	if !ok {
		return cerr.NewError(cerr.NotFound, fmt.Sprintf("capability %q not registered", id), nil)
	}
	c.Enabled = enabled
	return nil
}

func (r *Registry) List() []*Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Capability, 0, len(r.caps))
	for _, c := range r.caps {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Touch stamps LastUsed after a successful execution. Unknown ids are
// ignored; execution already validated the capability.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.caps[id]; ok {
		now := time.Now()
		c.LastUsed = &now
	}
}

// Apply overlays the loaded capability table onto the registry. Entries for
// unknown ids register new capabilities; existing entries take the loaded
// enabled flag and scores but keep their LastUsed stamp.
func (r *Registry) Apply(caps []Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range caps {
		if cur, ok := r.caps[c.ID]; ok {
			cur.Category = c.Category
			cur.Enabled = c.Enabled
			cur.AutomationLevel = c.AutomationLevel
			cur.Accuracy = c.Accuracy
			continue
		}
		cp := c
		r.caps[c.ID] = &cp
	}
}
