package memory

import "time"

// Category names for the per-owner profile document.
const (
	CategoryPersonal    = "personal_data"
	CategoryFinancial   = "financial_data"
	CategoryLegal       = "legal_data"
	CategoryPreferences = "preferences"
	CategoryAutomation  = "automation_settings"
)

// Keys inside the automation_settings category.
const (
	SettingGlobalLevel = "global_level"
	SettingThresholds  = "confirmation_thresholds"
)

var categories = map[string]struct{}{
	CategoryPersonal:    {},
	CategoryFinancial:   {},
	CategoryLegal:       {},
	CategoryPreferences: {},
	CategoryAutomation:  {},
}

func IsValidCategory(name string) bool {
	_, ok := categories[name]
	return ok
}

// Memory is the durable per-owner profile. Each category is an open
// document updated by shallow merge only, so unrelated fields survive
// partial updates.
type Memory struct {
	OwnerID     string                    `yaml:"owner_id"`
	Categories  map[string]map[string]any `yaml:"categories"`
	LastUpdated time.Time                 `yaml:"last_updated"`
}

func newMemory(ownerID string) *Memory {
	return &Memory{
		OwnerID:    ownerID,
		Categories: make(map[string]map[string]any),
	}
}
