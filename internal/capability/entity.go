package capability

import "time"

type Category string

const (
	CategoryTax           Category = "tax"
	CategoryLegal         Category = "legal"
	CategoryFinancial     Category = "financial"
	CategoryCommunication Category = "communication"
	CategoryResearch      Category = "research"
	CategoryAutomation    Category = "automation"
)

// Capability describes one automatable action type. The ID doubles as the
// task type it serves. AutomationLevel is the declared aptitude for running
// unattended and Accuracy the estimated result quality, both in [0, 1].
type Capability struct {
	ID              string     `yaml:"id" json:"id"`
	Category        Category   `yaml:"category" json:"category"`
	Enabled         bool       `yaml:"enabled" json:"enabled"`
	AutomationLevel float64    `yaml:"automation_level" json:"automation_level"`
	Accuracy        float64    `yaml:"accuracy" json:"accuracy"`
	LastUsed        *time.Time `yaml:"last_used,omitempty" json:"last_used,omitempty"`
}
