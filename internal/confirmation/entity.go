package confirmation

import "time"

// AuditEntry records one human confirmation decision. Entries are append
// only and never rewritten.
type AuditEntry struct {
	ID        string    `yaml:"id" json:"id"`
	TaskID    string    `yaml:"task_id" json:"task_id"`
	OwnerID   string    `yaml:"owner_id" json:"owner_id"`
	Approved  bool      `yaml:"approved" json:"approved"`
	Feedback  string    `yaml:"feedback,omitempty" json:"feedback,omitempty"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}
