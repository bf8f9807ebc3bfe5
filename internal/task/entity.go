package task

import "time"

// Type is the closed enumeration of automatable action kinds. Each type
// maps to a capability with the same id.
type Type string

const (
	TypeTaxPreparation      Type = "tax_preparation"
	TypeEmailGeneration     Type = "email_generation"
	TypeLegalAnalysis       Type = "legal_analysis"
	TypeMarketStrategy      Type = "market_strategy"
	TypeFormFilling         Type = "form_filling"
	TypeResearch            Type = "research"
	TypeClientCommunication Type = "client_communication"
	TypeAutomation          Type = "automation"
)

var types = map[Type]struct{}{
	TypeTaxPreparation:      {},
	TypeEmailGeneration:     {},
	TypeLegalAnalysis:       {},
	TypeMarketStrategy:      {},
	TypeFormFilling:         {},
	TypeResearch:            {},
	TypeClientCommunication: {},
	TypeAutomation:          {},
}

func (t Type) Valid() bool {
	_, ok := types[t]
	return ok
}

type Status string

const (
	StatusPending              Status = "pending"
	StatusInProgress           Status = "in_progress"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusCancelled            Status = "cancelled"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// AutomationLevel is the per-task override capping what the global
// automation dial may authorize for this task.
type AutomationLevel string

const (
	AutomationFullAuto AutomationLevel = "full_auto"
	AutomationSemiAuto AutomationLevel = "semi_auto"
	AutomationManual   AutomationLevel = "manual"
)

func (l AutomationLevel) Valid() bool {
	return l == AutomationFullAuto || l == AutomationSemiAuto || l == AutomationManual
}

// Failure codes recorded on terminal failure so callers can tell "gave up"
// from "executor refused".
const (
	FailureRetryBudgetExhausted  = "retry_budget_exhausted"
	FailurePermanent             = "permanent_failure"
	FailureCapabilityUnavailable = "capability_unavailable"
)

const DefaultMaxRetries = 3

// Task is the unit of automatable work. Config is an opaque JSON document
// consumed only by the executor; the engine touches it solely to attach
// rejection feedback and the preference snapshot.
type Task struct {
	ID                   string          `yaml:"id" json:"id"`
	Type                 Type            `yaml:"type" json:"type"`
	Title                string          `yaml:"title" json:"title"`
	Description          string          `yaml:"description" json:"description"`
	Status               Status          `yaml:"status" json:"status"`
	Priority             Priority        `yaml:"priority" json:"priority"`
	OwnerID              string          `yaml:"owner_id" json:"owner_id"`
	Config               string          `yaml:"config,omitempty" json:"config,omitempty"`
	ConfirmationRequired bool            `yaml:"confirmation_required" json:"confirmation_required"`
	AutomationLevel      AutomationLevel `yaml:"automation_level" json:"automation_level"`
	RetryCount           int             `yaml:"retry_count" json:"retry_count"`
	MaxRetries           int             `yaml:"max_retries" json:"max_retries"`
	FailureCode          string          `yaml:"failure_code,omitempty" json:"failure_code,omitempty"`
	FailureReason        string          `yaml:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	CreatedAt            time.Time       `yaml:"created_at" json:"created_at"`
	LastUpdated          time.Time       `yaml:"last_updated" json:"last_updated"`
}

func (t *Task) clone() *Task {
	cp := *t
	return &cp
}
