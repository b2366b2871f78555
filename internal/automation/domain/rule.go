// Package domain contains the automation rules domain model.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for automation rules.
var (
	ErrRuleNotFound      = errors.New("automation rule not found")
	ErrRuleNotActive     = errors.New("automation rule is not active")
	ErrRuleNotExecutable = errors.New("automation rule is not executable")
	ErrExecutionNotFound = errors.New("automation execution not found")
)

// RuleStatus represents the lifecycle status of an automation rule.
type RuleStatus string

const (
	RuleStatusActive RuleStatus = "active"
	RuleStatusPaused RuleStatus = "paused"
	RuleStatusDraft  RuleStatus = "draft"
)

// Channel identifies a message delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Trigger types emitted by the field-service application. Rules may also
// carry custom types; these are the ones published on the event bus.
const (
	TriggerJobScheduled        = "job_scheduled"
	TriggerJobStatusChanged    = "job_status_changed"
	TriggerJobCompleted        = "job_completed"
	TriggerAppointmentTomorrow = "appointment_tomorrow"
	TriggerInvoiceOverdue      = "invoice_overdue"
	TriggerTaskOverdue         = "task_overdue"
	TriggerClientCreated       = "client_created"
)

// KnownTriggerTypes returns every trigger type the worker subscribes to.
func KnownTriggerTypes() []string {
	return []string{
		TriggerJobScheduled,
		TriggerJobStatusChanged,
		TriggerJobCompleted,
		TriggerAppointmentTomorrow,
		TriggerInvoiceOverdue,
		TriggerTaskOverdue,
		TriggerClientCreated,
	}
}

// Trigger identifies the business event that may fire a rule, optionally
// narrowed by conditions evaluated against the trigger-time data.
type Trigger struct {
	Type       string      `json:"type"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// DelayType specifies the unit of an action delay.
type DelayType string

const (
	DelayImmediate DelayType = "immediate"
	DelayMinutes   DelayType = "minutes"
	DelayHours     DelayType = "hours"
	DelayDays      DelayType = "days"
)

// ActionDelay postpones action execution relative to the firing instant.
type ActionDelay struct {
	Type  DelayType `json:"type"`
	Value int       `json:"value,omitempty"`
}

// Duration converts the delay into a time.Duration. Immediate or unknown
// delay types yield zero.
func (d *ActionDelay) Duration() time.Duration {
	if d == nil {
		return 0
	}
	switch d.Type {
	case DelayMinutes:
		return time.Duration(d.Value) * time.Minute
	case DelayHours:
		return time.Duration(d.Value) * time.Hour
	case DelayDays:
		return time.Duration(d.Value) * 24 * time.Hour
	default:
		return 0
	}
}

// Action is the configured side effect a rule performs when it fires.
// Config carries the raw, rule-author-supplied parameters; DecodeAction
// turns it into the typed config for the action kind.
type Action struct {
	Type   ActionType     `json:"type"`
	Config map[string]any `json:"config,omitempty"`
	Delay  *ActionDelay   `json:"delay,omitempty"`
}

// TimeRange is an inclusive-start, exclusive-end local wall-clock range in
// "HH:MM" form.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// QuietHours is a local wall-clock range during which delivery is
// suppressed. Start > End wraps past midnight.
type QuietHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DeliveryWindow constrains when a rule's action may actually be delivered.
type DeliveryWindow struct {
	BusinessHoursOnly bool        `json:"businessHoursOnly"`
	AllowedDays       []string    `json:"allowedDays,omitempty"`
	TimeRange         *TimeRange  `json:"timeRange,omitempty"`
	QuietHours        *QuietHours `json:"quietHours,omitempty"`
}

// MultiChannel configures the primary delivery channel and an optional
// fallback taken when the primary fails or lacks contact data.
type MultiChannel struct {
	PrimaryChannel     Channel `json:"primaryChannel"`
	FallbackEnabled    bool    `json:"fallbackEnabled"`
	FallbackChannel    Channel `json:"fallbackChannel,omitempty"`
	FallbackDelayHours int     `json:"fallbackDelayHours,omitempty"`
}

// HasFallback reports whether a usable fallback channel is configured.
func (m MultiChannel) HasFallback() bool {
	return m.FallbackEnabled && m.FallbackChannel != "" && m.FallbackChannel != m.PrimaryChannel
}

// AutomationRule is a persisted automation configuration: when (trigger and
// conditions) and how (action, delivery window, channels) a business event
// produces an automated message or state change.
type AutomationRule struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Description    string
	Status         RuleStatus

	Trigger        Trigger
	Conditions     *ConditionBlock
	Action         Action
	DeliveryWindow DeliveryWindow
	MultiChannel   MultiChannel

	ExecutionCount int64
	SuccessCount   int64
	LastExecutedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAutomationRule creates a draft rule.
func NewAutomationRule(orgID uuid.UUID, name string, trigger Trigger, action Action) (*AutomationRule, error) {
	if name == "" {
		return nil, errors.New("rule name is required")
	}
	if trigger.Type == "" {
		return nil, errors.New("trigger type is required")
	}
	if action.Type == "" {
		return nil, errors.New("action type is required")
	}

	now := time.Now()
	return &AutomationRule{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           name,
		Status:         RuleStatusDraft,
		Trigger:        trigger,
		Action:         action,
		MultiChannel:   MultiChannel{PrimaryChannel: ChannelSMS},
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Activate marks the rule active.
func (r *AutomationRule) Activate() {
	r.Status = RuleStatusActive
	r.UpdatedAt = time.Now()
}

// Pause marks the rule paused.
func (r *AutomationRule) Pause() {
	r.Status = RuleStatusPaused
	r.UpdatedAt = time.Now()
}

// Executable verifies the rule carries the minimum configuration required
// to run: a trigger type and an action type.
func (r *AutomationRule) Executable() error {
	if r.Trigger.Type == "" || r.Action.Type == "" {
		return ErrRuleNotExecutable
	}
	return nil
}

// CanFire reports whether the rule may be dispatched automatically.
// Test-mode invocations bypass the status check but never Executable.
func (r *AutomationRule) CanFire(testMode bool) error {
	if err := r.Executable(); err != nil {
		return err
	}
	if !testMode && r.Status != RuleStatusActive {
		return ErrRuleNotActive
	}
	return nil
}

// RecordExecution stamps the last-executed time. Counters are maintained
// by the store with atomic increments, not read-modify-write here.
func (r *AutomationRule) RecordExecution() {
	now := time.Now()
	r.LastExecutedAt = &now
}
