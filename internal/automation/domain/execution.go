package domain

import (
	"time"

	"github.com/google/uuid"
)

// FiringStatus is the terminal (or parked) outcome of one firing.
type FiringStatus string

const (
	FiringStatusPending FiringStatus = "pending"
	FiringStatusSkipped FiringStatus = "skipped"
	FiringStatusQueued  FiringStatus = "queued"
	FiringStatusSuccess FiringStatus = "success"
	FiringStatusFailed  FiringStatus = "failed"
)

// StepType classifies an execution step.
type StepType string

const (
	StepTypeTrigger   StepType = "trigger"
	StepTypeCondition StepType = "condition"
	StepTypeAction    StepType = "action"
)

// StepStatus is the lifecycle status of one step.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusRunning StepStatus = "running"
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// ExecutionStep is one append-only log entry within a firing. Created at
// step start, sealed at step end, never mutated afterward.
type ExecutionStep struct {
	ID        uuid.UUID      `json:"id"`
	Type      StepType       `json:"type"`
	Name      string         `json:"name"`
	Status    StepStatus     `json:"status"`
	StartTime time.Time      `json:"start_time"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// seal stamps the end time and duration.
func (s *ExecutionStep) seal(status StepStatus) {
	now := time.Now()
	s.Status = status
	s.EndTime = &now
	s.Duration = now.Sub(s.StartTime)
}

// ExecutionRecord is the sealed account of one firing, persisted as a
// single automation_logs row once the firing reaches a terminal state.
type ExecutionRecord struct {
	ID             uuid.UUID
	RuleID         uuid.UUID
	OrganizationID uuid.UUID

	TriggerType    string
	TriggerPayload map[string]any

	Status FiringStatus
	Steps  []ExecutionStep

	ErrorMessage string
	SkipReason   string

	StartedAt   time.Time
	CompletedAt *time.Time
	DurationMs  *int
}

// NewExecutionRecord starts the record for one firing.
func NewExecutionRecord(ruleID, orgID uuid.UUID, triggerType string, payload map[string]any) *ExecutionRecord {
	return &ExecutionRecord{
		ID:             uuid.New(),
		RuleID:         ruleID,
		OrganizationID: orgID,
		TriggerType:    triggerType,
		TriggerPayload: payload,
		Status:         FiringStatusPending,
		StartedAt:      time.Now(),
	}
}

// StartStep appends a running step and returns its index for sealing.
func (e *ExecutionRecord) StartStep(stepType StepType, name string, input map[string]any) int {
	e.Steps = append(e.Steps, ExecutionStep{
		ID:        uuid.New(),
		Type:      stepType,
		Name:      name,
		Status:    StepStatusRunning,
		StartTime: time.Now(),
		Input:     input,
	})
	return len(e.Steps) - 1
}

// SealStep completes the step at idx with the given outcome.
func (e *ExecutionRecord) SealStep(idx int, status StepStatus, output map[string]any, err error) {
	if idx < 0 || idx >= len(e.Steps) {
		return
	}
	step := &e.Steps[idx]
	step.Output = output
	if err != nil {
		step.Error = err.Error()
	}
	step.seal(status)
}

// Complete seals the record in a terminal or parked state.
func (e *ExecutionRecord) Complete(status FiringStatus) {
	now := time.Now()
	e.Status = status
	e.CompletedAt = &now
	ms := int(now.Sub(e.StartedAt).Milliseconds())
	e.DurationMs = &ms
}

// Fail seals the record as failed with a human-readable message.
func (e *ExecutionRecord) Fail(msg string) {
	e.ErrorMessage = msg
	e.Complete(FiringStatusFailed)
}

// Skip seals the record as skipped (conditions or status gate not met).
func (e *ExecutionRecord) Skip(reason string) {
	e.SkipReason = reason
	e.Complete(FiringStatusSkipped)
}
