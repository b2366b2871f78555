package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RuleFilter specifies criteria for listing rules.
type RuleFilter struct {
	OrganizationID uuid.UUID
	Status         *RuleStatus
	TriggerType    *string
	Limit          int
	Offset         int
}

// ExecutionFilter specifies criteria for listing execution records.
type ExecutionFilter struct {
	OrganizationID uuid.UUID
	RuleID         *uuid.UUID
	Status         *FiringStatus
	StartedAfter   *time.Time
	Limit          int
	Offset         int
}

// RuleRepository persists automation rules. Rule lifecycle (create, update,
// delete) is owned by the external authoring surface; the engine mostly
// reads, stamps last-executed, and increments counters.
type RuleRepository interface {
	Create(ctx context.Context, rule *AutomationRule) error
	Update(ctx context.Context, rule *AutomationRule) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*AutomationRule, error)
	List(ctx context.Context, filter RuleFilter) ([]*AutomationRule, int64, error)

	// GetActiveByTriggerType returns active rules firing on a trigger type.
	GetActiveByTriggerType(ctx context.Context, orgID uuid.UUID, triggerType string) ([]*AutomationRule, error)

	// IncrementMetrics atomically bumps execution_count (always) and
	// success_count (on success), and stamps last_executed_at. A single
	// server-side UPDATE, never read-modify-write.
	IncrementMetrics(ctx context.Context, id uuid.UUID, success bool) error
}

// ExecutionLogRepository appends sealed execution records. Implementations
// are the audit trail behind the analytics views.
type ExecutionLogRepository interface {
	Append(ctx context.Context, record *ExecutionRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*ExecutionRecord, error)
	List(ctx context.Context, filter ExecutionFilter) ([]*ExecutionRecord, int64, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// QueuedActionRepository persists deferred deliveries for the poller.
type QueuedActionRepository interface {
	Create(ctx context.Context, action *QueuedAction) error
	Update(ctx context.Context, action *QueuedAction) error
	GetByID(ctx context.Context, id uuid.UUID) (*QueuedAction, error)

	// GetDue returns pending rows whose RunAt has passed, oldest first.
	GetDue(ctx context.Context, now time.Time, limit int) ([]*QueuedAction, error)

	// CancelByRuleID cancels every pending row for a rule.
	CancelByRuleID(ctx context.Context, ruleID uuid.UUID) (int64, error)

	DeleteExecuted(ctx context.Context, before time.Time) (int64, error)
}
