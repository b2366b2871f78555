package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueuedKind classifies why an action sits in the queue.
type QueuedKind string

const (
	// QueuedKindDeferred is an action parked by the delivery window or an
	// action delay, carrying its already-resolved payload.
	QueuedKindDeferred QueuedKind = "deferred"

	// QueuedKindFallback is a delayed fallback-channel send.
	QueuedKindFallback QueuedKind = "fallback"
)

// QueuedStatus is the lifecycle status of a queued action.
type QueuedStatus string

const (
	QueuedStatusPending   QueuedStatus = "pending"
	QueuedStatusExecuted  QueuedStatus = "executed"
	QueuedStatusCancelled QueuedStatus = "cancelled"
	QueuedStatusFailed    QueuedStatus = "failed"
)

// QueuedAction is a row in the deferred-delivery queue, picked up by the
// poller once RunAt passes. The payload is resolved at firing time so the
// poller can deliver without reloading the original context.
type QueuedAction struct {
	ID             uuid.UUID
	RuleID         uuid.UUID
	ExecutionID    uuid.UUID
	OrganizationID uuid.UUID

	Kind    QueuedKind
	Channel Channel
	Payload map[string]any

	RunAt  time.Time
	Status QueuedStatus

	RetryCount int
	MaxRetries int
	LastError  string
	ExecutedAt *time.Time

	CreatedAt time.Time
}

// NewQueuedAction creates a pending queue row.
func NewQueuedAction(ruleID, executionID, orgID uuid.UUID, kind QueuedKind, channel Channel, payload map[string]any, runAt time.Time) *QueuedAction {
	return &QueuedAction{
		ID:             uuid.New(),
		RuleID:         ruleID,
		ExecutionID:    executionID,
		OrganizationID: orgID,
		Kind:           kind,
		Channel:        channel,
		Payload:        payload,
		RunAt:          runAt,
		Status:         QueuedStatusPending,
		MaxRetries:     3,
		CreatedAt:      time.Now(),
	}
}

// MarkExecuted seals the row after a successful delivery.
func (q *QueuedAction) MarkExecuted() {
	now := time.Now()
	q.Status = QueuedStatusExecuted
	q.ExecutedAt = &now
}

// MarkFailed records a delivery failure; the row goes terminal once
// retries are exhausted.
func (q *QueuedAction) MarkFailed(errMsg string) {
	q.RetryCount++
	q.LastError = errMsg
	if q.RetryCount >= q.MaxRetries {
		q.Status = QueuedStatusFailed
	}
}

// Cancel marks the row cancelled.
func (q *QueuedAction) Cancel() {
	q.Status = QueuedStatusCancelled
}

// CanRetry reports whether the poller may attempt the row again.
func (q *QueuedAction) CanRetry() bool {
	return q.Status == QueuedStatusPending && q.RetryCount < q.MaxRetries
}
