package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/calloutapp/callout/internal/automation/domain"
	"github.com/calloutapp/callout/pkg/observability"
)

// defaultFiringLockTTL bounds how long a firing lock suppresses duplicate
// firings of the same rule for the same trigger event.
const defaultFiringLockTTL = 5 * time.Minute

// FiringLocker suppresses concurrent duplicate firings, typically backed
// by Redis SET NX. A nil locker disables deduplication.
type FiringLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// OutcomePublisher broadcasts execution outcomes onto the event bus so
// downstream consumers (analytics, the field-service app) can observe
// firings without reading the audit log. A nil publisher disables it.
type OutcomePublisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
}

// FireRequest asks the executor to run one rule against one context.
// Either Rule or RuleID must be set; TestMode previews without side
// effects regardless of the context's own flag.
type FireRequest struct {
	Rule     *domain.AutomationRule
	RuleID   uuid.UUID
	Context  *domain.ExecutionContext
	TestMode bool
}

// Executor runs the firing pipeline: condition evaluation, delivery
// gating, dispatch, fallback, and the audit log. One Fire call is one
// firing with one sealed ExecutionRecord.
type Executor struct {
	rules      domain.RuleRepository
	logs       domain.ExecutionLogRepository
	queue      domain.QueuedActionRepository
	dispatcher *Dispatcher
	fallback   *FallbackController
	locker     FiringLocker
	logger     *slog.Logger
	metrics    observability.Metrics
	publisher  OutcomePublisher

	lockTTL time.Duration
	now     func() time.Time
}

// NewExecutor wires the firing pipeline. locker may be nil.
func NewExecutor(
	rules domain.RuleRepository,
	logs domain.ExecutionLogRepository,
	queue domain.QueuedActionRepository,
	dispatcher *Dispatcher,
	fallback *FallbackController,
	locker FiringLocker,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		rules:      rules,
		logs:       logs,
		queue:      queue,
		dispatcher: dispatcher,
		fallback:   fallback,
		locker:     locker,
		logger:     logger,
		metrics:    observability.NoopMetrics{},
		lockTTL:    defaultFiringLockTTL,
		now:        time.Now,
	}
}

// SetMetrics installs a telemetry sink for firing counters.
func (x *Executor) SetMetrics(m observability.Metrics) {
	if m != nil {
		x.metrics = m
	}
}

// SetPublisher installs an event publisher for execution outcomes.
func (x *Executor) SetPublisher(p OutcomePublisher) {
	x.publisher = p
}

// Fire runs one firing end to end and returns the sealed record. The
// returned error is non-nil only when the firing terminally failed;
// skipped and queued firings return a record and a nil error. Log and
// metrics write failures never fail a firing that already dispatched.
func (x *Executor) Fire(ctx context.Context, req FireRequest) (*domain.ExecutionRecord, error) {
	rule := req.Rule
	if rule == nil {
		var err error
		rule, err = x.rules.GetByID(ctx, req.RuleID)
		if err != nil {
			return nil, err
		}
	}

	ec := req.Context
	if ec == nil {
		ec = &domain.ExecutionContext{}
	}
	if req.TestMode {
		ec.TestMode = true
	}
	testMode := ec.TestMode

	if err := rule.CanFire(testMode); err != nil {
		return nil, err
	}

	record := domain.NewExecutionRecord(rule.ID, rule.OrganizationID, rule.Trigger.Type, ec.Trigger)

	if !testMode && !x.acquireLock(ctx, rule, ec) {
		record.Skip("duplicate firing suppressed")
		x.finalize(ctx, record, rule, testMode, false, false)
		return record, nil
	}

	data := ec.Flatten()

	// Trigger-level filter conditions.
	if len(rule.Trigger.Conditions) > 0 {
		idx := record.StartStep(domain.StepTypeTrigger, "trigger conditions", map[string]any{"count": len(rule.Trigger.Conditions)})
		if !EvaluateAll(rule.Trigger.Conditions, data) {
			record.SealStep(idx, domain.StepStatusSkipped, map[string]any{"matched": false}, nil)
			record.Skip("trigger conditions not met")
			x.finalize(ctx, record, rule, testMode, false, false)
			return record, nil
		}
		record.SealStep(idx, domain.StepStatusSuccess, map[string]any{"matched": true}, nil)
	}

	// Rule conditions. Absent or empty blocks pass.
	idx := record.StartStep(domain.StepTypeCondition, "conditions", nil)
	if !EvaluateConditions(rule.Conditions, data) {
		record.SealStep(idx, domain.StepStatusSkipped, map[string]any{"matched": false}, nil)
		record.Skip("conditions not met")
		x.finalize(ctx, record, rule, testMode, false, false)
		return record, nil
	}
	record.SealStep(idx, domain.StepStatusSuccess, map[string]any{"matched": true}, nil)

	// Delivery gate: the action delay always defers; the delivery window
	// additionally defers message sends to the next deliverable instant.
	if runAt, deferred := x.deliveryTime(rule, ec); deferred {
		return x.park(ctx, rule, record, ec, runAt, testMode)
	}

	return x.dispatch(ctx, rule, record, ec, testMode)
}

// deliveryTime decides whether the action runs now or at a later instant.
func (x *Executor) deliveryTime(rule *domain.AutomationRule, ec *domain.ExecutionContext) (time.Time, bool) {
	now := x.now()
	runAt := now.Add(rule.Action.Delay.Duration())
	deferred := runAt.After(now)

	if isMessageAction(rule.Action.Type) && !IsDeliverable(rule.DeliveryWindow, ec.Timezone, runAt) {
		runAt = NextDeliveryTime(rule.DeliveryWindow, ec.Timezone, runAt)
		deferred = true
	}
	return runAt, deferred
}

// park resolves the action now and queues it for the poller.
func (x *Executor) park(ctx context.Context, rule *domain.AutomationRule, record *domain.ExecutionRecord, ec *domain.ExecutionContext, runAt time.Time, testMode bool) (*domain.ExecutionRecord, error) {
	idx := record.StartStep(domain.StepTypeAction, "defer "+string(rule.Action.Type), map[string]any{"run_at": runAt.UTC().Format(time.RFC3339)})

	op, err := x.dispatcher.Resolve(rule.Action, ec)
	if err != nil {
		record.SealStep(idx, domain.StepStatusFailed, nil, err)
		record.Fail(err.Error())
		x.finalize(ctx, record, rule, testMode, true, false)
		return record, err
	}

	if testMode {
		record.SealStep(idx, domain.StepStatusSuccess, map[string]any{"preview": op.Payload(), "would_run_at": runAt.UTC().Format(time.RFC3339)}, nil)
		record.Complete(domain.FiringStatusQueued)
		return record, nil
	}

	qa := domain.NewQueuedAction(rule.ID, record.ID, rule.OrganizationID, domain.QueuedKindDeferred, op.Channel, op.Payload(), runAt)
	if err := x.queue.Create(ctx, qa); err != nil {
		record.SealStep(idx, domain.StepStatusFailed, nil, err)
		record.Fail(fmt.Sprintf("queue deferred action: %v", err))
		x.finalize(ctx, record, rule, testMode, true, false)
		return record, err
	}

	record.SealStep(idx, domain.StepStatusSuccess, map[string]any{"queued_action_id": qa.ID.String()}, nil)
	record.Complete(domain.FiringStatusQueued)
	x.finalize(ctx, record, rule, testMode, true, false)
	return record, nil
}

// dispatch performs the action immediately, engaging the fallback channel
// on eligible failures. The primary channel is attempted exactly once.
func (x *Executor) dispatch(ctx context.Context, rule *domain.AutomationRule, record *domain.ExecutionRecord, ec *domain.ExecutionContext, testMode bool) (*domain.ExecutionRecord, error) {
	idx := record.StartStep(domain.StepTypeAction, string(rule.Action.Type), nil)

	result, op, err := x.dispatcher.Dispatch(ctx, rule.Action, ec)
	if err == nil {
		record.SealStep(idx, domain.StepStatusSuccess, result.Output, nil)
		record.Complete(domain.FiringStatusSuccess)
		x.finalize(ctx, record, rule, testMode, true, true)
		return record, nil
	}
	record.SealStep(idx, domain.StepStatusFailed, nil, err)

	if op == nil || !isMessageAction(rule.Action.Type) || !domain.IsFallbackEligible(err) || !rule.MultiChannel.HasFallback() || testMode {
		record.Fail(err.Error())
		x.finalize(ctx, record, rule, testMode, true, false)
		return record, err
	}

	fbIdx := record.StartStep(domain.StepTypeAction, "fallback "+string(rule.MultiChannel.FallbackChannel), map[string]any{"primary_error": err.Error()})
	fbResult, qa, fbErr := x.fallback.Engage(ctx, rule, record.ID, ec, op, err)
	if fbErr != nil {
		record.SealStep(fbIdx, domain.StepStatusFailed, nil, fbErr)
		record.Fail(fbErr.Error())
		x.finalize(ctx, record, rule, testMode, true, false)
		return record, fbErr
	}

	record.SealStep(fbIdx, domain.StepStatusSuccess, fbResult.Output, nil)
	x.metrics.Counter(observability.MetricFallbacksTaken, 1,
		observability.T("channel", string(rule.MultiChannel.FallbackChannel)))
	if qa != nil {
		record.Complete(domain.FiringStatusQueued)
		x.finalize(ctx, record, rule, testMode, true, false)
	} else {
		record.Complete(domain.FiringStatusSuccess)
		x.finalize(ctx, record, rule, testMode, true, true)
	}
	return record, nil
}

// acquireLock takes the per-rule firing lock. Locker failures fail open:
// a broken Redis must not stop automations from firing.
func (x *Executor) acquireLock(ctx context.Context, rule *domain.AutomationRule, ec *domain.ExecutionContext) bool {
	if x.locker == nil {
		return true
	}
	key := firingKey(rule, ec)
	ok, err := x.locker.Acquire(ctx, key, x.lockTTL)
	if err != nil {
		x.logger.Warn("firing lock unavailable, proceeding", "rule_id", rule.ID, "error", err)
		return true
	}
	if !ok {
		x.logger.Info("duplicate firing suppressed", "rule_id", rule.ID, "key", key)
	}
	return ok
}

// firingKey identifies one logical firing: the rule plus the entity the
// trigger concerns. Two events for different jobs never collide.
func firingKey(rule *domain.AutomationRule, ec *domain.ExecutionContext) string {
	subject := "none"
	switch {
	case ec.Job != nil:
		subject = "job:" + ec.Job.ID.String()
	case ec.Task != nil:
		subject = "task:" + ec.Task.ID.String()
	case ec.Client != nil:
		subject = "client:" + ec.Client.ID.String()
	}
	return fmt.Sprintf("firing:%s:%s:%s", rule.ID, rule.Trigger.Type, subject)
}

// finalize appends the sealed record and bumps rule counters. Both writes
// are best effort: the firing outcome is already decided and a logging
// failure must not turn a delivered message into an error.
func (x *Executor) finalize(ctx context.Context, record *domain.ExecutionRecord, rule *domain.AutomationRule, testMode, executed, success bool) {
	if testMode {
		return
	}
	x.instrument(record)
	x.publishOutcome(ctx, record)
	if err := x.logs.Append(ctx, record); err != nil {
		x.logger.Warn("execution log write failed", "rule_id", rule.ID, "execution_id", record.ID, "error", err)
	}
	if !executed {
		return
	}
	rule.RecordExecution()
	if err := x.rules.IncrementMetrics(ctx, rule.ID, success); err != nil {
		x.logger.Warn("rule metrics update failed", "rule_id", rule.ID, "error", err)
	}
}

// instrument bumps per-outcome firing counters and the firing duration.
func (x *Executor) instrument(record *domain.ExecutionRecord) {
	tags := []observability.Tag{observability.T("trigger", record.TriggerType)}
	switch record.Status {
	case domain.FiringStatusSuccess:
		x.metrics.Counter(observability.MetricFiringsTotal, 1, tags...)
	case domain.FiringStatusSkipped:
		x.metrics.Counter(observability.MetricFiringsSkipped, 1, tags...)
	case domain.FiringStatusQueued:
		x.metrics.Counter(observability.MetricFiringsQueued, 1, tags...)
	case domain.FiringStatusFailed:
		x.metrics.Counter(observability.MetricFiringsFailed, 1, tags...)
	}
	if record.CompletedAt != nil {
		x.metrics.Timing(observability.MetricFiringDuration, record.CompletedAt.Sub(record.StartedAt), tags...)
	}
}

// outcomeEvent is the bus envelope for one finished firing.
type outcomeEvent struct {
	EventID       uuid.UUID      `json:"event_id"`
	AggregateID   uuid.UUID      `json:"aggregate_id"`
	AggregateType string         `json:"aggregate_type"`
	RoutingKey    string         `json:"routing_key"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Payload       outcomePayload `json:"payload"`
}

type outcomePayload struct {
	ExecutionID    uuid.UUID `json:"execution_id"`
	RuleID         uuid.UUID `json:"rule_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	TriggerType    string    `json:"trigger_type"`
	Status         string    `json:"status"`
	SkipReason     string    `json:"skip_reason,omitempty"`
	Error          string    `json:"error,omitempty"`
	DurationMs     *int      `json:"duration_ms,omitempty"`
}

// publishOutcome is best effort like the audit writes: the firing is
// already decided and a broker outage must not fail it.
func (x *Executor) publishOutcome(ctx context.Context, record *domain.ExecutionRecord) {
	if x.publisher == nil {
		return
	}
	routingKey := "automation.execution." + string(record.Status)
	body, err := json.Marshal(outcomeEvent{
		EventID:       uuid.New(),
		AggregateID:   record.ID,
		AggregateType: "automation_execution",
		RoutingKey:    routingKey,
		OccurredAt:    x.now(),
		Payload: outcomePayload{
			ExecutionID:    record.ID,
			RuleID:         record.RuleID,
			OrganizationID: record.OrganizationID,
			TriggerType:    record.TriggerType,
			Status:         string(record.Status),
			SkipReason:     record.SkipReason,
			Error:          record.ErrorMessage,
			DurationMs:     record.DurationMs,
		},
	})
	if err != nil {
		x.logger.Warn("execution event marshal failed", "execution_id", record.ID, "error", err)
		return
	}
	if err := x.publisher.Publish(ctx, routingKey, body); err != nil {
		x.logger.Warn("execution event publish failed", "execution_id", record.ID, "routing_key", routingKey, "error", err)
		return
	}
	x.metrics.Counter(observability.MetricEventsPublished, 1, observability.T("routing_key", routingKey))
}

func isMessageAction(t domain.ActionType) bool {
	return t == domain.ActionSendSMS || t == domain.ActionSendEmail
}
