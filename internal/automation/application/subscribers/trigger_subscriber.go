// Package subscribers connects broker events to the automation engine.
package subscribers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/calloutapp/callout/internal/automation/application/services"
	"github.com/calloutapp/callout/internal/automation/domain"
	"github.com/calloutapp/callout/internal/shared/infrastructure/eventbus"
	"github.com/calloutapp/callout/pkg/observability"
)

// ContextBuilder assembles the execution context for one trigger event:
// it loads the client, job, task, technician, and organization the event
// references so conditions and templates see live data.
type ContextBuilder interface {
	BuildContext(ctx context.Context, orgID uuid.UUID, triggerType string, payload map[string]any) (*domain.ExecutionContext, error)
}

// TriggerSubscriber fires every matching active rule when a business
// event arrives. One event may fire many rules; each firing is isolated
// so one rule's failure never blocks another's.
type TriggerSubscriber struct {
	rules    domain.RuleRepository
	executor *services.Executor
	builder  ContextBuilder
	triggers []string
	logger   *slog.Logger
}

// NewTriggerSubscriber creates a subscriber listening on the given
// trigger routing keys.
func NewTriggerSubscriber(
	rules domain.RuleRepository,
	executor *services.Executor,
	builder ContextBuilder,
	triggers []string,
	logger *slog.Logger,
) *TriggerSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerSubscriber{
		rules:    rules,
		executor: executor,
		builder:  builder,
		triggers: triggers,
		logger:   logger,
	}
}

// EventTypes returns the routing keys this subscriber handles.
func (s *TriggerSubscriber) EventTypes() []string {
	return s.triggers
}

// Handle fires the active rules matching the event's trigger type.
func (s *TriggerSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	// Every log line of every firing this event causes carries the
	// event's correlation ID (or the event ID when the producer set none).
	correlationID := event.Metadata.CorrelationID
	if correlationID == "" {
		correlationID = event.EventID.String()
	}
	ctx = observability.WithCorrelationID(ctx, correlationID)
	ctx = observability.WithOperation(ctx, event.RoutingKey)

	payload := make(map[string]any)
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			// Malformed payload is not retryable.
			s.logger.Error("trigger payload unmarshal failed",
				"routing_key", event.RoutingKey,
				"event_id", event.EventID,
				"error", err,
			)
			return nil
		}
	}

	orgID := organizationID(event, payload)
	if orgID == uuid.Nil {
		s.logger.Warn("trigger event without organization, dropping",
			"routing_key", event.RoutingKey,
			"event_id", event.EventID,
		)
		return nil
	}

	rules, err := s.rules.GetActiveByTriggerType(ctx, orgID, event.RoutingKey)
	if err != nil {
		return fmt.Errorf("load rules for %s: %w", event.RoutingKey, err)
	}
	if len(rules) == 0 {
		return nil
	}

	ec, err := s.builder.BuildContext(ctx, orgID, event.RoutingKey, payload)
	if err != nil {
		return fmt.Errorf("build context for %s: %w", event.RoutingKey, err)
	}

	for _, rule := range rules {
		ec.RuleID = rule.ID
		record, err := s.executor.Fire(ctx, services.FireRequest{Rule: rule, Context: ec})
		if err != nil {
			s.logger.Warn("rule firing failed",
				"rule_id", rule.ID,
				"trigger", event.RoutingKey,
				"error", err,
			)
			continue
		}
		s.logger.Debug("rule fired",
			"rule_id", rule.ID,
			"trigger", event.RoutingKey,
			"status", record.Status,
		)
	}

	return nil
}

// organizationID extracts the tenant from the payload, falling back to
// the aggregate id for organization-scoped events.
func organizationID(event *eventbus.ConsumedEvent, payload map[string]any) uuid.UUID {
	if s, ok := payload["organization_id"].(string); ok {
		if id, err := uuid.Parse(s); err == nil {
			return id
		}
	}
	if event.AggregateType == "organization" {
		return event.AggregateID
	}
	return uuid.Nil
}
