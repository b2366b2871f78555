package subscribers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/calloutapp/callout/internal/automation/domain"
	fieldops "github.com/calloutapp/callout/internal/fieldops/domain"
)

// EntityContextBuilder builds execution contexts by loading the entities
// the trigger payload references. Missing optional references are left
// nil; a missing organization is an error because the timezone and the
// company tokens come from it.
type EntityContextBuilder struct {
	loader fieldops.EntityLoader
}

// NewEntityContextBuilder creates a builder on the given loader.
func NewEntityContextBuilder(loader fieldops.EntityLoader) *EntityContextBuilder {
	return &EntityContextBuilder{loader: loader}
}

// BuildContext assembles the context for one firing.
func (b *EntityContextBuilder) BuildContext(ctx context.Context, orgID uuid.UUID, triggerType string, payload map[string]any) (*domain.ExecutionContext, error) {
	org, err := b.loader.OrganizationByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization %s: %w", orgID, err)
	}

	ec := &domain.ExecutionContext{
		Organization: org,
		Trigger:      payload,
		Timezone:     org.Timezone,
	}

	if id, ok := payloadID(payload, "client_id"); ok {
		if ec.Client, err = b.loader.ClientByID(ctx, id); err != nil {
			return nil, fmt.Errorf("load client %s: %w", id, err)
		}
	}
	if id, ok := payloadID(payload, "job_id"); ok {
		if ec.Job, err = b.loader.JobByID(ctx, id); err != nil {
			return nil, fmt.Errorf("load job %s: %w", id, err)
		}
	}
	if id, ok := payloadID(payload, "task_id"); ok {
		if ec.Task, err = b.loader.TaskByID(ctx, id); err != nil {
			return nil, fmt.Errorf("load task %s: %w", id, err)
		}
	}
	if id, ok := payloadID(payload, "technician_id"); ok {
		if ec.Technician, err = b.loader.TechnicianByID(ctx, id); err != nil {
			return nil, fmt.Errorf("load technician %s: %w", id, err)
		}
	}

	// A job carries the client and technician when the payload doesn't
	// name them directly.
	if ec.Job != nil {
		if ec.Client == nil && ec.Job.ClientID != uuid.Nil {
			if ec.Client, err = b.loader.ClientByID(ctx, ec.Job.ClientID); err != nil {
				return nil, fmt.Errorf("load client %s: %w", ec.Job.ClientID, err)
			}
		}
		if ec.Technician == nil && ec.Job.TechnicianID != uuid.Nil {
			if ec.Technician, err = b.loader.TechnicianByID(ctx, ec.Job.TechnicianID); err != nil {
				return nil, fmt.Errorf("load technician %s: %w", ec.Job.TechnicianID, err)
			}
		}
	}

	return ec, nil
}

func payloadID(payload map[string]any, key string) (uuid.UUID, bool) {
	s, ok := payload[key].(string)
	if !ok || s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
