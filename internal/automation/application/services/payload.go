package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calloutapp/callout/internal/automation/domain"
)

// Payload serializes the resolved action into the JSON-safe map stored on
// a queued action row. Zero-valued fields are omitted.
func (op *ResolvedAction) Payload() map[string]any {
	p := map[string]any{"kind": string(op.Kind)}
	if op.Channel != "" {
		p["channel"] = string(op.Channel)
	}

	putStr := func(key, val string) {
		if val != "" {
			p[key] = val
		}
	}
	putID := func(key string, id uuid.UUID) {
		if id != uuid.Nil {
			p[key] = id.String()
		}
	}

	putStr("to", op.To)
	putStr("from", op.From)
	putStr("message", op.Message)
	putStr("subject", op.Subject)
	putStr("body", op.Body)

	putID("organization_id", op.OrganizationID)
	putID("job_id", op.JobID)
	putID("client_id", op.ClientID)
	putID("assignee_id", op.AssigneeID)
	putID("technician_id", op.TechnicianID)

	putStr("title", op.Title)
	putStr("description", op.Description)
	putStr("priority", op.Priority)
	putStr("status", op.Status)
	putStr("selection", string(op.Selection))
	if op.DueAt != nil {
		p["due_at"] = op.DueAt.UTC().Format(time.RFC3339)
	}

	putStr("url", op.URL)
	putStr("method", op.Method)
	if op.WebhookPayload != nil {
		p["webhook_payload"] = op.WebhookPayload
	}
	return p
}

// ResolvedFromPayload reconstructs a resolved action from a queued
// payload map.
func ResolvedFromPayload(p map[string]any) (*ResolvedAction, error) {
	kind, _ := p["kind"].(string)
	if kind == "" {
		return nil, fmt.Errorf("queued payload: %w: missing kind", domain.ErrConfiguration)
	}

	str := func(key string) string {
		s, _ := p[key].(string)
		return s
	}
	id := func(key string) uuid.UUID {
		s, _ := p[key].(string)
		if s == "" {
			return uuid.Nil
		}
		parsed, err := uuid.Parse(s)
		if err != nil {
			return uuid.Nil
		}
		return parsed
	}

	op := &ResolvedAction{
		Kind:    domain.ActionType(kind),
		Channel: domain.Channel(str("channel")),

		To:      str("to"),
		From:    str("from"),
		Message: str("message"),
		Subject: str("subject"),
		Body:    str("body"),

		OrganizationID: id("organization_id"),
		JobID:          id("job_id"),
		ClientID:       id("client_id"),
		AssigneeID:     id("assignee_id"),
		TechnicianID:   id("technician_id"),

		Title:       str("title"),
		Description: str("description"),
		Priority:    str("priority"),
		Status:      str("status"),
		Selection:   domain.TaskSelection(str("selection")),

		URL:    str("url"),
		Method: str("method"),
	}

	if s := str("due_at"); s != "" {
		due, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("queued payload: %w: bad due_at %q", domain.ErrConfiguration, s)
		}
		op.DueAt = &due
	}
	if wp, ok := p["webhook_payload"].(map[string]any); ok {
		op.WebhookPayload = wp
	}
	return op, nil
}
