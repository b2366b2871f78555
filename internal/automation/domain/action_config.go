package domain

import (
	"errors"
	"fmt"
)

// ActionType enumerates the action kinds the dispatcher knows how to
// execute. Unknown types are not an error at the domain layer; the
// dispatcher logs and no-ops so forward-incompatible configs cannot crash
// the engine.
type ActionType string

const (
	ActionSendSMS          ActionType = "send_sms"
	ActionSendEmail        ActionType = "send_email"
	ActionCreateTask       ActionType = "create_task"
	ActionUpdateStatus     ActionType = "update_status"
	ActionUpdateTaskStatus ActionType = "update_task_status"
	ActionAddNote          ActionType = "add_note"
	ActionWebhook          ActionType = "webhook"
)

// ErrUnknownActionType signals an action type outside the closed set.
var ErrUnknownActionType = errors.New("unknown action type")

// TaskSelection narrows which of the current job's tasks an
// update_task_status action affects.
type TaskSelection string

const (
	TaskSelectionAll             TaskSelection = "all"
	TaskSelectionOverdue         TaskSelection = "overdue"
	TaskSelectionPriorityHigh    TaskSelection = "priority_high"
	TaskSelectionAssignedTrigger TaskSelection = "assigned_to_trigger"
)

// ActionConfig is the typed configuration for one action kind.
type ActionConfig interface {
	ActionType() ActionType
}

// SMSConfig configures a send_sms action. Recipient is either a literal
// E.164 number or the symbolic "customer"/"technician".
type SMSConfig struct {
	Recipient string
	Message   string
	From      string
}

func (SMSConfig) ActionType() ActionType { return ActionSendSMS }

// EmailConfig configures a send_email action.
type EmailConfig struct {
	Recipient string
	Subject   string
	Body      string
}

func (EmailConfig) ActionType() ActionType { return ActionSendEmail }

// CreateTaskConfig configures a create_task action. DueDate accepts a
// literal ISO date, a relative offset ("+3 days"), or a named preset
// ("scheduled_date", "tomorrow", "next_week"). Assignee is symbolic
// ("technician"/"manager") or a literal id.
type CreateTaskConfig struct {
	Title       string
	Description string
	Assignee    string
	DueDate     string
	Priority    string
}

func (CreateTaskConfig) ActionType() ActionType { return ActionCreateTask }

// UpdateStatusConfig configures an update_status action against the
// context job.
type UpdateStatusConfig struct {
	Status string
}

func (UpdateStatusConfig) ActionType() ActionType { return ActionUpdateStatus }

// UpdateTaskStatusConfig configures an update_task_status action.
type UpdateTaskStatusConfig struct {
	Status        string
	TaskSelection TaskSelection
}

func (UpdateTaskStatusConfig) ActionType() ActionType { return ActionUpdateTaskStatus }

// AddNoteConfig configures an add_note action linked to the context
// job/client.
type AddNoteConfig struct {
	Content string
}

func (AddNoteConfig) ActionType() ActionType { return ActionAddNote }

// WebhookConfig configures a webhook action.
type WebhookConfig struct {
	URL     string
	Method  string
	Payload map[string]any
}

func (WebhookConfig) ActionType() ActionType { return ActionWebhook }

// DecodeAction resolves an action's raw config into its typed form. The
// switch is exhaustive over the closed action set; anything else returns
// ErrUnknownActionType for the caller's permissive default branch.
func DecodeAction(a Action) (ActionConfig, error) {
	cfg := a.Config
	switch a.Type {
	case ActionSendSMS:
		c := SMSConfig{
			Recipient: configString(cfg, "recipient"),
			Message:   configString(cfg, "message"),
			From:      configString(cfg, "from"),
		}
		if c.Message == "" {
			return nil, fmt.Errorf("send_sms: %w: message is required", ErrConfiguration)
		}
		return c, nil
	case ActionSendEmail:
		c := EmailConfig{
			Recipient: configString(cfg, "recipient"),
			Subject:   configString(cfg, "subject"),
			Body:      configString(cfg, "body"),
		}
		if c.Subject == "" && c.Body == "" {
			return nil, fmt.Errorf("send_email: %w: subject or body is required", ErrConfiguration)
		}
		return c, nil
	case ActionCreateTask:
		return CreateTaskConfig{
			Title:       configString(cfg, "title"),
			Description: configString(cfg, "description"),
			Assignee:    configString(cfg, "assignee"),
			DueDate:     configString(cfg, "dueDate", "due_date"),
			Priority:    configString(cfg, "priority"),
		}, nil
	case ActionUpdateStatus:
		c := UpdateStatusConfig{Status: configString(cfg, "status")}
		if c.Status == "" {
			return nil, fmt.Errorf("update_status: %w: status is required", ErrConfiguration)
		}
		return c, nil
	case ActionUpdateTaskStatus:
		c := UpdateTaskStatusConfig{
			Status:        configString(cfg, "status"),
			TaskSelection: TaskSelection(configString(cfg, "taskSelection", "task_selection")),
		}
		if c.Status == "" {
			return nil, fmt.Errorf("update_task_status: %w: status is required", ErrConfiguration)
		}
		if c.TaskSelection == "" {
			c.TaskSelection = TaskSelectionAll
		}
		return c, nil
	case ActionAddNote:
		c := AddNoteConfig{Content: configString(cfg, "content")}
		if c.Content == "" {
			return nil, fmt.Errorf("add_note: %w: content is required", ErrConfiguration)
		}
		return c, nil
	case ActionWebhook:
		c := WebhookConfig{
			URL:    configString(cfg, "url"),
			Method: configString(cfg, "method"),
		}
		if payload, ok := cfg["payload"].(map[string]any); ok {
			c.Payload = payload
		}
		if c.URL == "" {
			return nil, fmt.Errorf("webhook: %w: url is required", ErrConfiguration)
		}
		if c.Method == "" {
			c.Method = "POST"
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownActionType, a.Type)
	}
}

// configString returns the first non-empty string value among keys.
func configString(cfg map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := cfg[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
