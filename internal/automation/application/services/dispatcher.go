package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calloutapp/callout/internal/automation/domain"
	"github.com/calloutapp/callout/internal/channels"
	fieldops "github.com/calloutapp/callout/internal/fieldops/domain"
)

// defaultCallTimeout bounds every external call a dispatch makes. A hung
// provider or store call becomes a dispatch failure eligible for fallback
// instead of blocking the firing indefinitely.
const defaultCallTimeout = 30 * time.Second

// ActionResult is the outcome of dispatching one action.
type ActionResult struct {
	Type   domain.ActionType
	Status string // sent, created, updated, noop, preview
	Output map[string]any
}

// ResolvedAction is an action with every context-dependent value already
// computed: templates interpolated, recipients and assignees resolved,
// due dates calculated. It is what gets queued for deferred delivery, so
// the poller can perform it without reloading the original context.
type ResolvedAction struct {
	Kind    domain.ActionType
	Channel domain.Channel

	To      string
	From    string
	Message string
	Subject string
	Body    string

	OrganizationID uuid.UUID
	JobID          uuid.UUID
	ClientID       uuid.UUID
	AssigneeID     uuid.UUID
	TechnicianID   uuid.UUID

	Title       string
	Description string
	Priority    string
	Status      string
	Selection   domain.TaskSelection
	DueAt       *time.Time

	URL            string
	Method         string
	WebhookPayload map[string]any
}

// Dispatcher executes resolved actions through the channel adapters and
// the field-service stores.
type Dispatcher struct {
	sms    channels.SMSSender
	email  channels.EmailSender
	tasks  fieldops.TaskStore
	jobs   fieldops.JobStore
	notes  fieldops.NoteStore
	http   *http.Client
	logger *slog.Logger

	callTimeout time.Duration
	now         func() time.Time
}

// NewDispatcher creates a dispatcher with its collaborators injected.
func NewDispatcher(
	sms channels.SMSSender,
	email channels.EmailSender,
	tasks fieldops.TaskStore,
	jobs fieldops.JobStore,
	notes fieldops.NoteStore,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sms:         sms,
		email:       email,
		tasks:       tasks,
		jobs:        jobs,
		notes:       notes,
		http:        &http.Client{Timeout: defaultCallTimeout},
		logger:      logger,
		callTimeout: defaultCallTimeout,
		now:         time.Now,
	}
}

// Dispatch resolves and performs one action. Unknown action types log a
// warning and return a no-op result rather than failing the firing. In
// test mode the resolved payload is returned as a preview and no side
// effect is performed.
func (d *Dispatcher) Dispatch(ctx context.Context, action domain.Action, ec *domain.ExecutionContext) (*ActionResult, *ResolvedAction, error) {
	op, err := d.Resolve(action, ec)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownActionType) {
			d.logger.Warn("unknown action type, skipping", "action_type", action.Type)
			return &ActionResult{Type: action.Type, Status: "noop"}, nil, nil
		}
		return nil, op, err
	}

	if ec != nil && ec.TestMode {
		return &ActionResult{
			Type:   op.Kind,
			Status: "preview",
			Output: map[string]any{"preview": op.Payload()},
		}, op, nil
	}

	result, err := d.Perform(ctx, op)
	return result, op, err
}

// Resolve computes a ResolvedAction from the rule's stored action config
// and the live context. Resolution performs no side effects.
func (d *Dispatcher) Resolve(action domain.Action, ec *domain.ExecutionContext) (*ResolvedAction, error) {
	cfg, err := domain.DecodeAction(action)
	if err != nil {
		return nil, err
	}

	op := &ResolvedAction{Kind: action.Type}
	if ec != nil {
		if ec.Organization != nil {
			op.OrganizationID = ec.Organization.ID
		}
		if ec.Job != nil {
			op.JobID = ec.Job.ID
		}
		if ec.Client != nil {
			op.ClientID = ec.Client.ID
		}
		if ec.Technician != nil {
			op.TechnicianID = ec.Technician.ID
		}
	}

	switch c := cfg.(type) {
	case domain.SMSConfig:
		op.Channel = domain.ChannelSMS
		op.From = c.From
		op.Message = Interpolate(c.Message, ec)
		// Message is resolved before the recipient so a missing-recipient
		// failure still leaves a convertible payload for the fallback.
		to, err := resolvePhone(c.Recipient, ec)
		if err != nil {
			return op, err
		}
		op.To = to

	case domain.EmailConfig:
		op.Channel = domain.ChannelEmail
		op.Subject = Interpolate(c.Subject, ec)
		op.Body = Interpolate(c.Body, ec)
		to, err := resolveEmail(c.Recipient, ec)
		if err != nil {
			return op, err
		}
		op.To = to

	case domain.CreateTaskConfig:
		due, err := CalculateDueDate(c.DueDate, ec, d.now())
		if err != nil {
			return nil, err
		}
		op.AssigneeID = resolveAssignee(c.Assignee, ec)
		op.Title = Interpolate(c.Title, ec)
		op.Description = Interpolate(c.Description, ec)
		op.Priority = c.Priority
		op.DueAt = due

	case domain.UpdateStatusConfig:
		if op.JobID == uuid.Nil {
			return nil, fmt.Errorf("update_status: %w: no job in context", domain.ErrConfiguration)
		}
		op.Status = c.Status

	case domain.UpdateTaskStatusConfig:
		if op.JobID == uuid.Nil {
			return nil, fmt.Errorf("update_task_status: %w: no job in context", domain.ErrConfiguration)
		}
		op.Status = c.Status
		op.Selection = c.TaskSelection

	case domain.AddNoteConfig:
		if op.JobID == uuid.Nil && op.ClientID == uuid.Nil {
			return nil, fmt.Errorf("add_note: %w: no job or client in context", domain.ErrConfiguration)
		}
		op.Body = Interpolate(c.Content, ec)

	case domain.WebhookConfig:
		op.URL = Interpolate(c.URL, ec)
		op.Method = c.Method
		op.WebhookPayload = c.Payload

	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownActionType, action.Type)
	}

	return op, nil
}

// Perform executes a resolved action. Channel failures wrap
// domain.ErrTransientChannel so the caller can engage the fallback.
func (d *Dispatcher) Perform(ctx context.Context, op *ResolvedAction) (*ActionResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	switch op.Kind {
	case domain.ActionSendSMS:
		res, err := d.sms.SendSMS(callCtx, channels.SMSMessage{To: op.To, From: op.From, Message: op.Message})
		if err != nil {
			return nil, classifyChannelErr(err)
		}
		return &ActionResult{Type: op.Kind, Status: "sent", Output: map[string]any{"message_id": res.ID, "channel": "sms", "to": op.To}}, nil

	case domain.ActionSendEmail:
		res, err := d.email.SendEmail(callCtx, channels.EmailMessage{To: op.To, Subject: op.Subject, Body: op.Body})
		if err != nil {
			return nil, classifyChannelErr(err)
		}
		return &ActionResult{Type: op.Kind, Status: "sent", Output: map[string]any{"message_id": res.ID, "channel": "email", "to": op.To}}, nil

	case domain.ActionCreateTask:
		taskID, err := d.tasks.CreateTask(callCtx, fieldops.TaskDraft{
			OrganizationID: op.OrganizationID,
			JobID:          op.JobID,
			AssigneeID:     op.AssigneeID,
			Title:          op.Title,
			Description:    op.Description,
			Priority:       fieldops.TaskPriority(op.Priority),
			DueAt:          op.DueAt,
		})
		if err != nil {
			return nil, err
		}
		return &ActionResult{Type: op.Kind, Status: "created", Output: map[string]any{"task_id": taskID.String()}}, nil

	case domain.ActionUpdateStatus:
		if err := d.jobs.UpdateJobStatus(callCtx, op.JobID, fieldops.JobStatus(op.Status)); err != nil {
			return nil, err
		}
		return &ActionResult{Type: op.Kind, Status: "updated", Output: map[string]any{"job_id": op.JobID.String(), "status": op.Status}}, nil

	case domain.ActionUpdateTaskStatus:
		updated, err := d.updateTasks(callCtx, op)
		if err != nil {
			return nil, err
		}
		return &ActionResult{Type: op.Kind, Status: "updated", Output: map[string]any{"tasks_updated": updated}}, nil

	case domain.ActionAddNote:
		noteID, err := d.notes.CreateNote(callCtx, fieldops.Note{
			ID:             uuid.New(),
			OrganizationID: op.OrganizationID,
			JobID:          op.JobID,
			ClientID:       op.ClientID,
			Content:        op.Body,
			CreatedAt:      d.now(),
		})
		if err != nil {
			return nil, err
		}
		return &ActionResult{Type: op.Kind, Status: "created", Output: map[string]any{"note_id": noteID.String()}}, nil

	case domain.ActionWebhook:
		return d.callWebhook(callCtx, op)

	default:
		d.logger.Warn("unknown resolved action kind, skipping", "kind", op.Kind)
		return &ActionResult{Type: op.Kind, Status: "noop"}, nil
	}
}

// updateTasks applies the status change to the job's tasks matching the
// configured selection scope.
func (d *Dispatcher) updateTasks(ctx context.Context, op *ResolvedAction) (int, error) {
	tasks, err := d.tasks.TasksByJob(ctx, op.JobID)
	if err != nil {
		return 0, err
	}

	now := d.now()
	updated := 0
	for _, task := range tasks {
		switch op.Selection {
		case domain.TaskSelectionOverdue:
			if !task.Overdue(now) {
				continue
			}
		case domain.TaskSelectionPriorityHigh:
			if task.Priority != fieldops.TaskPriorityHigh {
				continue
			}
		case domain.TaskSelectionAssignedTrigger:
			if op.TechnicianID == uuid.Nil || task.AssigneeID != op.TechnicianID {
				continue
			}
		}
		if err := d.tasks.UpdateTaskStatus(ctx, task.ID, op.Status); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (d *Dispatcher) callWebhook(ctx context.Context, op *ResolvedAction) (*ActionResult, error) {
	var body *bytes.Reader
	if op.WebhookPayload != nil {
		raw, err := json.Marshal(op.WebhookPayload)
		if err != nil {
			return nil, fmt.Errorf("webhook: %w: %v", domain.ErrConfiguration, err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, op.URL, body)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w: %v", domain.ErrConfiguration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: webhook call failed: %v", domain.ErrTransientChannel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: webhook returned %d", domain.ErrTransientChannel, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return &ActionResult{Type: op.Kind, Status: "sent", Output: map[string]any{"status_code": resp.StatusCode}}, nil
}

// classifyChannelErr maps provider failures onto the dispatch taxonomy.
// Cancellation passes through untouched; everything else is a channel
// failure the fallback controller may redirect.
func classifyChannelErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrTransientChannel, err)
}

// resolvePhone turns a recipient config value into an E.164 number:
// literal numbers pass through, "customer" and "technician" resolve via
// the context.
func resolvePhone(recipient string, ec *domain.ExecutionContext) (string, error) {
	switch recipient {
	case "", "customer", "client":
		if ec != nil && ec.Client != nil && ec.Client.Phone != "" {
			return ec.Client.Phone, nil
		}
	case "technician":
		if ec != nil && ec.Technician != nil && ec.Technician.Phone != "" {
			return ec.Technician.Phone, nil
		}
	default:
		if strings.HasPrefix(recipient, "+") {
			return recipient, nil
		}
	}
	return "", fmt.Errorf("%w: no phone for recipient %q", domain.ErrMissingRecipient, recipient)
}

// resolveEmail mirrors resolvePhone for email addresses.
func resolveEmail(recipient string, ec *domain.ExecutionContext) (string, error) {
	switch recipient {
	case "", "customer", "client":
		if ec != nil && ec.Client != nil && ec.Client.Email != "" {
			return ec.Client.Email, nil
		}
	case "technician":
		if ec != nil && ec.Technician != nil && ec.Technician.Email != "" {
			return ec.Technician.Email, nil
		}
	default:
		if strings.Contains(recipient, "@") {
			return recipient, nil
		}
	}
	return "", fmt.Errorf("%w: no email for recipient %q", domain.ErrMissingRecipient, recipient)
}

// resolveAssignee maps a symbolic or literal assignee onto an id. Unknown
// values resolve to uuid.Nil (unassigned) rather than failing the firing.
func resolveAssignee(assignee string, ec *domain.ExecutionContext) uuid.UUID {
	switch assignee {
	case "technician":
		if ec != nil && ec.Technician != nil {
			return ec.Technician.ID
		}
	case "manager":
		if ec != nil && ec.Trigger != nil {
			if s, ok := ec.Trigger["manager_id"].(string); ok {
				if id, err := uuid.Parse(s); err == nil {
					return id
				}
			}
		}
	default:
		if id, err := uuid.Parse(assignee); err == nil {
			return id
		}
	}
	return uuid.Nil
}
