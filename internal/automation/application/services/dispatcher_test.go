package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calloutapp/callout/internal/automation/domain"
	"github.com/calloutapp/callout/internal/channels"
	fieldops "github.com/calloutapp/callout/internal/fieldops/domain"
)

type mockSMS struct {
	sent []channels.SMSMessage
	err  error
}

func (m *mockSMS) SendSMS(_ context.Context, msg channels.SMSMessage) (channels.SendResult, error) {
	if m.err != nil {
		return channels.SendResult{}, m.err
	}
	m.sent = append(m.sent, msg)
	return channels.SendResult{ID: "SM" + uuid.NewString()[:8], Status: "queued"}, nil
}

type mockEmail struct {
	sent []channels.EmailMessage
	err  error
}

func (m *mockEmail) SendEmail(_ context.Context, msg channels.EmailMessage) (channels.SendResult, error) {
	if m.err != nil {
		return channels.SendResult{}, m.err
	}
	m.sent = append(m.sent, msg)
	return channels.SendResult{ID: "EM" + uuid.NewString()[:8], Status: "accepted"}, nil
}

type mockTaskStore struct {
	created []fieldops.TaskDraft
	byJob   map[uuid.UUID][]*fieldops.Task
	updated map[uuid.UUID]string
}

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{
		byJob:   make(map[uuid.UUID][]*fieldops.Task),
		updated: make(map[uuid.UUID]string),
	}
}

func (m *mockTaskStore) CreateTask(_ context.Context, draft fieldops.TaskDraft) (uuid.UUID, error) {
	m.created = append(m.created, draft)
	return uuid.New(), nil
}

func (m *mockTaskStore) TasksByJob(_ context.Context, jobID uuid.UUID) ([]*fieldops.Task, error) {
	return m.byJob[jobID], nil
}

func (m *mockTaskStore) UpdateTaskStatus(_ context.Context, taskID uuid.UUID, status string) error {
	m.updated[taskID] = status
	return nil
}

type mockJobStore struct {
	statuses map[uuid.UUID]fieldops.JobStatus
}

func (m *mockJobStore) UpdateJobStatus(_ context.Context, jobID uuid.UUID, status fieldops.JobStatus) error {
	if m.statuses == nil {
		m.statuses = make(map[uuid.UUID]fieldops.JobStatus)
	}
	m.statuses[jobID] = status
	return nil
}

type mockNoteStore struct {
	notes []fieldops.Note
}

func (m *mockNoteStore) CreateNote(_ context.Context, note fieldops.Note) (uuid.UUID, error) {
	m.notes = append(m.notes, note)
	return note.ID, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	sms        *mockSMS
	email      *mockEmail
	tasks      *mockTaskStore
	jobs       *mockJobStore
	notes      *mockNoteStore
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		sms:   &mockSMS{},
		email: &mockEmail{},
		tasks: newMockTaskStore(),
		jobs:  &mockJobStore{},
		notes: &mockNoteStore{},
	}
	f.dispatcher = NewDispatcher(f.sms, f.email, f.tasks, f.jobs, f.notes, testLogger())
	return f
}

// dispatchContext is testContext with entity ids populated, as a live
// trigger event would carry them.
func dispatchContext() *domain.ExecutionContext {
	ec := testContext()
	ec.Client.ID = uuid.New()
	ec.Job.ID = uuid.New()
	ec.Technician.ID = uuid.New()
	ec.Organization.ID = uuid.New()
	return ec
}

func TestDispatch_SendSMS(t *testing.T) {
	f := newDispatcherFixture()
	ec := dispatchContext()
	action := domain.Action{
		Type:   domain.ActionSendSMS,
		Config: map[string]any{"recipient": "customer", "message": "Hi {{client_first_name}}, {{technician_name}} is on the way."},
	}

	result, op, err := f.dispatcher.Dispatch(context.Background(), action, ec)

	require.NoError(t, err)
	assert.Equal(t, "sent", result.Status)
	require.Len(t, f.sms.sent, 1)
	assert.Equal(t, "+15551234567", f.sms.sent[0].To)
	assert.Equal(t, "Hi John, Dana Reyes is on the way.", f.sms.sent[0].Message)
	assert.Equal(t, domain.ChannelSMS, op.Channel)
}

func TestDispatch_TestModePreviewsWithoutSending(t *testing.T) {
	f := newDispatcherFixture()
	ec := dispatchContext()
	ec.TestMode = true
	action := domain.Action{
		Type:   domain.ActionSendSMS,
		Config: map[string]any{"recipient": "customer", "message": "Hello {{client_name}}"},
	}

	result, op, err := f.dispatcher.Dispatch(context.Background(), action, ec)

	require.NoError(t, err)
	assert.Equal(t, "preview", result.Status)
	assert.Empty(t, f.sms.sent)
	preview, ok := result.Output["preview"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Hello John Smith", preview["message"])
	assert.Equal(t, "Hello John Smith", op.Message)
}

func TestDispatch_UnknownActionTypeIsNoop(t *testing.T) {
	f := newDispatcherFixture()
	action := domain.Action{Type: "launch_rocket", Config: map[string]any{}}

	result, op, err := f.dispatcher.Dispatch(context.Background(), action, dispatchContext())

	require.NoError(t, err)
	assert.Equal(t, "noop", result.Status)
	assert.Nil(t, op)
	assert.Empty(t, f.sms.sent)
}

func TestDispatch_ChannelFailureWrapsTransient(t *testing.T) {
	f := newDispatcherFixture()
	f.sms.err = channels.ErrProviderUnavailable
	action := domain.Action{
		Type:   domain.ActionSendSMS,
		Config: map[string]any{"recipient": "customer", "message": "hello"},
	}

	_, op, err := f.dispatcher.Dispatch(context.Background(), action, dispatchContext())

	assert.ErrorIs(t, err, domain.ErrTransientChannel)
	assert.True(t, domain.IsFallbackEligible(err))
	require.NotNil(t, op)
	assert.Equal(t, "hello", op.Message)
}

func TestResolve_MissingRecipientKeepsResolvedMessage(t *testing.T) {
	f := newDispatcherFixture()
	ec := dispatchContext()
	ec.Client.Phone = ""
	action := domain.Action{
		Type:   domain.ActionSendSMS,
		Config: map[string]any{"recipient": "customer", "message": "Hi {{client_first_name}}"},
	}

	op, err := f.dispatcher.Resolve(action, ec)

	assert.ErrorIs(t, err, domain.ErrMissingRecipient)
	// The partially resolved payload survives so a fallback can convert it.
	require.NotNil(t, op)
	assert.Equal(t, "Hi John", op.Message)
}

func TestResolve_RecipientForms(t *testing.T) {
	ec := dispatchContext()

	to, err := resolvePhone("+15550009999", ec)
	require.NoError(t, err)
	assert.Equal(t, "+15550009999", to)

	to, err = resolvePhone("technician", ec)
	require.NoError(t, err)
	assert.Equal(t, "+15559876543", to)

	to, err = resolveEmail("", ec)
	require.NoError(t, err)
	assert.Equal(t, "john@example.com", to)

	to, err = resolveEmail("ops@acme.example", ec)
	require.NoError(t, err)
	assert.Equal(t, "ops@acme.example", to)

	_, err = resolveEmail("not-an-address", ec)
	assert.ErrorIs(t, err, domain.ErrMissingRecipient)
}

func TestResolve_CreateTask(t *testing.T) {
	f := newDispatcherFixture()
	ec := dispatchContext()
	action := domain.Action{
		Type: domain.ActionCreateTask,
		Config: map[string]any{
			"title":    "Follow up with {{client_name}}",
			"assignee": "technician",
			"dueDate":  "+2 hours",
			"priority": "high",
		},
	}

	op, err := f.dispatcher.Resolve(action, ec)

	require.NoError(t, err)
	assert.Equal(t, "Follow up with John Smith", op.Title)
	assert.Equal(t, ec.Technician.ID, op.AssigneeID)
	assert.Equal(t, "high", op.Priority)
	require.NotNil(t, op.DueAt)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), *op.DueAt, 5*time.Second)
}

func TestResolve_UpdateStatusWithoutJobFails(t *testing.T) {
	f := newDispatcherFixture()
	ec := dispatchContext()
	ec.Job = nil
	action := domain.Action{Type: domain.ActionUpdateStatus, Config: map[string]any{"status": "completed"}}

	_, err := f.dispatcher.Resolve(action, ec)

	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestResolveAssignee(t *testing.T) {
	ec := dispatchContext()
	managerID := uuid.New()
	ec.Trigger = map[string]any{"manager_id": managerID.String()}

	assert.Equal(t, ec.Technician.ID, resolveAssignee("technician", ec))
	assert.Equal(t, managerID, resolveAssignee("manager", ec))

	literal := uuid.New()
	assert.Equal(t, literal, resolveAssignee(literal.String(), ec))
	assert.Equal(t, uuid.Nil, resolveAssignee("whoever", ec))
}

func TestPerform_UpdateTaskStatusSelections(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	future := time.Now().Add(48 * time.Hour)
	ec := dispatchContext()
	jobID := ec.Job.ID

	overdue := &fieldops.Task{ID: uuid.New(), JobID: jobID, Status: "open", DueAt: &past}
	urgent := &fieldops.Task{ID: uuid.New(), JobID: jobID, Status: "open", Priority: fieldops.TaskPriorityHigh, DueAt: &future}
	mine := &fieldops.Task{ID: uuid.New(), JobID: jobID, Status: "open", AssigneeID: ec.Technician.ID, DueAt: &future}

	cases := []struct {
		name      string
		selection domain.TaskSelection
		want      []uuid.UUID
	}{
		{"all", domain.TaskSelectionAll, []uuid.UUID{overdue.ID, urgent.ID, mine.ID}},
		{"overdue", domain.TaskSelectionOverdue, []uuid.UUID{overdue.ID}},
		{"priority_high", domain.TaskSelectionPriorityHigh, []uuid.UUID{urgent.ID}},
		{"assigned_to_trigger", domain.TaskSelectionAssignedTrigger, []uuid.UUID{mine.ID}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newDispatcherFixture()
			f.tasks.byJob[jobID] = []*fieldops.Task{overdue, urgent, mine}
			op := &ResolvedAction{
				Kind:         domain.ActionUpdateTaskStatus,
				JobID:        jobID,
				TechnicianID: ec.Technician.ID,
				Status:       "completed",
				Selection:    tc.selection,
			}

			result, err := f.dispatcher.Perform(context.Background(), op)

			require.NoError(t, err)
			assert.Equal(t, len(tc.want), result.Output["tasks_updated"])
			for _, id := range tc.want {
				assert.Equal(t, "completed", f.tasks.updated[id])
			}
		})
	}
}

func TestPerform_AddNote(t *testing.T) {
	f := newDispatcherFixture()
	ec := dispatchContext()
	action := domain.Action{Type: domain.ActionAddNote, Config: map[string]any{"content": "Completed job {{job_number}}"}}

	result, _, err := f.dispatcher.Dispatch(context.Background(), action, ec)

	require.NoError(t, err)
	assert.Equal(t, "created", result.Status)
	require.Len(t, f.notes.notes, 1)
	assert.Equal(t, "Completed job J-1042", f.notes.notes[0].Content)
	assert.Equal(t, ec.Job.ID, f.notes.notes[0].JobID)
}

func TestPerform_Webhook(t *testing.T) {
	var gotMethod, gotContentType string
	code := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(code)
	}))
	defer srv.Close()

	f := newDispatcherFixture()
	op := &ResolvedAction{
		Kind:           domain.ActionWebhook,
		URL:            srv.URL,
		Method:         "POST",
		WebhookPayload: map[string]any{"event": "job_completed"},
	}

	result, err := f.dispatcher.Perform(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, "sent", result.Status)
	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "application/json", gotContentType)

	code = http.StatusInternalServerError
	_, err = f.dispatcher.Perform(context.Background(), op)
	assert.ErrorIs(t, err, domain.ErrTransientChannel)

	code = http.StatusNotFound
	_, err = f.dispatcher.Perform(context.Background(), op)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrTransientChannel))
}

func TestResolvedAction_PayloadRoundTrip(t *testing.T) {
	due := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	op := &ResolvedAction{
		Kind:           domain.ActionCreateTask,
		OrganizationID: uuid.New(),
		JobID:          uuid.New(),
		AssigneeID:     uuid.New(),
		Title:          "Call back",
		Description:    "Customer asked for a quote",
		Priority:       "medium",
		DueAt:          &due,
	}

	restored, err := ResolvedFromPayload(op.Payload())

	require.NoError(t, err)
	assert.Equal(t, op.Kind, restored.Kind)
	assert.Equal(t, op.OrganizationID, restored.OrganizationID)
	assert.Equal(t, op.JobID, restored.JobID)
	assert.Equal(t, op.AssigneeID, restored.AssigneeID)
	assert.Equal(t, op.Title, restored.Title)
	assert.Equal(t, op.Priority, restored.Priority)
	require.NotNil(t, restored.DueAt)
	assert.True(t, due.Equal(*restored.DueAt))
}

func TestResolvedFromPayload_MissingKind(t *testing.T) {
	_, err := ResolvedFromPayload(map[string]any{"to": "+15550000000"})

	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
