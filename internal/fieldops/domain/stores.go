package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskDraft is the input for creating a task through an automation action.
type TaskDraft struct {
	OrganizationID uuid.UUID
	JobID          uuid.UUID
	AssigneeID     uuid.UUID
	Title          string
	Description    string
	Priority       TaskPriority
	DueAt          *time.Time
}

// TaskStore persists tasks on behalf of the automation engine.
type TaskStore interface {
	// CreateTask persists a new task and returns its id.
	CreateTask(ctx context.Context, draft TaskDraft) (uuid.UUID, error)

	// TasksByJob returns the tasks attached to a job.
	TasksByJob(ctx context.Context, jobID uuid.UUID) ([]*Task, error)

	// UpdateTaskStatus sets a task's status.
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status string) error
}

// JobStore mutates job state on behalf of the automation engine.
type JobStore interface {
	// UpdateJobStatus sets a job's status.
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status JobStatus) error
}

// NoteStore persists notes on behalf of the automation engine.
type NoteStore interface {
	// CreateNote persists a note linked to a job/client.
	CreateNote(ctx context.Context, note Note) (uuid.UUID, error)
}

// EntityLoader reads the entities a trigger event references so the
// engine can evaluate conditions and fill templates against live data.
type EntityLoader interface {
	ClientByID(ctx context.Context, id uuid.UUID) (*Client, error)
	JobByID(ctx context.Context, id uuid.UUID) (*Job, error)
	TaskByID(ctx context.Context, id uuid.UUID) (*Task, error)
	TechnicianByID(ctx context.Context, id uuid.UUID) (*Technician, error)
	OrganizationByID(ctx context.Context, id uuid.UUID) (*Organization, error)
}
