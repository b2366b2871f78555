// Package domain contains the field-service entities the automation engine
// reads: clients, jobs, tasks, technicians, and the organization. The
// engine never mutates these directly; state changes go through the stores.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Client is a customer of the organization.
type Client struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	City      string
	State     string
	Zip       string
}

// Name returns the client's display name.
func (c *Client) Name() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// JobStatus is the lifecycle status of a job.
type JobStatus string

const (
	JobStatusScheduled  JobStatus = "scheduled"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job is a scheduled unit of field work for a client.
type Job struct {
	ID           uuid.UUID
	ClientID     uuid.UUID
	TechnicianID uuid.UUID
	Number       string
	Title        string
	Description  string
	Type         string
	Status       JobStatus
	Address      string
	ScheduledAt  *time.Time
}

// TaskPriority ranks a task.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Task is an internal to-do attached to a job.
type Task struct {
	ID          uuid.UUID
	JobID       uuid.UUID
	AssigneeID  uuid.UUID
	Title       string
	Description string
	Status      string
	Priority    TaskPriority
	DueAt       *time.Time
	CreatedAt   time.Time
}

// Overdue reports whether the task's due date has passed.
func (t *Task) Overdue(now time.Time) bool {
	return t.DueAt != nil && t.DueAt.Before(now) && t.Status != "completed"
}

// Technician performs field work.
type Technician struct {
	ID    uuid.UUID
	Name  string
	Phone string
	Email string
	Role  string
}

// Organization is the business the rules belong to.
type Organization struct {
	ID          uuid.UUID
	Name        string
	Phone       string
	Email       string
	Website     string
	BookingLink string
	ReviewLink  string
	Timezone    string
}

// Note is a free-text record attached to a job and/or client.
type Note struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	JobID          uuid.UUID
	ClientID       uuid.UUID
	Content        string
	CreatedAt      time.Time
}
