// Package persistence provides database access to the field-service
// entities the automation engine reads and mutates.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calloutapp/callout/internal/fieldops/domain"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("entity not found")

// PostgresStore implements the fieldops stores and the entity loader on
// one pool. The automation engine is the only writer going through it;
// the main application owns these tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateTask persists a new task and returns its id.
func (s *PostgresStore) CreateTask(ctx context.Context, draft domain.TaskDraft) (uuid.UUID, error) {
	id := uuid.New()
	query := `
		INSERT INTO tasks (id, organization_id, job_id, assignee_id, title, description, status, priority, due_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'open', $7, $8, NOW())
	`
	var assignee any
	if draft.AssigneeID != uuid.Nil {
		assignee = draft.AssigneeID
	}
	_, err := s.pool.Exec(ctx, query,
		id,
		draft.OrganizationID,
		draft.JobID,
		assignee,
		draft.Title,
		draft.Description,
		string(draft.Priority),
		draft.DueAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create task: %w", err)
	}
	return id, nil
}

// TasksByJob returns the tasks attached to a job.
func (s *PostgresStore) TasksByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT id, job_id, COALESCE(assignee_id, '00000000-0000-0000-0000-000000000000'::uuid),
		       title, description, status, priority, due_at, created_at
		FROM tasks
		WHERE job_id = $1
		ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		var t domain.Task
		var priority string
		if err := rows.Scan(&t.ID, &t.JobID, &t.AssigneeID, &t.Title, &t.Description, &t.Status, &priority, &t.DueAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Priority = domain.TaskPriority(priority)
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus sets a task's status.
func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tasks SET status = $2 WHERE id = $1`, taskID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatus sets a job's status.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET status = $2 WHERE id = $1`, jobID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateNote persists a note linked to a job/client.
func (s *PostgresStore) CreateNote(ctx context.Context, note domain.Note) (uuid.UUID, error) {
	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	query := `
		INSERT INTO notes (id, organization_id, job_id, client_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	var jobID, clientID any
	if note.JobID != uuid.Nil {
		jobID = note.JobID
	}
	if note.ClientID != uuid.Nil {
		clientID = note.ClientID
	}
	_, err := s.pool.Exec(ctx, query, note.ID, note.OrganizationID, jobID, clientID, note.Content, note.CreatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create note: %w", err)
	}
	return note.ID, nil
}

// ClientByID loads a client.
func (s *PostgresStore) ClientByID(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	query := `
		SELECT id, first_name, last_name, email, phone, address, city, state, zip
		FROM clients WHERE id = $1
	`
	var c domain.Client
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.Address, &c.City, &c.State, &c.Zip,
	)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &c, nil
}

// JobByID loads a job.
func (s *PostgresStore) JobByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT id, client_id, COALESCE(technician_id, '00000000-0000-0000-0000-000000000000'::uuid),
		       number, title, description, type, status, address, scheduled_at
		FROM jobs WHERE id = $1
	`
	var j domain.Job
	var status string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&j.ID, &j.ClientID, &j.TechnicianID, &j.Number, &j.Title,
		&j.Description, &j.Type, &status, &j.Address, &j.ScheduledAt,
	)
	if err != nil {
		return nil, mapNotFound(err)
	}
	j.Status = domain.JobStatus(status)
	return &j, nil
}

// TaskByID loads a task.
func (s *PostgresStore) TaskByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT id, job_id, COALESCE(assignee_id, '00000000-0000-0000-0000-000000000000'::uuid),
		       title, description, status, priority, due_at, created_at
		FROM tasks WHERE id = $1
	`
	var t domain.Task
	var priority string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.JobID, &t.AssigneeID, &t.Title, &t.Description,
		&t.Status, &priority, &t.DueAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, mapNotFound(err)
	}
	t.Priority = domain.TaskPriority(priority)
	return &t, nil
}

// TechnicianByID loads a technician.
func (s *PostgresStore) TechnicianByID(ctx context.Context, id uuid.UUID) (*domain.Technician, error) {
	query := `SELECT id, name, phone, email, role FROM technicians WHERE id = $1`
	var t domain.Technician
	err := s.pool.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.Phone, &t.Email, &t.Role)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &t, nil
}

// OrganizationByID loads an organization.
func (s *PostgresStore) OrganizationByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	query := `
		SELECT id, name, phone, email, website, booking_link, review_link, timezone
		FROM organizations WHERE id = $1
	`
	var o domain.Organization
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.Name, &o.Phone, &o.Email, &o.Website,
		&o.BookingLink, &o.ReviewLink, &o.Timezone,
	)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &o, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
