package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calloutapp/callout/internal/fieldops/domain"
)

// SQLiteStore implements the fieldops stores and the entity loader on a
// SQLite database, used in local single-binary mode and in tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on the given database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// CreateTask persists a new task and returns its id.
func (s *SQLiteStore) CreateTask(ctx context.Context, draft domain.TaskDraft) (uuid.UUID, error) {
	id := uuid.New()
	query := `
		INSERT INTO tasks (id, organization_id, job_id, assignee_id, title, description, status, priority, due_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'open', ?, ?, ?)
	`
	var assignee any
	if draft.AssigneeID != uuid.Nil {
		assignee = draft.AssigneeID.String()
	}
	_, err := s.db.ExecContext(ctx, query,
		id.String(),
		draft.OrganizationID.String(),
		draft.JobID.String(),
		assignee,
		draft.Title,
		draft.Description,
		string(draft.Priority),
		sqliteTime(draft.DueAt),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create task: %w", err)
	}
	return id, nil
}

// TasksByJob returns the tasks attached to a job.
func (s *SQLiteStore) TasksByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT id, job_id, assignee_id, title, description, status, priority, due_at, created_at
		FROM tasks
		WHERE job_id = ?
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, jobID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus sets a task's status.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, status, taskID.String())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatus sets a job's status.
func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus) error {
	result, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, string(status), jobID.String())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateNote persists a note linked to a job/client.
func (s *SQLiteStore) CreateNote(ctx context.Context, note domain.Note) (uuid.UUID, error) {
	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	query := `
		INSERT INTO notes (id, organization_id, job_id, client_id, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	var jobID, clientID any
	if note.JobID != uuid.Nil {
		jobID = note.JobID.String()
	}
	if note.ClientID != uuid.Nil {
		clientID = note.ClientID.String()
	}
	_, err := s.db.ExecContext(ctx, query,
		note.ID.String(),
		note.OrganizationID.String(),
		jobID,
		clientID,
		note.Content,
		note.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create note: %w", err)
	}
	return note.ID, nil
}

// ClientByID loads a client.
func (s *SQLiteStore) ClientByID(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	query := `
		SELECT id, first_name, last_name, email, phone, address, city, state, zip
		FROM clients WHERE id = ?
	`
	var c domain.Client
	var idStr string
	err := s.db.QueryRowContext(ctx, query, id.String()).Scan(
		&idStr, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.Address, &c.City, &c.State, &c.Zip,
	)
	if err != nil {
		return nil, mapSQLNotFound(err)
	}
	if c.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	return &c, nil
}

// JobByID loads a job.
func (s *SQLiteStore) JobByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT id, client_id, technician_id, number, title, description, type, status, address, scheduled_at
		FROM jobs WHERE id = ?
	`
	var j domain.Job
	var idStr, clientIDStr, status string
	var technicianIDStr, scheduledAtStr sql.NullString
	err := s.db.QueryRowContext(ctx, query, id.String()).Scan(
		&idStr, &clientIDStr, &technicianIDStr, &j.Number, &j.Title,
		&j.Description, &j.Type, &status, &j.Address, &scheduledAtStr,
	)
	if err != nil {
		return nil, mapSQLNotFound(err)
	}
	if j.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if j.ClientID, err = uuid.Parse(clientIDStr); err != nil {
		return nil, err
	}
	if technicianIDStr.Valid {
		if techID, err := uuid.Parse(technicianIDStr.String); err == nil {
			j.TechnicianID = techID
		}
	}
	if scheduledAtStr.Valid {
		if t, err := time.Parse(time.RFC3339, scheduledAtStr.String); err == nil {
			j.ScheduledAt = &t
		}
	}
	j.Status = domain.JobStatus(status)
	return &j, nil
}

// TaskByID loads a task.
func (s *SQLiteStore) TaskByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT id, job_id, assignee_id, title, description, status, priority, due_at, created_at
		FROM tasks WHERE id = ?
	`
	t, err := scanSQLiteTask(s.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		return nil, mapSQLNotFound(err)
	}
	return t, nil
}

// TechnicianByID loads a technician.
func (s *SQLiteStore) TechnicianByID(ctx context.Context, id uuid.UUID) (*domain.Technician, error) {
	query := `SELECT id, name, phone, email, role FROM technicians WHERE id = ?`
	var t domain.Technician
	var idStr string
	err := s.db.QueryRowContext(ctx, query, id.String()).Scan(&idStr, &t.Name, &t.Phone, &t.Email, &t.Role)
	if err != nil {
		return nil, mapSQLNotFound(err)
	}
	if t.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	return &t, nil
}

// OrganizationByID loads an organization.
func (s *SQLiteStore) OrganizationByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	query := `
		SELECT id, name, phone, email, website, booking_link, review_link, timezone
		FROM organizations WHERE id = ?
	`
	var o domain.Organization
	var idStr string
	err := s.db.QueryRowContext(ctx, query, id.String()).Scan(
		&idStr, &o.Name, &o.Phone, &o.Email, &o.Website,
		&o.BookingLink, &o.ReviewLink, &o.Timezone,
	)
	if err != nil {
		return nil, mapSQLNotFound(err)
	}
	if o.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	return &o, nil
}

type sqliteRowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row sqliteRowScanner) (*domain.Task, error) {
	var t domain.Task
	var idStr, jobIDStr, priority, createdAtStr string
	var assigneeIDStr, dueAtStr sql.NullString

	err := row.Scan(
		&idStr, &jobIDStr, &assigneeIDStr, &t.Title, &t.Description,
		&t.Status, &priority, &dueAtStr, &createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	if t.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if t.JobID, err = uuid.Parse(jobIDStr); err != nil {
		return nil, err
	}
	if assigneeIDStr.Valid {
		if assigneeID, err := uuid.Parse(assigneeIDStr.String); err == nil {
			t.AssigneeID = assigneeID
		}
	}
	if dueAtStr.Valid {
		if due, err := time.Parse(time.RFC3339, dueAtStr.String); err == nil {
			t.DueAt = &due
		}
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, err
	}
	t.Priority = domain.TaskPriority(priority)
	return &t, nil
}

func sqliteTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func mapSQLNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
