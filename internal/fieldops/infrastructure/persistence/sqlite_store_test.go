package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calloutapp/callout/internal/fieldops/domain"
	"github.com/calloutapp/callout/internal/shared/infrastructure/migrations"

	_ "modernc.org/sqlite"
)

func setupStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), sqlDB))
	return NewSQLiteStore(sqlDB), sqlDB
}

func seedClient(t *testing.T, db *sql.DB, orgID uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO clients (id, organization_id, first_name, last_name, email, phone, city) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), orgID.String(), "John", "Smith", "john@example.com", "+15551234567", "Brooklyn",
	)
	require.NoError(t, err)
	return id
}

func seedJob(t *testing.T, db *sql.DB, orgID, clientID, techID uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	scheduled := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC).Format(time.RFC3339)
	_, err := db.Exec(
		`INSERT INTO jobs (id, organization_id, client_id, technician_id, number, title, type, status, scheduled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), orgID.String(), clientID.String(), techID.String(), "J-1042", "Furnace tune-up", "maintenance", "scheduled", scheduled,
	)
	require.NoError(t, err)
	return id
}

func seedTechnician(t *testing.T, db *sql.DB, orgID uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO technicians (id, organization_id, name, phone, email, role) VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), orgID.String(), "Dana Reyes", "+15559876543", "dana@acme.example", "technician",
	)
	require.NoError(t, err)
	return id
}

func seedOrganization(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO organizations (id, name, phone, review_link, timezone) VALUES (?, ?, ?, ?, ?)`,
		id.String(), "Acme HVAC", "+15550001111", "https://reviews.example.com/acme", "America/New_York",
	)
	require.NoError(t, err)
	return id
}

func TestSQLiteStore_EntityLoader(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()

	orgID := seedOrganization(t, db)
	clientID := seedClient(t, db, orgID)
	techID := seedTechnician(t, db, orgID)
	jobID := seedJob(t, db, orgID, clientID, techID)

	org, err := store.OrganizationByID(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "Acme HVAC", org.Name)
	assert.Equal(t, "America/New_York", org.Timezone)

	client, err := store.ClientByID(ctx, clientID)
	require.NoError(t, err)
	assert.Equal(t, "John Smith", client.Name())
	assert.Equal(t, "+15551234567", client.Phone)

	tech, err := store.TechnicianByID(ctx, techID)
	require.NoError(t, err)
	assert.Equal(t, "Dana Reyes", tech.Name)

	job, err := store.JobByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "J-1042", job.Number)
	assert.Equal(t, clientID, job.ClientID)
	assert.Equal(t, techID, job.TechnicianID)
	assert.Equal(t, domain.JobStatusScheduled, job.Status)
	require.NotNil(t, job.ScheduledAt)
	assert.Equal(t, time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC), job.ScheduledAt.UTC())
}

func TestSQLiteStore_LoaderNotFound(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, err := store.ClientByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.OrganizationByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_TaskLifecycle(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()

	orgID := seedOrganization(t, db)
	clientID := seedClient(t, db, orgID)
	techID := seedTechnician(t, db, orgID)
	jobID := seedJob(t, db, orgID, clientID, techID)

	due := time.Now().Add(48 * time.Hour)
	taskID, err := store.CreateTask(ctx, domain.TaskDraft{
		OrganizationID: orgID,
		JobID:          jobID,
		AssigneeID:     techID,
		Title:          "Order replacement filter",
		Priority:       domain.TaskPriorityHigh,
		DueAt:          &due,
	})
	require.NoError(t, err)

	task, err := store.TaskByID(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "Order replacement filter", task.Title)
	assert.Equal(t, "open", task.Status)
	assert.Equal(t, domain.TaskPriorityHigh, task.Priority)
	assert.Equal(t, techID, task.AssigneeID)
	require.NotNil(t, task.DueAt)

	tasks, err := store.TasksByJob(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, taskID, tasks[0].ID)

	require.NoError(t, store.UpdateTaskStatus(ctx, taskID, "completed"))
	task, err = store.TaskByID(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "completed", task.Status)

	assert.ErrorIs(t, store.UpdateTaskStatus(ctx, uuid.New(), "completed"), ErrNotFound)
}

func TestSQLiteStore_UpdateJobStatus(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()

	orgID := seedOrganization(t, db)
	clientID := seedClient(t, db, orgID)
	techID := seedTechnician(t, db, orgID)
	jobID := seedJob(t, db, orgID, clientID, techID)

	require.NoError(t, store.UpdateJobStatus(ctx, jobID, domain.JobStatusCompleted))

	job, err := store.JobByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)

	assert.ErrorIs(t, store.UpdateJobStatus(ctx, uuid.New(), domain.JobStatusCompleted), ErrNotFound)
}

func TestSQLiteStore_CreateNote(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()

	orgID := seedOrganization(t, db)
	clientID := seedClient(t, db, orgID)

	noteID, err := store.CreateNote(ctx, domain.Note{
		OrganizationID: orgID,
		ClientID:       clientID,
		Content:        "Prefers morning appointments",
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, noteID)

	var content string
	require.NoError(t, db.QueryRow(`SELECT content FROM notes WHERE id = ?`, noteID.String()).Scan(&content))
	assert.Equal(t, "Prefers morning appointments", content)
}
