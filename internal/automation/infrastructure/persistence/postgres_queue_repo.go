package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calloutapp/callout/internal/automation/domain"
)

// PostgresQueueRepository implements domain.QueuedActionRepository using
// PostgreSQL.
type PostgresQueueRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresQueueRepository creates a new PostgreSQL queued action repository.
func NewPostgresQueueRepository(pool *pgxpool.Pool) *PostgresQueueRepository {
	return &PostgresQueueRepository{pool: pool}
}

const queueColumns = `
	id, rule_id, execution_id, organization_id,
	kind, channel, payload, run_at, status,
	retry_count, max_retries, last_error, executed_at, created_at
`

// Create inserts a pending queue row.
func (r *PostgresQueueRepository) Create(ctx context.Context, qa *domain.QueuedAction) error {
	payload, err := json.Marshal(qa.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO queued_actions (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.pool.Exec(ctx, query,
		qa.ID,
		qa.RuleID,
		qa.ExecutionID,
		qa.OrganizationID,
		string(qa.Kind),
		string(qa.Channel),
		payload,
		qa.RunAt,
		string(qa.Status),
		qa.RetryCount,
		qa.MaxRetries,
		qa.LastError,
		qa.ExecutedAt,
		qa.CreatedAt,
	)
	return err
}

// Update persists the row's delivery state.
func (r *PostgresQueueRepository) Update(ctx context.Context, qa *domain.QueuedAction) error {
	query := `
		UPDATE queued_actions SET
			run_at = $2, status = $3, retry_count = $4,
			last_error = $5, executed_at = $6
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query,
		qa.ID,
		qa.RunAt,
		string(qa.Status),
		qa.RetryCount,
		qa.LastError,
		qa.ExecutedAt,
	)
	return err
}

// GetByID retrieves one queue row.
func (r *PostgresQueueRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.QueuedAction, error) {
	query := `SELECT ` + queueColumns + ` FROM queued_actions WHERE id = $1`
	qa, err := scanPgQueued(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, err
	}
	return qa, nil
}

// GetDue returns pending rows whose RunAt has passed, oldest first.
// SKIP LOCKED keeps concurrent pollers from double-delivering.
func (r *PostgresQueueRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*domain.QueuedAction, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM queued_actions
		WHERE status = 'pending' AND run_at <= $1
		ORDER BY run_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*domain.QueuedAction
	for rows.Next() {
		qa, err := scanPgQueued(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, qa)
	}
	return due, rows.Err()
}

// CancelByRuleID cancels every pending row for a rule, returning how many
// were cancelled. Called when a rule is paused or deleted.
func (r *PostgresQueueRepository) CancelByRuleID(ctx context.Context, ruleID uuid.UUID) (int64, error) {
	query := `UPDATE queued_actions SET status = 'cancelled' WHERE rule_id = $1 AND status = 'pending'`
	tag, err := r.pool.Exec(ctx, query, ruleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExecuted removes executed rows older than the cutoff.
func (r *PostgresQueueRepository) DeleteExecuted(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM queued_actions WHERE status = 'executed' AND executed_at < $1`
	tag, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanPgQueued(row pgx.Row) (*domain.QueuedAction, error) {
	var qa domain.QueuedAction
	var kind, channel, status string
	var payload []byte

	err := row.Scan(
		&qa.ID,
		&qa.RuleID,
		&qa.ExecutionID,
		&qa.OrganizationID,
		&kind,
		&channel,
		&payload,
		&qa.RunAt,
		&status,
		&qa.RetryCount,
		&qa.MaxRetries,
		&qa.LastError,
		&qa.ExecutedAt,
		&qa.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	qa.Kind = domain.QueuedKind(kind)
	qa.Channel = domain.Channel(channel)
	qa.Status = domain.QueuedStatus(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &qa.Payload); err != nil {
			return nil, err
		}
	}
	return &qa, nil
}
