package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/calloutapp/callout/internal/automation/domain"
)

// SQLiteQueueRepository implements domain.QueuedActionRepository using
// SQLite.
type SQLiteQueueRepository struct {
	db *sql.DB
}

// NewSQLiteQueueRepository creates a new SQLite queued action repository.
func NewSQLiteQueueRepository(db *sql.DB) *SQLiteQueueRepository {
	return &SQLiteQueueRepository{db: db}
}

// Create inserts a pending queue row.
func (r *SQLiteQueueRepository) Create(ctx context.Context, qa *domain.QueuedAction) error {
	payload, err := marshalJSONMap(qa.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO queued_actions (
			id, rule_id, execution_id, organization_id,
			kind, channel, payload, run_at, status,
			retry_count, max_retries, last_error, executed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		qa.ID.String(),
		qa.RuleID.String(),
		qa.ExecutionID.String(),
		qa.OrganizationID.String(),
		string(qa.Kind),
		string(qa.Channel),
		payload,
		qa.RunAt.Format(time.RFC3339),
		string(qa.Status),
		qa.RetryCount,
		qa.MaxRetries,
		qa.LastError,
		nullTime(qa.ExecutedAt),
		qa.CreatedAt.Format(time.RFC3339),
	)
	return err
}

// Update persists the row's delivery state.
func (r *SQLiteQueueRepository) Update(ctx context.Context, qa *domain.QueuedAction) error {
	query := `
		UPDATE queued_actions SET
			run_at = ?, status = ?, retry_count = ?,
			last_error = ?, executed_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		qa.RunAt.Format(time.RFC3339),
		string(qa.Status),
		qa.RetryCount,
		qa.LastError,
		nullTime(qa.ExecutedAt),
		qa.ID.String(),
	)
	return err
}

// GetByID retrieves one queue row.
func (r *SQLiteQueueRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.QueuedAction, error) {
	query := `
		SELECT id, rule_id, execution_id, organization_id,
			kind, channel, payload, run_at, status,
			retry_count, max_retries, last_error, executed_at, created_at
		FROM queued_actions
		WHERE id = ?
	`
	qa, err := scanSQLiteQueued(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, err
	}
	return qa, nil
}

// GetDue returns pending rows whose RunAt has passed, oldest first.
func (r *SQLiteQueueRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*domain.QueuedAction, error) {
	query := `
		SELECT id, rule_id, execution_id, organization_id,
			kind, channel, payload, run_at, status,
			retry_count, max_retries, last_error, executed_at, created_at
		FROM queued_actions
		WHERE status = 'pending' AND run_at <= ?
		ORDER BY run_at
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, now.Format(time.RFC3339), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*domain.QueuedAction
	for rows.Next() {
		qa, err := scanSQLiteQueued(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, qa)
	}
	return due, rows.Err()
}

// CancelByRuleID cancels every pending row for a rule.
func (r *SQLiteQueueRepository) CancelByRuleID(ctx context.Context, ruleID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE queued_actions SET status = 'cancelled' WHERE rule_id = ? AND status = 'pending'`,
		ruleID.String(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteExecuted removes executed rows older than the cutoff.
func (r *SQLiteQueueRepository) DeleteExecuted(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM queued_actions WHERE status = 'executed' AND executed_at < ?`,
		before.Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanSQLiteQueued(row rowScanner) (*domain.QueuedAction, error) {
	var qa domain.QueuedAction
	var idStr, ruleIDStr, executionIDStr, orgIDStr string
	var kind, channel, payloadStr, status string
	var runAtStr, createdAtStr string
	var executedAtStr sql.NullString

	err := row.Scan(
		&idStr,
		&ruleIDStr,
		&executionIDStr,
		&orgIDStr,
		&kind,
		&channel,
		&payloadStr,
		&runAtStr,
		&status,
		&qa.RetryCount,
		&qa.MaxRetries,
		&qa.LastError,
		&executedAtStr,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	if qa.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if qa.RuleID, err = uuid.Parse(ruleIDStr); err != nil {
		return nil, err
	}
	if qa.ExecutionID, err = uuid.Parse(executionIDStr); err != nil {
		return nil, err
	}
	if qa.OrganizationID, err = uuid.Parse(orgIDStr); err != nil {
		return nil, err
	}

	qa.Kind = domain.QueuedKind(kind)
	qa.Channel = domain.Channel(channel)
	qa.Status = domain.QueuedStatus(status)
	if payloadStr != "" {
		if err := json.Unmarshal([]byte(payloadStr), &qa.Payload); err != nil {
			return nil, err
		}
	}

	if qa.RunAt, err = time.Parse(time.RFC3339, runAtStr); err != nil {
		return nil, err
	}
	if qa.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, err
	}
	if executedAtStr.Valid {
		if t, err := time.Parse(time.RFC3339, executedAtStr.String); err == nil {
			qa.ExecutedAt = &t
		}
	}

	return &qa, nil
}
