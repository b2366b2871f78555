package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calloutapp/callout/internal/automation/domain"
)

// PostgresExecutionRepository implements domain.ExecutionLogRepository
// using PostgreSQL.
type PostgresExecutionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresExecutionRepository creates a new PostgreSQL execution log repository.
func NewPostgresExecutionRepository(pool *pgxpool.Pool) *PostgresExecutionRepository {
	return &PostgresExecutionRepository{pool: pool}
}

const executionColumns = `
	id, rule_id, organization_id, trigger_type, trigger_payload,
	status, steps, error_message, skip_reason,
	started_at, completed_at, duration_ms
`

// Append inserts a sealed execution record. Records are write-once.
func (r *PostgresExecutionRepository) Append(ctx context.Context, record *domain.ExecutionRecord) error {
	payload, err := json.Marshal(record.TriggerPayload)
	if err != nil {
		return err
	}
	steps, err := json.Marshal(record.Steps)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_logs (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.pool.Exec(ctx, query,
		record.ID,
		record.RuleID,
		record.OrganizationID,
		record.TriggerType,
		payload,
		string(record.Status),
		steps,
		record.ErrorMessage,
		record.SkipReason,
		record.StartedAt,
		record.CompletedAt,
		record.DurationMs,
	)
	return err
}

// GetByID retrieves one execution record.
func (r *PostgresExecutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM automation_logs WHERE id = $1`
	record, err := scanPgExecution(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, err
	}
	return record, nil
}

// List retrieves execution records matching the filter, newest first.
func (r *PostgresExecutionRepository) List(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, int64, error) {
	query := `SELECT ` + executionColumns + ` FROM automation_logs WHERE organization_id = $1`
	countQuery := `SELECT COUNT(*) FROM automation_logs WHERE organization_id = $1`
	args := []any{filter.OrganizationID}

	if filter.RuleID != nil {
		args = append(args, *filter.RuleID)
		cond := fmt.Sprintf(" AND rule_id = $%d", len(args))
		query += cond
		countQuery += cond
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		cond := fmt.Sprintf(" AND status = $%d", len(args))
		query += cond
		countQuery += cond
	}
	if filter.StartedAfter != nil {
		args = append(args, *filter.StartedAfter)
		cond := fmt.Sprintf(" AND started_at > $%d", len(args))
		query += cond
		countQuery += cond
	}

	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*domain.ExecutionRecord
	for rows.Next() {
		record, err := scanPgExecution(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// DeleteOlderThan removes records started before the cutoff, returning
// the number deleted. Used by log retention.
func (r *PostgresExecutionRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM automation_logs WHERE started_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanPgExecution(row pgx.Row) (*domain.ExecutionRecord, error) {
	var record domain.ExecutionRecord
	var status string
	var payload, steps []byte

	err := row.Scan(
		&record.ID,
		&record.RuleID,
		&record.OrganizationID,
		&record.TriggerType,
		&payload,
		&status,
		&steps,
		&record.ErrorMessage,
		&record.SkipReason,
		&record.StartedAt,
		&record.CompletedAt,
		&record.DurationMs,
	)
	if err != nil {
		return nil, err
	}

	record.Status = domain.FiringStatus(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &record.TriggerPayload); err != nil {
			return nil, err
		}
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &record.Steps); err != nil {
			return nil, err
		}
	}
	return &record, nil
}
