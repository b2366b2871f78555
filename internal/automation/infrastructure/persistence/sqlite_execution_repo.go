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

// SQLiteExecutionRepository implements domain.ExecutionLogRepository
// using SQLite.
type SQLiteExecutionRepository struct {
	db *sql.DB
}

// NewSQLiteExecutionRepository creates a new SQLite execution log repository.
func NewSQLiteExecutionRepository(db *sql.DB) *SQLiteExecutionRepository {
	return &SQLiteExecutionRepository{db: db}
}

// Append inserts a sealed execution record.
func (r *SQLiteExecutionRepository) Append(ctx context.Context, record *domain.ExecutionRecord) error {
	payload, err := marshalJSONMap(record.TriggerPayload)
	if err != nil {
		return err
	}
	steps, err := json.Marshal(record.Steps)
	if err != nil {
		return err
	}

	var durationMs sql.NullInt64
	if record.DurationMs != nil {
		durationMs = sql.NullInt64{Int64: int64(*record.DurationMs), Valid: true}
	}

	query := `
		INSERT INTO automation_logs (
			id, rule_id, organization_id, trigger_type, trigger_payload,
			status, steps, error_message, skip_reason,
			started_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		record.ID.String(),
		record.RuleID.String(),
		record.OrganizationID.String(),
		record.TriggerType,
		payload,
		string(record.Status),
		string(steps),
		record.ErrorMessage,
		record.SkipReason,
		record.StartedAt.Format(time.RFC3339),
		nullTime(record.CompletedAt),
		durationMs,
	)
	return err
}

// GetByID retrieves one execution record.
func (r *SQLiteExecutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionRecord, error) {
	query := `
		SELECT id, rule_id, organization_id, trigger_type, trigger_payload,
			status, steps, error_message, skip_reason,
			started_at, completed_at, duration_ms
		FROM automation_logs
		WHERE id = ?
	`
	record, err := scanSQLiteExecution(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, err
	}
	return record, nil
}

// List retrieves execution records matching the filter, newest first.
func (r *SQLiteExecutionRepository) List(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, int64, error) {
	query := `
		SELECT id, rule_id, organization_id, trigger_type, trigger_payload,
			status, steps, error_message, skip_reason,
			started_at, completed_at, duration_ms
		FROM automation_logs
		WHERE organization_id = ?
	`
	countQuery := `SELECT COUNT(*) FROM automation_logs WHERE organization_id = ?`
	args := []any{filter.OrganizationID.String()}
	countArgs := []any{filter.OrganizationID.String()}

	if filter.RuleID != nil {
		query += " AND rule_id = ?"
		countQuery += " AND rule_id = ?"
		args = append(args, filter.RuleID.String())
		countArgs = append(countArgs, filter.RuleID.String())
	}
	if filter.Status != nil {
		query += " AND status = ?"
		countQuery += " AND status = ?"
		args = append(args, string(*filter.Status))
		countArgs = append(countArgs, string(*filter.Status))
	}
	if filter.StartedAfter != nil {
		query += " AND started_at > ?"
		countQuery += " AND started_at > ?"
		args = append(args, filter.StartedAfter.Format(time.RFC3339))
		countArgs = append(countArgs, filter.StartedAfter.Format(time.RFC3339))
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*domain.ExecutionRecord
	for rows.Next() {
		record, err := scanSQLiteExecution(rows)
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

// DeleteOlderThan removes records started before the cutoff.
func (r *SQLiteExecutionRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM automation_logs WHERE started_at < ?`,
		before.Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanSQLiteExecution(row rowScanner) (*domain.ExecutionRecord, error) {
	var record domain.ExecutionRecord
	var idStr, ruleIDStr, orgIDStr, status string
	var payloadStr, stepsStr string
	var startedAtStr string
	var completedAtStr sql.NullString
	var durationMs sql.NullInt64

	err := row.Scan(
		&idStr,
		&ruleIDStr,
		&orgIDStr,
		&record.TriggerType,
		&payloadStr,
		&status,
		&stepsStr,
		&record.ErrorMessage,
		&record.SkipReason,
		&startedAtStr,
		&completedAtStr,
		&durationMs,
	)
	if err != nil {
		return nil, err
	}

	if record.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if record.RuleID, err = uuid.Parse(ruleIDStr); err != nil {
		return nil, err
	}
	if record.OrganizationID, err = uuid.Parse(orgIDStr); err != nil {
		return nil, err
	}

	record.Status = domain.FiringStatus(status)
	if payloadStr != "" {
		if err := json.Unmarshal([]byte(payloadStr), &record.TriggerPayload); err != nil {
			return nil, err
		}
	}
	if stepsStr != "" {
		if err := json.Unmarshal([]byte(stepsStr), &record.Steps); err != nil {
			return nil, err
		}
	}

	if record.StartedAt, err = time.Parse(time.RFC3339, startedAtStr); err != nil {
		return nil, err
	}
	if completedAtStr.Valid {
		if t, err := time.Parse(time.RFC3339, completedAtStr.String); err == nil {
			record.CompletedAt = &t
		}
	}
	if durationMs.Valid {
		ms := int(durationMs.Int64)
		record.DurationMs = &ms
	}

	return &record, nil
}
