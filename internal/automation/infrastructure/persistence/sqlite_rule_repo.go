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

// SQLiteRuleRepository implements domain.RuleRepository using SQLite.
type SQLiteRuleRepository struct {
	db *sql.DB
}

// NewSQLiteRuleRepository creates a new SQLite rule repository.
func NewSQLiteRuleRepository(db *sql.DB) *SQLiteRuleRepository {
	return &SQLiteRuleRepository{db: db}
}

// Create inserts a new automation rule.
func (r *SQLiteRuleRepository) Create(ctx context.Context, rule *domain.AutomationRule) error {
	cols, err := marshalRule(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_rules (
			id, organization_id, name, description, status,
			trigger_type, trigger_conditions, conditions, action,
			delivery_window, multi_channel,
			execution_count, success_count, last_executed_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.ID.String(),
		rule.OrganizationID.String(),
		rule.Name,
		rule.Description,
		string(rule.Status),
		rule.Trigger.Type,
		string(cols.triggerConditions),
		nullJSON(cols.conditions),
		string(cols.action),
		string(cols.deliveryWindow),
		string(cols.multiChannel),
		rule.ExecutionCount,
		rule.SuccessCount,
		nullTime(rule.LastExecutedAt),
		rule.CreatedAt.Format(time.RFC3339),
		rule.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// Update replaces the rule's configuration.
func (r *SQLiteRuleRepository) Update(ctx context.Context, rule *domain.AutomationRule) error {
	cols, err := marshalRule(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE automation_rules SET
			name = ?, description = ?, status = ?,
			trigger_type = ?, trigger_conditions = ?, conditions = ?, action = ?,
			delivery_window = ?, multi_channel = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		rule.Name,
		rule.Description,
		string(rule.Status),
		rule.Trigger.Type,
		string(cols.triggerConditions),
		nullJSON(cols.conditions),
		string(cols.action),
		string(cols.deliveryWindow),
		string(cols.multiChannel),
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID.String(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// Delete removes a rule by ID.
func (r *SQLiteRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM automation_rules WHERE id = ?`, id.String())
	return err
}

// GetByID retrieves a rule by ID.
func (r *SQLiteRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.AutomationRule, error) {
	query := `
		SELECT id, organization_id, name, description, status,
			trigger_type, trigger_conditions, conditions, action,
			delivery_window, multi_channel,
			execution_count, success_count, last_executed_at,
			created_at, updated_at
		FROM automation_rules
		WHERE id = ?
	`
	rule, err := scanSQLiteRule(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}
	return rule, nil
}

// List retrieves rules matching the filter.
func (r *SQLiteRuleRepository) List(ctx context.Context, filter domain.RuleFilter) ([]*domain.AutomationRule, int64, error) {
	query := `
		SELECT id, organization_id, name, description, status,
			trigger_type, trigger_conditions, conditions, action,
			delivery_window, multi_channel,
			execution_count, success_count, last_executed_at,
			created_at, updated_at
		FROM automation_rules
		WHERE organization_id = ?
	`
	countQuery := `SELECT COUNT(*) FROM automation_rules WHERE organization_id = ?`
	args := []any{filter.OrganizationID.String()}
	countArgs := []any{filter.OrganizationID.String()}

	if filter.Status != nil {
		query += " AND status = ?"
		countQuery += " AND status = ?"
		args = append(args, string(*filter.Status))
		countArgs = append(countArgs, string(*filter.Status))
	}
	if filter.TriggerType != nil {
		query += " AND trigger_type = ?"
		countQuery += " AND trigger_type = ?"
		args = append(args, *filter.TriggerType)
		countArgs = append(countArgs, *filter.TriggerType)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY created_at DESC"
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

	var rules []*domain.AutomationRule
	for rows.Next() {
		rule, err := scanSQLiteRule(rows)
		if err != nil {
			return nil, 0, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

// GetActiveByTriggerType retrieves active rules firing on a trigger type.
func (r *SQLiteRuleRepository) GetActiveByTriggerType(ctx context.Context, orgID uuid.UUID, triggerType string) ([]*domain.AutomationRule, error) {
	query := `
		SELECT id, organization_id, name, description, status,
			trigger_type, trigger_conditions, conditions, action,
			delivery_window, multi_channel,
			execution_count, success_count, last_executed_at,
			created_at, updated_at
		FROM automation_rules
		WHERE organization_id = ? AND status = 'active' AND trigger_type = ?
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, orgID.String(), triggerType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AutomationRule
	for rows.Next() {
		rule, err := scanSQLiteRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// IncrementMetrics bumps the execution counters in one server-side UPDATE.
func (r *SQLiteRuleRepository) IncrementMetrics(ctx context.Context, id uuid.UUID, success bool) error {
	query := `
		UPDATE automation_rules SET
			execution_count = execution_count + 1,
			success_count = success_count + ?,
			last_executed_at = ?
		WHERE id = ?
	`
	successInc := 0
	if success {
		successInc = 1
	}
	result, err := r.db.ExecContext(ctx, query, successInc, time.Now().Format(time.RFC3339), id.String())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRule(row rowScanner) (*domain.AutomationRule, error) {
	var rule domain.AutomationRule
	var idStr, orgIDStr, status, triggerType string
	var triggerConditionsStr, actionStr, deliveryWindowStr, multiChannelStr string
	var conditionsStr, lastExecutedAtStr sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&idStr,
		&orgIDStr,
		&rule.Name,
		&rule.Description,
		&status,
		&triggerType,
		&triggerConditionsStr,
		&conditionsStr,
		&actionStr,
		&deliveryWindowStr,
		&multiChannelStr,
		&rule.ExecutionCount,
		&rule.SuccessCount,
		&lastExecutedAtStr,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	if rule.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if rule.OrganizationID, err = uuid.Parse(orgIDStr); err != nil {
		return nil, err
	}

	cols := ruleJSON{
		triggerConditions: []byte(triggerConditionsStr),
		action:            []byte(actionStr),
		deliveryWindow:    []byte(deliveryWindowStr),
		multiChannel:      []byte(multiChannelStr),
	}
	if conditionsStr.Valid {
		cols.conditions = []byte(conditionsStr.String)
	}
	if err := unmarshalRule(&rule, triggerType, status, cols); err != nil {
		return nil, err
	}

	if rule.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, err
	}
	if rule.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return nil, err
	}
	if lastExecutedAtStr.Valid {
		if t, err := time.Parse(time.RFC3339, lastExecutedAtStr.String); err == nil {
			rule.LastExecutedAt = &t
		}
	}

	return &rule, nil
}

func nullJSON(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

// marshalJSONMap is shared by the sqlite repos for map columns.
func marshalJSONMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
