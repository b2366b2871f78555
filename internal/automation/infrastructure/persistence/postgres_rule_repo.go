// Package persistence provides database implementations for the
// automation repositories. PostgreSQL backs production; SQLite backs
// local mode and tests.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calloutapp/callout/internal/automation/domain"
)

// PostgresRuleRepository implements domain.RuleRepository using PostgreSQL.
type PostgresRuleRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRuleRepository creates a new PostgreSQL rule repository.
func NewPostgresRuleRepository(pool *pgxpool.Pool) *PostgresRuleRepository {
	return &PostgresRuleRepository{pool: pool}
}

const ruleColumns = `
	id, organization_id, name, description, status,
	trigger_type, trigger_conditions, conditions, action,
	delivery_window, multi_channel,
	execution_count, success_count, last_executed_at,
	created_at, updated_at
`

// Create inserts a new automation rule.
func (r *PostgresRuleRepository) Create(ctx context.Context, rule *domain.AutomationRule) error {
	cols, err := marshalRule(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = r.pool.Exec(ctx, query,
		rule.ID,
		rule.OrganizationID,
		rule.Name,
		rule.Description,
		string(rule.Status),
		rule.Trigger.Type,
		cols.triggerConditions,
		cols.conditions,
		cols.action,
		cols.deliveryWindow,
		cols.multiChannel,
		rule.ExecutionCount,
		rule.SuccessCount,
		rule.LastExecutedAt,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	return err
}

// Update replaces the rule's configuration.
func (r *PostgresRuleRepository) Update(ctx context.Context, rule *domain.AutomationRule) error {
	cols, err := marshalRule(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE automation_rules SET
			name = $2, description = $3, status = $4,
			trigger_type = $5, trigger_conditions = $6, conditions = $7, action = $8,
			delivery_window = $9, multi_channel = $10, updated_at = $11
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		string(rule.Status),
		rule.Trigger.Type,
		cols.triggerConditions,
		cols.conditions,
		cols.action,
		cols.deliveryWindow,
		cols.multiChannel,
		rule.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// Delete removes a rule by ID.
func (r *PostgresRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM automation_rules WHERE id = $1`, id)
	return err
}

// GetByID retrieves a rule by ID.
func (r *PostgresRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE id = $1`
	rule, err := scanPgRule(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}
	return rule, nil
}

// List retrieves rules matching the filter.
func (r *PostgresRuleRepository) List(ctx context.Context, filter domain.RuleFilter) ([]*domain.AutomationRule, int64, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE organization_id = $1`
	countQuery := `SELECT COUNT(*) FROM automation_rules WHERE organization_id = $1`
	args := []any{filter.OrganizationID}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		cond := fmt.Sprintf(" AND status = $%d", len(args))
		query += cond
		countQuery += cond
	}
	if filter.TriggerType != nil {
		args = append(args, *filter.TriggerType)
		cond := fmt.Sprintf(" AND trigger_type = $%d", len(args))
		query += cond
		countQuery += cond
	}

	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY created_at DESC"
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

	var rules []*domain.AutomationRule
	for rows.Next() {
		rule, err := scanPgRule(rows)
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
func (r *PostgresRuleRepository) GetActiveByTriggerType(ctx context.Context, orgID uuid.UUID, triggerType string) ([]*domain.AutomationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE organization_id = $1 AND status = 'active' AND trigger_type = $2
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, orgID, triggerType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AutomationRule
	for rows.Next() {
		rule, err := scanPgRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// IncrementMetrics bumps the execution counters in one server-side UPDATE
// so concurrent firings never lose increments.
func (r *PostgresRuleRepository) IncrementMetrics(ctx context.Context, id uuid.UUID, success bool) error {
	query := `
		UPDATE automation_rules SET
			execution_count = execution_count + 1,
			success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			last_executed_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, success)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// ruleJSON holds the rule's JSON-encoded columns.
type ruleJSON struct {
	triggerConditions []byte
	conditions        []byte
	action            []byte
	deliveryWindow    []byte
	multiChannel      []byte
}

func marshalRule(rule *domain.AutomationRule) (*ruleJSON, error) {
	triggerConditions, err := json.Marshal(rule.Trigger.Conditions)
	if err != nil {
		return nil, err
	}
	var conditions []byte
	if rule.Conditions != nil {
		if conditions, err = json.Marshal(rule.Conditions); err != nil {
			return nil, err
		}
	}
	action, err := json.Marshal(rule.Action)
	if err != nil {
		return nil, err
	}
	deliveryWindow, err := json.Marshal(rule.DeliveryWindow)
	if err != nil {
		return nil, err
	}
	multiChannel, err := json.Marshal(rule.MultiChannel)
	if err != nil {
		return nil, err
	}
	return &ruleJSON{
		triggerConditions: triggerConditions,
		conditions:        conditions,
		action:            action,
		deliveryWindow:    deliveryWindow,
		multiChannel:      multiChannel,
	}, nil
}

func unmarshalRule(rule *domain.AutomationRule, triggerType string, status string, cols ruleJSON) error {
	rule.Status = domain.RuleStatus(status)
	rule.Trigger.Type = triggerType

	if len(cols.triggerConditions) > 0 {
		if err := json.Unmarshal(cols.triggerConditions, &rule.Trigger.Conditions); err != nil {
			return err
		}
	}
	if len(cols.conditions) > 0 {
		if err := json.Unmarshal(cols.conditions, &rule.Conditions); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(cols.action, &rule.Action); err != nil {
		return err
	}
	if len(cols.deliveryWindow) > 0 {
		if err := json.Unmarshal(cols.deliveryWindow, &rule.DeliveryWindow); err != nil {
			return err
		}
	}
	if len(cols.multiChannel) > 0 {
		if err := json.Unmarshal(cols.multiChannel, &rule.MultiChannel); err != nil {
			return err
		}
	}
	return nil
}

func scanPgRule(row pgx.Row) (*domain.AutomationRule, error) {
	var rule domain.AutomationRule
	var status, triggerType string
	var cols ruleJSON

	err := row.Scan(
		&rule.ID,
		&rule.OrganizationID,
		&rule.Name,
		&rule.Description,
		&status,
		&triggerType,
		&cols.triggerConditions,
		&cols.conditions,
		&cols.action,
		&cols.deliveryWindow,
		&cols.multiChannel,
		&rule.ExecutionCount,
		&rule.SuccessCount,
		&rule.LastExecutedAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalRule(&rule, triggerType, status, cols); err != nil {
		return nil, err
	}
	return &rule, nil
}
