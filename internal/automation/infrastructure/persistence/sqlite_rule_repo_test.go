package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calloutapp/callout/internal/automation/domain"
	"github.com/calloutapp/callout/internal/shared/infrastructure/migrations"

	_ "modernc.org/sqlite"
)

// setupTestDB creates an in-memory SQLite database with the schema applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), sqlDB))
	return sqlDB
}

func testRule(orgID uuid.UUID) *domain.AutomationRule {
	rule, _ := domain.NewAutomationRule(orgID, "Appointment reminder", domain.Trigger{
		Type: domain.TriggerJobScheduled,
		Conditions: []domain.Condition{
			{Field: "job_type", Operator: domain.OperatorEquals, Value: "maintenance"},
		},
	}, domain.Action{
		Type:   domain.ActionSendSMS,
		Config: map[string]any{"recipient": "customer", "message": "See you at {{scheduled_time}}"},
		Delay:  &domain.ActionDelay{Type: domain.DelayHours, Value: 1},
	})
	rule.Conditions = &domain.ConditionBlock{
		Operator: domain.BlockOperatorAND,
		Rules:    []domain.Condition{{Field: "job_status", Operator: domain.OperatorEquals, Value: "scheduled"}},
	}
	rule.DeliveryWindow = domain.DeliveryWindow{
		BusinessHoursOnly: true,
		AllowedDays:       []string{"mon", "tue", "wed", "thu", "fri"},
		QuietHours:        &domain.QuietHours{Start: "21:00", End: "08:00"},
	}
	rule.MultiChannel = domain.MultiChannel{
		PrimaryChannel:  domain.ChannelSMS,
		FallbackEnabled: true,
		FallbackChannel: domain.ChannelEmail,
	}
	return rule
}

func TestSQLiteRuleRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRuleRepository(setupTestDB(t))
	orgID := uuid.New()
	rule := testRule(orgID)

	require.NoError(t, repo.Create(context.Background(), rule))

	got, err := repo.GetByID(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.Name, got.Name)
	assert.Equal(t, domain.RuleStatusDraft, got.Status)
	assert.Equal(t, domain.TriggerJobScheduled, got.Trigger.Type)
	require.Len(t, got.Trigger.Conditions, 1)
	assert.Equal(t, "job_type", got.Trigger.Conditions[0].Field)
	require.NotNil(t, got.Conditions)
	assert.Equal(t, domain.BlockOperatorAND, got.Conditions.Operator)
	assert.Equal(t, domain.ActionSendSMS, got.Action.Type)
	assert.Equal(t, "customer", got.Action.Config["recipient"])
	require.NotNil(t, got.Action.Delay)
	assert.Equal(t, time.Hour, got.Action.Delay.Duration())
	assert.True(t, got.DeliveryWindow.BusinessHoursOnly)
	require.NotNil(t, got.DeliveryWindow.QuietHours)
	assert.Equal(t, "21:00", got.DeliveryWindow.QuietHours.Start)
	assert.True(t, got.MultiChannel.HasFallback())
}

func TestSQLiteRuleRepository_GetByIDNotFound(t *testing.T) {
	repo := NewSQLiteRuleRepository(setupTestDB(t))

	_, err := repo.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrRuleNotFound)
}

func TestSQLiteRuleRepository_Update(t *testing.T) {
	repo := NewSQLiteRuleRepository(setupTestDB(t))
	rule := testRule(uuid.New())
	require.NoError(t, repo.Create(context.Background(), rule))

	rule.Activate()
	rule.Name = "Renamed"
	require.NoError(t, repo.Update(context.Background(), rule))

	got, err := repo.GetByID(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RuleStatusActive, got.Status)
	assert.Equal(t, "Renamed", got.Name)
}

func TestSQLiteRuleRepository_UpdateMissingRule(t *testing.T) {
	repo := NewSQLiteRuleRepository(setupTestDB(t))
	rule := testRule(uuid.New())

	assert.ErrorIs(t, repo.Update(context.Background(), rule), domain.ErrRuleNotFound)
}

func TestSQLiteRuleRepository_ListFilters(t *testing.T) {
	repo := NewSQLiteRuleRepository(setupTestDB(t))
	orgID := uuid.New()

	active := testRule(orgID)
	active.Activate()
	draft := testRule(orgID)
	other := testRule(uuid.New())
	for _, r := range []*domain.AutomationRule{active, draft, other} {
		require.NoError(t, repo.Create(context.Background(), r))
	}

	rules, total, err := repo.List(context.Background(), domain.RuleFilter{OrganizationID: orgID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, rules, 2)

	status := domain.RuleStatusActive
	rules, total, err = repo.List(context.Background(), domain.RuleFilter{OrganizationID: orgID, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rules, 1)
	assert.Equal(t, active.ID, rules[0].ID)
}

func TestSQLiteRuleRepository_GetActiveByTriggerType(t *testing.T) {
	repo := NewSQLiteRuleRepository(setupTestDB(t))
	orgID := uuid.New()

	active := testRule(orgID)
	active.Activate()
	paused := testRule(orgID)
	paused.Pause()
	require.NoError(t, repo.Create(context.Background(), active))
	require.NoError(t, repo.Create(context.Background(), paused))

	rules, err := repo.GetActiveByTriggerType(context.Background(), orgID, domain.TriggerJobScheduled)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, active.ID, rules[0].ID)

	rules, err = repo.GetActiveByTriggerType(context.Background(), orgID, domain.TriggerInvoiceOverdue)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestSQLiteRuleRepository_IncrementMetrics(t *testing.T) {
	repo := NewSQLiteRuleRepository(setupTestDB(t))
	rule := testRule(uuid.New())
	require.NoError(t, repo.Create(context.Background(), rule))

	require.NoError(t, repo.IncrementMetrics(context.Background(), rule.ID, true))
	require.NoError(t, repo.IncrementMetrics(context.Background(), rule.ID, false))

	got, err := repo.GetByID(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ExecutionCount)
	assert.Equal(t, int64(1), got.SuccessCount)
	require.NotNil(t, got.LastExecutedAt)

	assert.ErrorIs(t, repo.IncrementMetrics(context.Background(), uuid.New(), true), domain.ErrRuleNotFound)
}

func TestSQLiteRuleRepository_Delete(t *testing.T) {
	repo := NewSQLiteRuleRepository(setupTestDB(t))
	rule := testRule(uuid.New())
	require.NoError(t, repo.Create(context.Background(), rule))

	require.NoError(t, repo.Delete(context.Background(), rule.ID))

	_, err := repo.GetByID(context.Background(), rule.ID)
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)
}
