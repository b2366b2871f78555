package app_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calloutapp/callout/internal/app"
	automation "github.com/calloutapp/callout/internal/automation/domain"
	"github.com/calloutapp/callout/internal/shared/infrastructure/eventbus"
	"github.com/calloutapp/callout/pkg/config"
)

func TestNewContainer_SQLiteLocalMode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := &config.Config{
		AppEnv:     "development",
		SQLitePath: filepath.Join(t.TempDir(), "callout.db"),
	}

	c, err := app.NewContainer(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.SQLiteDB)
	assert.Nil(t, c.DB)
	assert.NotNil(t, c.Rules)
	assert.NotNil(t, c.Logs)
	assert.NotNil(t, c.Queue)
	assert.NotNil(t, c.Loader)
	assert.NotNil(t, c.Dispatcher)
	assert.NotNil(t, c.Executor)
	assert.NotNil(t, c.ContextBuilder)
	assert.NotNil(t, c.Bus)
}

func TestNewContainer_BusDeliversTriggerEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := &config.Config{
		AppEnv:     "development",
		SQLitePath: filepath.Join(t.TempDir(), "callout.db"),
	}

	c, err := app.NewContainer(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	orgID := uuid.New()
	_, err = c.SQLiteDB.ExecContext(ctx,
		`INSERT INTO organizations (id, name) VALUES (?, ?)`, orgID.String(), "Acme HVAC")
	require.NoError(t, err)

	// The trigger condition never matches, so the firing is recorded
	// as skipped without reaching a message provider.
	rule, err := automation.NewAutomationRule(
		orgID,
		"Completion follow-up",
		automation.Trigger{
			Type: automation.TriggerJobCompleted,
			Conditions: []automation.Condition{
				{Field: "job_status", Operator: automation.OperatorEquals, Value: "never"},
			},
		},
		automation.Action{
			Type:   automation.ActionSendSMS,
			Config: map[string]any{"message": "Thanks!"},
		},
	)
	require.NoError(t, err)
	rule.Activate()
	require.NoError(t, c.Rules.Create(ctx, rule))

	err = c.Bus.PublishConsumedEvent(ctx, &eventbus.ConsumedEvent{
		EventID:    uuid.New(),
		RoutingKey: automation.TriggerJobCompleted,
		Payload:    json.RawMessage(`{"organization_id":"` + orgID.String() + `"}`),
	})
	require.NoError(t, err)

	records, total, err := c.Logs.List(ctx, automation.ExecutionFilter{OrganizationID: orgID, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, automation.FiringStatusSkipped, records[0].Status)
	assert.Equal(t, rule.ID, records[0].RuleID)
}

func TestNewContainer_SQLiteRuleRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := &config.Config{
		AppEnv:     "development",
		SQLitePath: filepath.Join(t.TempDir(), "callout.db"),
	}

	c, err := app.NewContainer(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer c.Close()

	rule, err := automation.NewAutomationRule(
		uuid.New(),
		"Thank you message",
		automation.Trigger{Type: automation.TriggerJobCompleted},
		automation.Action{
			Type:   automation.ActionSendSMS,
			Config: map[string]any{"message": "Thanks, {{client_first_name}}!"},
		},
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Rules.Create(ctx, rule))

	loaded, err := c.Rules.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.Name, loaded.Name)
	assert.Equal(t, automation.TriggerJobCompleted, loaded.Trigger.Type)
}
