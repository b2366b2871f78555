package automation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/calloutapp/callout/adapter/cli"
	automation "github.com/calloutapp/callout/internal/automation/domain"
	"github.com/calloutapp/callout/internal/shared/infrastructure/eventbus"
)

var (
	emitPayload string
	emitOrgID   string
)

var emitCmd = &cobra.Command{
	Use:   "emit [trigger-type]",
	Short: "Publish a trigger event through the in-process bus",
	Long: `Publish a business event onto the in-process event bus, exactly as the
field-service app would over the broker. Every active rule matching the
trigger fires for real: messages are sent, executions are logged.

Use test-fire instead to preview a single rule without side effects.

Examples:
  callout automation emit job.completed --org 7f4d... --payload '{"job_id":"..."}'
  callout automation emit invoice.overdue --payload '{"organization_id":"...","invoice_id":"..."}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			fmt.Println("Emitting events requires a database connection.")
			return nil
		}

		triggerType := args[0]
		if !isKnownTrigger(triggerType) {
			return fmt.Errorf("unknown trigger type %q (known: %s)",
				triggerType, strings.Join(automation.KnownTriggerTypes(), ", "))
		}

		payload := map[string]any{}
		if emitPayload != "" {
			if err := json.Unmarshal([]byte(emitPayload), &payload); err != nil {
				return fmt.Errorf("invalid payload JSON: %w", err)
			}
		}
		if emitOrgID != "" {
			orgID, err := uuid.Parse(emitOrgID)
			if err != nil {
				return fmt.Errorf("invalid organization ID: %w", err)
			}
			payload["organization_id"] = orgID.String()
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}

		event := &eventbus.ConsumedEvent{
			EventID:    uuid.New(),
			RoutingKey: triggerType,
			OccurredAt: time.Now(),
			Payload:    body,
		}

		if err := app.Container.Bus.PublishConsumedEvent(cmd.Context(), event); err != nil {
			return fmt.Errorf("failed to publish event: %w", err)
		}

		fmt.Printf("Emitted %s (event %s)\n", triggerType, event.EventID)
		fmt.Println("Matching active rules fired; see `callout automation executions` for outcomes.")
		return nil
	},
}

func isKnownTrigger(triggerType string) bool {
	for _, known := range automation.KnownTriggerTypes() {
		if known == triggerType {
			return true
		}
	}
	return false
}

func init() {
	emitCmd.Flags().StringVarP(&emitPayload, "payload", "p", "", "trigger payload as JSON (entity ids, trigger fields)")
	emitCmd.Flags().StringVarP(&emitOrgID, "org", "o", "", "organization ID, merged into the payload")
}
