package automation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/calloutapp/callout/adapter/cli"
	"github.com/calloutapp/callout/internal/automation/application/services"
)

var testFirePayload string

var testFireCmd = &cobra.Command{
	Use:   "test-fire [rule-id]",
	Short: "Preview a rule firing without side effects",
	Long: `Run a rule through the full pipeline in test mode: conditions are
evaluated, templates are rendered, but nothing is sent, written, or
queued. The resolved action is printed as a preview.

Examples:
  callout automation test-fire abc123...
  callout automation test-fire abc123... --payload '{"job_id":"...","client_id":"..."}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			fmt.Println("Rule management requires a database connection.")
			return nil
		}

		ruleID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid rule ID: %w", err)
		}

		rule, err := app.Container.Rules.GetByID(cmd.Context(), ruleID)
		if err != nil {
			return fmt.Errorf("failed to load rule: %w", err)
		}

		payload := map[string]any{}
		if testFirePayload != "" {
			if err := json.Unmarshal([]byte(testFirePayload), &payload); err != nil {
				return fmt.Errorf("invalid payload JSON: %w", err)
			}
		}

		ec, err := app.Container.ContextBuilder.BuildContext(cmd.Context(), rule.OrganizationID, rule.Trigger.Type, payload)
		if err != nil {
			return fmt.Errorf("failed to build context: %w", err)
		}
		ec.RuleID = rule.ID
		ec.TestMode = true

		record, err := app.Container.Executor.Fire(cmd.Context(), services.FireRequest{
			Rule:     rule,
			Context:  ec,
			TestMode: true,
		})
		if err != nil {
			return fmt.Errorf("test firing failed: %w", err)
		}

		fmt.Printf("Test firing: %s\n", rule.Name)
		fmt.Println(strings.Repeat("-", 70))
		fmt.Printf("Outcome: %s\n", record.Status)
		if record.SkipReason != "" {
			fmt.Printf("Skip reason: %s\n", record.SkipReason)
		}
		if record.ErrorMessage != "" {
			fmt.Printf("Error: %s\n", record.ErrorMessage)
		}

		for _, step := range record.Steps {
			fmt.Printf("  [%s] %s: %s", step.Type, step.Name, step.Status)
			if step.Error != "" {
				fmt.Printf(" (%s)", step.Error)
			}
			fmt.Println()
			if len(step.Output) > 0 {
				out, _ := json.MarshalIndent(step.Output, "    ", "  ")
				fmt.Printf("    %s\n", out)
			}
		}

		fmt.Println(strings.Repeat("-", 70))
		fmt.Println("Test mode: nothing was sent, written, or queued.")
		return nil
	},
}

func init() {
	testFireCmd.Flags().StringVarP(&testFirePayload, "payload", "p", "", "trigger payload as JSON (entity ids, trigger fields)")
}
