package automation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/calloutapp/callout/adapter/cli"
	"github.com/calloutapp/callout/internal/automation/domain"
)

var (
	executionsRuleID string
	executionsStatus string
	executionsLimit  int
)

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "View execution history",
	Long: `View the execution log: every firing with its outcome and steps.

Examples:
  callout automation executions                    # Recent firings
  callout automation executions --rule abc123...   # One rule's firings
  callout automation executions --status failed    # Failed firings only`,
	Aliases: []string{"history", "log"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			fmt.Println("Rule management requires a database connection.")
			return nil
		}

		filter := domain.ExecutionFilter{
			OrganizationID: app.CurrentOrgID,
			Limit:          executionsLimit,
		}
		if executionsRuleID != "" {
			ruleID, err := uuid.Parse(executionsRuleID)
			if err != nil {
				return fmt.Errorf("invalid rule ID: %w", err)
			}
			filter.RuleID = &ruleID
		}
		if executionsStatus != "" {
			status := domain.FiringStatus(executionsStatus)
			filter.Status = &status
		}

		records, total, err := app.Container.Logs.List(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("failed to list executions: %w", err)
		}

		if len(records) == 0 {
			fmt.Println("No executions found.")
			return nil
		}

		fmt.Printf("Executions (%d total)\n", total)
		fmt.Println(strings.Repeat("-", 70))

		for _, record := range records {
			icon := statusIcon(record.Status)
			fmt.Printf("%s %s  %s  trigger=%s  rule=%s\n",
				icon,
				record.StartedAt.Format("2006-01-02 15:04:05"),
				record.Status,
				record.TriggerType,
				record.RuleID,
			)
			if record.SkipReason != "" {
				fmt.Printf("    skipped: %s\n", record.SkipReason)
			}
			if record.ErrorMessage != "" {
				fmt.Printf("    error: %s\n", record.ErrorMessage)
			}
			if record.DurationMs != nil {
				fmt.Printf("    steps: %d  duration: %dms\n", len(record.Steps), *record.DurationMs)
			}
		}

		fmt.Println(strings.Repeat("-", 70))
		fmt.Printf("Showing %d of %d executions\n", len(records), total)
		return nil
	},
}

func statusIcon(status domain.FiringStatus) string {
	switch status {
	case domain.FiringStatusSuccess:
		return "✓"
	case domain.FiringStatusFailed:
		return "✗"
	case domain.FiringStatusQueued:
		return "…"
	default:
		return "○"
	}
}

func init() {
	executionsCmd.Flags().StringVarP(&executionsRuleID, "rule", "r", "", "filter by rule ID")
	executionsCmd.Flags().StringVarP(&executionsStatus, "status", "s", "", "filter by status (success/failed/skipped/queued)")
	executionsCmd.Flags().IntVarP(&executionsLimit, "limit", "l", 20, "maximum number of executions to show")
}
