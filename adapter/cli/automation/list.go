package automation

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calloutapp/callout/adapter/cli"
	"github.com/calloutapp/callout/internal/automation/domain"
)

var (
	listStatus      string
	listTriggerType string
	listLimit       int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List automation rules",
	Long: `List all automation rules with optional filtering.

Examples:
  callout automation list                          # List all rules
  callout automation list --status active          # Active rules only
  callout automation list --trigger job_completed  # Rules on one trigger`,
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			fmt.Println("Rule management requires a database connection.")
			return nil
		}

		filter := domain.RuleFilter{
			OrganizationID: app.CurrentOrgID,
			Limit:          listLimit,
		}
		if listStatus != "" {
			status := domain.RuleStatus(listStatus)
			filter.Status = &status
		}
		if listTriggerType != "" {
			filter.TriggerType = &listTriggerType
		}

		rules, total, err := app.Container.Rules.List(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("failed to list rules: %w", err)
		}

		if len(rules) == 0 {
			fmt.Println("No automation rules found.")
			return nil
		}

		fmt.Printf("Automation Rules (%d total)\n", total)
		fmt.Println(strings.Repeat("-", 70))

		for _, rule := range rules {
			statusIcon := "✓"
			if rule.Status != domain.RuleStatusActive {
				statusIcon = "○"
			}

			fmt.Printf("%s %-36s  %s\n", statusIcon, rule.ID, rule.Name)
			fmt.Printf("    Trigger: %-22s  Action: %s", rule.Trigger.Type, rule.Action.Type)
			if rule.MultiChannel.HasFallback() {
				fmt.Printf("  Fallback: %s", rule.MultiChannel.FallbackChannel)
			}
			fmt.Println()

			if rule.ExecutionCount > 0 {
				fmt.Printf("    Executions: %d (%d succeeded)", rule.ExecutionCount, rule.SuccessCount)
				if rule.LastExecutedAt != nil {
					fmt.Printf("  Last: %s", rule.LastExecutedAt.Format("2006-01-02 15:04"))
				}
				fmt.Println()
			}
		}

		fmt.Println(strings.Repeat("-", 70))
		fmt.Printf("Showing %d of %d rules\n", len(rules), total)

		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by status (active/paused/draft)")
	listCmd.Flags().StringVarP(&listTriggerType, "trigger", "t", "", "filter by trigger type")
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 50, "maximum number of rules to show")
}
