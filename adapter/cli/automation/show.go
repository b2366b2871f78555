package automation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/calloutapp/callout/adapter/cli"
)

var showCmd = &cobra.Command{
	Use:     "show [rule-id]",
	Aliases: []string{"get"},
	Short:   "Show one automation rule",
	Long: `Show an automation rule's full configuration.

Example:
  callout automation show abc123...`,
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

		fmt.Printf("Rule: %s\n", rule.Name)
		fmt.Println(strings.Repeat("-", 70))
		fmt.Printf("ID:          %s\n", rule.ID)
		fmt.Printf("Status:      %s\n", rule.Status)
		if rule.Description != "" {
			fmt.Printf("Description: %s\n", rule.Description)
		}
		fmt.Printf("Trigger:     %s\n", rule.Trigger.Type)

		if len(rule.Trigger.Conditions) > 0 {
			fmt.Println("Trigger conditions:")
			for _, c := range rule.Trigger.Conditions {
				fmt.Printf("  %s %s %v\n", c.Field, c.Operator, c.Value)
			}
		}
		if rule.Conditions != nil && len(rule.Conditions.Rules) > 0 {
			fmt.Printf("Conditions (%s):\n", rule.Conditions.Operator)
			for _, c := range rule.Conditions.Rules {
				fmt.Printf("  %s %s %v\n", c.Field, c.Operator, c.Value)
			}
		}

		fmt.Printf("Action:      %s\n", rule.Action.Type)
		if len(rule.Action.Config) > 0 {
			cfg, _ := json.MarshalIndent(rule.Action.Config, "  ", "  ")
			fmt.Printf("  %s\n", cfg)
		}
		if rule.Action.Delay != nil && rule.Action.Delay.Duration() > 0 {
			fmt.Printf("Delay:       %s\n", rule.Action.Delay.Duration())
		}

		dw := rule.DeliveryWindow
		if dw.BusinessHoursOnly || dw.TimeRange != nil || dw.QuietHours != nil || len(dw.AllowedDays) > 0 {
			fmt.Printf("Delivery:   ")
			if dw.BusinessHoursOnly {
				fmt.Printf(" business hours only")
			}
			if dw.TimeRange != nil {
				fmt.Printf(" %s-%s", dw.TimeRange.Start, dw.TimeRange.End)
			}
			if dw.QuietHours != nil {
				fmt.Printf(" quiet %s-%s", dw.QuietHours.Start, dw.QuietHours.End)
			}
			if len(dw.AllowedDays) > 0 {
				fmt.Printf(" on %s", strings.Join(dw.AllowedDays, ","))
			}
			fmt.Println()
		}

		if rule.MultiChannel.HasFallback() {
			fmt.Printf("Fallback:    %s -> %s", rule.MultiChannel.PrimaryChannel, rule.MultiChannel.FallbackChannel)
			if rule.MultiChannel.FallbackDelayHours > 0 {
				fmt.Printf(" after %dh", rule.MultiChannel.FallbackDelayHours)
			}
			fmt.Println()
		}

		fmt.Printf("Executions:  %d (%d succeeded)\n", rule.ExecutionCount, rule.SuccessCount)
		if rule.LastExecutedAt != nil {
			fmt.Printf("Last fired:  %s\n", rule.LastExecutedAt.Format("2006-01-02 15:04:05"))
		}

		return nil
	},
}
