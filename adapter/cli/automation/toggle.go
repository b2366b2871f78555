package automation

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/calloutapp/callout/adapter/cli"
)

var enableCmd = &cobra.Command{
	Use:   "enable [rule-id]",
	Short: "Activate an automation rule",
	Long: `Activate an automation rule so it fires on its trigger.

Example:
  callout automation enable abc123...`,
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

		rule.Activate()
		if err := app.Container.Rules.Update(cmd.Context(), rule); err != nil {
			return fmt.Errorf("failed to activate rule: %w", err)
		}

		fmt.Printf("Activated rule: %s\n", rule.Name)
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable [rule-id]",
	Short: "Pause an automation rule",
	Long: `Pause an automation rule so it stops firing.
Any pending queued actions for this rule are cancelled.

Example:
  callout automation disable abc123...`,
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

		rule.Pause()
		if err := app.Container.Rules.Update(cmd.Context(), rule); err != nil {
			return fmt.Errorf("failed to pause rule: %w", err)
		}

		cancelled, err := app.Container.Queue.CancelByRuleID(cmd.Context(), ruleID)
		if err != nil {
			return fmt.Errorf("failed to cancel queued actions: %w", err)
		}

		fmt.Printf("Paused rule: %s\n", rule.Name)
		if cancelled > 0 {
			fmt.Printf("Cancelled %d queued action(s).\n", cancelled)
		}
		return nil
	},
}
