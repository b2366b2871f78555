// Package automation implements the automation rule CLI commands.
package automation

import (
	"github.com/spf13/cobra"
)

// Cmd is the automation command group
var Cmd = &cobra.Command{
	Use:     "automation",
	Aliases: []string{"auto", "rule"},
	Short:   "Manage automation rules",
	Long: `List, inspect, and manage automation rules.

Automation rules send messages or change job state when business events
happen: a job is completed, an appointment is tomorrow, an invoice is
overdue.

Examples:
  callout automation list                 # List all rules
  callout automation show <id>            # Inspect one rule
  callout automation enable <id>          # Activate a rule
  callout automation test-fire <id>       # Preview a firing without side effects
  callout automation emit <trigger>       # Publish a trigger event for real
  callout automation executions           # View execution history`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(enableCmd)
	Cmd.AddCommand(disableCmd)
	Cmd.AddCommand(testFireCmd)
	Cmd.AddCommand(emitCmd)
	Cmd.AddCommand(executionsCmd)
	Cmd.AddCommand(queueCmd)
}
