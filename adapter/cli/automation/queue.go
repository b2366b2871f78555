package automation

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/calloutapp/callout/adapter/cli"
)

var queueLimit int

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show due queued actions",
	Long: `Show queued actions that are due for delivery: deferred deliveries
waiting on a delivery window or action delay, and delayed fallbacks.

Example:
  callout automation queue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			fmt.Println("Rule management requires a database connection.")
			return nil
		}

		due, err := app.Container.Queue.GetDue(cmd.Context(), time.Now(), queueLimit)
		if err != nil {
			return fmt.Errorf("failed to read queue: %w", err)
		}

		if len(due) == 0 {
			fmt.Println("No queued actions are due.")
			return nil
		}

		fmt.Printf("Due queued actions (%d)\n", len(due))
		fmt.Println(strings.Repeat("-", 70))
		for _, qa := range due {
			fmt.Printf("%s  %-10s  %-6s  run_at=%s  retries=%d/%d\n",
				qa.ID,
				qa.Kind,
				qa.Channel,
				qa.RunAt.Format("2006-01-02 15:04"),
				qa.RetryCount,
				qa.MaxRetries,
			)
			if qa.LastError != "" {
				fmt.Printf("    last error: %s\n", qa.LastError)
			}
		}
		fmt.Println(strings.Repeat("-", 70))
		return nil
	},
}

func init() {
	queueCmd.Flags().IntVarP(&queueLimit, "limit", "l", 50, "maximum number of rows to show")
}
