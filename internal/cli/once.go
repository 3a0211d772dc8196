package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// exitClean is returned when a run produced no alerts, so cron wrappers
// can tell "nothing happened" from success-with-alerts.
const exitClean = 78

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Execute a single monitoring run and print its summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := getApp().Once(cmd.Context())
		if err != nil {
			return err
		}
		if summary.Alerts == 0 {
			os.Exit(exitClean)
		}
		return nil
	},
}
