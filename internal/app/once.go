package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"pricepilot/internal/monitor"
)

// Once executes a single monitoring run and prints its summary.
func (a *App) Once(ctx context.Context) (monitor.Summary, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return monitor.Summary{}, err
	}
	defer closeStore()

	engine, err := a.newEngine(store)
	if err != nil {
		return monitor.Summary{}, err
	}

	summary, err := engine.RunOnce(ctx)
	if err != nil {
		return summary, err
	}

	printSummary(summary)
	return summary, nil
}

func printSummary(summary monitor.Summary) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Run\t%s\n", summary.RunID)
	fmt.Fprintf(writer, "Elapsed\t%s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(timeRounding))
	fmt.Fprintf(writer, "Shops\t%d\n", summary.Shops)
	fmt.Fprintf(writer, "Discovered\t%d\n", summary.Discovered)
	fmt.Fprintf(writer, "Fetched\t%d\n", summary.Fetched)
	fmt.Fprintf(writer, "Unavailable\t%d\n", summary.Unavailable)
	fmt.Fprintf(writer, "Committed\t%d\n", summary.Committed)
	fmt.Fprintf(writer, "Alerts\t%d\n", summary.Alerts)
	fmt.Fprintf(writer, "Skipped\t%d\n", len(summary.Skipped))
	if summary.StaleRates {
		fmt.Fprintln(writer, "Warning\tstale fx rates were used")
	}
	writer.Flush()

	if len(summary.Skipped) > 0 {
		fmt.Fprintln(os.Stdout)
		skipWriter := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(skipWriter, "Shop\tReason\tURL")
		for _, skipped := range summary.Skipped {
			fmt.Fprintf(skipWriter, "%s\t%s\t%s\n", skipped.ShopID, skipped.Reason, skipped.URL)
		}
		skipWriter.Flush()
	}
}
