package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"pricepilot/internal/storage"
)

const timeRounding = time.Millisecond

// Show prints recent alerts, or one product's recent price samples when a
// shop and product are given.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Shop != "" && opts.Product != "" {
		return a.showSamples(ctx, store, opts)
	}
	return a.showAlerts(ctx, store, opts)
}

func (a *App) showAlerts(ctx context.Context, store storage.Store, opts ShowOptions) error {
	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tShop\tTitle\tPrice\tWas\tDrop%\tDiscount%\tChannels")
	for _, alert := range alerts {
		was := ""
		if alert.PreviousPriceRef != nil {
			was = alert.PreviousPriceRef.StringFixed(2)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.ShopID,
			sanitizeInline(alert.Title),
			alert.CurrentPriceRef.StringFixed(2),
			was,
			alert.PriceDropPct.StringFixed(1),
			alert.DiscountPct.StringFixed(1),
			strings.Join(alert.Channels, ","),
		)
	}
	return writer.Flush()
}

func (a *App) showSamples(ctx context.Context, store storage.Store, opts ShowOptions) error {
	window := opts.Window
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	to := time.Now().UTC()
	from := to.Add(-window)

	samples, err := store.ListPriceSamples(ctx, opts.Shop, opts.Product, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}
	if opts.Limit > 0 && len(samples) > opts.Limit {
		samples = samples[len(samples)-opts.Limit:]
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPrice\tRef Price\tList Ref\tCurrency")
	for _, sample := range samples {
		listRef := ""
		if sample.ListPriceRef != nil {
			listRef = sample.ListPriceRef.StringFixed(2)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			sample.ObservedAt.UTC().Format(time.RFC3339),
			sample.Price.StringFixed(2),
			sample.PriceRef.StringFixed(2),
			listRef,
			sample.Currency,
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
