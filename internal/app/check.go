package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"pricepilot/internal/alerting"
	"pricepilot/internal/monitor"
)

// Check fetches a single product URL through a configured shop's adapter
// and prints the parsed, normalized offer. With Notify set the offer is
// also pushed through the configured alert channels as a test message.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	sc, ok := a.Config.ShopBySlug(opts.Shop)
	if !ok {
		return fmt.Errorf("unknown shop %q", opts.Shop)
	}

	adapter, err := a.newAdapter(sc)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	normalizer := a.newNormalizer(store)

	fetchCtx, cancel := context.WithTimeout(ctx, a.Config.Run.FetchTimeout)
	defer cancel()
	offer, err := adapter.FetchOffer(fetchCtx, opts.URL)
	if err != nil {
		return fmt.Errorf("fetch offer: %w", err)
	}
	if offer == nil {
		fmt.Fprintln(os.Stdout, "product gone or unpriced")
		return nil
	}
	if err := offer.Validate(); err != nil {
		return fmt.Errorf("invalid offer: %w", err)
	}

	snap, err := normalizer.GetRates(ctx, "")
	if err != nil {
		return err
	}
	priceRef, err := normalizer.ToReference(offer.Price, offer.Currency, snap)
	if err != nil {
		return err
	}
	norm := monitor.NormalizedOffer{Offer: *offer, PriceRef: priceRef, RefCurrency: normalizer.Reference()}
	if offer.ListPrice != nil {
		if listRef, convErr := normalizer.ToReference(*offer.ListPrice, offer.Currency, snap); convErr == nil {
			norm.ListPriceRef = &listRef
		}
	}
	change := monitor.Diff(nil, norm)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Title\t%s\n", offer.Title)
	fmt.Fprintf(writer, "Brand\t%s\n", offer.Brand)
	fmt.Fprintf(writer, "URL\t%s\n", offer.URL)
	fmt.Fprintf(writer, "Price\t%s %s\n", offer.Price.StringFixed(2), offer.Currency)
	if offer.ListPrice != nil {
		fmt.Fprintf(writer, "List price\t%s %s\n", offer.ListPrice.StringFixed(2), offer.Currency)
	}
	fmt.Fprintf(writer, "Ref price\t%s %s\n", norm.PriceRef.StringFixed(2), norm.RefCurrency)
	fmt.Fprintf(writer, "Discount\t%s%%\n", change.DiscountPct.StringFixed(1))
	fmt.Fprintf(writer, "Available\t%t\n", offer.Available)
	if snap.Stale {
		fmt.Fprintln(writer, "Warning\tstale fx rates were used")
	}
	writer.Flush()

	if !opts.Notify {
		return nil
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	event := alerting.Event{
		ShopID:           sc.Slug,
		ShopName:         sc.Name,
		ProductID:        offer.ProductID,
		Title:            offer.Title,
		Brand:            offer.Brand,
		URL:              offer.URL,
		ImageURL:         offer.ImageURL,
		CurrentPriceRef:  norm.PriceRef,
		RefCurrency:      norm.RefCurrency,
		OriginalPrice:    offer.Price,
		OriginalCurrency: offer.Currency,
		DiscountPct:      change.DiscountPct,
		PriceDropPct:     change.PriceDropPct,
		ObservedAt:       time.Now().UTC(),
	}
	return notifier.Notify(ctx, event)
}
