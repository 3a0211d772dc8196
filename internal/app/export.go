package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"pricepilot/internal/storage"
)

// Export renders one product's price history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Shop == "" || opts.Product == "" {
		return errors.New("--shop and --product are required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.ListPriceSamples(ctx, opts.Shop, opts.Product, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no samples found for export window")
		return nil
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}
	return nil
}

func downsampleSamples(samples []storage.PriceSample, max int) []storage.PriceSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}

	result := make([]storage.PriceSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []storage.PriceSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"observed_at", "shop", "product", "price", "currency", "price_ref", "list_price_ref"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		listRef := ""
		if sample.ListPriceRef != nil {
			listRef = sample.ListPriceRef.String()
		}
		record := []string{
			sample.ObservedAt.Format(time.RFC3339),
			sample.ShopID,
			sample.ProductID,
			sample.Price.String(),
			sample.Currency,
			sample.PriceRef.String(),
			listRef,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeSamplesPNG(path string, samples []storage.PriceSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(samples))
	priceRef := make([]float64, len(samples))
	listRef := make([]float64, len(samples))
	hasList := false

	for i, sample := range samples {
		x[i] = sample.ObservedAt
		priceRef[i] = sample.PriceRef.InexactFloat64()
		if sample.ListPriceRef != nil {
			listRef[i] = sample.ListPriceRef.InexactFloat64()
			hasList = true
		} else {
			listRef[i] = priceRef[i]
		}
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (reference currency)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Price",
				XValues: x,
				YValues: priceRef,
			},
		},
	}
	if hasList {
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    "List price",
			XValues: x,
			YValues: listRef,
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
