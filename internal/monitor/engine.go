package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pricepilot/internal/alerting"
	"pricepilot/internal/filter"
	"pricepilot/internal/fx"
	"pricepilot/internal/shop"
	"pricepilot/internal/storage"
)

// Skip reasons recorded in the run summary.
const (
	SkipFetchFailed     = "fetch_failed"
	SkipParseFailed     = "parse_failed"
	SkipInvalidOffer    = "invalid_offer"
	SkipUnknownCurrency = "unknown_currency"
	SkipStateLoad       = "state_load_failed"
	SkipStateCommit     = "state_commit_failed"
)

// Options tunes one engine run.
type Options struct {
	Workers        int
	FetchTimeout   time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	Deadline       time.Duration
}

// Shop bundles everything the engine needs for one configured shop.
type Shop struct {
	Slug    string
	Name    string
	Adapter shop.Adapter
	Filter  filter.Config
	Limiter *rate.Limiter
}

// Skipped names one product URL the run could not evaluate.
type Skipped struct {
	ShopID string
	URL    string
	Reason string
}

// Summary aggregates the outcome of one run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	StaleRates bool

	Shops       int
	Discovered  int
	Fetched     int
	Unavailable int
	Committed   int
	Alerts      int
	Skipped     []Skipped
}

// Engine walks every configured shop, diffs offers against stored state,
// and emits alerts for accepted price changes. One run pins one FX
// snapshot so every conversion inside it is consistent.
type Engine struct {
	opts       Options
	shops      []Shop
	normalizer *fx.Normalizer
	store      storage.Store
	notifier   alerting.Notifier
	channels   []string
	logger     zerolog.Logger

	now func() time.Time
}

// NewEngine wires the engine. notifier may be nil when alerting is
// disabled; alerts are then only recorded in the store.
func NewEngine(opts Options, shops []Shop, normalizer *fx.Normalizer, store storage.Store, notifier alerting.Notifier, channels []string, logger zerolog.Logger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}

	return &Engine{
		opts:       opts,
		shops:      shops,
		normalizer: normalizer,
		store:      store,
		notifier:   notifier,
		channels:   channels,
		logger:     logger.With().Str("component", "engine").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce executes a single monitoring pass. A rate fetch failure with no
// stale fallback aborts the whole run; everything below that is isolated
// per product.
func (e *Engine) RunOnce(ctx context.Context) (Summary, error) {
	if e.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Deadline)
		defer cancel()
	}

	summary := Summary{
		RunID:     uuid.NewString(),
		StartedAt: e.now(),
		Shops:     len(e.shops),
	}
	logger := e.logger.With().Str("run_id", summary.RunID).Logger()

	snap, err := e.normalizer.GetRates(ctx, "")
	if err != nil {
		return summary, fmt.Errorf("fetch fx rates: %w", err)
	}
	summary.StaleRates = snap.Stale
	if snap.Stale {
		logger.Warn().Time("fetched_at", snap.FetchedAt).Msg("using stale fx rates for this run")
	}

	var mu sync.Mutex
	for _, sh := range e.shops {
		if ctx.Err() != nil {
			break
		}
		e.runShop(ctx, logger, sh, snap, &summary, &mu)
	}

	summary.FinishedAt = e.now()
	logger.Info().
		Int("discovered", summary.Discovered).
		Int("fetched", summary.Fetched).
		Int("alerts", summary.Alerts).
		Int("skipped", len(summary.Skipped)).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("run finished")
	return summary, ctx.Err()
}

func (e *Engine) runShop(ctx context.Context, logger zerolog.Logger, sh Shop, snap fx.Snapshot, summary *Summary, mu *sync.Mutex) {
	shopLogger := logger.With().Str("shop", sh.Slug).Logger()

	urls, err := sh.Adapter.DiscoverURLs(ctx)
	if err != nil {
		shopLogger.Error().Err(err).Msg("discovery failed, skipping shop")
		return
	}
	shopLogger.Info().Int("products", len(urls)).Msg("discovery complete")

	mu.Lock()
	summary.Discovered += len(urls)
	mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for _, url := range urls {
		url := url
		g.Go(func() error {
			e.processProduct(gctx, shopLogger, sh, url, snap, summary, mu)
			return nil
		})
	}
	// Workers never return errors; per-product failures land in the summary.
	_ = g.Wait()
}

func (e *Engine) processProduct(ctx context.Context, logger zerolog.Logger, sh Shop, url string, snap fx.Snapshot, summary *Summary, mu *sync.Mutex) {
	skip := func(reason string, err error) {
		logger.Warn().Err(err).Str("url", url).Str("reason", reason).Msg("product skipped")
		mu.Lock()
		summary.Skipped = append(summary.Skipped, Skipped{ShopID: sh.Slug, URL: url, Reason: reason})
		mu.Unlock()
	}

	if sh.Limiter != nil {
		if err := sh.Limiter.Wait(ctx); err != nil {
			return
		}
	}

	policy := retryPolicy{maxAttempts: e.opts.MaxRetries, baseDelay: e.opts.RetryBaseDelay}
	offer, err := policy.do(ctx, logger, url, func(ctx context.Context) (*shop.Offer, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
		defer cancel()
		return sh.Adapter.FetchOffer(fetchCtx, url)
	})
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	case shop.IsParseError(err):
		skip(SkipParseFailed, err)
		return
	case err != nil:
		skip(SkipFetchFailed, err)
		return
	}

	// A vanished product leaves its stored state untouched.
	if offer == nil {
		logger.Debug().Str("url", url).Msg("product gone or unpriced")
		mu.Lock()
		summary.Unavailable++
		mu.Unlock()
		return
	}

	if err := offer.Validate(); err != nil {
		skip(SkipInvalidOffer, err)
		return
	}

	mu.Lock()
	summary.Fetched++
	mu.Unlock()

	norm, err := e.normalize(*offer, snap)
	if err != nil {
		skip(SkipUnknownCurrency, err)
		return
	}

	previous, err := e.store.LoadState(ctx, sh.Slug, norm.ProductID)
	if err != nil {
		skip(SkipStateLoad, err)
		return
	}

	change := Diff(previous, norm)
	accepted := change.AlertWorthy() && sh.Filter.Accept(filter.Candidate{
		Brand:         norm.Brand,
		DiscountPct:   change.DiscountPct,
		PriceDropPct:  change.PriceDropPct,
		FirstSighting: change.FirstSighting(),
	})

	now := e.now()
	if accepted {
		e.emitAlert(ctx, logger, sh, change, now)
	}

	rec := e.stateRecord(sh, change, accepted, now)
	if err := e.store.CommitState(ctx, rec, accepted); err != nil {
		skip(SkipStateCommit, err)
		return
	}
	mu.Lock()
	summary.Committed++
	if accepted {
		summary.Alerts++
	}
	mu.Unlock()

	sample := storage.PriceSample{
		ShopID:       sh.Slug,
		ProductID:    norm.ProductID,
		ObservedAt:   now,
		Currency:     norm.Currency,
		Price:        norm.Price,
		PriceRef:     norm.PriceRef,
		ListPriceRef: norm.ListPriceRef,
	}
	if err := e.store.InsertPriceSample(ctx, sample); err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("price sample insert failed")
	}
}

func (e *Engine) normalize(offer shop.Offer, snap fx.Snapshot) (NormalizedOffer, error) {
	priceRef, err := e.normalizer.ToReference(offer.Price, offer.Currency, snap)
	if err != nil {
		return NormalizedOffer{}, err
	}

	norm := NormalizedOffer{
		Offer:       offer,
		PriceRef:    priceRef,
		RefCurrency: e.normalizer.Reference(),
	}
	if offer.ListPrice != nil {
		listRef, err := e.normalizer.ToReference(*offer.ListPrice, offer.Currency, snap)
		if err == nil {
			norm.ListPriceRef = &listRef
		}
	}
	return norm, nil
}

func (e *Engine) emitAlert(ctx context.Context, logger zerolog.Logger, sh Shop, change Change, now time.Time) {
	event := alerting.Event{
		ShopID:           sh.Slug,
		ShopName:         sh.Name,
		ProductID:        change.Current.ProductID,
		Title:            change.Current.Title,
		Brand:            change.Current.Brand,
		URL:              change.Current.URL,
		ImageURL:         change.Current.ImageURL,
		CurrentPriceRef:  change.Current.PriceRef,
		RefCurrency:      change.Current.RefCurrency,
		OriginalPrice:    change.Current.Price,
		OriginalCurrency: change.Current.Currency,
		DiscountPct:      change.DiscountPct,
		PriceDropPct:     change.PriceDropPct,
		ObservedAt:       now,
	}
	if change.Previous != nil {
		prev := change.Previous.PriceRef
		event.PreviousPriceRef = &prev
	}

	logger.Info().
		Str("product", event.ProductID).
		Str("title", event.Title).
		Str("price_ref", event.CurrentPriceRef.StringFixed(2)).
		Str("drop_pct", change.PriceDropPct.StringFixed(1)).
		Str("discount_pct", change.DiscountPct.StringFixed(1)).
		Msg("price alert")

	// Delivery failure never blocks the state commit; the state still
	// records the alert so a flaky channel cannot cause repeats.
	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, event); err != nil {
			logger.Error().Err(err).Str("product", event.ProductID).Msg("alert delivery failed")
		}
	}

	record := storage.AlertRecord{
		ShopID:           sh.Slug,
		ProductID:        event.ProductID,
		Title:            event.Title,
		URL:              event.URL,
		PreviousPriceRef: event.PreviousPriceRef,
		CurrentPriceRef:  event.CurrentPriceRef,
		DiscountPct:      change.DiscountPct,
		PriceDropPct:     change.PriceDropPct,
		Channels:         e.channels,
		CreatedAt:        now,
	}
	if _, err := e.store.InsertAlert(ctx, record); err != nil {
		logger.Warn().Err(err).Str("product", event.ProductID).Msg("alert log insert failed")
	}
}

func (e *Engine) stateRecord(sh Shop, change Change, alerted bool, now time.Time) storage.StateRecord {
	cur := change.Current
	rec := storage.StateRecord{
		ShopID:       sh.Slug,
		ProductID:    cur.ProductID,
		Title:        cur.Title,
		Brand:        cur.Brand,
		URL:          cur.URL,
		Currency:     cur.Currency,
		Price:        cur.Price,
		PriceRef:     cur.PriceRef,
		ListPriceRef: cur.ListPriceRef,
		Available:    cur.Available,
		FirstSeenAt:  now,
		LastSeenAt:   now,
	}
	if change.Previous != nil {
		rec.FirstSeenAt = change.Previous.FirstSeenAt
		rec.LastAlertedPriceRef = change.Previous.LastAlertedPriceRef
		rec.LastAlertedAt = change.Previous.LastAlertedAt
	}
	if alerted {
		price := cur.PriceRef
		rec.LastAlertedPriceRef = &price
		rec.LastAlertedAt = &now
	}
	return rec
}
