package shop

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// Rendered serves shops whose listings only exist after client-side
// JavaScript runs. Pages are rendered in headless Chrome and then parsed
// with the same selector logic as the static adapter.
type Rendered struct {
	settings  Settings
	userAgent string
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewRendered builds a headless-browser adapter.
func NewRendered(settings Settings, clientOpts ClientOptions, logger zerolog.Logger) *Rendered {
	ua := clientOpts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := clientOpts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Rendered{
		settings:  settings,
		userAgent: ua,
		timeout:   timeout,
		logger:    logger.With().Str("component", "adapter").Str("shop", settings.Slug).Logger(),
	}
}

// Slug returns the shop identifier this adapter serves.
func (r *Rendered) Slug() string { return r.settings.Slug }

// DiscoverURLs renders each listing page before applying the card selector.
func (r *Rendered) DiscoverURLs(ctx context.Context) ([]string, error) {
	var urls []string
	for _, listing := range r.settings.ListingURLs {
		html, err := r.renderHTML(ctx, listing)
		if err != nil {
			if ctx.Err() != nil {
				return dedupLimit(urls, r.settings.SampleLimit), ctx.Err()
			}
			r.logger.Warn().Err(err).Str("listing", listing).Msg("listing render failed; skipping")
			continue
		}

		found, err := discoverFromHTML(r.settings, listing, html)
		if err != nil {
			r.logger.Warn().Err(err).Str("listing", listing).Msg("listing page unparsable; skipping")
			continue
		}
		urls = append(urls, found...)
	}
	return dedupLimit(urls, r.settings.SampleLimit), nil
}

// FetchOffer renders one product page and parses it.
func (r *Rendered) FetchOffer(ctx context.Context, productURL string) (*Offer, error) {
	html, err := r.renderHTML(ctx, productURL)
	if err != nil {
		return nil, err
	}
	return offerFromHTML(r.settings, productURL, html)
}

func (r *Rendered) renderHTML(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(r.userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise.
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	runCtx, cancelTimeout := context.WithTimeout(browserCtx, r.timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}
	return html, nil
}

var _ Adapter = (*Rendered)(nil)
