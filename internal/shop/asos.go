package shop

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const asosPrevPriceSelectors = `[data-testid="previous-price"], .previous-price, .price .previous, .rrp`

// Asos scrapes asos.com: product links carry a /prd/ path segment and
// product pages embed a JSON-LD Product node with the live price.
type Asos struct {
	settings Settings
	client   *Client
	logger   zerolog.Logger
}

// NewAsos builds the asos adapter.
func NewAsos(settings Settings, client *Client, logger zerolog.Logger) *Asos {
	if settings.SiteBase == "" {
		settings.SiteBase = "https://www.asos.com"
	}
	return &Asos{
		settings: settings,
		client:   client,
		logger:   logger.With().Str("component", "adapter").Str("shop", settings.Slug).Logger(),
	}
}

// Slug returns the shop identifier this adapter serves.
func (a *Asos) Slug() string { return a.settings.Slug }

// DiscoverURLs collects /prd/ product links from each configured listing
// page. A failing listing page is logged and skipped, never fatal.
func (a *Asos) DiscoverURLs(ctx context.Context) ([]string, error) {
	var urls []string
	for _, listing := range a.settings.ListingURLs {
		html, err := a.client.GetHTML(ctx, listing)
		if err != nil {
			if ctx.Err() != nil {
				return dedupLimit(urls, a.settings.SampleLimit), ctx.Err()
			}
			a.logger.Warn().Err(err).Str("listing", listing).Msg("listing page failed; skipping")
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			a.logger.Warn().Err(err).Str("listing", listing).Msg("listing page unparsable; skipping")
			continue
		}

		doc.Find(`a[href*="/prd/"]`).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			u := resolveHref(a.settings, listing, href)
			if strings.Contains(u, "/prd/") {
				urls = append(urls, u)
			}
		})
	}
	return dedupLimit(urls, a.settings.SampleLimit), nil
}

// FetchOffer parses one product page. A missing price means the product has
// no current offer and yields (nil, nil) rather than an error.
func (a *Asos) FetchOffer(ctx context.Context, productURL string) (*Offer, error) {
	html, err := a.client.GetHTML(ctx, productURL)
	if err != nil {
		if errors.Is(err, ErrGone) {
			return nil, nil
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ParseError{URL: productURL, Reason: "invalid html: " + err.Error()}
	}

	offer := &Offer{
		ProductID:  ProductID(productURL),
		URL:        CanonicalURL(productURL),
		Currency:   a.settings.fallbackCurrency(),
		Available:  true,
		ObservedAt: time.Now().UTC(),
	}

	product, ok := findLDProduct(doc)
	if ok {
		offer.Title = product.Name
		offer.Brand = product.Brand.Name
		offer.ImageURL = string(product.Image)
		offer.Rating, offer.ReviewCount = product.rating()
		offer.Available = product.Offers.inStock()

		priceStr, currency := product.Offers.price()
		if currency != "" {
			offer.Currency = strings.ToUpper(currency)
		}
		if priceStr != "" {
			price, perr := ParsePrice(priceStr)
			if perr == nil {
				offer.Price = price
			} else {
				ok = false
			}
		} else {
			ok = false
		}
	}

	if !ok {
		// No Product node or no usable price: the page is live but there is
		// nothing on offer, which is absence rather than failure.
		return nil, nil
	}

	if offer.Title == "" {
		if title := doc.Find(`h1, [data-auto-id="productTitle"]`).First().Text(); title != "" {
			offer.Title = strings.TrimSpace(title)
		} else {
			offer.Title = offer.URL
		}
	}

	if prev := doc.Find(asosPrevPriceSelectors).First(); prev.Length() > 0 {
		if was, found := ExtractPrice(prev.Text(), ""); found && was.IsPositive() {
			offer.ListPrice = &was
		}
	}

	if offer.ListPrice != nil && offer.ListPrice.LessThanOrEqual(offer.Price) {
		offer.ListPrice = nil
	}
	return offer, nil
}

var _ Adapter = (*Asos)(nil)
