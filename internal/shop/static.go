package shop

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

// Static is the config-driven adapter: listing cards and product fields are
// located with CSS selectors supplied per shop, with JSON-LD preferred when
// the page carries it.
type Static struct {
	settings Settings
	client   *Client
	logger   zerolog.Logger
}

// NewStatic builds a selector-driven adapter.
func NewStatic(settings Settings, client *Client, logger zerolog.Logger) *Static {
	return &Static{
		settings: settings,
		client:   client,
		logger:   logger.With().Str("component", "adapter").Str("shop", settings.Slug).Logger(),
	}
}

// Slug returns the shop identifier this adapter serves.
func (s *Static) Slug() string { return s.settings.Slug }

// DiscoverURLs walks each listing page's card selector and resolves product
// links. Failing listing pages are logged and skipped.
func (s *Static) DiscoverURLs(ctx context.Context) ([]string, error) {
	var urls []string
	for _, listing := range s.settings.ListingURLs {
		html, err := s.client.GetHTML(ctx, listing)
		if err != nil {
			if ctx.Err() != nil {
				return dedupLimit(urls, s.settings.SampleLimit), ctx.Err()
			}
			s.logger.Warn().Err(err).Str("listing", listing).Msg("listing page failed; skipping")
			continue
		}

		found, err := discoverFromHTML(s.settings, listing, html)
		if err != nil {
			s.logger.Warn().Err(err).Str("listing", listing).Msg("listing page unparsable; skipping")
			continue
		}
		urls = append(urls, found...)
	}
	return dedupLimit(urls, s.settings.SampleLimit), nil
}

// FetchOffer retrieves one product page and parses it.
func (s *Static) FetchOffer(ctx context.Context, productURL string) (*Offer, error) {
	html, err := s.client.GetHTML(ctx, productURL)
	if err != nil {
		if errors.Is(err, ErrGone) {
			return nil, nil
		}
		return nil, err
	}
	return offerFromHTML(s.settings, productURL, html)
}

// discoverFromHTML applies the card/href selectors to one listing page.
func discoverFromHTML(settings Settings, pageURL, html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ParseError{URL: pageURL, Reason: "invalid html: " + err.Error()}
	}

	cardSel := settings.selector("card")
	if cardSel == "" {
		return nil, &ParseError{URL: pageURL, Reason: "selectors.card not configured"}
	}
	hrefSel := settings.selector("href")
	if hrefSel == "" {
		hrefSel = "a"
	}

	var urls []string
	doc.Find(cardSel).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find(hrefSel).First().Attr("href")
		if !ok {
			if h, selfOK := card.Attr("href"); selfOK {
				href, ok = h, true
			}
		}
		if !ok {
			return
		}
		if u := resolveHref(settings, pageURL, href); u != "" {
			urls = append(urls, u)
		}
	})
	return urls, nil
}

// offerFromHTML parses one product page: JSON-LD first, configured selectors
// as fallback. Shared by the static and rendered adapters.
func offerFromHTML(settings Settings, productURL, html string) (*Offer, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ParseError{URL: productURL, Reason: "invalid html: " + err.Error()}
	}

	offer := &Offer{
		ProductID:  ProductID(productURL),
		URL:        CanonicalURL(productURL),
		Currency:   settings.fallbackCurrency(),
		Available:  true,
		ObservedAt: time.Now().UTC(),
	}

	if product, ok := findLDProduct(doc); ok {
		if priceStr, currency := product.Offers.price(); priceStr != "" {
			if price, perr := ParsePrice(priceStr); perr == nil {
				offer.Price = price
				offer.Title = product.Name
				offer.Brand = product.Brand.Name
				offer.ImageURL = string(product.Image)
				offer.Available = product.Offers.inStock()
				offer.Rating, offer.ReviewCount = product.rating()
				if currency != "" {
					offer.Currency = strings.ToUpper(currency)
				}
				if offer.Title == "" {
					offer.Title = offer.URL
				}
				applyListPriceSelector(settings, doc, offer)
				return offer, nil
			}
		}
	}

	titleSel := settings.selector("title")
	priceSel := settings.selector("price")
	if titleSel == "" || priceSel == "" {
		// Neither JSON-LD nor selectors can produce a price: absence.
		return nil, nil
	}

	titleEl := doc.Find(titleSel).First()
	priceEl := doc.Find(priceSel).First()
	if titleEl.Length() == 0 || priceEl.Length() == 0 {
		return nil, &ParseError{URL: productURL, Reason: "configured title/price selectors matched nothing"}
	}

	price, found := ExtractPrice(priceEl.Text(), settings.selector("price_regex"))
	if !found {
		return nil, nil
	}

	offer.Title = strings.TrimSpace(titleEl.Text())
	offer.Price = price
	if brandSel := settings.selector("brand"); brandSel != "" {
		offer.Brand = strings.TrimSpace(doc.Find(brandSel).First().Text())
	}
	applyListPriceSelector(settings, doc, offer)
	return offer, nil
}

func applyListPriceSelector(settings Settings, doc *goquery.Document, offer *Offer) {
	sel := settings.selector("list_price")
	if sel == "" {
		return
	}
	el := doc.Find(sel).First()
	if el.Length() == 0 {
		return
	}
	if was, found := ExtractPrice(el.Text(), settings.selector("price_regex")); found && was.GreaterThan(offer.Price) {
		offer.ListPrice = &was
	}
}

var _ Adapter = (*Static)(nil)
