package shop

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var currencyCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Offer is one shop's reported price and availability for a product at a
// point in time. Prices are in the shop's own currency; normalisation into
// the reference currency happens in the monitoring engine.
type Offer struct {
	ProductID   string
	Title       string
	Brand       string
	URL         string
	Price       decimal.Decimal
	ListPrice   *decimal.Decimal
	Currency    string
	Available   bool
	Rating      *float64
	ReviewCount *int
	ImageURL    string
	ObservedAt  time.Time
}

// Validate enforces the offer invariants before the engine accepts it.
func (o *Offer) Validate() error {
	if o.ProductID == "" {
		return fmt.Errorf("offer %s: missing product id", o.URL)
	}
	if o.Price.IsNegative() {
		return fmt.Errorf("offer %s: negative price %s", o.URL, o.Price)
	}
	if !currencyCodeRe.MatchString(o.Currency) {
		return fmt.Errorf("offer %s: currency %q is not an ISO 4217 code", o.URL, o.Currency)
	}
	if o.ListPrice != nil && o.ListPrice.IsNegative() {
		return fmt.Errorf("offer %s: negative list price %s", o.URL, o.ListPrice)
	}
	return nil
}

// DiscountPct returns the advertised discount derived from the list price,
// as a percentage, or zero when no list price is known.
func (o *Offer) DiscountPct() decimal.Decimal {
	if o.ListPrice == nil || !o.ListPrice.IsPositive() {
		return decimal.Zero
	}
	if o.Price.GreaterThanOrEqual(*o.ListPrice) {
		return decimal.Zero
	}
	return o.ListPrice.Sub(o.Price).Div(*o.ListPrice).Mul(decimal.NewFromInt(100))
}

// CanonicalURL strips query and fragment so the same product page always
// yields the same identity.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.SplitN(raw, "?", 2)[0]
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// ProductID derives the shop-scoped stable identifier for a product URL.
func ProductID(rawURL string) string {
	return CanonicalURL(rawURL)
}
