package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// StateRecord is the persisted last-known view of one product, used to
// detect change between runs. Reference-currency fields carry the _ref
// suffix; Price/Currency keep the shop's original quote for display.
type StateRecord struct {
	ShopID              string
	ProductID           string
	Title               string
	Brand               string
	URL                 string
	Currency            string
	Price               decimal.Decimal
	PriceRef            decimal.Decimal
	ListPriceRef        *decimal.Decimal
	Available           bool
	LastAlertedPriceRef *decimal.Decimal
	LastAlertedAt       *time.Time
	FirstSeenAt         time.Time
	LastSeenAt          time.Time
}

// PriceSample is one append-only price history observation, kept for the
// show/export commands.
type PriceSample struct {
	ShopID       string
	ProductID    string
	ObservedAt   time.Time
	Currency     string
	Price        decimal.Decimal
	PriceRef     decimal.Decimal
	ListPriceRef *decimal.Decimal
}

// AlertRecord captures an emitted alert for auditing.
type AlertRecord struct {
	ID               int64
	ShopID           string
	ProductID        string
	Title            string
	URL              string
	PreviousPriceRef *decimal.Decimal
	CurrentPriceRef  decimal.Decimal
	DiscountPct      decimal.Decimal
	PriceDropPct     decimal.Decimal
	Channels         []string
	CreatedAt        time.Time
}
