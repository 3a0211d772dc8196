package monitor

import (
	"github.com/shopspring/decimal"

	"pricepilot/internal/shop"
	"pricepilot/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// NormalizedOffer is a fetched offer with its amounts converted into the
// reference currency. The shop-native amounts stay on the embedded Offer.
type NormalizedOffer struct {
	shop.Offer

	PriceRef     decimal.Decimal
	ListPriceRef *decimal.Decimal
	RefCurrency  string
}

// Change compares one normalized offer against the stored state for the
// same product. Previous is nil on first sighting.
type Change struct {
	Previous *storage.StateRecord
	Current  NormalizedOffer

	// DiscountPct is the shop-advertised discount against the list price.
	DiscountPct decimal.Decimal
	// PriceDropPct is the drop against the previously observed reference
	// price. Negative when the price went up.
	PriceDropPct decimal.Decimal
}

// Diff computes discount and drop percentages for one observation.
func Diff(previous *storage.StateRecord, current NormalizedOffer) Change {
	change := Change{Previous: previous, Current: current}

	if current.ListPriceRef != nil && current.ListPriceRef.IsPositive() {
		change.DiscountPct = current.ListPriceRef.Sub(current.PriceRef).
			Div(*current.ListPriceRef).Mul(hundred)
	}
	if previous != nil && previous.PriceRef.IsPositive() {
		change.PriceDropPct = previous.PriceRef.Sub(current.PriceRef).
			Div(previous.PriceRef).Mul(hundred)
	}
	return change
}

// FirstSighting reports whether the product has no stored state yet.
func (c Change) FirstSighting() bool {
	return c.Previous == nil
}

// AlertWorthy applies the dedup rule: a product is worth alerting on when
// it has never been seen, or when its reference price differs from the
// price it last alerted at. Before the first alert the last observed price
// stands in for the marker, so a price that holds steady across runs stays
// silent no matter how large its discount is.
func (c Change) AlertWorthy() bool {
	if c.Previous == nil {
		return true
	}
	last := c.Previous.LastAlertedPriceRef
	if last == nil {
		return !c.Current.PriceRef.Equal(c.Previous.PriceRef)
	}
	return !c.Current.PriceRef.Equal(*last)
}
