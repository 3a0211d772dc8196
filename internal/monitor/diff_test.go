package monitor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricepilot/internal/shop"
	"pricepilot/internal/storage"
)

func normOffer(priceRef string, listRef *string) NormalizedOffer {
	norm := NormalizedOffer{
		Offer: shop.Offer{
			ProductID:  "https://shop.example/p/1",
			URL:        "https://shop.example/p/1",
			Currency:   "EUR",
			Available:  true,
			ObservedAt: time.Now().UTC(),
		},
		PriceRef:    decimal.RequireFromString(priceRef),
		RefCurrency: "SEK",
	}
	if listRef != nil {
		list := decimal.RequireFromString(*listRef)
		norm.ListPriceRef = &list
	}
	return norm
}

func prevState(priceRef string, lastAlerted *string) *storage.StateRecord {
	rec := &storage.StateRecord{
		ShopID:    "test",
		ProductID: "https://shop.example/p/1",
		PriceRef:  decimal.RequireFromString(priceRef),
	}
	if lastAlerted != nil {
		last := decimal.RequireFromString(*lastAlerted)
		rec.LastAlertedPriceRef = &last
	}
	return rec
}

func strPtr(s string) *string { return &s }

func TestDiffComputesPercentages(t *testing.T) {
	change := Diff(prevState("100", nil), normOffer("80", strPtr("120")))

	if change.PriceDropPct.String() != "20" {
		t.Fatalf("drop = %s, want 20", change.PriceDropPct)
	}
	want := decimal.RequireFromString("120").Sub(decimal.RequireFromString("80")).
		Div(decimal.RequireFromString("120")).Mul(decimal.NewFromInt(100))
	if !change.DiscountPct.Equal(want) {
		t.Fatalf("discount = %s, want %s", change.DiscountPct, want)
	}
}

func TestDiffPriceIncreaseIsNegativeDrop(t *testing.T) {
	change := Diff(prevState("100", nil), normOffer("110", nil))
	if !change.PriceDropPct.IsNegative() {
		t.Fatalf("drop = %s, want negative", change.PriceDropPct)
	}
}

func TestDiffFirstSighting(t *testing.T) {
	change := Diff(nil, normOffer("80", nil))
	if !change.FirstSighting() {
		t.Fatal("nil previous is a first sighting")
	}
	if !change.PriceDropPct.IsZero() {
		t.Fatalf("first sighting has no drop, got %s", change.PriceDropPct)
	}
	if !change.AlertWorthy() {
		t.Fatal("first sighting is presentable; the filter applies the policy")
	}
}

func TestAlertWorthyDedup(t *testing.T) {
	// Never alerted before: the last observed price stands in for the marker.
	if Diff(prevState("100", nil), normOffer("100", nil)).AlertWorthy() {
		t.Fatal("unchanged price without a marker must stay silent")
	}
	if !Diff(prevState("100", nil), normOffer("90", nil)).AlertWorthy() {
		t.Fatal("moved price without a marker is worthy")
	}

	// Same price as the last alert: silent.
	if Diff(prevState("80", strPtr("80")), normOffer("80", nil)).AlertWorthy() {
		t.Fatal("price equal to last alerted must stay silent")
	}

	// Any different price moves past the marker.
	if !Diff(prevState("80", strPtr("80")), normOffer("75", nil)).AlertWorthy() {
		t.Fatal("lower price than last alerted is worthy")
	}
	if !Diff(prevState("80", strPtr("80")), normOffer("100", nil)).AlertWorthy() {
		t.Fatal("higher price than last alerted is worthy; the filter rejects it")
	}
}
