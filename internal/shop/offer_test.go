package shop

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOfferValidate(t *testing.T) {
	valid := Offer{
		ProductID: "https://shop.example/p/1",
		URL:       "https://shop.example/p/1",
		Price:     decimal.NewFromInt(10),
		Currency:  "EUR",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid offer rejected: %v", err)
	}

	missingID := valid
	missingID.ProductID = ""
	if err := missingID.Validate(); err == nil {
		t.Fatal("missing product id should fail")
	}

	badCurrency := valid
	badCurrency.Currency = "euro"
	if err := badCurrency.Validate(); err == nil {
		t.Fatal("lowercase currency should fail")
	}

	negative := valid
	negative.Price = decimal.NewFromInt(-1)
	if err := negative.Validate(); err == nil {
		t.Fatal("negative price should fail")
	}
}

func TestOfferDiscountPct(t *testing.T) {
	list := decimal.NewFromInt(100)
	offer := Offer{Price: decimal.NewFromInt(80), ListPrice: &list}
	if got := offer.DiscountPct(); got.String() != "20" {
		t.Fatalf("DiscountPct = %s, want 20", got)
	}

	noList := Offer{Price: decimal.NewFromInt(80)}
	if !noList.DiscountPct().IsZero() {
		t.Fatal("missing list price should yield zero discount")
	}

	higher := Offer{Price: decimal.NewFromInt(120), ListPrice: &list}
	if !higher.DiscountPct().IsZero() {
		t.Fatal("price above list should yield zero discount")
	}
}

func TestCanonicalURL(t *testing.T) {
	got := CanonicalURL("https://shop.example/p/1?utm_source=x&colour=2#reviews")
	if got != "https://shop.example/p/1" {
		t.Fatalf("CanonicalURL = %q", got)
	}

	if ProductID("https://shop.example/p/1?a=b") != ProductID("https://shop.example/p/1?c=d") {
		t.Fatal("query variants of the same page must share an identity")
	}
}

func TestDedupLimit(t *testing.T) {
	urls := []string{"a", "b", "a", "", "c", "b", "d"}
	got := dedupLimit(urls, 3)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("dedupLimit = %v", got)
	}

	all := dedupLimit(urls, 0)
	if len(all) != 4 {
		t.Fatalf("unlimited dedup = %v", all)
	}
}
