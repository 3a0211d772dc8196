package shop

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const listingHTML = `<html><body>
<div class="product-card"><a href="/produkt/stol?ref=listing">Stol</a></div>
<div class="product-card"><a href="/produkt/bord">Bord</a></div>
<div class="product-card"><a href="/produkt/stol">Stol igen</a></div>
</body></html>`

const productSelectorHTML = `<html><body>
<h1 class="product-title">Stol Eke</h1>
<span class="brand-name">Skandi</span>
<span class="price-now">1 299,00 kr</span>
<span class="price-was">1 599,00 kr</span>
</body></html>`

const productLDHTML = `<html><head>
<script type="application/ld+json">
{"@type":"Product","name":"Stol Eke","brand":{"name":"Skandi"},
 "offers":{"price":"1299.00","priceCurrency":"SEK","availability":"https://schema.org/InStock"},
 "aggregateRating":{"ratingValue":"4.5","reviewCount":"12"}}
</script></head><body></body></html>`

func staticSettings(base string) Settings {
	return Settings{
		Slug:        "skandi",
		ListingURLs: []string{base + "/listing"},
		Currency:    "SEK",
		SiteBase:    base,
		Selectors: map[string]string{
			"card":       ".product-card",
			"href":       "a",
			"title":      ".product-title",
			"price":      ".price-now",
			"list_price": ".price-was",
			"brand":      ".brand-name",
		},
	}
}

func TestStaticDiscoverURLs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewStatic(staticSettings(srv.URL), NewClient(ClientOptions{Timeout: time.Second}, zerolog.Nop()), zerolog.Nop())
	urls, err := adapter.DiscoverURLs(context.Background())
	if err != nil {
		t.Fatalf("DiscoverURLs: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 deduped urls, got %v", urls)
	}
	if urls[0] != srv.URL+"/produkt/stol" {
		t.Fatalf("query string should be stripped: %q", urls[0])
	}
}

func TestStaticDiscoverSkipsFailingListing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	settings := staticSettings(srv.URL)
	settings.ListingURLs = []string{srv.URL + "/bad", srv.URL + "/good"}
	adapter := NewStatic(settings, NewClient(ClientOptions{Timeout: time.Second}, zerolog.Nop()), zerolog.Nop())

	urls, err := adapter.DiscoverURLs(context.Background())
	if err != nil {
		t.Fatalf("one failing listing must not be fatal: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("good listing should still contribute, got %v", urls)
	}
}

func TestStaticFetchOfferSelectors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/produkt/stol", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(productSelectorHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewStatic(staticSettings(srv.URL), NewClient(ClientOptions{Timeout: time.Second}, zerolog.Nop()), zerolog.Nop())
	offer, err := adapter.FetchOffer(context.Background(), srv.URL+"/produkt/stol")
	if err != nil {
		t.Fatalf("FetchOffer: %v", err)
	}
	if offer == nil {
		t.Fatal("expected an offer")
	}
	if offer.Title != "Stol Eke" {
		t.Fatalf("title = %q", offer.Title)
	}
	if offer.Brand != "Skandi" {
		t.Fatalf("brand = %q", offer.Brand)
	}
	if offer.Price.String() != "1299" {
		t.Fatalf("price = %s", offer.Price)
	}
	if offer.ListPrice == nil || offer.ListPrice.String() != "1599" {
		t.Fatalf("list price = %v", offer.ListPrice)
	}
	if offer.Currency != "SEK" {
		t.Fatalf("currency = %q", offer.Currency)
	}
}

func TestStaticFetchOfferPrefersJSONLD(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/produkt/stol", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(productLDHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewStatic(staticSettings(srv.URL), NewClient(ClientOptions{Timeout: time.Second}, zerolog.Nop()), zerolog.Nop())
	offer, err := adapter.FetchOffer(context.Background(), srv.URL+"/produkt/stol")
	if err != nil {
		t.Fatalf("FetchOffer: %v", err)
	}
	if offer == nil {
		t.Fatal("expected an offer")
	}
	if offer.Price.String() != "1299" {
		t.Fatalf("price = %s", offer.Price)
	}
	if offer.Rating == nil || *offer.Rating != 4.5 {
		t.Fatalf("rating = %v", offer.Rating)
	}
	if offer.ReviewCount == nil || *offer.ReviewCount != 12 {
		t.Fatalf("review count = %v", offer.ReviewCount)
	}
	if !offer.Available {
		t.Fatal("InStock availability should mark the offer available")
	}
}

func TestStaticFetchOfferGoneIsAbsence(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/produkt/borta", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewStatic(staticSettings(srv.URL), NewClient(ClientOptions{Timeout: time.Second}, zerolog.Nop()), zerolog.Nop())
	offer, err := adapter.FetchOffer(context.Background(), srv.URL+"/produkt/borta")
	if err != nil {
		t.Fatalf("404 must not be an error: %v", err)
	}
	if offer != nil {
		t.Fatal("gone product should yield no offer")
	}
}

func TestStaticFetchOfferSelectorsMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/produkt/stol", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>redesigned page</p></body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewStatic(staticSettings(srv.URL), NewClient(ClientOptions{Timeout: time.Second}, zerolog.Nop()), zerolog.Nop())
	_, err := adapter.FetchOffer(context.Background(), srv.URL+"/produkt/stol")
	if !IsParseError(err) {
		t.Fatalf("selectors matching nothing should be a ParseError, got %v", err)
	}
}
