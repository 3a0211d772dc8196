package shop

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const asosListingHTML = `<html><body>
<a href="/us/nike/nike-air-max/prd/203216097?clr=white">Air Max</a>
<a href="/us/help/returns">Returns</a>
<a href="/us/adidas/samba/prd/204111222">Samba</a>
<a href="/us/nike/nike-air-max/prd/203216097">Air Max dup</a>
</body></html>`

const asosProductHTML = `<html><head>
<script type="application/ld+json">
{"@type":"Product","name":"Nike Air Max","brand":{"@type":"Brand","name":"Nike"},
 "image":["https://images.asos.com/air-max.jpg"],
 "offers":[{"price":64.99,"priceCurrency":"USD","availability":"https://schema.org/InStock"}],
 "aggregateRating":{"ratingValue":4.2,"reviewCount":310}}
</script></head><body>
<span data-testid="previous-price">$90.00</span>
</body></html>`

const asosNoOfferHTML = `<html><head>
<script type="application/ld+json">
{"@type":"Product","name":"Nike Air Max","brand":"Nike"}
</script></head><body></body></html>`

func asosAdapter(srv *httptest.Server) *Asos {
	settings := Settings{
		Slug:        "asos",
		ListingURLs: []string{srv.URL + "/us/men/sale"},
		Currency:    "USD",
		SiteBase:    srv.URL,
	}
	return NewAsos(settings, NewClient(ClientOptions{Timeout: time.Second}, zerolog.Nop()), zerolog.Nop())
}

func TestAsosDiscoverURLs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/us/men/sale", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(asosListingHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	urls, err := asosAdapter(srv).DiscoverURLs(context.Background())
	if err != nil {
		t.Fatalf("DiscoverURLs: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 product urls, got %v", urls)
	}
	for _, u := range urls {
		if !strings.Contains(u, "/prd/") {
			t.Fatalf("non-product url leaked: %q", u)
		}
		if strings.Contains(u, "?") {
			t.Fatalf("query string should be stripped: %q", u)
		}
	}
}

func TestAsosFetchOffer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/us/nike/nike-air-max/prd/203216097", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(asosProductHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	offer, err := asosAdapter(srv).FetchOffer(context.Background(), srv.URL+"/us/nike/nike-air-max/prd/203216097")
	if err != nil {
		t.Fatalf("FetchOffer: %v", err)
	}
	if offer == nil {
		t.Fatal("expected an offer")
	}
	if offer.Title != "Nike Air Max" {
		t.Fatalf("title = %q", offer.Title)
	}
	if offer.Brand != "Nike" {
		t.Fatalf("brand = %q", offer.Brand)
	}
	if offer.Price.String() != "64.99" {
		t.Fatalf("price = %s", offer.Price)
	}
	if offer.Currency != "USD" {
		t.Fatalf("currency = %q", offer.Currency)
	}
	if offer.ListPrice == nil || offer.ListPrice.String() != "90" {
		t.Fatalf("previous price = %v", offer.ListPrice)
	}
	if offer.ImageURL != "https://images.asos.com/air-max.jpg" {
		t.Fatalf("image = %q", offer.ImageURL)
	}
	if offer.Rating == nil || *offer.Rating != 4.2 {
		t.Fatalf("rating = %v", offer.Rating)
	}
}

func TestAsosFetchOfferNoPrice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prd/1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(asosNoOfferHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	offer, err := asosAdapter(srv).FetchOffer(context.Background(), srv.URL+"/prd/1")
	if err != nil {
		t.Fatalf("missing price must not be an error: %v", err)
	}
	if offer != nil {
		t.Fatal("product without a price should yield no offer")
	}
}
