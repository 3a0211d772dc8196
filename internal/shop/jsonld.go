package shop

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ldProduct is the subset of a schema.org Product node the adapters use.
type ldProduct struct {
	Type   ldString           `json:"@type"`
	Name   string             `json:"name"`
	Brand  ldBrand            `json:"brand"`
	Image  ldString           `json:"image"`
	Offers ldOffers           `json:"offers"`
	Rating *ldAggregateRating `json:"aggregateRating"`
}

type ldAggregateRating struct {
	RatingValue ldString `json:"ratingValue"`
	ReviewCount ldString `json:"reviewCount"`
}

// ldBrand decodes brand values that appear either as a string or as an
// object with a name field.
type ldBrand struct {
	Name string
}

func (b *ldBrand) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		b.Name = asString
		return nil
	}
	var asObject struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &asObject); err == nil {
		b.Name = asObject.Name
	}
	return nil
}

// ldString tolerates strings, numbers, and single-element arrays.
type ldString string

func (s *ldString) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*s = ldString(asString)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err == nil {
		*s = ldString(asNumber.String())
		return nil
	}
	var asList []ldString
	if err := json.Unmarshal(data, &asList); err == nil && len(asList) > 0 {
		*s = asList[0]
	}
	return nil
}

type ldOffer struct {
	Price              ldString `json:"price"`
	PriceCurrency      string   `json:"priceCurrency"`
	Availability       string   `json:"availability"`
	PriceSpecification struct {
		Price         ldString `json:"price"`
		PriceCurrency string   `json:"priceCurrency"`
	} `json:"priceSpecification"`
}

// ldOffers decodes offers that appear either as an object or as an array.
type ldOffers struct {
	First *ldOffer
}

func (o *ldOffers) UnmarshalJSON(data []byte) error {
	var single ldOffer
	if err := json.Unmarshal(data, &single); err == nil {
		o.First = &single
		return nil
	}
	var list []ldOffer
	if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
		o.First = &list[0]
	}
	return nil
}

func (o *ldOffers) price() (string, string) {
	if o.First == nil {
		return "", ""
	}
	price := string(o.First.Price)
	currency := o.First.PriceCurrency
	if price == "" {
		price = string(o.First.PriceSpecification.Price)
	}
	if currency == "" {
		currency = o.First.PriceSpecification.PriceCurrency
	}
	return price, currency
}

func (o *ldOffers) inStock() bool {
	if o.First == nil || o.First.Availability == "" {
		return true
	}
	return !strings.Contains(strings.ToLower(o.First.Availability), "outofstock")
}

// findLDProduct scans a document's JSON-LD blocks for the first Product
// node. Malformed blocks are skipped, matching the tolerant behaviour
// shops require.
func findLDProduct(doc *goquery.Document) (*ldProduct, bool) {
	var found *ldProduct
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return true
		}

		var nodes []json.RawMessage
		if strings.HasPrefix(raw, "[") {
			if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
				return true
			}
		} else {
			nodes = []json.RawMessage{json.RawMessage(raw)}
		}

		for _, node := range nodes {
			var product ldProduct
			if err := json.Unmarshal(node, &product); err != nil {
				continue
			}
			if string(product.Type) == "Product" {
				found = &product
				return false
			}
		}
		return true
	})
	return found, found != nil
}

func (p *ldProduct) rating() (*float64, *int) {
	if p.Rating == nil {
		return nil, nil
	}
	var ratingPtr *float64
	var countPtr *int
	if v, err := strconv.ParseFloat(string(p.Rating.RatingValue), 64); err == nil {
		ratingPtr = &v
	}
	if n, err := strconv.Atoi(string(p.Rating.ReviewCount)); err == nil {
		countPtr = &n
	}
	return ratingPtr, countPtr
}
