package shop

import (
	"testing"
)

func TestParsePriceLocales(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"1234,56", "1234.56"},
		{"1234.56", "1234.56"},
		{"999", "999"},
		{"1 299,00", "1299"},
		{"1 299,00", "1299"},
		{"12.345.678,90", "12345678.9"},
		{"0,99", "0.99"},
	}

	for _, tc := range cases {
		got, err := ParsePrice(tc.in)
		if err != nil {
			t.Fatalf("ParsePrice(%q): %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ParsePrice(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParsePriceRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "-12,50"} {
		if _, err := ParsePrice(in); err == nil {
			t.Fatalf("ParsePrice(%q) should fail", in)
		}
	}
}

func TestExtractPrice(t *testing.T) {
	price, ok := ExtractPrice("Now only 1.299,95 kr", "")
	if !ok {
		t.Fatal("expected a price token")
	}
	if price.String() != "1299.95" {
		t.Fatalf("got %s", price)
	}

	if _, ok := ExtractPrice("sold out", ""); ok {
		t.Fatal("no numeric token should yield no price")
	}
}

func TestExtractPriceCustomPattern(t *testing.T) {
	price, ok := ExtractPrice("was 100,00 now 75,00", `[0-9]+,[0-9]{2}`)
	if !ok {
		t.Fatal("expected a match")
	}
	if price.String() != "100" {
		t.Fatalf("custom pattern should pick the first token, got %s", price)
	}
}
