package shop

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var priceTokenRe = regexp.MustCompile(`[0-9][0-9 .,\x{00a0}]*`)

// ParsePrice converts a locale-formatted price string into a decimal amount.
// Both "1.234,56" and "1,234.56" styles are recognised; the separator that
// appears last is taken to be the decimal mark.
func ParsePrice(s string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))

	if cleaned == "" {
		return decimal.Decimal{}, fmt.Errorf("empty price string")
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case hasComma:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: %w", s, err)
	}
	if price.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: negative amount", s)
	}
	return price, nil
}

// ExtractPrice pulls the first price-looking token out of free text using
// pattern (defaulting to a generic numeric run) and parses it.
func ExtractPrice(text, pattern string) (decimal.Decimal, bool) {
	re := priceTokenRe
	if pattern != "" {
		if custom, err := regexp.Compile(pattern); err == nil {
			re = custom
		}
	}
	match := re.FindString(text)
	if match == "" {
		return decimal.Decimal{}, false
	}
	price, err := ParsePrice(match)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}
