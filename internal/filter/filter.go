package filter

import (
	"strings"

	"github.com/shopspring/decimal"

	"pricepilot/internal/config"
)

// Config is a compiled, read-only filter: brand membership is
// case-insensitive and the discount threshold is a percentage
// (10 means 10%).
type Config struct {
	includeBrands      map[string]struct{}
	excludeBrands      map[string]struct{}
	minDiscountPct     decimal.Decimal
	alertFirstSighting bool
}

// Candidate is the filter's view of an alert candidate.
type Candidate struct {
	Brand         string
	DiscountPct   decimal.Decimal
	PriceDropPct  decimal.Decimal
	FirstSighting bool
}

// New compiles a filter from raw settings.
func New(include, exclude []string, minDiscountPct float64, alertFirstSighting bool) Config {
	return Config{
		includeBrands:      brandSet(include),
		excludeBrands:      brandSet(exclude),
		minDiscountPct:     decimal.NewFromFloat(minDiscountPct),
		alertFirstSighting: alertFirstSighting,
	}
}

// FromConfig merges the global filter settings with a shop's overrides:
// brand lists are unioned, a positive per-shop threshold replaces the
// global one, and the first-sighting policy is granted by either level.
func FromConfig(global config.FilterConfig, override *config.FilterConfig) Config {
	include := global.IncludeBrands
	exclude := global.ExcludeBrands
	minPct := global.MinDiscountPct
	alertFirst := global.AlertFirstSighting

	if override != nil {
		include = append(append([]string{}, include...), override.IncludeBrands...)
		exclude = append(append([]string{}, exclude...), override.ExcludeBrands...)
		if override.MinDiscountPct > 0 {
			minPct = override.MinDiscountPct
		}
		alertFirst = alertFirst || override.AlertFirstSighting
	}

	return New(include, exclude, minPct, alertFirst)
}

// Accept reports whether the candidate is alert-worthy under this filter.
// An empty allowlist accepts every brand; the threshold applies to the
// better of the advertised discount and the observed price drop.
func (c Config) Accept(cand Candidate) bool {
	brand := strings.ToLower(strings.TrimSpace(cand.Brand))

	if _, blocked := c.excludeBrands[brand]; blocked {
		return false
	}
	if len(c.includeBrands) > 0 {
		if _, ok := c.includeBrands[brand]; !ok {
			return false
		}
	}

	if cand.FirstSighting && !c.alertFirstSighting {
		return false
	}

	best := cand.DiscountPct
	if cand.PriceDropPct.GreaterThan(best) {
		best = cand.PriceDropPct
	}
	return best.GreaterThanOrEqual(c.minDiscountPct)
}

// MinDiscountPct exposes the compiled threshold, mostly for logging.
func (c Config) MinDiscountPct() decimal.Decimal {
	return c.minDiscountPct
}

func brandSet(brands []string) map[string]struct{} {
	set := make(map[string]struct{}, len(brands))
	for _, b := range brands {
		b = strings.ToLower(strings.TrimSpace(b))
		if b != "" {
			set[b] = struct{}{}
		}
	}
	return set
}
