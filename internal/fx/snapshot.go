package fx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownCurrency marks a currency code absent from a snapshot's rate
// table. Callers skip the affected offer for the run instead of failing.
var ErrUnknownCurrency = errors.New("fx: unknown currency")

// Snapshot is an immutable set of exchange rates relative to Base, pinned
// for one monitoring run. Stale is set when the snapshot is served past its
// TTL because a refresh failed.
type Snapshot struct {
	Base      string
	Rates     map[string]decimal.Decimal
	FetchedAt time.Time
	TTL       time.Duration
	Stale     bool
}

// Fresh reports whether the snapshot is still within its TTL at now.
func (s Snapshot) Fresh(now time.Time) bool {
	if s.TTL <= 0 {
		return false
	}
	return now.Sub(s.FetchedAt) < s.TTL
}

// Convert maps amount from one currency to another using this snapshot's
// Base-relative rates: amount * rates[to] / rates[from].
func (s Snapshot) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return amount, nil
	}

	fromRate, ok := s.Rates[from]
	if !ok || !fromRate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, from)
	}
	toRate, ok := s.Rates[to]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, to)
	}

	return amount.Mul(toRate).Div(fromRate), nil
}

// withIdentity guarantees the invariant that the base currency always maps
// to exactly 1 in its own rate table.
func (s Snapshot) withIdentity() Snapshot {
	if s.Rates == nil {
		s.Rates = make(map[string]decimal.Decimal, 1)
	}
	s.Rates[strings.ToUpper(s.Base)] = decimal.NewFromInt(1)
	return s
}
