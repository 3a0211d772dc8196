package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Event carries everything a channel needs to render one price alert.
// Reference-currency amounts are pre-converted; the original shop price
// rides along for display.
type Event struct {
	ShopID    string
	ShopName  string
	ProductID string
	Title     string
	Brand     string
	URL       string
	ImageURL  string

	PreviousPriceRef *decimal.Decimal
	CurrentPriceRef  decimal.Decimal
	RefCurrency      string

	OriginalPrice    decimal.Decimal
	OriginalCurrency string

	DiscountPct  decimal.Decimal
	PriceDropPct decimal.Decimal

	ObservedAt time.Time
}

// Notifier delivers alerts to one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event Event) error
}

// Multi fans one event out to every configured channel. Delivery failures
// are joined so one broken channel never hides the others.
type Multi struct {
	notifiers []Notifier
}

// NewMulti builds a fan-out notifier.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Names lists the configured channel names.
func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Name implements Notifier.
func (m *Multi) Name() string {
	return strings.Join(m.Names(), ",")
}

// Notify sends the event to every channel and joins the failures.
func (m *Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = (*Multi)(nil)

func formatAmount(d decimal.Decimal, currency string) string {
	return fmt.Sprintf("%s %s", d.StringFixed(2), currency)
}

func formatPct(d decimal.Decimal) string {
	return d.StringFixed(1) + "%"
}
