package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pricepilot/internal/shop"
)

// retryPolicy retries transient fetch failures with exponential backoff.
// Parse failures and gone products are permanent and returned immediately.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

func (p retryPolicy) do(ctx context.Context, logger zerolog.Logger, url string, fn func(context.Context) (*shop.Offer, error)) (*shop.Offer, error) {
	attempts := p.maxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.baseDelay
	if delay <= 0 {
		delay = time.Second
	}

	var offer *shop.Offer
	var err error
	for attempt := 1; ; attempt++ {
		offer, err = fn(ctx)
		if err == nil || !shop.IsFetchError(err) || attempt >= attempts {
			return offer, err
		}

		logger.Warn().Err(err).
			Str("url", url).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("fetch failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
