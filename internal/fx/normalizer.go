package fx

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CacheStore persists rate snapshots across process restarts, keyed by base
// currency. Implemented by the storage backends.
type CacheStore interface {
	GetRateSnapshot(ctx context.Context, base string) (*Snapshot, error)
	PutRateSnapshot(ctx context.Context, snap Snapshot) error
}

// NormalizerOptions tune the currency normaliser.
type NormalizerOptions struct {
	BaseCurrency      string
	ReferenceCurrency string
	Symbols           []string
	TTL               time.Duration
}

// Normalizer owns the rate cache and converts amounts into the reference
// currency. A snapshot past its TTL is refreshed before use; when the
// refresh fails the last known snapshot is served with Stale set so runs
// degrade instead of halting.
type Normalizer struct {
	opts   NormalizerOptions
	source Source
	cache  CacheStore
	logger zerolog.Logger

	mu  sync.Mutex
	mem map[string]Snapshot
}

// NewNormalizer constructs a Normalizer. cache may be nil when persistence
// is disabled.
func NewNormalizer(opts NormalizerOptions, source Source, cache CacheStore, logger zerolog.Logger) *Normalizer {
	if opts.BaseCurrency == "" {
		opts.BaseCurrency = "EUR"
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Normalizer{
		opts:   opts,
		source: source,
		cache:  cache,
		logger: logger.With().Str("component", "fx").Logger(),
		mem:    make(map[string]Snapshot),
	}
}

// Reference returns the reference currency all prices normalise into.
func (n *Normalizer) Reference() string {
	return strings.ToUpper(n.opts.ReferenceCurrency)
}

// GetRates returns a fresh snapshot for base, fetching and atomically
// replacing the cache entry when the cached one has expired. On fetch
// failure the stale snapshot is returned (Stale=true) rather than an error;
// only the total absence of any snapshot is an error.
func (n *Normalizer) GetRates(ctx context.Context, base string) (Snapshot, error) {
	if base == "" {
		base = n.opts.BaseCurrency
	}
	base = strings.ToUpper(base)
	now := time.Now().UTC()

	n.mu.Lock()
	defer n.mu.Unlock()

	if snap, ok := n.mem[base]; ok && snap.Fresh(now) {
		return snap, nil
	}

	var fallback *Snapshot
	if snap, ok := n.mem[base]; ok {
		fallback = &snap
	} else if n.cache != nil {
		stored, err := n.cache.GetRateSnapshot(ctx, base)
		if err != nil {
			n.logger.Warn().Err(err).Str("base", base).Msg("rate cache read failed")
		} else if stored != nil {
			restored := stored.withIdentity()
			if restored.Fresh(now) {
				n.mem[base] = restored
				return restored, nil
			}
			fallback = &restored
		}
	}

	fetched, err := n.source.FetchRates(ctx, base, n.opts.Symbols)
	if err == nil {
		fetched.TTL = n.opts.TTL
		n.mem[base] = fetched
		if n.cache != nil {
			if putErr := n.cache.PutRateSnapshot(ctx, fetched); putErr != nil {
				n.logger.Warn().Err(putErr).Str("base", base).Msg("rate cache write failed")
			}
		}
		return fetched, nil
	}

	if fallback != nil {
		stale := *fallback
		stale.Stale = true
		n.mem[base] = stale
		n.logger.Warn().Err(err).Str("base", base).
			Time("fetched_at", stale.FetchedAt).
			Msg("rate refresh failed; continuing with stale snapshot")
		return stale, nil
	}

	return Snapshot{}, fmt.Errorf("fetch rates for %s with no cached fallback: %w", base, err)
}

// ToReference converts amount from the given currency into the reference
// currency using snap.
func (n *Normalizer) ToReference(amount decimal.Decimal, currency string, snap Snapshot) (decimal.Decimal, error) {
	return snap.Convert(amount, currency, n.Reference())
}
