package fx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type fakeSource struct {
	snap  Snapshot
	err   error
	calls int
}

func (f *fakeSource) FetchRates(_ context.Context, base string, _ []string) (Snapshot, error) {
	f.calls++
	if f.err != nil {
		return Snapshot{}, f.err
	}
	snap := f.snap
	snap.Base = base
	snap.FetchedAt = time.Now().UTC()
	return snap.withIdentity(), nil
}

type fakeCache struct {
	snaps map[string]Snapshot
	puts  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{snaps: make(map[string]Snapshot)}
}

func (f *fakeCache) GetRateSnapshot(_ context.Context, base string) (*Snapshot, error) {
	if snap, ok := f.snaps[base]; ok {
		return &snap, nil
	}
	return nil, nil
}

func (f *fakeCache) PutRateSnapshot(_ context.Context, snap Snapshot) error {
	f.puts++
	f.snaps[snap.Base] = snap
	return nil
}

func testRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"SEK": decimal.RequireFromString("11.32"),
		"USD": decimal.RequireFromString("1.08"),
	}
}

func newTestNormalizer(source Source, cache CacheStore) *Normalizer {
	return NewNormalizer(NormalizerOptions{
		BaseCurrency:      "EUR",
		ReferenceCurrency: "SEK",
		Symbols:           []string{"SEK", "USD"},
		TTL:               time.Hour,
	}, source, cache, zerolog.Nop())
}

func TestGetRatesFetchesAndMemoizes(t *testing.T) {
	source := &fakeSource{snap: Snapshot{Rates: testRates()}}
	cache := newFakeCache()
	n := newTestNormalizer(source, cache)

	snap, err := n.GetRates(context.Background(), "")
	if err != nil {
		t.Fatalf("GetRates: %v", err)
	}
	if snap.Base != "EUR" {
		t.Fatalf("base = %q", snap.Base)
	}
	if snap.Stale {
		t.Fatal("fresh fetch must not be stale")
	}
	if cache.puts != 1 {
		t.Fatalf("snapshot should be persisted once, got %d", cache.puts)
	}

	if _, err := n.GetRates(context.Background(), ""); err != nil {
		t.Fatalf("second GetRates: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("fresh snapshot should be memoized, source called %d times", source.calls)
	}
}

func TestGetRatesStaleFallback(t *testing.T) {
	source := &fakeSource{snap: Snapshot{Rates: testRates()}}
	cache := newFakeCache()
	n := newTestNormalizer(source, cache)

	if _, err := n.GetRates(context.Background(), ""); err != nil {
		t.Fatalf("seed fetch: %v", err)
	}

	// Expire the memoized snapshot and break the source.
	n.mu.Lock()
	snap := n.mem["EUR"]
	snap.FetchedAt = snap.FetchedAt.Add(-2 * time.Hour)
	n.mem["EUR"] = snap
	n.mu.Unlock()
	source.err = errors.New("provider down")

	stale, err := n.GetRates(context.Background(), "")
	if err != nil {
		t.Fatalf("stale fallback should not error: %v", err)
	}
	if !stale.Stale {
		t.Fatal("fallback snapshot must be flagged stale")
	}
	if _, ok := stale.Rates["SEK"]; !ok {
		t.Fatal("fallback should keep the old rates")
	}
}

func TestGetRatesNoFallbackFails(t *testing.T) {
	source := &fakeSource{err: errors.New("provider down")}
	n := newTestNormalizer(source, newFakeCache())

	if _, err := n.GetRates(context.Background(), ""); err == nil {
		t.Fatal("no snapshot at all must be a run-fatal error")
	}
}

func TestGetRatesRestoresFromCache(t *testing.T) {
	cache := newFakeCache()
	cache.snaps["EUR"] = Snapshot{
		Base:      "EUR",
		Rates:     testRates(),
		FetchedAt: time.Now().UTC(),
		TTL:       time.Hour,
	}
	source := &fakeSource{err: errors.New("provider down")}
	n := newTestNormalizer(source, cache)

	snap, err := n.GetRates(context.Background(), "")
	if err != nil {
		t.Fatalf("cached snapshot should satisfy the run: %v", err)
	}
	if snap.Stale {
		t.Fatal("fresh cached snapshot is not stale")
	}
	if source.calls != 0 {
		t.Fatalf("source should not be hit, called %d times", source.calls)
	}
	if rate, ok := snap.Rates["EUR"]; !ok || rate.String() != "1" {
		t.Fatal("restored snapshot must carry the identity rate")
	}
}

func TestToReference(t *testing.T) {
	source := &fakeSource{snap: Snapshot{Rates: testRates()}}
	n := newTestNormalizer(source, nil)

	snap, err := n.GetRates(context.Background(), "")
	if err != nil {
		t.Fatalf("GetRates: %v", err)
	}

	got, err := n.ToReference(decimal.NewFromInt(10), "EUR", snap)
	if err != nil {
		t.Fatalf("ToReference: %v", err)
	}
	if got.String() != "113.2" {
		t.Fatalf("10 EUR = %s SEK, want 113.2", got)
	}

	if _, err := n.ToReference(decimal.NewFromInt(10), "JPY", snap); !errors.Is(err, ErrUnknownCurrency) {
		t.Fatalf("unknown currency should surface ErrUnknownCurrency, got %v", err)
	}
}
