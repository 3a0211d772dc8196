package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testRecord(price string) StateRecord {
	return StateRecord{
		ShopID:      "test",
		ProductID:   "https://shop.example/p/1",
		Title:       "Test Product",
		Currency:    "EUR",
		Price:       decimal.RequireFromString(price),
		PriceRef:    decimal.RequireFromString(price).Mul(decimal.NewFromInt(10)),
		Available:   true,
		FirstSeenAt: time.Now().UTC(),
		LastSeenAt:  time.Now().UTC(),
	}
}

func TestMemoryLoadStateMissing(t *testing.T) {
	store := NewMemory()
	rec, err := store.LoadState(context.Background(), "test", "nope")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if rec != nil {
		t.Fatal("missing record must be nil, not an error")
	}
}

func TestMemoryCommitStateAlertedMarker(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	first := testRecord("100")
	if err := store.CommitState(ctx, first, false); err != nil {
		t.Fatalf("CommitState: %v", err)
	}

	loaded, _ := store.LoadState(ctx, "test", first.ProductID)
	if loaded.LastAlertedPriceRef != nil {
		t.Fatal("non-alerted commit must not set the marker")
	}

	alerted := testRecord("80")
	alertedAt := time.Now().UTC()
	marker := alerted.PriceRef
	alerted.LastAlertedPriceRef = &marker
	alerted.LastAlertedAt = &alertedAt
	if err := store.CommitState(ctx, alerted, true); err != nil {
		t.Fatalf("CommitState: %v", err)
	}

	loaded, _ = store.LoadState(ctx, "test", first.ProductID)
	if loaded.LastAlertedPriceRef == nil || loaded.LastAlertedPriceRef.String() != "800" {
		t.Fatalf("alerted commit should move the marker: %v", loaded.LastAlertedPriceRef)
	}
	if !loaded.FirstSeenAt.Equal(first.FirstSeenAt) {
		t.Fatal("FirstSeenAt must survive upserts")
	}

	// Later non-alerted commit: price advances, marker stays.
	quiet := testRecord("90")
	if err := store.CommitState(ctx, quiet, false); err != nil {
		t.Fatalf("CommitState: %v", err)
	}
	loaded, _ = store.LoadState(ctx, "test", first.ProductID)
	if loaded.PriceRef.String() != "900" {
		t.Fatalf("price should advance: %s", loaded.PriceRef)
	}
	if loaded.LastAlertedPriceRef == nil || loaded.LastAlertedPriceRef.String() != "800" {
		t.Fatalf("marker must not move on a quiet commit: %v", loaded.LastAlertedPriceRef)
	}
}

func TestMemoryPruneStateBefore(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	old := testRecord("100")
	old.ProductID = "https://shop.example/p/old"
	old.LastSeenAt = time.Now().UTC().Add(-48 * time.Hour)
	store.CommitState(ctx, old, false)

	recent := testRecord("100")
	store.CommitState(ctx, recent, false)

	removed, err := store.PruneStateBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneStateBefore: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if rec, _ := store.LoadState(ctx, "test", recent.ProductID); rec == nil {
		t.Fatal("recent record must survive")
	}
}

func TestMemoryPriceSamplesWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	now := time.Now().UTC()

	for i, offset := range []time.Duration{-3 * time.Hour, -2 * time.Hour, -30 * time.Minute} {
		sample := PriceSample{
			ShopID:     "test",
			ProductID:  "p1",
			ObservedAt: now.Add(offset),
			Currency:   "EUR",
			Price:      decimal.NewFromInt(int64(100 - i)),
			PriceRef:   decimal.NewFromInt(int64(1000 - i*10)),
		}
		if err := store.InsertPriceSample(ctx, sample); err != nil {
			t.Fatalf("InsertPriceSample: %v", err)
		}
	}

	samples, err := store.ListPriceSamples(ctx, "test", "p1", now.Add(-150*time.Minute), now)
	if err != nil {
		t.Fatalf("ListPriceSamples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("window should hold 2 samples, got %d", len(samples))
	}
	if !samples[0].ObservedAt.Before(samples[1].ObservedAt) {
		t.Fatal("samples should be ordered by time")
	}
}

func TestMemoryAlertLog(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	for i := 0; i < 3; i++ {
		_, err := store.InsertAlert(ctx, AlertRecord{
			ShopID:          "test",
			ProductID:       "p1",
			CurrentPriceRef: decimal.NewFromInt(int64(100 - i)),
			CreatedAt:       time.Now().UTC().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("InsertAlert: %v", err)
		}
	}

	alerts, err := store.ListRecentAlerts(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecentAlerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("limit should apply, got %d", len(alerts))
	}
	if !alerts[0].CreatedAt.After(alerts[1].CreatedAt) {
		t.Fatal("alerts should be newest first")
	}
	if alerts[0].ID == alerts[1].ID {
		t.Fatal("ids should be assigned")
	}
}
