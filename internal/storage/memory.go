package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"pricepilot/internal/fx"
)

// Memory is the in-process store used by tests and --dry-run. It mirrors
// the SQL backends' semantics, including the alerted-only movement of the
// last-alerted marker.
type Memory struct {
	mu        sync.Mutex
	state     map[string]StateRecord
	samples   []PriceSample
	alerts    []AlertRecord
	snapshots map[string]fx.Snapshot
	nextID    int64
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		state:     make(map[string]StateRecord),
		snapshots: make(map[string]fx.Snapshot),
		nextID:    1,
	}
}

func stateKey(shopID, productID string) string {
	return shopID + "\x00" + productID
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() {}

// LoadState returns the prior record for a product, or nil on first sighting.
func (m *Memory) LoadState(_ context.Context, shopID, productID string) (*StateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.state[stateKey(shopID, productID)]; ok {
		copied := rec
		return &copied, nil
	}
	return nil, nil
}

// CommitState upserts the record, moving the last-alerted marker only when
// alerted is true.
func (m *Memory) CommitState(_ context.Context, rec StateRecord, alerted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stateKey(rec.ShopID, rec.ProductID)
	if prev, ok := m.state[key]; ok {
		rec.FirstSeenAt = prev.FirstSeenAt
		if !alerted {
			rec.LastAlertedPriceRef = prev.LastAlertedPriceRef
			rec.LastAlertedAt = prev.LastAlertedAt
		}
	}
	m.state[key] = rec
	return nil
}

// PruneStateBefore deletes records not seen since the cutoff.
func (m *Memory) PruneStateBefore(_ context.Context, lastSeenBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, rec := range m.state {
		if rec.LastSeenAt.Before(lastSeenBefore) {
			delete(m.state, key)
			removed++
		}
	}
	return removed, nil
}

// InsertPriceSample appends one history row.
func (m *Memory) InsertPriceSample(_ context.Context, sample PriceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample)
	return nil
}

// ListPriceSamples lists one product's history within a window.
func (m *Memory) ListPriceSamples(_ context.Context, shopID, productID string, from, to time.Time) ([]PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PriceSample, 0)
	for _, sample := range m.samples {
		if sample.ShopID != shopID || sample.ProductID != productID {
			continue
		}
		if sample.ObservedAt.Before(from) || !sample.ObservedAt.Before(to) {
			continue
		}
		out = append(out, sample)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

// PruneSamplesBefore deletes history older than the cutoff.
func (m *Memory) PruneSamplesBefore(_ context.Context, observedBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.samples[:0]
	var removed int64
	for _, sample := range m.samples {
		if sample.ObservedAt.Before(observedBefore) {
			removed++
			continue
		}
		kept = append(kept, sample)
	}
	m.samples = kept
	return removed, nil
}

// InsertAlert persists an alert emission.
func (m *Memory) InsertAlert(_ context.Context, alert AlertRecord) (AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert.ID = m.nextID
	m.nextID++
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

// ListRecentAlerts lists the most recent alerts.
func (m *Memory) ListRecentAlerts(_ context.Context, limit int) ([]AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AlertRecord, len(m.alerts))
	copy(out, m.alerts)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (m *Memory) DeleteAlertsBefore(_ context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.alerts[:0]
	for _, alert := range m.alerts {
		if alert.CreatedAt.Before(olderThan) {
			continue
		}
		kept = append(kept, alert)
	}
	m.alerts = kept
	return nil
}

// GetRateSnapshot loads the cached snapshot for a base currency.
func (m *Memory) GetRateSnapshot(_ context.Context, base string) (*fx.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap, ok := m.snapshots[base]; ok {
		copied := snap
		return &copied, nil
	}
	return nil, nil
}

// PutRateSnapshot atomically replaces the cache entry for a base currency.
func (m *Memory) PutRateSnapshot(_ context.Context, snap fx.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.Base] = snap
	return nil
}

var _ Store = (*Memory)(nil)
