package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pricepilot/internal/config"
	"pricepilot/internal/fx"
)

// ErrNotConfigured indicates the backing store was not initialised.
var ErrNotConfigured = errors.New("storage: not configured")

// StateStore persists the last-known state per product. Commit is the
// single write point: an atomic per-key upsert, called once per observed
// product per run.
type StateStore interface {
	LoadState(ctx context.Context, shopID, productID string) (*StateRecord, error)
	CommitState(ctx context.Context, rec StateRecord, alerted bool) error
	PruneStateBefore(ctx context.Context, lastSeenBefore time.Time) (int64, error)
}

// SampleStore keeps the append-only price history.
type SampleStore interface {
	InsertPriceSample(ctx context.Context, sample PriceSample) error
	ListPriceSamples(ctx context.Context, shopID, productID string, from, to time.Time) ([]PriceSample, error)
	PruneSamplesBefore(ctx context.Context, observedBefore time.Time) (int64, error)
}

// AlertLog records emitted alerts for auditing.
type AlertLog interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Store aggregates every persistence concern behind one handle.
type Store interface {
	StateStore
	SampleStore
	AlertLog
	fx.CacheStore
	Close()
}

// Open builds the backend selected by cfg.
func Open(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case "postgres":
		return OpenPostgres(ctx, cfg, logger)
	case "sqlite":
		return OpenSQLite(ctx, cfg, logger)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
