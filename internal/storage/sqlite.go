package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pricepilot/internal/config"
	"pricepilot/internal/fx"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS product_state (
    shop_id                TEXT NOT NULL,
    product_id             TEXT NOT NULL,
    title                  TEXT NOT NULL DEFAULT '',
    brand                  TEXT NOT NULL DEFAULT '',
    url                    TEXT NOT NULL DEFAULT '',
    currency               TEXT NOT NULL DEFAULT '',
    price                  TEXT NOT NULL,
    price_ref              TEXT NOT NULL,
    list_price_ref         TEXT,
    available              INTEGER NOT NULL DEFAULT 1,
    last_alerted_price_ref TEXT,
    last_alerted_at        TIMESTAMP,
    first_seen_at          TIMESTAMP NOT NULL,
    last_seen_at           TIMESTAMP NOT NULL,
    PRIMARY KEY (shop_id, product_id)
);

CREATE TABLE IF NOT EXISTS price_samples (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    shop_id        TEXT NOT NULL,
    product_id     TEXT NOT NULL,
    observed_at    TIMESTAMP NOT NULL,
    currency       TEXT NOT NULL DEFAULT '',
    price          TEXT NOT NULL,
    price_ref      TEXT NOT NULL,
    list_price_ref TEXT
);

CREATE INDEX IF NOT EXISTS price_samples_product_idx
    ON price_samples (shop_id, product_id, observed_at);

CREATE TABLE IF NOT EXISTS alerts (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    shop_id            TEXT NOT NULL,
    product_id         TEXT NOT NULL,
    title              TEXT NOT NULL DEFAULT '',
    url                TEXT NOT NULL DEFAULT '',
    previous_price_ref TEXT,
    current_price_ref  TEXT NOT NULL,
    discount_pct       TEXT NOT NULL,
    price_drop_pct     TEXT NOT NULL,
    channels           TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS fx_snapshots (
    base_currency TEXT PRIMARY KEY,
    rates         TEXT NOT NULL,
    fetched_at    TIMESTAMP NOT NULL,
    ttl_seconds   INTEGER NOT NULL
);`

// SQLite backs the store with an embedded database file. A single
// connection keeps the writer serialized, which is all the engine needs.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSQLite opens (or creates) the database file and ensures the schema.
func OpenSQLite(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage.path is required")
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &SQLite{
		db:     db,
		logger: logger.With().Str("component", "storage_sqlite").Logger(),
	}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// LoadState returns the prior record for a product, or nil on first sighting.
func (s *SQLite) LoadState(ctx context.Context, shopID, productID string) (*StateRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
        shop_id, product_id, title, brand, url, currency,
        price, price_ref, list_price_ref, available,
        last_alerted_price_ref, last_alerted_at, first_seen_at, last_seen_at
    FROM product_state
    WHERE shop_id = ? AND product_id = ?;`, shopID, productID)

	rec, err := scanStateRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	return rec, nil
}

// CommitState upserts the record, moving the last-alerted marker only when
// alerted is true.
func (s *SQLite) CommitState(ctx context.Context, rec StateRecord, alerted bool) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO product_state (
        shop_id, product_id, title, brand, url, currency,
        price, price_ref, list_price_ref, available,
        last_alerted_price_ref, last_alerted_at, first_seen_at, last_seen_at
    ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
    ON CONFLICT (shop_id, product_id) DO UPDATE
    SET
        title          = excluded.title,
        brand          = excluded.brand,
        url            = excluded.url,
        currency       = excluded.currency,
        price          = excluded.price,
        price_ref      = excluded.price_ref,
        list_price_ref = excluded.list_price_ref,
        available      = excluded.available,
        last_seen_at   = excluded.last_seen_at,
        last_alerted_price_ref = CASE WHEN ? THEN excluded.last_alerted_price_ref
                                      ELSE product_state.last_alerted_price_ref END,
        last_alerted_at        = CASE WHEN ? THEN excluded.last_alerted_at
                                      ELSE product_state.last_alerted_at END;`,
		rec.ShopID,
		rec.ProductID,
		rec.Title,
		rec.Brand,
		rec.URL,
		rec.Currency,
		rec.Price.String(),
		rec.PriceRef.String(),
		decimalPtrArg(rec.ListPriceRef),
		rec.Available,
		decimalPtrArg(rec.LastAlertedPriceRef),
		timePtrArg(rec.LastAlertedAt),
		rec.FirstSeenAt,
		rec.LastSeenAt,
		alerted,
		alerted,
	)
	if err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

// PruneStateBefore deletes records not seen since the cutoff.
func (s *SQLite) PruneStateBefore(ctx context.Context, lastSeenBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM product_state WHERE last_seen_at < ?;`, lastSeenBefore)
	if err != nil {
		return 0, fmt.Errorf("prune state: %w", err)
	}
	return res.RowsAffected()
}

// InsertPriceSample appends one history row.
func (s *SQLite) InsertPriceSample(ctx context.Context, sample PriceSample) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO price_samples (
        shop_id, product_id, observed_at, currency, price, price_ref, list_price_ref
    ) VALUES (?,?,?,?,?,?,?);`,
		sample.ShopID,
		sample.ProductID,
		sample.ObservedAt,
		sample.Currency,
		sample.Price.String(),
		sample.PriceRef.String(),
		decimalPtrArg(sample.ListPriceRef),
	)
	if err != nil {
		return fmt.Errorf("insert price sample: %w", err)
	}
	return nil
}

// ListPriceSamples lists one product's history within a window.
func (s *SQLite) ListPriceSamples(ctx context.Context, shopID, productID string, from, to time.Time) ([]PriceSample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
        shop_id, product_id, observed_at, currency, price, price_ref, list_price_ref
    FROM price_samples
    WHERE shop_id = ? AND product_id = ?
      AND observed_at >= ? AND observed_at < ?
    ORDER BY observed_at;`, shopID, productID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list price samples: %w", err)
	}
	defer rows.Close()

	samples := make([]PriceSample, 0)
	for rows.Next() {
		var (
			sample      PriceSample
			priceStr    string
			priceRefStr string
			listRefStr  sql.NullString
		)
		if err := rows.Scan(
			&sample.ShopID,
			&sample.ProductID,
			&sample.ObservedAt,
			&sample.Currency,
			&priceStr,
			&priceRefStr,
			&listRefStr,
		); err != nil {
			return nil, err
		}

		var convErr error
		sample.Price, convErr = decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse price: %w", convErr)
		}
		sample.PriceRef, convErr = decimal.NewFromString(priceRefStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse price_ref: %w", convErr)
		}
		if sample.ListPriceRef, convErr = decimalFromNull(listRefStr); convErr != nil {
			return nil, fmt.Errorf("parse list_price_ref: %w", convErr)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// PruneSamplesBefore deletes history older than the cutoff.
func (s *SQLite) PruneSamplesBefore(ctx context.Context, observedBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM price_samples WHERE observed_at < ?;`, observedBefore)
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}
	return res.RowsAffected()
}

// InsertAlert persists an alert emission.
func (s *SQLite) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO alerts (
        shop_id, product_id, title, url,
        previous_price_ref, current_price_ref, discount_pct, price_drop_pct,
        channels, created_at
    ) VALUES (?,?,?,?,?,?,?,?,?,?);`,
		alert.ShopID,
		alert.ProductID,
		alert.Title,
		alert.URL,
		decimalPtrArg(alert.PreviousPriceRef),
		alert.CurrentPriceRef.String(),
		alert.DiscountPct.String(),
		alert.PriceDropPct.String(),
		strings.Join(alert.Channels, ","),
		alert.CreatedAt,
	)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	if id, idErr := res.LastInsertId(); idErr == nil {
		alert.ID = id
	}
	return alert, nil
}

// ListRecentAlerts lists the most recent alerts.
func (s *SQLite) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
        id, shop_id, product_id, title, url,
        previous_price_ref, current_price_ref, discount_pct, price_drop_pct,
        channels, created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var (
			rec        AlertRecord
			prevStr    sql.NullString
			currentStr string
			discStr    string
			dropStr    string
			channels   string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.ShopID,
			&rec.ProductID,
			&rec.Title,
			&rec.URL,
			&prevStr,
			&currentStr,
			&discStr,
			&dropStr,
			&channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		if rec.PreviousPriceRef, convErr = decimalFromNull(prevStr); convErr != nil {
			return nil, fmt.Errorf("parse previous_price_ref: %w", convErr)
		}
		rec.CurrentPriceRef, convErr = decimal.NewFromString(currentStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse current_price_ref: %w", convErr)
		}
		rec.DiscountPct, convErr = decimal.NewFromString(discStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse discount_pct: %w", convErr)
		}
		rec.PriceDropPct, convErr = decimal.NewFromString(dropStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse price_drop_pct: %w", convErr)
		}
		if channels != "" {
			rec.Channels = strings.Split(channels, ",")
		}

		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

// DeleteAlertsBefore deletes historical alerts.
func (s *SQLite) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?;`, olderThan); err != nil {
		return fmt.Errorf("delete alerts before: %w", err)
	}
	return nil
}

// GetRateSnapshot loads the cached snapshot for a base currency.
func (s *SQLite) GetRateSnapshot(ctx context.Context, base string) (*fx.Snapshot, error) {
	var (
		ratesJSON  []byte
		fetchedAt  time.Time
		ttlSeconds int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT rates, fetched_at, ttl_seconds FROM fx_snapshots WHERE base_currency = ?;`, base).
		Scan(&ratesJSON, &fetchedAt, &ttlSeconds)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get rate snapshot: %w", err)
	}
	return decodeSnapshot(base, ratesJSON, fetchedAt, ttlSeconds)
}

// PutRateSnapshot atomically replaces the cache entry for a base currency.
func (s *SQLite) PutRateSnapshot(ctx context.Context, snap fx.Snapshot) error {
	ratesJSON, err := encodeRates(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO fx_snapshots (base_currency, rates, fetched_at, ttl_seconds)
    VALUES (?,?,?,?)
    ON CONFLICT (base_currency) DO UPDATE
    SET rates = excluded.rates,
        fetched_at = excluded.fetched_at,
        ttl_seconds = excluded.ttl_seconds;`,
		snap.Base,
		ratesJSON,
		snap.FetchedAt,
		int64(snap.TTL.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("put rate snapshot: %w", err)
	}
	return nil
}

var _ Store = (*SQLite)(nil)
