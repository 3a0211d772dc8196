package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pricepilot/internal/config"
	"pricepilot/internal/fx"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS product_state (
    shop_id                TEXT NOT NULL,
    product_id             TEXT NOT NULL,
    title                  TEXT NOT NULL DEFAULT '',
    brand                  TEXT NOT NULL DEFAULT '',
    url                    TEXT NOT NULL DEFAULT '',
    currency               TEXT NOT NULL DEFAULT '',
    price                  NUMERIC NOT NULL,
    price_ref              NUMERIC NOT NULL,
    list_price_ref         NUMERIC,
    available              BOOLEAN NOT NULL DEFAULT TRUE,
    last_alerted_price_ref NUMERIC,
    last_alerted_at        TIMESTAMPTZ,
    first_seen_at          TIMESTAMPTZ NOT NULL,
    last_seen_at           TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (shop_id, product_id)
);

CREATE TABLE IF NOT EXISTS price_samples (
    id             BIGSERIAL PRIMARY KEY,
    shop_id        TEXT NOT NULL,
    product_id     TEXT NOT NULL,
    observed_at    TIMESTAMPTZ NOT NULL,
    currency       TEXT NOT NULL DEFAULT '',
    price          NUMERIC NOT NULL,
    price_ref      NUMERIC NOT NULL,
    list_price_ref NUMERIC
);

CREATE INDEX IF NOT EXISTS price_samples_product_idx
    ON price_samples (shop_id, product_id, observed_at);

CREATE TABLE IF NOT EXISTS alerts (
    id                 BIGSERIAL PRIMARY KEY,
    shop_id            TEXT NOT NULL,
    product_id         TEXT NOT NULL,
    title              TEXT NOT NULL DEFAULT '',
    url                TEXT NOT NULL DEFAULT '',
    previous_price_ref NUMERIC,
    current_price_ref  NUMERIC NOT NULL,
    discount_pct       NUMERIC NOT NULL,
    price_drop_pct     NUMERIC NOT NULL,
    channels           TEXT[],
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fx_snapshots (
    base_currency TEXT PRIMARY KEY,
    rates         JSONB NOT NULL,
    fetched_at    TIMESTAMPTZ NOT NULL,
    ttl_seconds   BIGINT NOT NULL
);`

const (
	loadStateSQL = `SELECT
        shop_id, product_id, title, brand, url, currency,
        price, price_ref, list_price_ref, available,
        last_alerted_price_ref, last_alerted_at, first_seen_at, last_seen_at
    FROM product_state
    WHERE shop_id = $1 AND product_id = $2;`

	commitStateSQL = `INSERT INTO product_state (
        shop_id, product_id, title, brand, url, currency,
        price, price_ref, list_price_ref, available,
        last_alerted_price_ref, last_alerted_at, first_seen_at, last_seen_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    )
    ON CONFLICT (shop_id, product_id) DO UPDATE
    SET
        title          = EXCLUDED.title,
        brand          = EXCLUDED.brand,
        url            = EXCLUDED.url,
        currency       = EXCLUDED.currency,
        price          = EXCLUDED.price,
        price_ref      = EXCLUDED.price_ref,
        list_price_ref = EXCLUDED.list_price_ref,
        available      = EXCLUDED.available,
        last_seen_at   = EXCLUDED.last_seen_at,
        last_alerted_price_ref = CASE WHEN $15 THEN EXCLUDED.last_alerted_price_ref
                                      ELSE product_state.last_alerted_price_ref END,
        last_alerted_at        = CASE WHEN $15 THEN EXCLUDED.last_alerted_at
                                      ELSE product_state.last_alerted_at END;`

	pruneStateSQL = `DELETE FROM product_state WHERE last_seen_at < $1;`

	insertSampleSQL = `INSERT INTO price_samples (
        shop_id, product_id, observed_at, currency, price, price_ref, list_price_ref
    ) VALUES ($1,$2,$3,$4,$5,$6,$7);`

	listSamplesSQL = `SELECT
        shop_id, product_id, observed_at, currency, price, price_ref, list_price_ref
    FROM price_samples
    WHERE shop_id = $1 AND product_id = $2
      AND observed_at >= $3 AND observed_at < $4
    ORDER BY observed_at;`

	pruneSamplesSQL = `DELETE FROM price_samples WHERE observed_at < $1;`

	insertAlertPGSQL = `INSERT INTO alerts (
        shop_id, product_id, title, url,
        previous_price_ref, current_price_ref, discount_pct, price_drop_pct, channels
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING id, created_at;`

	listAlertsPGSQL = `SELECT
        id, shop_id, product_id, title, url,
        previous_price_ref, current_price_ref, discount_pct, price_drop_pct,
        channels, created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsPGSQL = `DELETE FROM alerts WHERE created_at < $1;`

	getSnapshotSQL = `SELECT rates, fetched_at, ttl_seconds
    FROM fx_snapshots WHERE base_currency = $1;`

	putSnapshotSQL = `INSERT INTO fx_snapshots (base_currency, rates, fetched_at, ttl_seconds)
    VALUES ($1,$2,$3,$4)
    ON CONFLICT (base_currency) DO UPDATE
    SET rates = EXCLUDED.rates,
        fetched_at = EXCLUDED.fetched_at,
        ttl_seconds = EXCLUDED.ttl_seconds;`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.StorageConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse storage dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Postgres backs the store with a pgx pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// OpenPostgres connects, ensures the schema, and returns the store.
func OpenPostgres(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*Postgres, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := &Postgres{
		pool:   pool,
		logger: logger.With().Str("component", "storage_postgres").Logger(),
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

func (p *Postgres) getPool() (*pgxpool.Pool, error) {
	if p == nil || p.pool == nil {
		return nil, ErrNotConfigured
	}
	return p.pool, nil
}

// LoadState returns the prior record for a product, or nil on first sighting.
func (p *Postgres) LoadState(ctx context.Context, shopID, productID string) (*StateRecord, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	row := pool.QueryRow(ctx, loadStateSQL, shopID, productID)
	rec, err := scanStateRecord(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	return rec, nil
}

// CommitState upserts the record. When alerted is true the last-alerted
// marker moves to the committed price; otherwise it is preserved.
func (p *Postgres) CommitState(ctx context.Context, rec StateRecord, alerted bool) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, commitStateSQL,
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
	)
	if execErr != nil {
		return fmt.Errorf("commit state: %w", execErr)
	}
	return nil
}

// PruneStateBefore deletes records not seen since the cutoff.
func (p *Postgres) PruneStateBefore(ctx context.Context, lastSeenBefore time.Time) (int64, error) {
	pool, err := p.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, pruneStateSQL, lastSeenBefore)
	if execErr != nil {
		return 0, fmt.Errorf("prune state: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// InsertPriceSample appends one history row.
func (p *Postgres) InsertPriceSample(ctx context.Context, sample PriceSample) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertSampleSQL,
		sample.ShopID,
		sample.ProductID,
		sample.ObservedAt,
		sample.Currency,
		sample.Price.String(),
		sample.PriceRef.String(),
		decimalPtrArg(sample.ListPriceRef),
	)
	if execErr != nil {
		return fmt.Errorf("insert price sample: %w", execErr)
	}
	return nil
}

// ListPriceSamples lists one product's history within a window.
func (p *Postgres) ListPriceSamples(ctx context.Context, shopID, productID string, from, to time.Time) ([]PriceSample, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesSQL, shopID, productID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list price samples: %w", queryErr)
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
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// PruneSamplesBefore deletes history older than the cutoff.
func (p *Postgres) PruneSamplesBefore(ctx context.Context, observedBefore time.Time) (int64, error) {
	pool, err := p.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, pruneSamplesSQL, observedBefore)
	if execErr != nil {
		return 0, fmt.Errorf("prune samples: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// InsertAlert persists an alert emission.
func (p *Postgres) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := p.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertPGSQL,
		alert.ShopID,
		alert.ProductID,
		alert.Title,
		alert.URL,
		decimalPtrArg(alert.PreviousPriceRef),
		alert.CurrentPriceRef.String(),
		alert.DiscountPct.String(),
		alert.PriceDropPct.String(),
		alert.Channels,
	)
	if scanErr := row.Scan(&alert.ID, &alert.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return alert, nil
}

// ListRecentAlerts lists the most recent alerts.
func (p *Postgres) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsPGSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
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
			&rec.Channels,
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

		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (p *Postgres) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsPGSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// GetRateSnapshot loads the cached snapshot for a base currency.
func (p *Postgres) GetRateSnapshot(ctx context.Context, base string) (*fx.Snapshot, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	var (
		ratesJSON  []byte
		fetchedAt  time.Time
		ttlSeconds int64
	)
	if scanErr := pool.QueryRow(ctx, getSnapshotSQL, base).Scan(&ratesJSON, &fetchedAt, &ttlSeconds); scanErr != nil {
		if scanErr == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get rate snapshot: %w", scanErr)
	}

	return decodeSnapshot(base, ratesJSON, fetchedAt, ttlSeconds)
}

// PutRateSnapshot atomically replaces the cache entry for a base currency.
func (p *Postgres) PutRateSnapshot(ctx context.Context, snap fx.Snapshot) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}

	ratesJSON, err := encodeRates(snap)
	if err != nil {
		return err
	}

	if _, execErr := pool.Exec(ctx, putSnapshotSQL,
		snap.Base,
		ratesJSON,
		snap.FetchedAt,
		int64(snap.TTL.Seconds()),
	); execErr != nil {
		return fmt.Errorf("put rate snapshot: %w", execErr)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStateRecord(row rowScanner) (*StateRecord, error) {
	var (
		rec         StateRecord
		priceStr    string
		priceRefStr string
		listRefStr  sql.NullString
		alertedStr  sql.NullString
		alertedAt   sql.NullTime
	)
	if err := row.Scan(
		&rec.ShopID,
		&rec.ProductID,
		&rec.Title,
		&rec.Brand,
		&rec.URL,
		&rec.Currency,
		&priceStr,
		&priceRefStr,
		&listRefStr,
		&rec.Available,
		&alertedStr,
		&alertedAt,
		&rec.FirstSeenAt,
		&rec.LastSeenAt,
	); err != nil {
		return nil, err
	}

	var convErr error
	rec.Price, convErr = decimal.NewFromString(priceStr)
	if convErr != nil {
		return nil, fmt.Errorf("parse price: %w", convErr)
	}
	rec.PriceRef, convErr = decimal.NewFromString(priceRefStr)
	if convErr != nil {
		return nil, fmt.Errorf("parse price_ref: %w", convErr)
	}
	if rec.ListPriceRef, convErr = decimalFromNull(listRefStr); convErr != nil {
		return nil, fmt.Errorf("parse list_price_ref: %w", convErr)
	}
	if rec.LastAlertedPriceRef, convErr = decimalFromNull(alertedStr); convErr != nil {
		return nil, fmt.Errorf("parse last_alerted_price_ref: %w", convErr)
	}
	if alertedAt.Valid {
		t := alertedAt.Time
		rec.LastAlertedAt = &t
	}
	return &rec, nil
}

func decimalPtrArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func timePtrArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func decimalFromNull(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func encodeRates(snap fx.Snapshot) ([]byte, error) {
	rates := make(map[string]string, len(snap.Rates))
	for code, rate := range snap.Rates {
		rates[code] = rate.String()
	}
	encoded, err := json.Marshal(rates)
	if err != nil {
		return nil, fmt.Errorf("encode rates: %w", err)
	}
	return encoded, nil
}

func decodeSnapshot(base string, ratesJSON []byte, fetchedAt time.Time, ttlSeconds int64) (*fx.Snapshot, error) {
	var raw map[string]string
	if err := json.Unmarshal(ratesJSON, &raw); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}

	rates := make(map[string]decimal.Decimal, len(raw))
	for code, value := range raw {
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("parse rate %s: %w", code, err)
		}
		rates[code] = rate
	}

	return &fx.Snapshot{
		Base:      base,
		Rates:     rates,
		FetchedAt: fetchedAt,
		TTL:       time.Duration(ttlSeconds) * time.Second,
	}, nil
}

var _ Store = (*Postgres)(nil)
