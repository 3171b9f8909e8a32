package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	postgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS price_samples (
    id          BIGSERIAL PRIMARY KEY,
    observed_at TIMESTAMPTZ NOT NULL,
    cycle_id    TEXT NOT NULL DEFAULT '',
    usd_amount  NUMERIC NOT NULL,
    buy_price   NUMERIC NOT NULL,
    sell_price  NUMERIC NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS price_samples_observed_at_idx ON price_samples (observed_at);
CREATE TABLE IF NOT EXISTS alert_events (
    id         BIGSERIAL PRIMARY KEY,
    kind       TEXT NOT NULL,
    threshold  TEXT NOT NULL,
    value      NUMERIC NOT NULL,
    fired_at   TIMESTAMPTZ NOT NULL,
    cycle_id   TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS alert_events_created_at_idx ON alert_events (created_at);`

	insertSampleSQL = `INSERT INTO price_samples (
        observed_at,
        cycle_id,
        usd_amount,
        buy_price,
        sell_price
    ) VALUES ($1,$2,$3,$4,$5);`

	listSamplesBetweenSQL = `SELECT
        observed_at,
        cycle_id,
        usd_amount::text,
        buy_price::text,
        sell_price::text
    FROM price_samples
    WHERE observed_at >= $1
      AND observed_at < $2
    ORDER BY observed_at;`

	listRecentSamplesSQL = `SELECT
        observed_at,
        cycle_id,
        usd_amount::text,
        buy_price::text,
        sell_price::text
    FROM price_samples
    ORDER BY observed_at DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM price_samples;`

	insertAlertSQL = `INSERT INTO alert_events (
        kind,
        threshold,
        value,
        fired_at,
        cycle_id
    ) VALUES ($1,$2,$3,$4,$5)
    RETURNING id, kind, threshold, value::text, fired_at, cycle_id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        kind,
        threshold,
        value::text,
        fired_at,
        cycle_id,
        created_at
    FROM alert_events
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alert_events WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store is the PostgreSQL history backend.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the history tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, postgresSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock also ends when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSample appends a price observation.
func (s *Store) InsertSample(ctx context.Context, sample PriceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertSampleSQL,
		sample.ObservedAt.UTC(),
		sample.CycleID,
		sample.USDAmount.String(),
		sample.BuyPrice.String(),
		sample.SellPrice.String(),
	)
	if execErr != nil {
		return fmt.Errorf("insert price sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()
	return collectSamples(rows)
}

// ListRecentSamples lists the most recent samples, newest first.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()
	return collectSamples(rows)
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Kind,
		alert.Threshold,
		alert.Value.String(),
		alert.FiredAt.UTC(),
		alert.CycleID,
	)
	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectSamples(rows pgx.Rows) ([]PriceSample, error) {
	samples := make([]PriceSample, 0)
	for rows.Next() {
		var (
			sample                  PriceSample
			usdStr, buyStr, sellStr string
		)
		if err := rows.Scan(&sample.ObservedAt, &sample.CycleID, &usdStr, &buyStr, &sellStr); err != nil {
			return nil, err
		}
		if err := parseDecimals(
			decimalField{"usd_amount", usdStr, &sample.USDAmount},
			decimalField{"buy_price", buyStr, &sample.BuyPrice},
			decimalField{"sell_price", sellStr, &sample.SellPrice},
		); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec      AlertRecord
		valueStr string
	)
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.Threshold, &valueStr, &rec.FiredAt, &rec.CycleID, &rec.CreatedAt); err != nil {
		return AlertRecord{}, err
	}
	if err := parseDecimals(decimalField{"value", valueStr, &rec.Value}); err != nil {
		return AlertRecord{}, err
	}
	return rec, nil
}

type decimalField struct {
	name string
	raw  string
	dst  *decimal.Decimal
}

func parseDecimals(fields ...decimalField) error {
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

var (
	_ History        = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
