package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"swap-price-alerts/internal/config"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS price_samples (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    observed_at TEXT NOT NULL,
    cycle_id    TEXT NOT NULL DEFAULT '',
    usd_amount  TEXT NOT NULL,
    buy_price   TEXT NOT NULL,
    sell_price  TEXT NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS price_samples_observed_at_idx ON price_samples (observed_at);
CREATE TABLE IF NOT EXISTS alert_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    kind       TEXT NOT NULL,
    threshold  TEXT NOT NULL,
    value      TEXT NOT NULL,
    fired_at   TEXT NOT NULL,
    cycle_id   TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS alert_events_created_at_idx ON alert_events (created_at);`

// sqliteTimeLayout sorts lexically in time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore is the single-file history backend.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database file named by cfg.DSN.
func OpenSQLite(ctx context.Context, cfg config.DatabaseConfig) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time keeps SQLite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// EnsureSchema creates the history tables when missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertSample appends a price observation.
func (s *SQLiteStore) InsertSample(ctx context.Context, sample PriceSample) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO price_samples (observed_at, cycle_id, usd_amount, buy_price, sell_price, created_at)
         VALUES (?,?,?,?,?,?)`,
		formatTime(sample.ObservedAt),
		sample.CycleID,
		sample.USDAmount.String(),
		sample.BuyPrice.String(),
		sample.SellPrice.String(),
		formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("insert price sample: %w", err)
	}
	return nil
}

// ListSamplesBetween lists samples within [from, to).
func (s *SQLiteStore) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PriceSample, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT observed_at, cycle_id, usd_amount, buy_price, sell_price
         FROM price_samples
         WHERE observed_at >= ? AND observed_at < ?
         ORDER BY observed_at`,
		formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("list samples between: %w", err)
	}
	defer rows.Close()
	return scanSQLiteSamples(rows)
}

// ListRecentSamples lists the most recent samples, newest first.
func (s *SQLiteStore) ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT observed_at, cycle_id, usd_amount, buy_price, sell_price
         FROM price_samples
         ORDER BY observed_at DESC, id DESC
         LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent samples: %w", err)
	}
	defer rows.Close()
	return scanSQLiteSamples(rows)
}

// CountSamples counts stored samples.
func (s *SQLiteStore) CountSamples(ctx context.Context) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_samples`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *SQLiteStore) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return AlertRecord{}, err
	}
	created := s.now()
	res, err := db.ExecContext(ctx,
		`INSERT INTO alert_events (kind, threshold, value, fired_at, cycle_id, created_at)
         VALUES (?,?,?,?,?,?)`,
		alert.Kind,
		alert.Threshold,
		alert.Value.String(),
		formatTime(alert.FiredAt),
		alert.CycleID,
		formatTime(created),
	)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert id: %w", err)
	}
	alert.ID = id
	alert.FiredAt = alert.FiredAt.UTC()
	alert.CreatedAt = created
	return alert, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *SQLiteStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, kind, threshold, value, fired_at, cycle_id, created_at
         FROM alert_events
         ORDER BY created_at DESC, id DESC
         LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var (
			rec                        AlertRecord
			valueStr, firedAt, created string
		)
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Threshold, &valueStr, &firedAt, &rec.CycleID, &created); err != nil {
			return nil, err
		}
		if err := parseDecimals(decimalField{"value", valueStr, &rec.Value}); err != nil {
			return nil, err
		}
		if rec.FiredAt, err = parseTime(firedAt); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

// DeleteAlertsBefore deletes historical alerts.
func (s *SQLiteStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM alert_events WHERE created_at < ?`, formatTime(olderThan)); err != nil {
		return fmt.Errorf("delete alerts before: %w", err)
	}
	return nil
}

func scanSQLiteSamples(rows *sql.Rows) ([]PriceSample, error) {
	samples := make([]PriceSample, 0)
	for rows.Next() {
		var sample PriceSample
		var observed, usdStr, buyStr, sellStr string
		if err := rows.Scan(&observed, &sample.CycleID, &usdStr, &buyStr, &sellStr); err != nil {
			return nil, err
		}
		ts, err := parseTime(observed)
		if err != nil {
			return nil, err
		}
		sample.ObservedAt = ts
		if err := parseDecimals(
			decimalField{"usd_amount", usdStr, &sample.USDAmount},
			decimalField{"buy_price", buyStr, &sample.BuyPrice},
			decimalField{"sell_price", sellStr, &sample.SellPrice},
		); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

var _ History = (*SQLiteStore)(nil)
