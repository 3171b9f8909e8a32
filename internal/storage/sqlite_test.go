package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-price-alerts/internal/config"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	store, err := OpenSQLite(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "history.db")})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestSQLiteSamples(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertSample(ctx, PriceSample{
			ObservedAt: base.Add(time.Duration(i) * time.Minute),
			CycleID:    "c",
			USDAmount:  decimal.NewFromInt(10),
			BuyPrice:   decimal.RequireFromString("0.12345678").Add(decimal.NewFromInt(int64(i))),
			SellPrice:  decimal.RequireFromString("0.1"),
		}))
	}

	count, err := store.CountSamples(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	recent, err := store.ListRecentSamples(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, base.Add(2*time.Minute), recent[0].ObservedAt)
	assert.Equal(t, "2.12345678", recent[0].BuyPrice.String())

	window, err := store.ListSamplesBetween(ctx, base, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.True(t, window[0].ObservedAt.Before(window[1].ObservedAt))
}

func TestSQLiteAlerts(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	rec, err := store.InsertAlert(ctx, AlertRecord{Kind: KindBuy, Threshold: "0.50000000", Value: decimal.RequireFromString("0.49"), FiredAt: now, CycleID: "a"})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)

	now = now.Add(time.Hour)
	_, err = store.InsertAlert(ctx, AlertRecord{Kind: KindRSI, Threshold: "above:70.00", Value: decimal.RequireFromString("71.5"), FiredAt: now, CycleID: "b"})
	require.NoError(t, err)

	alerts, err := store.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, KindRSI, alerts[0].Kind)
	assert.Equal(t, "71.5", alerts[0].Value.String())

	require.NoError(t, store.DeleteAlertsBefore(ctx, now))
	alerts, err = store.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "above:70.00", alerts[0].Threshold)
}

func TestOpenWithoutDSN(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{})
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = Open(context.Background(), config.DatabaseConfig{Driver: "mysql", DSN: "x"})
	require.Error(t, err)
}

func TestNilStoreIsNotConfigured(t *testing.T) {
	var pg *Store
	assert.ErrorIs(t, pg.InsertSample(context.Background(), PriceSample{}), ErrNotConfigured)
	var lite *SQLiteStore
	_, err := lite.CountSamples(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}
