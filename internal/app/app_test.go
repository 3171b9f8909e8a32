package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-price-alerts/internal/config"
	"swap-price-alerts/internal/document"
	"swap-price-alerts/internal/model"
)

const testConfigDoc = `{
	"usd_amount": 100,
	"buy_alerts": [0.5],
	"sell_alerts": [1.5],
	"alert_reset_minutes": 0,
	"rsi_alerts": ["above:75"],
	"rsi_interval": "1m",
	"rsi_reset_enabled": false
}`

const testStateDoc = `{
	"latest_prices": [
		{"timestamp": "2024-06-01T12:00:00Z", "buy_price": 1.0, "sell_price": 0.9},
		{"timestamp": "2024-06-01T12:01:00Z", "buy_price": 1.1, "sell_price": 1.0},
		{"timestamp": "2024-06-01T12:02:00Z", "buy_price": 1.2, "sell_price": 1.1}
	],
	"last_triggered_buy": {"0.50000000": "2024-06-01T11:00:00Z"},
	"last_triggered_sell": {"1.50000000": "2024-06-01T11:30:00Z"},
	"last_triggered_rsi": {},
	"latest_rsi": 72.5,
	"latest_rsi_time": "2024-06-01T12:02:00Z"
}`

func newTestApp(t *testing.T, withState bool) (*App, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{Interval: time.Minute},
		Documents: config.DocumentsConfig{
			ConfigPath:      filepath.Join(dir, "config.json"),
			StatePath:       filepath.Join(dir, "state.json"),
			MaxPriceHistory: 100,
		},
		Defaults: config.DefaultsConfig{USDAmount: 100, RSIInterval: "1m"},
		Export:   config.ExportConfig{MaxDataPoints: 100},
	}
	require.NoError(t, os.WriteFile(cfg.Documents.ConfigPath, []byte(testConfigDoc), 0o644))
	if withState {
		require.NoError(t, os.WriteFile(cfg.Documents.StatePath, []byte(testStateDoc), 0o644))
	}
	return NewApp(cfg, zerolog.Nop()), cfg
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestResetPriceAlert(t *testing.T) {
	a, cfg := newTestApp(t, true)
	var out bytes.Buffer

	err := a.Reset(&out, ResetOptions{Side: model.SideSell, Price: decimalPtr("1.5")})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "reset sell alert 1.50000000")

	state, err := document.NewStore(cfg.Documents.ConfigPath, cfg.Documents.StatePath, 0).LoadState()
	require.NoError(t, err)
	assert.Empty(t, state.LastTriggeredSell)
	assert.Contains(t, state.LastTriggeredBuy, "0.50000000")
}

func TestResetUnknownAlert(t *testing.T) {
	a, _ := newTestApp(t, true)
	var out bytes.Buffer

	err := a.Reset(&out, ResetOptions{Side: model.SideSell, Price: decimalPtr("2")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, document.ErrAlertNotFound))

	err = a.Reset(&out, ResetOptions{RSI: "above:75"})
	assert.True(t, errors.Is(err, document.ErrAlertNotFound))

	require.Error(t, a.Reset(&out, ResetOptions{}))
}

func TestSimulateDryRunHonoursTriggerRecords(t *testing.T) {
	a, cfg := newTestApp(t, true)
	before, err := os.ReadFile(cfg.Documents.StatePath)
	require.NoError(t, err)

	rsi := 80.0
	var out bytes.Buffer
	err = a.SimulateAlert(context.Background(), &out, SimulateOptions{
		Buy:    decimalPtr("0.4"),
		Sell:   decimalPtr("1.6"),
		RSI:    &rsi,
		DryRun: true,
	})
	require.NoError(t, err)

	// both price alerts are already triggered and the config uses manual reset
	assert.NotContains(t, out.String(), "Buy Price Alert")
	assert.NotContains(t, out.String(), "Sell Price Alert")
	assert.Contains(t, out.String(), "RSI Alert: RSI 80.00 is above 75.00")

	after, err := os.ReadFile(cfg.Documents.StatePath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSimulateDryRunFiresWithoutState(t *testing.T) {
	a, cfg := newTestApp(t, false)

	var out bytes.Buffer
	err := a.SimulateAlert(context.Background(), &out, SimulateOptions{Sell: decimalPtr("1.6"), DryRun: true})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Sell Price Alert: Sell price $1.60000000 is ≥ target $1.5")

	_, err = os.Stat(cfg.Documents.StatePath)
	assert.True(t, os.IsNotExist(err))
}

func TestSimulateRequiresInput(t *testing.T) {
	a, _ := newTestApp(t, false)
	require.Error(t, a.SimulateAlert(context.Background(), &bytes.Buffer{}, SimulateOptions{DryRun: true}))
}

func TestExportCSVFromStateDocument(t *testing.T) {
	a, _ := newTestApp(t, true)
	path := filepath.Join(t.TempDir(), "out", "prices.csv")

	from := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	require.NoError(t, a.Export(context.Background(), ExportOptions{From: &from, To: &to, CSVPath: path}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"timestamp", "buy_price", "sell_price", "spread_pct"}, rows[0])
	assert.Equal(t, []string{"2024-06-01T12:00:00Z", "1.00000000", "0.90000000", "10.0000"}, rows[1])
}

func TestExportRequiresOutput(t *testing.T) {
	a, _ := newTestApp(t, true)
	require.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func TestDownsamplePoints(t *testing.T) {
	points := make([]pricePoint, 10)
	for i := range points {
		points[i].At = time.Unix(int64(i), 0)
	}
	out := downsamplePoints(points, 4)
	require.Len(t, out, 4)
	assert.Equal(t, points[0], out[0])
	assert.Equal(t, points[9], out[3])
	assert.Len(t, downsamplePoints(points, 1), 1)
	assert.Len(t, downsamplePoints(points, 0), 10)
}

func TestShowPrintsAlertsAndPrices(t *testing.T) {
	a, _ := newTestApp(t, true)
	var out bytes.Buffer
	require.NoError(t, a.Show(context.Background(), &out, ShowOptions{Limit: 2}))

	text := out.String()
	assert.Contains(t, text, "cooldown: manual reset")
	assert.Contains(t, text, "1.50000000")
	assert.Contains(t, text, "2024-06-01T11:30:00Z")
	assert.Contains(t, text, "Latest RSI: 72.50")
	assert.Contains(t, text, "2024-06-01T12:02:00Z")
	assert.NotContains(t, text, "2024-06-01T12:00:00Z")
}

func TestBackfillCopiesNewPointsOnce(t *testing.T) {
	a, cfg := newTestApp(t, true)
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "history.db")}
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, a.Backfill(ctx, &out, BackfillOptions{DryRun: true}))
	assert.Contains(t, out.String(), "would insert 3 samples")

	out.Reset()
	require.NoError(t, a.Backfill(ctx, &out, BackfillOptions{}))
	assert.Contains(t, out.String(), "inserted 3 samples, 3 stored")

	out.Reset()
	require.NoError(t, a.Backfill(ctx, &out, BackfillOptions{}))
	assert.Contains(t, out.String(), "inserted 0 samples, 3 stored")
}

func TestBackfillWithoutDatabase(t *testing.T) {
	a, _ := newTestApp(t, true)
	require.Error(t, a.Backfill(context.Background(), &bytes.Buffer{}, BackfillOptions{}))
}

func TestShowIncludesHistorySummary(t *testing.T) {
	a, cfg := newTestApp(t, true)
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "history.db")}
	ctx := context.Background()
	require.NoError(t, a.Backfill(ctx, &bytes.Buffer{}, BackfillOptions{}))

	var out bytes.Buffer
	require.NoError(t, a.Show(ctx, &out, ShowOptions{Limit: 5}))
	assert.Contains(t, out.String(), "History: 3 price samples stored")
	assert.Contains(t, out.String(), "no alerts recorded")
}
