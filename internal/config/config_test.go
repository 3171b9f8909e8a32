package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swapwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "quote:\n  output_mint: TOKEN\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.SweepInterval)
	assert.Equal(t, 90*24*time.Hour, cfg.Database.AlertRetention)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.RSIInterval)
	assert.Equal(t, 100, cfg.Quote.SlippageBps)
	assert.True(t, cfg.Quote.OnlyDirectRoutes)
	assert.Equal(t, 3, cfg.Quote.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Quote.RateLimitBackoff)
	assert.Equal(t, 72*time.Hour, cfg.Candles.Lookback)
	assert.Equal(t, 2000, cfg.Candles.MaxBars)
	assert.Equal(t, 14, cfg.Candles.Period)
	assert.Equal(t, time.Second, cfg.Candles.MinInterval)
	assert.Equal(t, 100, cfg.Documents.MaxPriceHistory)
	assert.Equal(t, "1m", cfg.Defaults.RSIInterval)
	assert.Equal(t, "https://ntfy.sh", cfg.Alerting.Ntfy.Server)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
quote:
  output_mint: TOKEN
  output_decimals: 9
defaults:
  usd_amount: 25
  buy_alerts: [0.5, 0.25]
  rsi_alerts: ["above:70", "below:30"]
  alert_reset_minutes: 15
`)
	t.Setenv("SWAPWATCH_SCHEDULER_INTERVAL", "30s")
	t.Setenv("SWAPWATCH_ALERTING_NTFY_TOPIC", "my-topic")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, "my-topic", cfg.Alerting.Ntfy.Topic)
	assert.Equal(t, int32(9), cfg.Quote.OutputDecimals)
	assert.Equal(t, 25.0, cfg.Defaults.USDAmount)
	assert.Equal(t, []float64{0.5, 0.25}, cfg.Defaults.BuyAlerts)
	assert.Equal(t, []string{"above:70", "below:30"}, cfg.Defaults.RSIAlerts)
	assert.Equal(t, 15, cfg.Defaults.AlertResetMinutes)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Scheduler: SchedulerConfig{Interval: time.Minute, SweepInterval: 5 * time.Second},
			Quote:     QuoteConfig{InputMint: "USDC", OutputMint: "TOKEN", MaxAttempts: 3},
			Candles:   CandleConfig{Period: 14, MaxBars: 2000},
			Documents: DocumentsConfig{ConfigPath: "c.json", StatePath: "s.json"},
			Defaults:  DefaultsConfig{USDAmount: 10},
			Export:    ExportConfig{MaxDataPoints: 10},
		}
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(*Config){
		"missing output mint": func(c *Config) { c.Quote.OutputMint = "" },
		"zero interval":       func(c *Config) { c.Scheduler.Interval = 0 },
		"zero sweep":          func(c *Config) { c.Scheduler.SweepInterval = 0 },
		"bars below period":   func(c *Config) { c.Candles.MaxBars = 14 },
		"negative cooldown":   func(c *Config) { c.Defaults.AlertResetMinutes = -1 },
		"zero usd":            func(c *Config) { c.Defaults.USDAmount = 0 },
		"unknown driver":      func(c *Config) { c.Database.Driver = "mysql" },
		"negative retention":  func(c *Config) { c.Database.AlertRetention = -time.Hour },
		"telegram no token":   func(c *Config) { c.Alerting.Telegram = TelegramConfig{Enabled: true, ChatID: "1"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 50}}
	assert.Equal(t, 50, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 7, cfg.ResolveMaxPoints(7))
}
