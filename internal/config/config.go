package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"swap-price-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Quote     QuoteConfig     `mapstructure:"quote"`
	Candles   CandleConfig    `mapstructure:"candles"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects the optional alert history store. An empty DSN disables it;
// a zero AlertRetention keeps alert records forever.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	AlertRetention  time.Duration `mapstructure:"alert_retention"`
}

// SchedulerConfig governs the driver and sweep cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	RSIInterval   time.Duration `mapstructure:"rsi_interval"`
	AlignToStart  bool          `mapstructure:"align_to_start"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// QuoteConfig captures Jupiter connectivity and the swap pair.
type QuoteConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	InputMint        string        `mapstructure:"input_mint"`
	OutputMint       string        `mapstructure:"output_mint"`
	InputDecimals    int32         `mapstructure:"input_decimals"`
	OutputDecimals   int32         `mapstructure:"output_decimals"`
	SlippageBps      int           `mapstructure:"slippage_bps"`
	OnlyDirectRoutes bool          `mapstructure:"only_direct_routes"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
	RateLimitStep    time.Duration `mapstructure:"rate_limit_step"`
	ErrorBackoff     time.Duration `mapstructure:"error_backoff"`
}

// CandleConfig captures SolanaTracker connectivity and RSI inputs.
type CandleConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Token          string        `mapstructure:"token"`
	Lookback       time.Duration `mapstructure:"lookback"`
	MaxBars        int           `mapstructure:"max_bars"`
	Period         int           `mapstructure:"period"`
	RemoveOutliers bool          `mapstructure:"remove_outliers"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
}

// DocumentsConfig locates the shared JSON documents.
type DocumentsConfig struct {
	ConfigPath      string `mapstructure:"config_path"`
	StatePath       string `mapstructure:"state_path"`
	MaxPriceHistory int    `mapstructure:"max_price_history"`
}

// DefaultsConfig seeds the config document when it does not exist yet.
type DefaultsConfig struct {
	USDAmount         float64   `mapstructure:"usd_amount"`
	BuyAlerts         []float64 `mapstructure:"buy_alerts"`
	SellAlerts        []float64 `mapstructure:"sell_alerts"`
	AlertResetMinutes int       `mapstructure:"alert_reset_minutes"`
	RSIAlerts         []string  `mapstructure:"rsi_alerts"`
	RSIInterval       string    `mapstructure:"rsi_interval"`
	RSIResetEnabled   bool      `mapstructure:"rsi_reset_enabled"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	Ntfy           NtfyConfig     `mapstructure:"ntfy"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// NtfyConfig describes the ntfy publish target. An empty topic disables it.
type NtfyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Server  string `mapstructure:"server"`
	Topic   string `mapstructure:"topic"`
	Token   string `mapstructure:"token"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SWAPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "swapwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.sweep_interval", "5s")
	v.SetDefault("scheduler.rsi_interval", "5m")
	v.SetDefault("scheduler.align_to_start", false)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("quote.base_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("quote.input_mint", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	v.SetDefault("quote.output_mint", "")
	v.SetDefault("quote.input_decimals", 6)
	v.SetDefault("quote.output_decimals", 6)
	v.SetDefault("quote.slippage_bps", 100)
	v.SetDefault("quote.only_direct_routes", true)
	v.SetDefault("quote.request_timeout", "10s")
	v.SetDefault("quote.user_agent", "")
	v.SetDefault("quote.max_attempts", 3)
	v.SetDefault("quote.rate_limit_backoff", "2s")
	v.SetDefault("quote.rate_limit_step", "1s")
	v.SetDefault("quote.error_backoff", "500ms")

	v.SetDefault("candles.base_url", "https://data.solanatracker.io")
	v.SetDefault("candles.api_key", "")
	v.SetDefault("candles.token", "")
	v.SetDefault("candles.lookback", "72h")
	v.SetDefault("candles.max_bars", 2000)
	v.SetDefault("candles.period", 14)
	v.SetDefault("candles.remove_outliers", true)
	v.SetDefault("candles.request_timeout", "10s")
	v.SetDefault("candles.min_interval", "1s")

	v.SetDefault("documents.config_path", "config.json")
	v.SetDefault("documents.state_path", "state.json")
	v.SetDefault("documents.max_price_history", 100)

	v.SetDefault("defaults.usd_amount", 10.0)
	v.SetDefault("defaults.buy_alerts", []float64{})
	v.SetDefault("defaults.sell_alerts", []float64{})
	v.SetDefault("defaults.alert_reset_minutes", 0)
	v.SetDefault("defaults.rsi_alerts", []string{})
	v.SetDefault("defaults.rsi_interval", "1m")
	v.SetDefault("defaults.rsi_reset_enabled", false)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.request_timeout", "10s")
	v.SetDefault("alerting.ntfy.enabled", true)
	v.SetDefault("alerting.ntfy.server", "https://ntfy.sh")
	v.SetDefault("alerting.ntfy.topic", "")
	v.SetDefault("alerting.ntfy.token", "")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x53574150))
	v.SetDefault("database.alert_retention", "2160h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
		dc.WeaklyTypedInput = true
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.SweepInterval <= 0 {
		return fmt.Errorf("scheduler.sweep_interval must be greater than zero")
	}
	if c.Scheduler.RSIInterval < 0 {
		return fmt.Errorf("scheduler.rsi_interval cannot be negative")
	}
	if c.Quote.InputMint == "" {
		return fmt.Errorf("quote.input_mint must be configured")
	}
	if c.Quote.OutputMint == "" {
		return fmt.Errorf("quote.output_mint must be configured")
	}
	if c.Quote.InputDecimals < 0 || c.Quote.OutputDecimals < 0 {
		return fmt.Errorf("quote decimals cannot be negative")
	}
	if c.Quote.MaxAttempts <= 0 {
		return fmt.Errorf("quote.max_attempts must be greater than zero")
	}
	if c.Candles.Period <= 0 {
		return fmt.Errorf("candles.period must be greater than zero")
	}
	if c.Candles.MaxBars <= c.Candles.Period {
		return fmt.Errorf("candles.max_bars must exceed candles.period")
	}
	if c.Documents.ConfigPath == "" || c.Documents.StatePath == "" {
		return fmt.Errorf("documents.config_path and documents.state_path must be configured")
	}
	if c.Defaults.USDAmount <= 0 {
		return fmt.Errorf("defaults.usd_amount must be greater than zero")
	}
	if c.Defaults.AlertResetMinutes < 0 {
		return fmt.Errorf("defaults.alert_reset_minutes cannot be negative")
	}
	if c.Database.AlertRetention < 0 {
		return fmt.Errorf("database.alert_retention cannot be negative")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
