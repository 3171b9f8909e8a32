package app

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"swap-price-alerts/internal/alerting"
	"swap-price-alerts/internal/config"
	"swap-price-alerts/internal/document"
	"swap-price-alerts/internal/engine"
	"swap-price-alerts/internal/fetcher"
	"swap-price-alerts/internal/model"
	"swap-price-alerts/internal/ratelimit"
	"swap-price-alerts/internal/scheduler"
	"swap-price-alerts/internal/service"
	"swap-price-alerts/internal/storage"
	"swap-price-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newQuoteFetcher() *fetcher.Jupiter {
	q := a.Config.Quote
	return fetcher.NewJupiter(fetcher.JupiterOptions{
		BaseURL:          q.BaseURL,
		SlippageBps:      q.SlippageBps,
		OnlyDirectRoutes: q.OnlyDirectRoutes,
		Timeout:          q.RequestTimeout,
		UserAgent:        a.userAgent(),
		Retry: fetcher.RetryPolicy{
			MaxAttempts:      q.MaxAttempts,
			RateLimitBackoff: q.RateLimitBackoff,
			RateLimitStep:    q.RateLimitStep,
			ErrorBackoff:     q.ErrorBackoff,
		},
		Decimals: map[string]int32{
			q.InputMint:  q.InputDecimals,
			q.OutputMint: q.OutputDecimals,
		},
	}, a.Logger)
}

// newCandleFetcher returns nil when no API key is configured, which disables RSI.
func (a *App) newCandleFetcher() fetcher.CandleFetcher {
	c := a.Config.Candles
	if c.APIKey == "" {
		a.Logger.Warn().Msg("candles.api_key not configured; RSI alerts disabled")
		return nil
	}
	limiter := ratelimit.Default()
	if c.MinInterval > 0 && c.MinInterval != ratelimit.DefaultInterval {
		limiter = ratelimit.New(c.MinInterval)
	}
	return fetcher.NewSolanaTracker(fetcher.SolanaTrackerOptions{
		BaseURL:        c.BaseURL,
		APIKey:         c.APIKey,
		RemoveOutliers: c.RemoveOutliers,
		Timeout:        c.RequestTimeout,
		UserAgent:      a.userAgent(),
		Limiter:        limiter,
	}, a.Logger)
}

func (a *App) userAgent() string {
	if ua := a.Config.Quote.UserAgent; ua != "" {
		return ua
	}
	return version.UserAgent()
}

func (a *App) candleQuery() fetcher.CandleQuery {
	c := a.Config.Candles
	token := c.Token
	if token == "" {
		token = a.Config.Quote.OutputMint
	}
	return fetcher.CandleQuery{
		Token:    token,
		Lookback: c.Lookback,
		MaxBars:  c.MaxBars,
		Period:   c.Period,
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	timeout := a.Config.Alerting.RequestTimeout
	var channels alerting.Multi
	if n := a.Config.Alerting.Ntfy; n.Enabled && n.Topic != "" {
		channels = append(channels, alerting.NewNtfyNotifier(n.Server, n.Topic, n.Token, timeout, a.Logger))
	}
	if t := a.Config.Alerting.Telegram; t.Enabled {
		channels = append(channels, alerting.NewTelegramNotifier(t.BotToken, t.ChatID, t.APIBase, timeout, a.Logger))
	}
	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0]
	}
	return channels
}

// openHistory returns a nil history when no database is configured.
func (a *App) openHistory(ctx context.Context) (storage.History, func(), error) {
	history, err := storage.Open(ctx, a.Config.Database)
	if errors.Is(err, storage.ErrNotConfigured) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if err := history.EnsureSchema(ctx); err != nil {
		history.Close()
		return nil, nil, err
	}
	return history, history.Close, nil
}

func (a *App) newDocumentStore() *document.Store {
	d := a.Config.Documents
	return document.NewStore(d.ConfigPath, d.StatePath, d.MaxPriceHistory)
}

// defaultDocument renders the defaults section as a config document.
func (a *App) defaultDocument() document.ConfigDocument {
	d := a.Config.Defaults
	doc := document.ConfigDocument{
		USDAmount:         d.USDAmount,
		AlertResetMinutes: d.AlertResetMinutes,
		RSIInterval:       d.RSIInterval,
		RSIResetEnabled:   d.RSIResetEnabled,
	}
	for _, v := range d.BuyAlerts {
		doc.BuyAlerts = append(doc.BuyAlerts, rawJSON(v))
	}
	for _, v := range d.SellAlerts {
		doc.SellAlerts = append(doc.SellAlerts, rawJSON(v))
	}
	for _, v := range d.RSIAlerts {
		doc.RSIAlerts = append(doc.RSIAlerts, rawJSON(v))
	}
	return doc
}

func rawJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

func (a *App) buildService(sched *scheduler.Scheduler, history storage.History) *service.Service {
	state := engine.New(nil)
	sync := document.NewSynchronizer(a.newDocumentStore(), state, a.defaultDocument(), a.Logger)

	opts := service.Options{
		InputMint:        a.Config.Quote.InputMint,
		OutputMint:       a.Config.Quote.OutputMint,
		InputDecimals:    a.Config.Quote.InputDecimals,
		OutputDecimals:   a.Config.Quote.OutputDecimals,
		Candles:          a.candleQuery(),
		RSICheckInterval: a.Config.Scheduler.RSIInterval,
		SweepInterval:    a.Config.Scheduler.SweepInterval,
		LockKey:          a.Config.Database.AdvisoryLockKey,
		AlertRetention:   a.Config.Database.AlertRetention,
	}
	deps := service.Deps{
		Scheduler: sched,
		Quotes:    a.newQuoteFetcher(),
		Candles:   a.newCandleFetcher(),
		Sync:      sync,
		State:     state,
		History:   history,
	}
	if n := a.newNotifier(); n != nil {
		deps.Notifier = n
	} else {
		a.Logger.Warn().Msg("no alert channel configured; alerts are logged only")
	}
	return service.New(opts, deps, a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	history, closeHistory, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	if history == nil {
		a.Logger.Info().Msg("database.dsn not configured; alert history disabled")
	}
	if closeHistory != nil {
		defer closeHistory()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Immediate:    true,
	}, a.Logger)

	svc := a.buildService(sched, history)

	a.Logger.Info().
		Str("input_mint", a.Config.Quote.InputMint).
		Str("output_mint", a.Config.Quote.OutputMint).
		Dur("interval", a.Config.Scheduler.Interval).
		Str("version", version.Version).
		Msg("starting monitoring service")
	if err := svc.Run(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// CheckOnce runs a single driver cycle with the RSI cadence gate bypassed.
func (a *App) CheckOnce(ctx context.Context) (service.CycleReport, error) {
	history, closeHistory, err := a.openHistory(ctx)
	if err != nil {
		return service.CycleReport{}, err
	}
	if closeHistory != nil {
		defer closeHistory()
	}
	svc := a.buildService(nil, history)
	return svc.Cycle(ctx, service.CycleOptions{ForceRSI: true}), nil
}

// ExportOptions hold parameters for exporting the price history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ResetOptions name the alert to re-arm. Exactly one of Price or RSI is set.
type ResetOptions struct {
	Side  model.Side
	Price *decimal.Decimal
	RSI   string
}

// SimulateOptions feed static values through the alert engine.
type SimulateOptions struct {
	Buy    *decimal.Decimal
	Sell   *decimal.Decimal
	RSI    *float64
	DryRun bool
}

// BackfillOptions configure copying the document price history into the database.
type BackfillOptions struct {
	DryRun bool
}
