package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"swap-price-alerts/internal/alerting"
	"swap-price-alerts/internal/document"
	"swap-price-alerts/internal/engine"
	"swap-price-alerts/internal/fetcher"
	"swap-price-alerts/internal/indicator"
	"swap-price-alerts/internal/model"
	"swap-price-alerts/internal/scheduler"
	"swap-price-alerts/internal/storage"
)

const (
	// priceScale is the number of fractional digits kept when dividing quotes.
	priceScale = 18
	// retentionEvery is the cadence of the alert history retention job.
	retentionEvery = time.Hour
)

// Options fixes the swap pair and cadences of the driver.
type Options struct {
	InputMint      string
	OutputMint     string
	InputDecimals  int32
	OutputDecimals int32

	// Candles is the template for RSI candle requests; Interval comes from
	// the config document each cycle.
	Candles          fetcher.CandleQuery
	RSICheckInterval time.Duration
	SweepInterval    time.Duration
	LockKey          int64
	// AlertRetention is how long alert records stay in the history; zero keeps them.
	AlertRetention time.Duration
}

// Deps are the collaborators of the driver. Candles, History and Notifier may be nil.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Quotes    fetcher.QuoteFetcher
	Candles   fetcher.CandleFetcher
	Sync      *document.Synchronizer
	State     *engine.State
	Notifier  alerting.Notifier
	History   storage.History
	Now       func() time.Time
}

// Service orchestrates fetching, alert evaluation, persistence and notification.
type Service struct {
	scheduler *scheduler.Scheduler
	quotes    fetcher.QuoteFetcher
	candles   fetcher.CandleFetcher
	sync      *document.Synchronizer
	state     *engine.State
	notifier  alerting.Notifier
	history   storage.History
	locker    storage.AdvisoryLocker
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time

	mu           sync.Mutex
	lastRSICheck time.Time
}

// New constructs the monitoring service.
func New(opts Options, deps Deps, logger zerolog.Logger) *Service {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = alerting.Discard{}
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	var locker storage.AdvisoryLocker
	if l, ok := deps.History.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: deps.Scheduler,
		quotes:    deps.Quotes,
		candles:   deps.Candles,
		sync:      deps.Sync,
		state:     deps.State,
		notifier:  notifier,
		history:   deps.History,
		locker:    locker,
		opts:      opts,
		logger:    logger.With().Str("component", "service").Logger(),
		now:       now,
	}
}

// Run begins the driver loop and the background sweep; it returns when ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sweepers []*scheduler.Sweeper
	if s.opts.SweepInterval > 0 {
		sweeper, err := scheduler.NewSweeper(s.opts.SweepInterval, func() { s.Sweep() }, s.logger)
		if err != nil {
			return err
		}
		sweepers = append(sweepers, sweeper)
	}
	if s.history != nil && s.opts.AlertRetention > 0 {
		pruner, err := scheduler.NewSweeper(retentionEvery, func() {
			if err := s.PruneHistory(ctx); err != nil {
				s.logger.Error().Err(err).Msg("alert history retention failed")
			}
		}, s.logger)
		if err != nil {
			return err
		}
		sweepers = append(sweepers, pruner)
	}

	var wg sync.WaitGroup
	for _, sw := range sweepers {
		wg.Add(1)
		go func(sw *scheduler.Sweeper) {
			defer wg.Done()
			sw.Run(ctx)
		}(sw)
	}

	err := s.scheduler.Run(ctx, s.ProcessTick)
	cancel()
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ProcessTick 执行一次驱动周期，持有 advisory lock 时才运行。
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	s.Cycle(ctx, CycleOptions{})
	return nil
}

// Sweep clears expired cooldowns whose condition holds at the last observed prices.
func (s *Service) Sweep() []model.PriceThreshold {
	cleared := s.sync.Sweep()
	for _, key := range cleared {
		s.logger.Info().Str("side", string(key.Side)).Str("threshold", key.Key()).Msg("cooldown expired; alert re-armed")
	}
	return cleared
}

// PruneHistory deletes alert records older than the retention window.
func (s *Service) PruneHistory(ctx context.Context) error {
	if s.history == nil || s.opts.AlertRetention <= 0 {
		return nil
	}
	cutoff := s.now().Add(-s.opts.AlertRetention)
	if err := s.history.DeleteAlertsBefore(ctx, cutoff); err != nil {
		return fmt.Errorf("prune alert history: %w", err)
	}
	s.logger.Info().Time("cutoff", cutoff).Msg("alert history pruned")
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// newCycleID tags every log line of one driver cycle.
func newCycleID() string {
	return uuid.NewString()
}

func divide(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, priceScale)
}

// rsiDue reports whether the coarse RSI cadence allows a check now and, if so,
// claims the slot.
func (s *Service) rsiDue(now time.Time, force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !force && !s.lastRSICheck.IsZero() && now.Sub(s.lastRSICheck) < s.opts.RSICheckInterval {
		return false
	}
	s.lastRSICheck = now
	return true
}

func (s *Service) period() int {
	if s.opts.Candles.Period > 0 {
		return s.opts.Candles.Period
	}
	return indicator.DefaultPeriod
}
