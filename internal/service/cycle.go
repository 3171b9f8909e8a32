package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"swap-price-alerts/internal/alerting"
	"swap-price-alerts/internal/document"
	"swap-price-alerts/internal/engine"
	"swap-price-alerts/internal/fetcher"
	"swap-price-alerts/internal/indicator"
	"swap-price-alerts/internal/model"
	"swap-price-alerts/internal/storage"
)

// CycleOptions tweak a single driver cycle.
type CycleOptions struct {
	// ForceRSI ignores the RSI cadence gate.
	ForceRSI bool
}

// CycleReport summarises one driver cycle.
type CycleReport struct {
	CycleID    string
	Runtime    document.Runtime
	Sample     *model.PriceSample
	Reading    *model.RSIReading
	PriceFires []engine.PriceFire
	RSI        RSIOutcome
	Failures   []string
}

// Cycle runs one pass of the driver: pull documents, quote both directions,
// evaluate price alerts, then RSI alerts when due. Failures are logged and
// reported, never returned.
func (s *Service) Cycle(ctx context.Context, opts CycleOptions) CycleReport {
	report := CycleReport{CycleID: newCycleID()}
	logger := s.logger.With().Str("cycle_id", report.CycleID).Logger()

	rt := s.sync.Pull()
	report.Runtime = rt

	sample, err := s.fetchPrices(ctx, rt.USDAmount, logger)
	if err != nil {
		report.Failures = append(report.Failures, err.Error())
	}
	if sample != nil {
		report.Sample = sample
		s.state.ObservePrices(*sample)
		report.PriceFires = EvaluatePrices(s.state, *sample)
		for _, fire := range report.PriceFires {
			s.dispatchPrice(ctx, report.CycleID, fire, logger)
		}
		if sample.BuyPrice.IsPositive() && sample.SellPrice.IsPositive() {
			if err := s.sync.RecordPrices(*sample); err != nil {
				report.Failures = append(report.Failures, "record prices: "+err.Error())
			}
			s.recordSample(ctx, report.CycleID, rt.USDAmount, *sample, logger)
		}
	}

	if s.candles != nil && s.rsiDue(s.now(), opts.ForceRSI) {
		if err := s.checkRSI(ctx, rt, &report, logger); err != nil {
			report.Failures = append(report.Failures, err.Error())
		}
	}

	s.logSummary(report, logger)
	return report
}

// fetchPrices quotes the input→output swap for the configured USD amount and
// then sells the received tokens back. A failed sell leaves SellPrice zero.
func (s *Service) fetchPrices(ctx context.Context, usd decimal.Decimal, logger zerolog.Logger) (*model.PriceSample, error) {
	if !usd.IsPositive() {
		return nil, fmt.Errorf("usd_amount must be positive")
	}

	received, err := s.quotes.Quote(ctx, fetcher.QuoteRequest{
		InputMint:  s.opts.InputMint,
		OutputMint: s.opts.OutputMint,
		Amount:     usd.Shift(s.opts.InputDecimals).Truncate(0),
	})
	if err != nil {
		logger.Error().Err(err).Msg("buy quote failed; skipping price alerts")
		return nil, fmt.Errorf("buy quote: %w", err)
	}
	if !received.IsPositive() {
		return nil, fmt.Errorf("buy quote returned no tokens")
	}

	sample := &model.PriceSample{
		Timestamp: s.now(),
		BuyPrice:  divide(usd, received),
	}
	logger.Debug().
		Str("usd", usd.String()).
		Str("tokens", received.String()).
		Str("buy_price", sample.BuyPrice.StringFixed(model.PricePlaces)).
		Msg("buy quote")

	returned, err := s.quotes.Quote(ctx, fetcher.QuoteRequest{
		InputMint:  s.opts.OutputMint,
		OutputMint: s.opts.InputMint,
		Amount:     received.Shift(s.opts.OutputDecimals).Truncate(0),
	})
	if err != nil {
		logger.Error().Err(err).Msg("sell quote failed; skipping sell alerts")
		return sample, fmt.Errorf("sell quote: %w", err)
	}
	sample.SellPrice = divide(returned, received)
	logger.Debug().
		Str("usd_returned", returned.String()).
		Str("sell_price", sample.SellPrice.StringFixed(model.PricePlaces)).
		Msg("sell quote")
	return sample, nil
}

func (s *Service) checkRSI(ctx context.Context, rt document.Runtime, report *CycleReport, logger zerolog.Logger) error {
	q := s.opts.Candles
	q.Interval = rt.RSIInterval
	q.Period = s.period()

	series, err := s.candles.Candles(ctx, q)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientData) {
			logger.Warn().Err(err).Str("interval", q.Interval).Msg("not enough candles for RSI; skipping")
		} else {
			logger.Error().Err(err).Str("interval", q.Interval).Msg("candle fetch failed; skipping RSI")
		}
		return fmt.Errorf("rsi: %w", err)
	}

	reading, err := indicator.LatestReading(series, q.Period)
	if err != nil {
		logger.Warn().Err(err).Msg("rsi undefined; skipping")
		return fmt.Errorf("rsi: %w", err)
	}
	report.Reading = &reading

	report.RSI = EvaluateRSI(s.state, reading)
	for _, key := range report.RSI.Fired {
		s.dispatchRSI(ctx, report.CycleID, key, reading, logger)
	}
	for _, key := range report.RSI.Rearmed {
		logger.Info().Str("threshold", key.Key()).Float64("rsi", reading.Value).Msg("rsi alert re-armed")
	}

	if err := s.sync.RecordRSI(reading); err != nil {
		return fmt.Errorf("record rsi: %w", err)
	}
	return nil
}

func (s *Service) dispatchPrice(ctx context.Context, cycleID string, fire engine.PriceFire, logger zerolog.Logger) {
	logger.Info().
		Str("side", string(fire.Threshold.Side)).
		Str("threshold", fire.Threshold.Key()).
		Str("price", fire.Price.StringFixed(model.PricePlaces)).
		Msg("price alert fired")

	if err := s.notifier.Notify(ctx, alerting.PriceAlert(fire.Threshold, fire.Price)); err != nil {
		logger.Error().Err(err).Str("threshold", fire.Threshold.String()).Msg("failed to dispatch alert")
	}
	_ = s.sync.PersistTriggers()

	s.recordAlert(ctx, storage.AlertRecord{
		Kind:      string(fire.Threshold.Side),
		Threshold: fire.Threshold.Key(),
		Value:     fire.Price,
		FiredAt:   fire.At,
		CycleID:   cycleID,
	}, logger)
}

func (s *Service) dispatchRSI(ctx context.Context, cycleID string, key model.RSIThreshold, reading model.RSIReading, logger zerolog.Logger) {
	logger.Info().Str("threshold", key.Key()).Float64("rsi", reading.Value).Msg("rsi alert fired")

	if err := s.notifier.Notify(ctx, alerting.RSIAlert(key, reading)); err != nil {
		logger.Error().Err(err).Str("threshold", key.Key()).Msg("failed to dispatch alert")
	}
	_ = s.sync.PersistTriggers()

	s.recordAlert(ctx, storage.AlertRecord{
		Kind:      storage.KindRSI,
		Threshold: key.Key(),
		Value:     decimal.NewFromFloat(reading.Value),
		FiredAt:   s.now(),
		CycleID:   cycleID,
	}, logger)
}

func (s *Service) recordAlert(ctx context.Context, rec storage.AlertRecord, logger zerolog.Logger) {
	if s.history == nil {
		return
	}
	if _, err := s.history.InsertAlert(ctx, rec); err != nil {
		logger.Error().Err(err).Str("threshold", rec.Threshold).Msg("failed to persist alert record")
	}
}

func (s *Service) recordSample(ctx context.Context, cycleID string, usd decimal.Decimal, sample model.PriceSample, logger zerolog.Logger) {
	if s.history == nil {
		return
	}
	err := s.history.InsertSample(ctx, storage.PriceSample{
		ObservedAt: sample.Timestamp,
		CycleID:    cycleID,
		USDAmount:  usd,
		BuyPrice:   sample.BuyPrice,
		SellPrice:  sample.SellPrice,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to persist price sample")
	}
}

func (s *Service) logSummary(report CycleReport, logger zerolog.Logger) {
	snap := s.state.Snapshot()
	cooldowns := make([]string, 0, len(snap.Records.Price))
	for key := range snap.Records.Price {
		cooldowns = append(cooldowns, key.String())
	}
	triggered := make([]string, 0, len(snap.Records.RSI))
	for key := range snap.Records.RSI {
		triggered = append(triggered, key.Key())
	}
	sort.Strings(cooldowns)
	sort.Strings(triggered)

	ev := logger.Info().
		Str("usd_amount", report.Runtime.USDAmount.String()).
		Int("price_alerts_fired", len(report.PriceFires)).
		Int("rsi_alerts_fired", len(report.RSI.Fired)).
		Strs("tracked_cooldowns", cooldowns).
		Strs("rsi_triggered", triggered).
		Strs("failures", report.Failures)
	if report.Sample != nil {
		ev = ev.Str("buy_price", report.Sample.BuyPrice.StringFixed(model.PricePlaces))
		if report.Sample.SellPrice.IsPositive() {
			ev = ev.Str("sell_price", report.Sample.SellPrice.StringFixed(model.PricePlaces))
		}
	}
	if report.Reading != nil {
		ev = ev.Float64("rsi", report.Reading.Value)
	}
	ev.Msg("cycle complete")
}
