package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"swap-price-alerts/internal/alerting"
	"swap-price-alerts/internal/engine"
	"swap-price-alerts/internal/model"
	"swap-price-alerts/internal/service"
)

// SimulateAlert 使用给定的静态价格/RSI 跑一遍告警判断，不写入状态文件。
// The engine is seeded from the current documents so suppression by existing
// trigger records is reproduced.
func (a *App) SimulateAlert(ctx context.Context, out io.Writer, opts SimulateOptions) error {
	if opts.Buy == nil && opts.Sell == nil && opts.RSI == nil {
		return errors.New("至少需要 --buy、--sell 或 --rsi 之一")
	}

	var notifier alerting.Notifier = alerting.Discard{}
	if !opts.DryRun {
		n := a.newNotifier()
		if n == nil {
			return errors.New("未配置任何告警通道")
		}
		notifier = n
	}

	state, err := a.seedState()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var notes []alerting.Notification

	if opts.Buy != nil || opts.Sell != nil {
		sample := model.PriceSample{Timestamp: now}
		if opts.Buy != nil {
			sample.BuyPrice = *opts.Buy
		}
		if opts.Sell != nil {
			sample.SellPrice = *opts.Sell
		}
		state.ObservePrices(sample)
		for _, fire := range service.EvaluatePrices(state, sample) {
			notes = append(notes, alerting.PriceAlert(fire.Threshold, fire.Price))
		}
	}

	if opts.RSI != nil {
		reading := model.RSIReading{Value: *opts.RSI, Time: now.Truncate(time.Minute)}
		outcome := service.EvaluateRSI(state, reading)
		for _, key := range outcome.Fired {
			notes = append(notes, alerting.RSIAlert(key, reading))
		}
		for _, key := range outcome.Rearmed {
			fmt.Fprintf(out, "would re-arm rsi alert %s\n", key.Key())
		}
	}

	if len(notes) == 0 {
		fmt.Fprintln(out, "no alerts would fire")
		return nil
	}

	var errs []error
	for _, note := range notes {
		fmt.Fprintf(out, "%s: %s\n", note.Title, note.Body)
		if err := notifier.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// seedState builds a detached engine from the config and state documents.
func (a *App) seedState() (*engine.State, error) {
	store := a.newDocumentStore()
	cfgDoc, found, err := store.LoadConfig()
	if err != nil {
		return nil, err
	}
	if !found {
		cfgDoc = a.defaultDocument()
	}
	rt, problems := cfgDoc.Decode()
	for _, p := range problems {
		a.Logger.Warn().Err(p).Msg("skipping invalid configuration entry")
	}

	stateDoc, err := store.LoadState()
	if err != nil {
		return nil, err
	}
	records, problems := stateDoc.Records()
	for _, p := range problems {
		a.Logger.Warn().Err(p).Msg("skipping unreadable trigger record")
	}

	state := engine.New(nil)
	state.Reconcile(rt.Settings, records)
	return state, nil
}
