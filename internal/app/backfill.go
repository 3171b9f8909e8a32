package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"swap-price-alerts/internal/storage"
)

// Backfill copies the price history kept in the state document into the
// history database. Only points newer than the latest stored sample are written.
func (a *App) Backfill(ctx context.Context, out io.Writer, opts BackfillOptions) error {
	history, closeHistory, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	if history == nil {
		return errors.New("database.dsn 未配置，无法回填")
	}
	defer closeHistory()

	state, err := a.newDocumentStore().LoadState()
	if err != nil {
		return err
	}

	latest, err := history.ListRecentSamples(ctx, 1)
	if err != nil {
		return err
	}
	points := documentPoints(state.LatestPrices, time.Time{}, time.Time{})
	if len(latest) > 0 {
		cutoff := latest[0].ObservedAt
		kept := points[:0]
		for _, p := range points {
			if p.At.After(cutoff) {
				kept = append(kept, p)
			}
		}
		points = kept
	}

	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
		fmt.Fprintf(out, "would insert %d samples\n", len(points))
		return nil
	}

	usd := decimal.NewFromFloat(a.Config.Defaults.USDAmount)
	inserted := 0
	for _, p := range points {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := history.InsertSample(ctx, storage.PriceSample{
			ObservedAt: p.At,
			CycleID:    "backfill",
			USDAmount:  usd,
			BuyPrice:   p.BuyPrice,
			SellPrice:  p.SellPrice,
		})
		if err != nil {
			return fmt.Errorf("insert sample %s: %w", p.At.Format(time.RFC3339), err)
		}
		inserted++
	}

	stored, err := history.CountSamples(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("inserted", inserted).Int64("stored", stored).Msg("回填完成")
	fmt.Fprintf(out, "inserted %d samples, %d stored\n", inserted, stored)
	return nil
}
