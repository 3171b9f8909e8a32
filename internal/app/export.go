package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"swap-price-alerts/internal/document"
)

// pricePoint is one exported row, read from either the history database or
// the state document.
type pricePoint struct {
	At        time.Time
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
	Source    string
}

// Export renders the price history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	points, err := a.loadPricePoints(ctx, from, to)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Msg("no prices found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Str("source", points[0].Source).Msg("exporting prices")

	if opts.CSVPath != "" {
		if err := writePricesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writePricesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}
	return nil
}

// loadPricePoints prefers the history database and falls back to the
// bounded history kept in the state document.
func (a *App) loadPricePoints(ctx context.Context, from, to time.Time) ([]pricePoint, error) {
	history, closeHistory, err := a.openHistory(ctx)
	if err != nil {
		return nil, err
	}
	if history != nil {
		defer closeHistory()
		samples, err := history.ListSamplesBetween(ctx, from, to)
		if err != nil {
			return nil, err
		}
		points := make([]pricePoint, 0, len(samples))
		for _, s := range samples {
			points = append(points, pricePoint{At: s.ObservedAt.UTC(), BuyPrice: s.BuyPrice, SellPrice: s.SellPrice, Source: "database"})
		}
		return points, nil
	}

	state, err := a.newDocumentStore().LoadState()
	if err != nil {
		return nil, err
	}
	return documentPoints(state.LatestPrices, from, to), nil
}

// documentPoints converts state document entries; zero bounds are open.
func documentPoints(entries []document.PricePoint, from, to time.Time) []pricePoint {
	points := make([]pricePoint, 0, len(entries))
	for _, p := range entries {
		at, err := document.ParseTimestamp(p.Timestamp)
		if err != nil {
			continue
		}
		if (!from.IsZero() && at.Before(from)) || (!to.IsZero() && !at.Before(to)) {
			continue
		}
		points = append(points, pricePoint{
			At:        at,
			BuyPrice:  decimal.NewFromFloat(p.BuyPrice),
			SellPrice: decimal.NewFromFloat(p.SellPrice),
			Source:    "state",
		})
	}
	return points
}

func downsamplePoints(points []pricePoint, max int) []pricePoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]pricePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePricesCSV(path string, points []pricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"timestamp", "buy_price", "sell_price", "spread_pct"}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.At.Format(time.RFC3339),
			p.BuyPrice.StringFixed(8),
			p.SellPrice.StringFixed(8),
			spreadPct(p).StringFixed(4),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

// spreadPct is (buy - sell) / buy in percent, zero when buy is unavailable.
func spreadPct(p pricePoint) decimal.Decimal {
	if !p.BuyPrice.IsPositive() {
		return decimal.Zero
	}
	return p.BuyPrice.Sub(p.SellPrice).Div(p.BuyPrice).Mul(decimal.NewFromInt(100))
}

func writePricesPNG(path string, points []pricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	buy := make([]float64, len(points))
	sell := make([]float64, len(points))
	spread := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.At
		buy[i] = p.BuyPrice.InexactFloat64()
		sell[i] = p.SellPrice.InexactFloat64()
		spread[i] = spreadPct(p).InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.6f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name: "Spread (%)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Buy", XValues: x, YValues: buy},
			chart.TimeSeries{Name: "Sell", XValues: x, YValues: sell},
			chart.TimeSeries{Name: "Spread %", XValues: x, YValues: spread, YAxis: chart.YAxisSecondary},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
