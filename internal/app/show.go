package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"swap-price-alerts/internal/document"
	"swap-price-alerts/internal/model"
)

// Show prints the configured alerts with their trigger state, the latest RSI
// and the most recent prices. Recent alert history is appended when a
// database is configured.
func (a *App) Show(ctx context.Context, out io.Writer, opts ShowOptions) error {
	store := a.newDocumentStore()
	cfgDoc, found, err := store.LoadConfig()
	if err != nil {
		return err
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
		return err
	}
	records, _ := stateDoc.Records()

	cooldown := "manual reset"
	if rt.Settings.Cooldown > 0 {
		cooldown = rt.Settings.Cooldown.String()
	}
	fmt.Fprintf(out, "USD amount: %s  cooldown: %s  rsi interval: %s  rsi re-arm: %t\n\n",
		rt.USDAmount.String(), cooldown, rt.RSIInterval, rt.Settings.Rearm)

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Alert\tThreshold\tLast Triggered (UTC)")
	for _, group := range [][]model.PriceThreshold{rt.Settings.Buy, rt.Settings.Sell} {
		for _, th := range group {
			fmt.Fprintf(writer, "%s\t%s\t%s\n", th.Side, th.Key(), formatTriggered(records.Price[th]))
		}
	}
	for _, th := range rt.Settings.RSI {
		ts, ok := records.RSI[th]
		last := "-"
		if ok {
			last = formatTriggered(ts)
			if ts.IsZero() {
				last = "triggered"
			}
		}
		fmt.Fprintf(writer, "rsi\t%s\t%s\n", th.Key(), last)
	}
	writer.Flush()

	if stateDoc.LatestRSI != nil {
		at := ""
		if stateDoc.LatestRSITime != nil {
			at = " at " + *stateDoc.LatestRSITime
		}
		fmt.Fprintf(out, "\nLatest RSI: %.2f%s\n", *stateDoc.LatestRSI, at)
	}

	points := stateDoc.LatestPrices
	if opts.Limit > 0 && len(points) > opts.Limit {
		points = points[len(points)-opts.Limit:]
	}
	if len(points) == 0 {
		fmt.Fprintln(out, "\nno prices recorded")
	} else {
		fmt.Fprintln(out)
		writer = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tBuy\tSell")
		for i := len(points) - 1; i >= 0; i-- {
			p := points[i]
			fmt.Fprintf(writer, "%s\t%.8f\t%.8f\n", sanitizeInline(p.Timestamp), p.BuyPrice, p.SellPrice)
		}
		writer.Flush()
	}

	return a.showAlertHistory(ctx, out, opts.Limit)
}

func (a *App) showAlertHistory(ctx context.Context, out io.Writer, limit int) error {
	history, closeHistory, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	if history == nil {
		return nil
	}
	defer closeHistory()

	stored, err := history.CountSamples(ctx)
	if err != nil {
		return err
	}
	alerts, err := history.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nHistory: %d price samples stored\n", stored)
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no alerts recorded")
		return nil
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fired (UTC)\tKind\tThreshold\tValue\tCycle")
	for _, rec := range alerts {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			rec.FiredAt.UTC().Format(time.RFC3339),
			rec.Kind,
			rec.Threshold,
			rec.Value.String(),
			shortID(rec.CycleID),
		)
	}
	return writer.Flush()
}

func formatTriggered(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return document.FormatTimestamp(ts)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
