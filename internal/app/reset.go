package app

import (
	"errors"
	"fmt"
	"io"

	"swap-price-alerts/internal/document"
	"swap-price-alerts/internal/model"
)

// Reset re-arms one alert by removing its trigger record from the state
// document. A running driver picks the change up on its next cycle.
func (a *App) Reset(out io.Writer, opts ResetOptions) error {
	store := a.newDocumentStore()

	switch {
	case opts.Price != nil && opts.RSI != "":
		return errors.New("specify either a price or an RSI alert, not both")
	case opts.Price != nil:
		key, err := model.NewPriceThreshold(opts.Side, *opts.Price)
		if err != nil {
			return err
		}
		existed, err := store.ResetPriceAlert(key)
		if errors.Is(err, document.ErrAlertNotFound) {
			return fmt.Errorf("%s alert %s is not configured: %w", key.Side, key.Key(), err)
		}
		if err != nil {
			return err
		}
		a.logReset(key.String(), existed)
		if existed {
			fmt.Fprintf(out, "reset %s alert %s\n", key.Side, key.Key())
		} else {
			fmt.Fprintf(out, "%s alert %s was not triggered\n", key.Side, key.Key())
		}
		return nil
	case opts.RSI != "":
		key, err := model.ParseRSIThreshold(opts.RSI)
		if err != nil {
			return err
		}
		if _, err := store.ResetRSIAlert(key); err != nil {
			if errors.Is(err, document.ErrAlertNotFound) {
				return fmt.Errorf("rsi alert %s is not triggered: %w", key.Key(), err)
			}
			return err
		}
		a.logReset(key.Key(), true)
		fmt.Fprintf(out, "reset rsi alert %s\n", key.Key())
		return nil
	default:
		return errors.New("nothing to reset")
	}
}

func (a *App) logReset(key string, existed bool) {
	a.Logger.Info().Str("alert", key).Bool("was_triggered", existed).Msg("alert reset requested")
}
