package service

import (
	"swap-price-alerts/internal/engine"
	"swap-price-alerts/internal/model"
)

// EvaluatePrices tries every configured threshold against sample and commits
// the ones that fire. A zero price marks that side as unavailable this cycle.
func EvaluatePrices(state *engine.State, sample model.PriceSample) []engine.PriceFire {
	var fires []engine.PriceFire
	for _, side := range []model.Side{model.SideBuy, model.SideSell} {
		price := sample.BuyPrice
		if side == model.SideSell {
			price = sample.SellPrice
		}
		if !price.IsPositive() {
			continue
		}
		for _, key := range state.Thresholds(side) {
			if fire, ok := state.TryFire(key, price); ok {
				fires = append(fires, fire)
			}
		}
	}
	return fires
}

// RSIOutcome lists the thresholds that changed state for one reading.
type RSIOutcome struct {
	Fired   []model.RSIThreshold
	Rearmed []model.RSIThreshold
}

// EvaluateRSI advances every configured RSI threshold with reading.
func EvaluateRSI(state *engine.State, reading model.RSIReading) RSIOutcome {
	var out RSIOutcome
	for _, key := range state.RSIThresholds() {
		switch t, _ := state.EvaluateRSI(key, reading.Value); t {
		case engine.Fired:
			out.Fired = append(out.Fired, key)
		case engine.Rearmed:
			out.Rearmed = append(out.Rearmed, key)
		}
	}
	return out
}
