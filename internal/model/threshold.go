package model

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// PricePlaces is the number of fractional digits that identify a price threshold.
	PricePlaces = 8
	// RSIPlaces is the number of fractional digits that identify an RSI threshold.
	RSIPlaces = 2
)

// Side distinguishes buy from sell price alerts.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide validates a side string.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", &InvalidConfigurationError{Field: "side", Value: s}
}

// PriceThreshold is a target price held as a count of 1e-8 units.
type PriceThreshold struct {
	Side  Side
	Level int64
}

// NewPriceThreshold rounds value half away from zero to eight places.
func NewPriceThreshold(side Side, value decimal.Decimal) (PriceThreshold, error) {
	scaled := value.Round(PricePlaces).Shift(PricePlaces)
	if !scaled.BigInt().IsInt64() {
		return PriceThreshold{}, &InvalidConfigurationError{Field: string(side) + "_alerts", Value: value.String(), Err: fmt.Errorf("out of range")}
	}
	return PriceThreshold{Side: side, Level: scaled.IntPart()}, nil
}

// PriceThresholdFromFloat converts a JSON float into a threshold.
func PriceThresholdFromFloat(side Side, value float64) (PriceThreshold, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return PriceThreshold{}, &InvalidConfigurationError{Field: string(side) + "_alerts", Value: fmt.Sprint(value)}
	}
	return NewPriceThreshold(side, decimal.NewFromFloat(value))
}

// ParsePriceKey reads a persisted "%.8f" key.
func ParsePriceKey(side Side, key string) (PriceThreshold, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(key))
	if err != nil {
		return PriceThreshold{}, &InvalidConfigurationError{Field: "last_triggered_" + string(side), Value: key, Err: err}
	}
	return NewPriceThreshold(side, d)
}

// Value returns the threshold as a decimal.
func (t PriceThreshold) Value() decimal.Decimal {
	return decimal.New(t.Level, -PricePlaces)
}

// Float returns the threshold for JSON encoding.
func (t PriceThreshold) Float() float64 {
	return t.Value().InexactFloat64()
}

// Key is the persisted identity, formatted with eight decimals.
func (t PriceThreshold) Key() string {
	return t.Value().StringFixed(PricePlaces)
}

func (t PriceThreshold) String() string {
	return string(t.Side) + ":" + t.Key()
}

// Satisfied reports whether price meets the threshold: buy fires at or below, sell at or above.
func (t PriceThreshold) Satisfied(price decimal.Decimal) bool {
	switch t.Side {
	case SideBuy:
		return price.LessThanOrEqual(t.Value())
	case SideSell:
		return price.GreaterThanOrEqual(t.Value())
	}
	return false
}

// Direction selects which side of an RSI threshold fires.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// RSIThreshold is a directional RSI level held in hundredths.
type RSIThreshold struct {
	Direction  Direction
	Hundredths int64
}

// NewRSIThreshold rounds value to two places.
func NewRSIThreshold(dir Direction, value decimal.Decimal) (RSIThreshold, error) {
	if dir != DirectionAbove && dir != DirectionBelow {
		return RSIThreshold{}, &InvalidConfigurationError{Field: "rsi_alerts", Value: string(dir), Err: fmt.Errorf("direction must be above or below")}
	}
	scaled := value.Round(RSIPlaces).Shift(RSIPlaces)
	if !scaled.BigInt().IsInt64() {
		return RSIThreshold{}, &InvalidConfigurationError{Field: "rsi_alerts", Value: value.String(), Err: fmt.Errorf("out of range")}
	}
	return RSIThreshold{Direction: dir, Hundredths: scaled.IntPart()}, nil
}

// ParseRSIThreshold parses "above:70" or "below:30.5".
func ParseRSIThreshold(entry string) (RSIThreshold, error) {
	dirStr, valStr, ok := strings.Cut(strings.TrimSpace(entry), ":")
	if !ok {
		return RSIThreshold{}, &InvalidConfigurationError{Field: "rsi_alerts", Value: entry, Err: fmt.Errorf("expected direction:threshold")}
	}
	value, err := decimal.NewFromString(strings.TrimSpace(valStr))
	if err != nil {
		return RSIThreshold{}, &InvalidConfigurationError{Field: "rsi_alerts", Value: entry, Err: err}
	}
	t, err := NewRSIThreshold(Direction(strings.ToLower(strings.TrimSpace(dirStr))), value)
	if err != nil {
		return RSIThreshold{}, &InvalidConfigurationError{Field: "rsi_alerts", Value: entry, Err: err}
	}
	return t, nil
}

// Value returns the threshold as a float for comparison with computed RSI.
func (t RSIThreshold) Value() float64 {
	return decimal.New(t.Hundredths, -RSIPlaces).InexactFloat64()
}

// Key is the persisted identity "direction:xx.xx".
func (t RSIThreshold) Key() string {
	return string(t.Direction) + ":" + decimal.New(t.Hundredths, -RSIPlaces).StringFixed(RSIPlaces)
}

func (t RSIThreshold) String() string { return t.Key() }

// Crossed reports whether rsi is past the threshold in the alert's direction.
func (t RSIThreshold) Crossed(rsi float64) bool {
	if t.Direction == DirectionAbove {
		return rsi > t.Value()
	}
	return rsi < t.Value()
}

// Recrossed reports whether rsi has moved back past the threshold in the opposite sense.
func (t RSIThreshold) Recrossed(rsi float64) bool {
	if t.Direction == DirectionAbove {
		return rsi < t.Value()
	}
	return rsi > t.Value()
}

// SortPriceThresholds orders thresholds by level and drops duplicates.
func SortPriceThresholds(in []PriceThreshold) []PriceThreshold {
	seen := make(map[PriceThreshold]struct{}, len(in))
	out := make([]PriceThreshold, 0, len(in))
	for _, t := range in {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// SortRSIThresholds orders thresholds by key and drops duplicates.
func SortRSIThresholds(in []RSIThreshold) []RSIThreshold {
	seen := make(map[RSIThreshold]struct{}, len(in))
	out := make([]RSIThreshold, 0, len(in))
	for _, t := range in {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Direction != out[j].Direction {
			return out[i].Direction < out[j].Direction
		}
		return out[i].Hundredths < out[j].Hundredths
	})
	return out
}
