package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one bar of the series fed into the RSI calculator.
type Candle struct {
	Time   time.Time
	Close  float64
	Volume float64
}

// Phantom reports whether no trade happened during the bar.
func (c Candle) Phantom() bool { return c.Volume == 0 }

// Closes extracts the close prices of a series.
func Closes(series []Candle) []float64 {
	out := make([]float64, len(series))
	for i, c := range series {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volumes of a series.
func Volumes(series []Candle) []float64 {
	out := make([]float64, len(series))
	for i, c := range series {
		out[i] = c.Volume
	}
	return out
}

// PriceSample is one driver-cycle observation of the buy and sell price.
type PriceSample struct {
	Timestamp time.Time
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
}

// RSIReading is the latest defined RSI value and the bar it belongs to.
type RSIReading struct {
	Value float64
	Time  time.Time
}
