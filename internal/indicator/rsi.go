package indicator

import (
	"fmt"
	"math"

	"swap-price-alerts/internal/model"
)

const (
	// DefaultPeriod is Wilder's original smoothing period.
	DefaultPeriod = 14
	// lossEpsilon stands in for a zero average loss when forming RS.
	lossEpsilon = 1e-8
)

// RSIResult holds the RSI series and the smoothed averages it was derived from.
// Entries before index Period are NaN.
type RSIResult struct {
	Period  int
	RSI     []float64
	AvgGain []float64
	AvgLoss []float64
}

// WilderRSI computes Wilder's RSI over closes. Bars with zero volume after the
// seed window leave the smoothed averages unchanged.
func WilderRSI(closes, volumes []float64, period int) (RSIResult, error) {
	if period <= 0 {
		return RSIResult{}, fmt.Errorf("rsi period must be positive, got %d", period)
	}
	if len(volumes) != len(closes) {
		return RSIResult{}, fmt.Errorf("rsi: %d closes but %d volumes", len(closes), len(volumes))
	}
	if len(closes) < period+1 {
		return RSIResult{}, &model.InsufficientDataError{Need: period + 1, Got: len(closes)}
	}

	n := len(closes)
	res := RSIResult{
		Period:  period,
		RSI:     nanSlice(n),
		AvgGain: nanSlice(n),
		AvgLoss: nanSlice(n),
	}

	gain := make([]float64, n)
	loss := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gain[i] = delta
		} else {
			loss[i] = -delta
		}
	}

	var sumGain, sumLoss float64
	for i := 1; i <= period; i++ {
		sumGain += gain[i]
		sumLoss += loss[i]
	}
	p := float64(period)
	res.AvgGain[period] = sumGain / p
	res.AvgLoss[period] = sumLoss / p

	for i := period + 1; i < n; i++ {
		if volumes[i] == 0 {
			res.AvgGain[i] = res.AvgGain[i-1]
			res.AvgLoss[i] = res.AvgLoss[i-1]
			continue
		}
		res.AvgGain[i] = (res.AvgGain[i-1]*(p-1) + gain[i]) / p
		res.AvgLoss[i] = (res.AvgLoss[i-1]*(p-1) + loss[i]) / p
	}

	for i := period; i < n; i++ {
		avgLoss := res.AvgLoss[i]
		if avgLoss == 0 {
			avgLoss = lossEpsilon
		}
		rs := res.AvgGain[i] / avgLoss
		res.RSI[i] = 100 - 100/(1+rs)
	}

	return res, nil
}

// Latest returns the last defined RSI value and its index.
func (r RSIResult) Latest() (float64, int, bool) {
	for i := len(r.RSI) - 1; i >= 0; i-- {
		if !math.IsNaN(r.RSI[i]) {
			return r.RSI[i], i, true
		}
	}
	return 0, -1, false
}

// LatestReading computes the RSI over a candle series and returns the latest
// value rounded to two places together with its bar time.
func LatestReading(series []model.Candle, period int) (model.RSIReading, error) {
	res, err := WilderRSI(model.Closes(series), model.Volumes(series), period)
	if err != nil {
		return model.RSIReading{}, err
	}
	value, idx, ok := res.Latest()
	if !ok {
		return model.RSIReading{}, &model.InsufficientDataError{Need: period + 1, Got: len(series)}
	}
	return model.RSIReading{
		Value: roundReading(value),
		Time:  series[idx].Time,
	}, nil
}

// roundReading rounds to two places, halves to even.
func roundReading(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
