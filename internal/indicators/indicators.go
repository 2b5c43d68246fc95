// Package indicators computes technical indicators over a price series
// ordered oldest first.
package indicators

import "errors"

// Default indicator periods and thresholds.
const (
	ShortMAPeriod = 5
	LongMAPeriod  = 20
	RSIPeriod     = 14

	RSINeutral    = 50.0
	RSIOverbought = 70.0
	RSIOversold   = 30.0
)

// ErrInsufficientData is returned when the series is shorter than the period.
var ErrInsufficientData = errors.New("insufficient price data")

// SMA returns the simple moving average of the last period prices.
// Returns ErrInsufficientData if fewer than period prices are available.
func SMA(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period {
		return 0, ErrInsufficientData
	}

	var sum float64
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period), nil
}

// RSI returns the relative strength index over the last period price changes.
// Fewer than period+1 prices yields RSINeutral. A zero average loss yields 100.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return RSINeutral
	}

	var gains, losses float64
	window := prices[len(prices)-period-1:]
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
