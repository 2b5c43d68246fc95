package indicators

import (
	"math"
	"testing"
)

func series(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6}

	got, err := SMA(prices, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 4.0 {
		t.Errorf("expected 4.0, got %f", got)
	}
}

func TestSMA_Insufficient(t *testing.T) {
	_, err := SMA([]float64{1, 2, 3}, 5)
	if err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}

	_, err = SMA(nil, 0)
	if err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData for zero period, got %v", err)
	}
}

func TestRSI_Increasing(t *testing.T) {
	got := RSI(series(15, 100, 1), RSIPeriod)
	if got != 100 {
		t.Errorf("expected RSI 100 for increasing series, got %f", got)
	}
}

func TestRSI_Decreasing(t *testing.T) {
	got := RSI(series(30, 100, -1), RSIPeriod)
	if got > 1e-9 {
		t.Errorf("expected RSI near 0 for decreasing series, got %f", got)
	}
}

func TestRSI_InsufficientHistory(t *testing.T) {
	got := RSI(series(14, 100, 1), RSIPeriod)
	if got != RSINeutral {
		t.Errorf("expected neutral RSI with 14 points, got %f", got)
	}
}

func TestRSI_Flat(t *testing.T) {
	got := RSI(series(20, 5, 0), RSIPeriod)
	if got != 100 {
		t.Errorf("expected RSI 100 when there are no losses, got %f", got)
	}
}

func TestRSI_Mixed(t *testing.T) {
	// 7 gains of 2 and 7 losses of 1: RS = 2, RSI = 66.67
	prices := []float64{100}
	for i := 0; i < 7; i++ {
		last := prices[len(prices)-1]
		prices = append(prices, last+2, last+1)
	}

	got := RSI(prices, RSIPeriod)
	want := 100 - 100/3.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %f, got %f", want, got)
	}
}

func TestRSI_UsesOnlyRecentWindow(t *testing.T) {
	prices := append(series(20, 200, -5), series(15, 101, 1)...)
	if got := RSI(prices, RSIPeriod); got != 100 {
		t.Errorf("expected old losses outside the window to be ignored, got %f", got)
	}
}
