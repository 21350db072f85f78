// Package indicator implements the small set of technical indicators the
// signal and trailing layers consume: EMA, RSI (Wilder), and ATR (Wilder).
// All functions operate on ordered bar slices and return NaN-free scalars;
// an insufficient lookback yields ok=false instead of a partial value.
package indicator

import "github.com/quantonic/autotrader/internal/domain"

// EMA returns the exponential moving average of Close over period n,
// seeded with the SMA of the first n bars.
func EMA(bars []domain.Bar, n int) (float64, bool) {
	if n <= 0 || len(bars) < n {
		return 0, false
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += bars[i].Close
	}
	ema := sum / float64(n)
	k := 2.0 / float64(n+1)
	for i := n; i < len(bars); i++ {
		ema = bars[i].Close*k + ema*(1-k)
	}
	return ema, true
}

// RSI returns the n-period Relative Strength Index using Wilder's
// smoothing over Close.
func RSI(bars []domain.Bar, n int) (float64, bool) {
	if n <= 0 || len(bars) < n+1 {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= n; i++ {
		d := bars[i].Close - bars[i-1].Close
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(n)
	avgLoss := loss / float64(n)

	for i := n + 1; i < len(bars); i++ {
		d := bars[i].Close - bars[i-1].Close
		up, down := 0.0, 0.0
		if d > 0 {
			up = d
		} else {
			down = -d
		}
		avgGain = (avgGain*float64(n-1) + up) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + down) / float64(n)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs), true
}

// ATR returns the n-period Average True Range using Wilder's smoothing.
// It needs at least n+2 bars.
func ATR(bars []domain.Bar, n int) (float64, bool) {
	if n <= 0 || len(bars) < n+2 {
		return 0, false
	}
	tr := func(i int) float64 {
		hl := bars[i].High - bars[i].Low
		hc := abs(bars[i].High - bars[i-1].Close)
		lc := abs(bars[i].Low - bars[i-1].Close)
		return max3(hl, hc, lc)
	}

	var sum float64
	for i := 1; i <= n; i++ {
		sum += tr(i)
	}
	atr := sum / float64(n)
	for i := n + 1; i < len(bars); i++ {
		atr = (atr*float64(n-1) + tr(i)) / float64(n)
	}
	return atr, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
