package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantonic/autotrader/internal/domain"
)

func closes(values ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(values))
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		bars[i] = domain.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Open: v, High: v, Low: v, Close: v}
	}
	return bars
}

func TestEMAInsufficientBars(t *testing.T) {
	_, ok := EMA(closes(1, 2, 3), 5)
	assert.False(t, ok)

	_, ok = EMA(nil, 5)
	assert.False(t, ok)

	_, ok = EMA(closes(1, 2, 3), 0)
	assert.False(t, ok)
}

func TestEMAConstantSeries(t *testing.T) {
	bars := closes(1.5, 1.5, 1.5, 1.5, 1.5, 1.5)
	ema, ok := EMA(bars, 3)
	assert.True(t, ok)
	assert.InDelta(t, 1.5, ema, 1e-12)
}

func TestEMATracksTrend(t *testing.T) {
	up := closes(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	fast, _ := EMA(up, 3)
	slow, _ := EMA(up, 8)
	assert.Greater(t, fast, slow, "fast EMA leads in an uptrend")
}

func TestRSIExtremes(t *testing.T) {
	up := closes(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16)
	rsi, ok := RSI(up, 14)
	assert.True(t, ok)
	assert.InDelta(t, 100, rsi, 1e-9, "all gains")

	down := closes(16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1)
	rsi, ok = RSI(down, 14)
	assert.True(t, ok)
	assert.InDelta(t, 0, rsi, 1e-9, "all losses")
}

func TestRSINeedsNPlusOneBars(t *testing.T) {
	_, ok := RSI(closes(1, 2, 3), 3)
	assert.False(t, ok)

	_, ok = RSI(closes(1, 2, 3, 4), 3)
	assert.True(t, ok)
}

func TestATRConstantRange(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, 20)
	for i := range bars {
		bars[i] = domain.Bar{
			Time:  t0.Add(time.Duration(i) * time.Minute),
			Open:  10,
			High:  11,
			Low:   10,
			Close: 10.5,
		}
	}
	atr, ok := ATR(bars, 14)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, atr, 1e-9, "true range is the constant high-low span")
}

func TestATRNeedsNPlusTwoBars(t *testing.T) {
	bars := closes(1, 2, 3, 4, 5)
	_, ok := ATR(bars, 4)
	assert.False(t, ok)

	_, ok = ATR(closes(1, 2, 3, 4, 5, 6), 4)
	assert.True(t, ok)
}
