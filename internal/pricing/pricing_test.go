package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantonic/autotrader/internal/domain"
)

func fx5() domain.Instrument {
	return domain.Instrument{
		Symbol:   "EURUSD",
		Digits:   5,
		Point:    0.00001,
		TickSize: 0.00001,
	}
}

func gold() domain.Instrument {
	return domain.Instrument{
		Symbol:   "XAUUSD",
		Digits:   2,
		Point:    0.01,
		TickSize: 0.01,
	}
}

func TestPipSize(t *testing.T) {
	assert.InDelta(t, 0.0001, PipSize(fx5()), 1e-12)
	assert.InDelta(t, 0.1, PipSize(gold()), 1e-12)

	jpy := domain.Instrument{Symbol: "USDJPY", Digits: 3, Point: 0.001, TickSize: 0.001}
	assert.InDelta(t, 0.01, PipSize(jpy), 1e-12)
}

func TestPipsBetween(t *testing.T) {
	inst := fx5()
	assert.InDelta(t, 25.0, PipsBetween(inst, 1.1000, 1.1025), 1e-6)
	assert.InDelta(t, 25.0, PipsBetween(inst, 1.1025, 1.1000), 1e-6, "distance is unsigned")
}

func TestRoundToTickIdempotent(t *testing.T) {
	inst := fx5()
	p := RoundToTick(inst, 1.123456789)
	assert.InDelta(t, p, RoundToTick(inst, p), 1e-12)

	// No tick size leaves the price alone.
	raw := domain.Instrument{Symbol: "X"}
	assert.Equal(t, 1.2345, RoundToTick(raw, 1.2345))
}

func TestComputeStopsLong(t *testing.T) {
	inst := fx5()
	stops := ComputeStops(inst, domain.SideLong, 1.1000, 25, 50)
	assert.InDelta(t, 1.0975, stops.StopLoss, 1e-9)
	assert.InDelta(t, 1.1050, stops.TakeProfit, 1e-9)
}

func TestComputeStopsShort(t *testing.T) {
	inst := fx5()
	stops := ComputeStops(inst, domain.SideShort, 1.1000, 25, 50)
	assert.InDelta(t, 1.1025, stops.StopLoss, 1e-9)
	assert.InDelta(t, 1.0950, stops.TakeProfit, 1e-9)
}

func TestComputeStopsRespectsStopLevel(t *testing.T) {
	inst := fx5()
	inst.StopLevelPoints = 300 // 0.003 = 30 pips minimum distance

	stops := ComputeStops(inst, domain.SideLong, 1.1000, 10, 10)
	require.InDelta(t, 1.0970, stops.StopLoss, 1e-9, "stop pushed out to the broker minimum")
	require.InDelta(t, 1.1030, stops.TakeProfit, 1e-9)

	short := ComputeStops(inst, domain.SideShort, 1.1000, 10, 10)
	assert.InDelta(t, 1.1030, short.StopLoss, 1e-9)
	assert.InDelta(t, 1.0970, short.TakeProfit, 1e-9)
}

func TestComputeStopsWideEnoughUntouched(t *testing.T) {
	inst := fx5()
	inst.StopLevelPoints = 100 // 10 pips

	stops := ComputeStops(inst, domain.SideLong, 1.1000, 25, 50)
	assert.InDelta(t, 1.0975, stops.StopLoss, 1e-9)
	assert.InDelta(t, 1.1050, stops.TakeProfit, 1e-9)
}
