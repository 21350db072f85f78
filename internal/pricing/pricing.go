// Package pricing converts between strategy distances (pips) and absolute
// prices, and keeps every computed price on the instrument's tick grid.
// Conversions are idempotent so repeated stop widening never drifts off
// the valid price grid.
package pricing

import (
	"math"
	"strings"

	"github.com/quantonic/autotrader/internal/domain"
)

// PipSize returns the price value of one strategy pip for the instrument.
// Metals quote a 0.1 pip by broker convention; 5-digit FX uses 0.0001;
// anything else falls back to 10 points.
func PipSize(inst domain.Instrument) float64 {
	sym := strings.ToUpper(inst.Symbol)
	if strings.Contains(sym, "XAU") || strings.Contains(sym, "GOLD") {
		return 0.1
	}
	if inst.Digits >= 5 {
		return 0.0001
	}
	point := inst.Point
	if point <= 0 {
		point = 0.00001
	}
	return point * 10.0
}

// PriceDelta converts a pip distance to an absolute price distance.
func PriceDelta(inst domain.Instrument, pips float64) float64 {
	return PipSize(inst) * pips
}

// PipsBetween returns the distance between two prices in pips.
func PipsBetween(inst domain.Instrument, a, b float64) float64 {
	pip := PipSize(inst)
	if pip <= 0 {
		return 0
	}
	return math.Abs(a-b) / pip
}

// RoundToTick snaps a price to the nearest multiple of the instrument's
// tick size. A non-positive tick size leaves the price unchanged.
func RoundToTick(inst domain.Instrument, price float64) float64 {
	ts := inst.TickSize
	if ts <= 0 {
		ts = inst.Point
	}
	if ts <= 0 {
		return price
	}
	return math.Round(price/ts) * ts
}

// Stops holds the absolute protective prices computed for an entry.
type Stops struct {
	StopLoss   float64
	TakeProfit float64
}

// ComputeStops converts pip distances into absolute SL/TP prices relative
// to the entry reference, pushes them outward to satisfy the broker's
// minimum stop distance, and rounds both to the tick grid.
//
// Long: SL below entry, TP above. Short: SL above entry, TP below.
func ComputeStops(inst domain.Instrument, side domain.Side, entry, slPips, tpPips float64) Stops {
	slDelta := PriceDelta(inst, slPips)
	tpDelta := PriceDelta(inst, tpPips)

	var sl, tp float64
	if side == domain.SideLong {
		sl = entry - slDelta
		tp = entry + tpDelta
	} else {
		sl = entry + slDelta
		tp = entry - tpDelta
	}

	sl, tp = enforceMinStopDistance(inst, side, entry, sl, tp)
	return Stops{
		StopLoss:   RoundToTick(inst, sl),
		TakeProfit: RoundToTick(inst, tp),
	}
}

// enforceMinStopDistance pushes SL/TP outward when they sit closer to the
// entry than the broker's stop level allows. Stop level is reported in
// points and converted to a price distance here.
func enforceMinStopDistance(inst domain.Instrument, side domain.Side, entry, sl, tp float64) (float64, float64) {
	if inst.StopLevelPoints <= 0 || inst.Point <= 0 {
		return sl, tp
	}
	minDist := inst.StopLevelPoints * inst.Point

	if side == domain.SideLong {
		if entry-sl < minDist {
			sl = entry - minDist
		}
		if tp-entry < minDist {
			tp = entry + minDist
		}
	} else {
		if sl-entry < minDist {
			sl = entry + minDist
		}
		if entry-tp < minDist {
			tp = entry - minDist
		}
	}
	return sl, tp
}
