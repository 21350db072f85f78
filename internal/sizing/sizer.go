// Package sizing converts a stop distance and sizing policy into an order
// quantity. Bad inputs never raise: the sizer degrades to the fixed policy
// and never returns a zero or negative quantity.
package sizing

import (
	"math"

	"github.com/quantonic/autotrader/internal/domain"
	"github.com/quantonic/autotrader/internal/pricing"
)

// Mode selects the sizing policy.
type Mode string

const (
	ModeFixed        Mode = "fixed"
	ModeRiskFraction Mode = "risk"
)

// Policy holds the parameters for both sizing modes. PerInstrumentLots
// overrides DefaultLots in fixed mode and acts as a cap in risk mode.
type Policy struct {
	Mode              Mode
	DefaultLots       float64
	PerInstrumentLots map[string]float64
	RiskFraction      float64 // fraction of equity risked per trade
	MinLot            float64
	MaxLot            float64
}

// Sizer computes order quantities from stop distances.
type Sizer struct {
	policy Policy
}

// New creates a Sizer for the given policy.
func New(policy Policy) *Sizer {
	if policy.DefaultLots <= 0 {
		policy.DefaultLots = 0.01
	}
	if policy.MinLot <= 0 {
		policy.MinLot = 0.01
	}
	if policy.MaxLot <= 0 {
		policy.MaxLot = 1.0
	}
	return &Sizer{policy: policy}
}

// Size returns the lot quantity for a trade on inst with the given stop
// distance in pips. equity is the current account equity. The result is
// clamped to [MinLot, MaxLot], capped by a per-instrument override when
// present, and rounded down to the instrument's volume step.
func (s *Sizer) Size(inst domain.Instrument, stopDistancePips, equity float64) float64 {
	fixed := s.fixedLots(inst.Symbol)

	if s.policy.Mode != ModeRiskFraction || stopDistancePips <= 0 || equity <= 0 {
		return s.normalize(inst, fixed)
	}

	perUnit := perUnitValue(inst)
	if perUnit <= 0 {
		return s.normalize(inst, fixed)
	}

	riskAmount := equity * s.policy.RiskFraction
	if riskAmount <= 0 {
		return s.normalize(inst, fixed)
	}

	stopDist := pricing.PriceDelta(inst, stopDistancePips)
	riskPerLot := stopDist * perUnit
	if riskPerLot <= 0 {
		return s.normalize(inst, fixed)
	}

	lots := riskAmount / riskPerLot

	maxLot := s.policy.MaxLot
	if override, ok := s.policy.PerInstrumentLots[inst.Symbol]; ok && override > 0 {
		maxLot = math.Min(maxLot, override)
	}
	lots = math.Max(s.policy.MinLot, math.Min(maxLot, lots))

	return s.normalize(inst, lots)
}

// fixedLots returns the per-instrument override if configured, else the
// global default.
func (s *Sizer) fixedLots(symbol string) float64 {
	if v, ok := s.policy.PerInstrumentLots[symbol]; ok && v > 0 {
		return v
	}
	return s.policy.DefaultLots
}

// normalize clamps lots into the broker's volume limits and rounds down
// to the volume step so the broker never sees an invalid volume.
func (s *Sizer) normalize(inst domain.Instrument, lots float64) float64 {
	minLot := s.policy.MinLot
	if inst.VolumeMin > minLot {
		minLot = inst.VolumeMin
	}
	maxLot := s.policy.MaxLot
	if inst.VolumeMax > 0 && inst.VolumeMax < maxLot {
		maxLot = inst.VolumeMax
	}
	if maxLot < minLot {
		maxLot = minLot
	}

	lots = math.Max(minLot, math.Min(maxLot, lots))

	if step := inst.VolumeStep; step > 0 {
		lots = math.Floor(lots/step) * step
		if lots < step {
			lots = step
		}
	}
	return lots
}

// perUnitValue estimates the account-currency value of a 1.0 price move
// for one lot, derived from the broker's tick economics.
func perUnitValue(inst domain.Instrument) float64 {
	ts := inst.TickSize
	if ts <= 0 {
		ts = inst.Point
	}
	if ts <= 0 || inst.TickValue <= 0 {
		return 0
	}
	return inst.TickValue / ts
}
