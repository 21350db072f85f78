package domain

import "time"

// Side is the direction of a trade.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the other direction.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Signal is a proposed trade emitted by a SignalSource for one cycle.
// It is consumed within the cycle that produced it and never persisted.
type Signal struct {
	Instrument     string
	Side           Side
	EntryHint      *float64 // optional preferred entry; nil means "best available"
	StopDistance   float64  // pips
	TargetDistance float64  // pips
	Confidence     float64  // 0..1
	Regime         string   // coarse trend tag, e.g. "trend_up", "mixed"
	At             time.Time
	Why            []string // diagnostic notes from the strategy
}

// NoSignal reports whether the source declined to propose a trade.
func (s Signal) NoSignal() bool {
	return s.Side == ""
}
