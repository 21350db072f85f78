package domain

import "time"

// Bar is one OHLC candle. Sequences returned by a broker session are
// strictly time-ordered with no duplicate timestamps.
type Bar struct {
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Quote is the current best bid/ask for an instrument.
type Quote struct {
	Bid  float64
	Ask  float64
	Time time.Time
}

// Reference returns the entry reference price for the given side:
// ask for long entries, bid for short entries.
func (q Quote) Reference(side Side) float64 {
	if side == SideLong {
		return q.Ask
	}
	return q.Bid
}
