package domain

import "time"

// OpenPosition is a broker-owned entity read fresh each cycle. The core
// never creates or destroys one directly; the broker is the sole source
// of truth and this struct is a per-cycle read-only snapshot.
type OpenPosition struct {
	Ticket            int64
	Instrument        string
	Side              Side
	Volume            float64
	EntryPrice        float64
	CurrentPrice      float64
	CurrentStopLoss   float64 // 0 means no stop attached
	CurrentTakeProfit float64
	FloatingProfit    float64
	OpenedAt          time.Time
}

// InProfit reports whether price has moved in the position's favor.
func (p OpenPosition) InProfit() bool {
	if p.Side == SideLong {
		return p.CurrentPrice > p.EntryPrice
	}
	return p.CurrentPrice < p.EntryPrice
}

// AccountSnapshot is the broker account state at one instant.
type AccountSnapshot struct {
	Equity           float64
	Balance          float64
	RealizedPnlToday float64
	Currency         string
}
