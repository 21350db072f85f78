package domain

import "time"

// Guard rejection reasons. The guard returns every applicable reason,
// in check order, so a blocked symbol's diagnostics are complete.
const (
	ReasonMarketClosed      = "market_closed_or_stale"
	ReasonCooldownActive    = "cooldown_active"
	ReasonOutsideSession    = "outside_trading_session"
	ReasonMaxOpenReached    = "max_open_reached"
	ReasonPerSymbolCap      = "per_symbol_cap_reached"
	ReasonSameSideBlocked   = "same_side_blocked"
	ReasonFloatingUnderMin  = "symbol_floating_under_min"
	ReasonEquityFloor       = "equity_floor_breached"
	ReasonDailyLossLimit    = "daily_loss_limit_hit"
)

// GuardSnapshot captures the account and exposure state the guard saw at
// the moment of evaluation.
type GuardSnapshot struct {
	OpenPositionsTotal      int
	OpenPositionsInstrument int
	SameSideOpen            bool
	FloatingPnlInstrument   float64
	Equity                  float64
	DailyPnl                float64
	CooldownRemaining       time.Duration
}

// GuardDecision is the outcome of a pre-trade admission check. It is
// produced and consumed within one cycle. Accepted means no cap was
// exceeded at the instant of the check; broker state can still change
// before submission.
type GuardDecision struct {
	Accepted bool
	Reasons  []string
	Snapshot GuardSnapshot
}
