package domain

import "context"

// BrokerSession is the injected capability boundary to the broker
// terminal: quote lookup, bar history, order submit/modify, position and
// account queries. Mutating calls (SubmitMarketOrder, ModifyStopLoss) are
// serialized by the session implementation; reads may run concurrently.
type BrokerSession interface {
	// Quote returns the current best bid/ask, or ErrNoTick.
	Quote(ctx context.Context, symbol string) (Quote, error)

	// RecentBars returns up to count bars of the given timeframe, oldest
	// first, or ErrUnavailable when history cannot be served.
	RecentBars(ctx context.Context, symbol string, tf Timeframe, count int) ([]Bar, error)

	// SubmitMarketOrder sends a market order. A nil error means the broker
	// answered; the reply retcode still has to be interpreted.
	SubmitMarketOrder(ctx context.Context, req OrderRequest) (BrokerReply, error)

	// ModifyStopLoss updates the stop-loss of an open position, leaving
	// the take-profit unchanged.
	ModifyStopLoss(ctx context.Context, ticket int64, newStop float64) (ModifyResult, error)

	// OpenPositions returns open positions, optionally filtered by symbol
	// (empty string = all).
	OpenPositions(ctx context.Context, symbol string) ([]OpenPosition, error)

	// AccountSnapshot returns equity, balance, and realized PnL for the day.
	AccountSnapshot(ctx context.Context) (AccountSnapshot, error)

	// InstrumentMetadata resolves tick size, stop level, and volume limits.
	InstrumentMetadata(ctx context.Context, symbol string) (Instrument, error)

	// IsTradable reports whether the symbol can currently be traded
	// (enabled trade mode and a fresh tick).
	IsTradable(ctx context.Context, symbol string) (bool, error)
}
