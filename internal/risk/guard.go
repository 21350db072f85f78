// Package risk implements the pre-trade admission gate. Every check is
// evaluated (no short-circuit) so a rejection carries the full list of
// reasons; a rejection also writes the instrument's cooldown timestamp,
// which keeps a blocked symbol from being re-evaluated every tick.
// Acceptance does NOT touch the cooldown: only a successful submission
// should, and that write belongs to the trade loop.
package risk

import (
	"context"
	"log/slog"
	"time"

	"github.com/quantonic/autotrader/internal/domain"
)

// GuardConfig holds every admission threshold. Zero values disable the
// corresponding check.
type GuardConfig struct {
	CooldownWindow   time.Duration
	MaxOpenTotal     int
	MaxPerInstrument int
	BlockSameSide    bool
	FloatingPnlFloor float64 // negative floor; 0 disables
	EquityFloor      float64
	DailyLossLimit   float64 // positive magnitude; 0 disables
	MarketCheck      bool
	Sessions         []SessionWindow
}

// Guard is the stateful admission-control gate.
type Guard struct {
	session  domain.BrokerSession
	cooldown *CooldownState
	cfg      GuardConfig
	logger   *slog.Logger
}

// NewGuard creates a Guard with all required dependencies.
func NewGuard(session domain.BrokerSession, cooldown *CooldownState, cfg GuardConfig, logger *slog.Logger) *Guard {
	return &Guard{
		session:  session,
		cooldown: cooldown,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "risk_guard")),
	}
}

// Evaluate runs every admission check for the proposed trade and returns
// the full decision. On rejection it records now against the instrument's
// cooldown key so the symbol is not immediately re-evaluated.
func (g *Guard) Evaluate(ctx context.Context, symbol string, side domain.Side, stopDistancePips float64, now time.Time) domain.GuardDecision {
	var reasons []string
	var snap domain.GuardSnapshot

	// Market / tradability gate.
	if g.cfg.MarketCheck {
		tradable, err := g.session.IsTradable(ctx, symbol)
		if err != nil || !tradable {
			reasons = append(reasons, domain.ReasonMarketClosed)
		}
	}

	// Cooldown.
	snap.CooldownRemaining = g.cooldown.Remaining(symbol, g.cfg.CooldownWindow, now)
	if snap.CooldownRemaining > 0 {
		reasons = append(reasons, domain.ReasonCooldownActive)
	}

	// Session windows.
	if !inAnySession(g.cfg.Sessions, now) {
		reasons = append(reasons, domain.ReasonOutsideSession)
	}

	// Exposure caps. Position reads are best-effort: an unreachable
	// broker fails the market gate above, not the cap checks.
	all, err := g.session.OpenPositions(ctx, "")
	if err != nil {
		all = nil
	}
	snap.OpenPositionsTotal = len(all)

	var symPositions []domain.OpenPosition
	for _, p := range all {
		if p.Instrument == symbol {
			symPositions = append(symPositions, p)
		}
	}
	snap.OpenPositionsInstrument = len(symPositions)

	if g.cfg.MaxOpenTotal > 0 && snap.OpenPositionsTotal >= g.cfg.MaxOpenTotal {
		reasons = append(reasons, domain.ReasonMaxOpenReached)
	}
	if g.cfg.MaxPerInstrument > 0 && snap.OpenPositionsInstrument >= g.cfg.MaxPerInstrument {
		reasons = append(reasons, domain.ReasonPerSymbolCap)
	}

	// Same-side block.
	for _, p := range symPositions {
		if p.Side == side {
			snap.SameSideOpen = true
			break
		}
	}
	if g.cfg.BlockSameSide && snap.SameSideOpen {
		reasons = append(reasons, domain.ReasonSameSideBlocked)
	}

	// Per-instrument floating PnL floor.
	for _, p := range symPositions {
		snap.FloatingPnlInstrument += p.FloatingProfit
	}
	if g.cfg.FloatingPnlFloor < 0 && snap.FloatingPnlInstrument <= g.cfg.FloatingPnlFloor {
		reasons = append(reasons, domain.ReasonFloatingUnderMin)
	}

	// Account health. An unreadable account fails safe: it counts as zero
	// equity and unknown daily PnL, so configured limits reject instead of
	// being silently skipped.
	acct, acctErr := g.session.AccountSnapshot(ctx)
	if acctErr != nil {
		if g.cfg.EquityFloor > 0 {
			reasons = append(reasons, domain.ReasonEquityFloor)
		}
		if g.cfg.DailyLossLimit > 0 {
			reasons = append(reasons, domain.ReasonDailyLossLimit)
		}
		if g.cfg.EquityFloor > 0 || g.cfg.DailyLossLimit > 0 {
			g.logger.WarnContext(ctx, "account snapshot unavailable, failing account checks",
				slog.String("symbol", symbol),
				slog.String("error", acctErr.Error()),
			)
		}
	} else {
		snap.Equity = acct.Equity
		if snap.Equity <= 0 {
			snap.Equity = acct.Balance
		}

		var floating float64
		for _, p := range all {
			floating += p.FloatingProfit
		}
		snap.DailyPnl = acct.RealizedPnlToday + floating

		if g.cfg.EquityFloor > 0 && snap.Equity <= g.cfg.EquityFloor {
			reasons = append(reasons, domain.ReasonEquityFloor)
		}
		if g.cfg.DailyLossLimit > 0 && snap.DailyPnl <= -g.cfg.DailyLossLimit {
			reasons = append(reasons, domain.ReasonDailyLossLimit)
		}
	}

	decision := domain.GuardDecision{
		Accepted: len(reasons) == 0,
		Reasons:  reasons,
		Snapshot: snap,
	}

	if !decision.Accepted {
		// Hysteresis: a blocked symbol self-cooldowns so it is not
		// hammered on the next tick.
		g.cooldown.Mark(ctx, symbol, now)
		g.logger.InfoContext(ctx, "trade blocked",
			slog.String("symbol", symbol),
			slog.String("side", string(side)),
			slog.Any("reasons", reasons),
			slog.Int("open_total", snap.OpenPositionsTotal),
			slog.Int("open_symbol", snap.OpenPositionsInstrument),
			slog.Float64("equity", snap.Equity),
			slog.Float64("daily_pnl", snap.DailyPnl),
			slog.Float64("sl_pips", stopDistancePips),
		)
	}

	return decision
}
