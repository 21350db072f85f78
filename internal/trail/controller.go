// Package trail moves protective stops in the direction of profit. Stops
// only ever tighten: a pass may raise a long's stop or lower a short's,
// never the reverse, and a pass always inspects every position even when
// individual modifications fail.
package trail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantonic/autotrader/internal/domain"
	"github.com/quantonic/autotrader/internal/indicator"
	"github.com/quantonic/autotrader/internal/pricing"
	"github.com/quantonic/autotrader/internal/strategy"
)

// Mode selects how the trailing distance is derived.
type Mode string

const (
	ModeATR  Mode = "atr"
	ModePips Mode = "pips"
)

// Config holds the trailing thresholds, all distances in pips unless
// noted. StartPips gates trailing until the position carries that much
// profit; LockPips is the minimum profit a moved stop must secure.
type Config struct {
	Mode          Mode
	Timeframe     domain.Timeframe
	ATRPeriod     int
	ATRMultiplier float64
	TrailPips     float64 // distance behind price in pips mode
	StartPips     float64
	LockPips      float64
	StepPips      float64       // minimum improvement before a modify is sent
	Cooldown      time.Duration // per-instrument pass cadence
	OnlyInProfit  bool          // trail (and lock profit) only on favorable positions
	RequireBias   bool          // skip instruments the strategy no longer favors
}

// Defaults returns the trailing configuration used when none is supplied.
func Defaults() Config {
	return Config{
		Mode:          ModeATR,
		Timeframe:     domain.TimeframeM5,
		ATRPeriod:     14,
		ATRMultiplier: 2.0,
		TrailPips:     20,
		StartPips:     10,
		LockPips:      2,
		StepPips:      1,
		Cooldown:      time.Minute,
		OnlyInProfit:  true,
	}
}

// Controller runs trailing passes over open positions. It keeps only the
// per-instrument pass timestamps; everything else is read fresh from the
// broker each pass.
type Controller struct {
	session domain.BrokerSession
	source  strategy.SignalSource // consulted only when RequireBias is set
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// NewController creates a Controller. source may be nil when RequireBias
// is off.
func NewController(session domain.BrokerSession, source strategy.SignalSource, cfg Config, logger *slog.Logger) *Controller {
	def := Defaults()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = def.Timeframe
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = def.ATRPeriod
	}
	if cfg.ATRMultiplier <= 0 {
		cfg.ATRMultiplier = def.ATRMultiplier
	}
	if cfg.TrailPips <= 0 {
		cfg.TrailPips = def.TrailPips
	}
	if cfg.StepPips <= 0 {
		cfg.StepPips = def.StepPips
	}
	return &Controller{
		session: session,
		source:  source,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "trail")),
		lastRun: make(map[string]time.Time),
	}
}

// RunPass trails every open position on the given instruments and returns
// what it did. force bypasses the per-instrument cadence. Failures on one
// instrument or position never abort the rest of the pass.
func (c *Controller) RunPass(ctx context.Context, instruments []domain.Instrument, now time.Time, force bool) domain.TrailReport {
	var report domain.TrailReport

	for _, inst := range instruments {
		if ctx.Err() != nil {
			return report
		}
		if !force && !c.due(inst.Symbol, now) {
			report.Inspected = append(report.Inspected, domain.TrailSkip{
				Instrument: inst.Symbol,
				Reason:     "cooldown",
			})
			continue
		}
		c.trailInstrument(ctx, inst, now, &report)
		c.markRun(inst.Symbol, now)
	}
	return report
}

func (c *Controller) trailInstrument(ctx context.Context, inst domain.Instrument, now time.Time, report *domain.TrailReport) {
	positions, err := c.session.OpenPositions(ctx, inst.Symbol)
	if err != nil {
		c.logger.WarnContext(ctx, "positions unavailable",
			slog.String("symbol", inst.Symbol),
			slog.String("error", err.Error()),
		)
		report.Inspected = append(report.Inspected, domain.TrailSkip{
			Instrument: inst.Symbol,
			Reason:     "positions_unavailable",
		})
		return
	}
	if len(positions) == 0 {
		return
	}

	dist, ok := c.trailDistance(ctx, inst)
	if !ok {
		report.Inspected = append(report.Inspected, domain.TrailSkip{
			Instrument: inst.Symbol,
			Reason:     "no_trail_distance",
		})
		return
	}

	var bias domain.Side
	biasKnown := false
	if c.cfg.RequireBias && c.source != nil {
		sig, err := c.source.Evaluate(ctx, c.session, inst)
		if err == nil && !sig.NoSignal() {
			bias = sig.Side
			biasKnown = true
		}
	}

	for _, p := range positions {
		if ctx.Err() != nil {
			return
		}
		if c.cfg.RequireBias && (!biasKnown || bias != p.Side) {
			report.Inspected = append(report.Inspected, domain.TrailSkip{
				Instrument: inst.Symbol,
				Ticket:     p.Ticket,
				Reason:     "bias_not_confirmed",
			})
			continue
		}
		c.trailPosition(ctx, inst, p, dist, now, report)
	}
}

// trailPosition computes the candidate stop for one position and sends
// the modification when it is a genuine improvement.
func (c *Controller) trailPosition(ctx context.Context, inst domain.Instrument, p domain.OpenPosition, dist float64, now time.Time, report *domain.TrailReport) {
	skip := func(reason string) {
		report.Inspected = append(report.Inspected, domain.TrailSkip{
			Instrument: inst.Symbol,
			Ticket:     p.Ticket,
			Reason:     reason,
		})
	}

	if c.cfg.OnlyInProfit {
		if !p.InProfit() {
			skip("not_in_profit")
			return
		}
		if pricing.PipsBetween(inst, p.CurrentPrice, p.EntryPrice) < c.cfg.StartPips {
			skip("below_start")
			return
		}
	}

	candidate, ok := c.candidateStop(inst, p, dist)
	if !ok {
		skip("stop_level_blocks")
		return
	}

	// Tighten-only gate. A position without a stop gets one attached;
	// otherwise the move must improve by at least the step.
	if p.CurrentStopLoss != 0 {
		var improvement float64
		if p.Side == domain.SideLong {
			improvement = candidate - p.CurrentStopLoss
		} else {
			improvement = p.CurrentStopLoss - candidate
		}
		if improvement <= 0 || pricing.PipsBetween(inst, candidate, p.CurrentStopLoss) < c.cfg.StepPips {
			skip("no_improvement")
			return
		}
	}

	action := domain.TrailAction{
		Instrument: inst.Symbol,
		Ticket:     p.Ticket,
		Side:       p.Side,
		FromStop:   p.CurrentStopLoss,
		ToStop:     candidate,
		At:         now,
	}

	mr, err := c.session.ModifyStopLoss(ctx, p.Ticket, candidate)
	switch {
	case err != nil:
		action.Message = err.Error()
	case !mr.OK:
		action.Message = fmt.Sprintf("retcode %d: %s", mr.BrokerCode, mr.Message)
	default:
		action.OK = true
	}

	if action.OK {
		c.logger.InfoContext(ctx, "stop trailed",
			slog.String("symbol", inst.Symbol),
			slog.Int64("ticket", p.Ticket),
			slog.Float64("from", action.FromStop),
			slog.Float64("to", action.ToStop),
		)
	} else {
		c.logger.WarnContext(ctx, "trail modify failed",
			slog.String("symbol", inst.Symbol),
			slog.Int64("ticket", p.Ticket),
			slog.String("error", action.Message),
		)
	}
	report.Actions = append(report.Actions, action)
}

// candidateStop places the stop dist behind price, never worse than the
// locked profit level (only-in-profit mode), and keeps it outside the
// broker's minimum stop distance from the current price.
func (c *Controller) candidateStop(inst domain.Instrument, p domain.OpenPosition, dist float64) (float64, bool) {
	var candidate float64
	if p.Side == domain.SideLong {
		candidate = p.CurrentPrice - dist
	} else {
		candidate = p.CurrentPrice + dist
	}

	// The profit lock assumes the position is in profit; without that
	// precondition it would place the stop on the wrong side of price.
	if c.cfg.OnlyInProfit {
		lock := pricing.PriceDelta(inst, c.cfg.LockPips)
		if p.Side == domain.SideLong {
			if floor := p.EntryPrice + lock; candidate < floor {
				candidate = floor
			}
		} else {
			if ceil := p.EntryPrice - lock; candidate > ceil {
				candidate = ceil
			}
		}
	}

	if inst.StopLevelPoints > 0 && inst.Point > 0 {
		minDist := inst.StopLevelPoints * inst.Point
		if p.Side == domain.SideLong {
			if limit := p.CurrentPrice - minDist; candidate > limit {
				candidate = limit
			}
			if candidate <= 0 || candidate >= p.CurrentPrice {
				return 0, false
			}
		} else {
			if limit := p.CurrentPrice + minDist; candidate < limit {
				candidate = limit
			}
			if candidate <= p.CurrentPrice {
				return 0, false
			}
		}
	}

	return pricing.RoundToTick(inst, candidate), true
}

// trailDistance resolves the trailing distance as an absolute price
// delta. In ATR mode a missing volatility estimate skips the instrument
// for this pass; a fixed-distance substitute could trail far tighter
// than the market warrants.
func (c *Controller) trailDistance(ctx context.Context, inst domain.Instrument) (float64, bool) {
	if c.cfg.Mode == ModePips {
		return pricing.PriceDelta(inst, c.cfg.TrailPips), true
	}

	bars, err := c.session.RecentBars(ctx, inst.Symbol, c.cfg.Timeframe, c.cfg.ATRPeriod*4)
	if err != nil {
		return 0, false
	}
	atr, ok := indicator.ATR(bars, c.cfg.ATRPeriod)
	if !ok || atr <= 0 {
		return 0, false
	}
	return atr * c.cfg.ATRMultiplier, true
}

func (c *Controller) due(symbol string, now time.Time) bool {
	if c.cfg.Cooldown <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastRun[symbol]
	return !ok || now.Sub(last) >= c.cfg.Cooldown
}

func (c *Controller) markRun(symbol string, now time.Time) {
	c.mu.Lock()
	c.lastRun[symbol] = now
	c.mu.Unlock()
}
