package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/quantonic/autotrader/internal/domain"
	"github.com/quantonic/autotrader/internal/indicator"
)

func init() {
	Register("momentum", func(cfg Config) (SignalSource, error) {
		return NewMomentum(cfg)
	})
}

// Momentum is the default EMA-cross strategy with an RSI confirmation
// filter. A long needs the fast EMA above the slow EMA and RSI at or
// above RSILongMin; shorts mirror that. Anything else is a mixed regime
// and yields no signal.
type Momentum struct {
	cfg Config
}

// NewMomentum validates the config and returns the strategy.
func NewMomentum(cfg Config) (*Momentum, error) {
	if cfg.Timeframe == "" {
		cfg.Timeframe = domain.TimeframeM5
	}
	if cfg.FastEMA <= 0 {
		cfg.FastEMA = 12
	}
	if cfg.SlowEMA <= 0 {
		cfg.SlowEMA = 26
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.RSILongMin <= 0 {
		cfg.RSILongMin = 52
	}
	if cfg.RSIShortMax <= 0 {
		cfg.RSIShortMax = 48
	}
	if cfg.StopPips <= 0 {
		cfg.StopPips = 25
	}
	if cfg.TargetPips <= 0 {
		cfg.TargetPips = 50
	}
	if cfg.FastEMA >= cfg.SlowEMA {
		return nil, fmt.Errorf("strategy: fast ema %d must be below slow ema %d", cfg.FastEMA, cfg.SlowEMA)
	}
	if cfg.Lookback < cfg.SlowEMA+cfg.RSIPeriod {
		cfg.Lookback = (cfg.SlowEMA + cfg.RSIPeriod) * 3
	}
	return &Momentum{cfg: cfg}, nil
}

func (m *Momentum) Name() string { return "momentum" }

// Evaluate reads recent bars and derives a signal for the current cycle.
func (m *Momentum) Evaluate(ctx context.Context, session domain.BrokerSession, inst domain.Instrument) (domain.Signal, error) {
	bars, err := session.RecentBars(ctx, inst.Symbol, m.cfg.Timeframe, m.cfg.Lookback)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("strategy: bars for %s: %w", inst.Symbol, err)
	}

	fast, okF := indicator.EMA(bars, m.cfg.FastEMA)
	slow, okS := indicator.EMA(bars, m.cfg.SlowEMA)
	rsi, okR := indicator.RSI(bars, m.cfg.RSIPeriod)
	if !okF || !okS || !okR {
		return domain.Signal{}, nil
	}

	regime := "mixed"
	if fast > slow {
		regime = "trend_up"
	} else if fast < slow {
		regime = "trend_down"
	}

	var side domain.Side
	switch {
	case regime == "trend_up" && rsi >= m.cfg.RSILongMin:
		side = domain.SideLong
	case regime == "trend_down" && rsi <= m.cfg.RSIShortMax:
		side = domain.SideShort
	default:
		return domain.Signal{Regime: regime, At: time.Now().UTC()}, nil
	}

	return domain.Signal{
		Instrument:     inst.Symbol,
		Side:           side,
		StopDistance:   m.cfg.StopPips,
		TargetDistance: m.cfg.TargetPips,
		Confidence:     m.confidence(fast, slow, rsi, side),
		Regime:         regime,
		At:             time.Now().UTC(),
		Why: []string{
			fmt.Sprintf("ema%d=%.5f ema%d=%.5f", m.cfg.FastEMA, fast, m.cfg.SlowEMA, slow),
			fmt.Sprintf("rsi%d=%.1f", m.cfg.RSIPeriod, rsi),
		},
	}, nil
}

// confidence blends EMA separation with how far RSI sits past its gate.
// The result is a rough 0..1 ranking, not a probability.
func (m *Momentum) confidence(fast, slow, rsi float64, side domain.Side) float64 {
	sep := math.Abs(fast-slow) / math.Max(slow, 1e-9)
	sepScore := math.Min(sep*200, 1.0)

	var rsiScore float64
	if side == domain.SideLong {
		rsiScore = math.Min((rsi-m.cfg.RSILongMin)/(100-m.cfg.RSILongMin), 1.0)
	} else {
		rsiScore = math.Min((m.cfg.RSIShortMax-rsi)/m.cfg.RSIShortMax, 1.0)
	}
	return math.Max(0, math.Min(1, 0.5*sepScore+0.5*rsiScore))
}
