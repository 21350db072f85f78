package trail

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantonic/autotrader/internal/domain"
)

// trailSession serves canned positions and records stop modifications.
// failTickets force ModifyStopLoss errors for specific positions.
type trailSession struct {
	positions    []domain.OpenPosition
	positionsErr error
	bars         []domain.Bar
	failTickets  map[int64]bool
	modifies     map[int64]float64
}

func (s *trailSession) OpenPositions(_ context.Context, symbol string) ([]domain.OpenPosition, error) {
	if s.positionsErr != nil {
		return nil, s.positionsErr
	}
	var out []domain.OpenPosition
	for _, p := range s.positions {
		if symbol == "" || p.Instrument == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *trailSession) ModifyStopLoss(_ context.Context, ticket int64, newStop float64) (domain.ModifyResult, error) {
	if s.failTickets[ticket] {
		return domain.ModifyResult{}, errors.New("connection lost")
	}
	if s.modifies == nil {
		s.modifies = make(map[int64]float64)
	}
	s.modifies[ticket] = newStop
	return domain.ModifyResult{OK: true, BrokerCode: 10009}, nil
}

func (s *trailSession) RecentBars(context.Context, string, domain.Timeframe, int) ([]domain.Bar, error) {
	if s.bars == nil {
		return nil, domain.ErrUnavailable
	}
	return s.bars, nil
}

func (s *trailSession) Quote(context.Context, string) (domain.Quote, error) {
	return domain.Quote{}, domain.ErrNoTick
}
func (s *trailSession) SubmitMarketOrder(context.Context, domain.OrderRequest) (domain.BrokerReply, error) {
	return domain.BrokerReply{}, errors.New("not implemented")
}
func (s *trailSession) AccountSnapshot(context.Context) (domain.AccountSnapshot, error) {
	return domain.AccountSnapshot{}, nil
}
func (s *trailSession) InstrumentMetadata(context.Context, string) (domain.Instrument, error) {
	return domain.Instrument{}, domain.ErrUnknownSymbol
}
func (s *trailSession) IsTradable(context.Context, string) (bool, error) { return true, nil }

func trailInstrument() domain.Instrument {
	return domain.Instrument{
		Symbol:   "EURUSD",
		Digits:   5,
		Point:    0.00001,
		TickSize: 0.00001,
	}
}

func pipsConfig() Config {
	return Config{
		Mode:         ModePips,
		TrailPips:    20,
		StartPips:    10,
		LockPips:     2,
		StepPips:     1,
		Cooldown:     time.Minute,
		OnlyInProfit: true,
	}
}

func newController(s *trailSession, cfg Config) *Controller {
	return NewController(s, nil, cfg, slog.New(slog.DiscardHandler))
}

func skipReasons(report domain.TrailReport) []string {
	var out []string
	for _, s := range report.Inspected {
		out = append(out, s.Reason)
	}
	return out
}

func TestTrailMovesStopLong(t *testing.T) {
	s := &trailSession{positions: []domain.OpenPosition{{
		Ticket:          1,
		Instrument:      "EURUSD",
		Side:            domain.SideLong,
		EntryPrice:      1.1000,
		CurrentPrice:    1.1050, // 50 pips in profit
		CurrentStopLoss: 1.0990,
	}}}
	c := newController(s, pipsConfig())

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	require.Len(t, report.Actions, 1)
	action := report.Actions[0]
	assert.True(t, action.OK)
	assert.InDelta(t, 1.1030, action.ToStop, 1e-9, "20 pips behind price")
	assert.InDelta(t, 1.1030, s.modifies[1], 1e-9)
}

func TestTrailMovesStopShort(t *testing.T) {
	s := &trailSession{positions: []domain.OpenPosition{{
		Ticket:          2,
		Instrument:      "EURUSD",
		Side:            domain.SideShort,
		EntryPrice:      1.1000,
		CurrentPrice:    1.0950,
		CurrentStopLoss: 1.1010,
	}}}
	c := newController(s, pipsConfig())

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	require.Len(t, report.Actions, 1)
	assert.InDelta(t, 1.0970, report.Actions[0].ToStop, 1e-9)
}

func TestTrailSkipsPositionNotInProfit(t *testing.T) {
	s := &trailSession{positions: []domain.OpenPosition{{
		Ticket:       1,
		Instrument:   "EURUSD",
		Side:         domain.SideLong,
		EntryPrice:   1.1000,
		CurrentPrice: 1.0980,
	}}}
	c := newController(s, pipsConfig())

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	assert.Empty(t, report.Actions)
	assert.Contains(t, skipReasons(report), "not_in_profit")
}

func TestTrailSkipsBelowStartThreshold(t *testing.T) {
	s := &trailSession{positions: []domain.OpenPosition{{
		Ticket:       1,
		Instrument:   "EURUSD",
		Side:         domain.SideLong,
		EntryPrice:   1.1000,
		CurrentPrice: 1.1005, // only 5 pips, start is 10
	}}}
	c := newController(s, pipsConfig())

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	assert.Empty(t, report.Actions)
	assert.Contains(t, skipReasons(report), "below_start")
}

func TestTrailNeverLoosensStop(t *testing.T) {
	s := &trailSession{positions: []domain.OpenPosition{{
		Ticket:          1,
		Instrument:      "EURUSD",
		Side:            domain.SideLong,
		EntryPrice:      1.1000,
		CurrentPrice:    1.1050,
		CurrentStopLoss: 1.1045, // already tighter than the candidate 1.1030
	}}}
	c := newController(s, pipsConfig())

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	assert.Empty(t, report.Actions)
	assert.Contains(t, skipReasons(report), "no_improvement")
	assert.Empty(t, s.modifies)
}

func TestTrailStepGateBlocksTinyImprovements(t *testing.T) {
	cfg := pipsConfig()
	cfg.StepPips = 5
	s := &trailSession{positions: []domain.OpenPosition{{
		Ticket:          1,
		Instrument:      "EURUSD",
		Side:            domain.SideLong,
		EntryPrice:      1.1000,
		CurrentPrice:    1.1050,
		CurrentStopLoss: 1.1028, // candidate 1.1030 improves by only 2 pips
	}}}
	c := newController(s, cfg)

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	assert.Empty(t, report.Actions)
	assert.Contains(t, skipReasons(report), "no_improvement")
}

func TestTrailAttachesStopWhenMissing(t *testing.T) {
	cfg := pipsConfig()
	cfg.StepPips = 50 // step gate must not apply to a naked position
	s := &trailSession{positions: []domain.OpenPosition{{
		Ticket:          1,
		Instrument:      "EURUSD",
		Side:            domain.SideLong,
		EntryPrice:      1.1000,
		CurrentPrice:    1.1050,
		CurrentStopLoss: 0,
	}}}
	c := newController(s, cfg)

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	require.Len(t, report.Actions, 1)
	assert.True(t, report.Actions[0].OK)
}

func TestTrailLockFloorWins(t *testing.T) {
	// Price 15 pips in profit: raw candidate entry-5 pips sits below the
	// lock floor entry+2, so the floor wins.
	s := &trailSession{positions: []domain.OpenPosition{{
		Ticket:          1,
		Instrument:      "EURUSD",
		Side:            domain.SideLong,
		EntryPrice:      1.1000,
		CurrentPrice:    1.1015,
		CurrentStopLoss: 0,
	}}}
	c := newController(s, pipsConfig())

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	require.Len(t, report.Actions, 1)
	assert.InDelta(t, 1.1002, report.Actions[0].ToStop, 1e-9)
}

func TestTrailStopLevelCapsCandidate(t *testing.T) {
	inst := trailInstrument()
	inst.StopLevelPoints = 300 // 30 pips minimum distance from price

	s := &trailSession{positions: []domain.OpenPosition{{
		Ticket:          1,
		Instrument:      "EURUSD",
		Side:            domain.SideLong,
		EntryPrice:      1.1000,
		CurrentPrice:    1.1050,
		CurrentStopLoss: 1.0990,
	}}}
	c := newController(s, pipsConfig())

	report := c.RunPass(context.Background(), []domain.Instrument{inst}, time.Now().UTC(), true)

	require.Len(t, report.Actions, 1)
	assert.InDelta(t, 1.1020, report.Actions[0].ToStop, 1e-9,
		"candidate capped at price minus broker minimum")
}

func TestTrailPassSurvivesModifyFailure(t *testing.T) {
	s := &trailSession{
		positions: []domain.OpenPosition{
			{Ticket: 1, Instrument: "EURUSD", Side: domain.SideLong, EntryPrice: 1.1000, CurrentPrice: 1.1050, CurrentStopLoss: 1.0990},
			{Ticket: 2, Instrument: "EURUSD", Side: domain.SideLong, EntryPrice: 1.0950, CurrentPrice: 1.1050, CurrentStopLoss: 1.0960},
		},
		failTickets: map[int64]bool{1: true},
	}
	c := newController(s, pipsConfig())

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	require.Len(t, report.Actions, 2, "pass completes despite the failure")
	assert.False(t, report.Actions[0].OK)
	assert.NotEmpty(t, report.Actions[0].Message)
	assert.True(t, report.Actions[1].OK)
	assert.InDelta(t, 1.1030, s.modifies[2], 1e-9)
}

func TestTrailCadenceSkipsUntilDue(t *testing.T) {
	s := &trailSession{positions: []domain.OpenPosition{{
		Ticket:          1,
		Instrument:      "EURUSD",
		Side:            domain.SideLong,
		EntryPrice:      1.1000,
		CurrentPrice:    1.1050,
		CurrentStopLoss: 1.0990,
	}}}
	c := newController(s, pipsConfig())
	now := time.Now().UTC()

	first := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, now, false)
	require.Len(t, first.Actions, 1)

	second := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, now.Add(10*time.Second), false)
	assert.Empty(t, second.Actions)
	assert.Contains(t, skipReasons(second), "cooldown")

	forced := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, now.Add(10*time.Second), true)
	assert.NotEmpty(t, forced.Actions, "force bypasses the cadence window")
}

func TestTrailPositionsUnavailableSkipsInstrument(t *testing.T) {
	s := &trailSession{positionsErr: errors.New("bridge down")}
	c := newController(s, pipsConfig())

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	assert.Empty(t, report.Actions)
	assert.Contains(t, skipReasons(report), "positions_unavailable")
}

func TestTrailATRUnavailableSkipsInstrument(t *testing.T) {
	cfg := pipsConfig()
	cfg.Mode = ModeATR
	cfg.ATRPeriod = 14
	cfg.ATRMultiplier = 2

	// No bar history: without a volatility estimate nothing is trailed,
	// even though the position qualifies on every other gate.
	s := &trailSession{positions: []domain.OpenPosition{{
		Ticket:          1,
		Instrument:      "EURUSD",
		Side:            domain.SideLong,
		EntryPrice:      1.1000,
		CurrentPrice:    1.1050,
		CurrentStopLoss: 1.0990,
	}}}
	c := newController(s, cfg)

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	assert.Empty(t, report.Actions)
	assert.Contains(t, skipReasons(report), "no_trail_distance")
	assert.Empty(t, s.modifies)
}

func TestTrailATRShortHistorySkipsInstrument(t *testing.T) {
	cfg := pipsConfig()
	cfg.Mode = ModeATR
	cfg.ATRPeriod = 14
	cfg.ATRMultiplier = 2

	// Bars exist but too few for the ATR period.
	s := &trailSession{
		bars: []domain.Bar{{High: 1.1, Low: 1.09, Close: 1.095}},
		positions: []domain.OpenPosition{{
			Ticket:          1,
			Instrument:      "EURUSD",
			Side:            domain.SideLong,
			EntryPrice:      1.1000,
			CurrentPrice:    1.1050,
			CurrentStopLoss: 1.0990,
		}},
	}
	c := newController(s, cfg)

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	assert.Empty(t, report.Actions)
	assert.Contains(t, skipReasons(report), "no_trail_distance")
}

func TestTrailWithoutProfitGate(t *testing.T) {
	cfg := pipsConfig()
	cfg.OnlyInProfit = false

	// Losing long: 50 pips under water, stop far below. With the profit
	// gate off the stop still ratchets toward price, and no profit lock
	// is applied (it would sit above the market).
	s := &trailSession{positions: []domain.OpenPosition{{
		Ticket:          1,
		Instrument:      "EURUSD",
		Side:            domain.SideLong,
		EntryPrice:      1.1000,
		CurrentPrice:    1.0950,
		CurrentStopLoss: 1.0900,
	}}}
	c := newController(s, cfg)

	report := c.RunPass(context.Background(), []domain.Instrument{trailInstrument()}, time.Now().UTC(), true)

	require.Len(t, report.Actions, 1)
	assert.True(t, report.Actions[0].OK)
	assert.InDelta(t, 1.0930, report.Actions[0].ToStop, 1e-9)
}
