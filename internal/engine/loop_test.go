package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantonic/autotrader/internal/broker"
	"github.com/quantonic/autotrader/internal/domain"
	"github.com/quantonic/autotrader/internal/exec"
	"github.com/quantonic/autotrader/internal/risk"
	"github.com/quantonic/autotrader/internal/sizing"
	"github.com/quantonic/autotrader/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func eurusd() domain.Instrument {
	return domain.Instrument{
		Symbol:       "EURUSD",
		Digits:       5,
		Point:        0.00001,
		TickSize:     0.00001,
		VolumeMin:    0.01,
		VolumeStep:   0.01,
		VolumeMax:    100,
		ContractSize: 100_000,
		TickValue:    1.0,
	}
}

// risingBars returns a strictly rising close series, enough history for
// the momentum defaults and unambiguous on direction.
func risingBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	t0 := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := 1.0900 + float64(i)*0.0001
		bars[i] = domain.Bar{
			Time:  t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:  c - 0.00005,
			High:  c + 0.00010,
			Low:   c - 0.00010,
			Close: c,
		}
	}
	return bars
}

func seededPaper(t *testing.T) *broker.Paper {
	t.Helper()
	p := broker.NewPaper(10_000)
	p.SetInstrument(eurusd())
	p.SetQuote("EURUSD", 1.1030, 1.1032)
	p.SetBars("EURUSD", domain.TimeframeM5, risingBars(140))
	return p
}

type loopFixture struct {
	loop     *TradeLoop
	paper    *broker.Paper
	cooldown *risk.CooldownState
	now      time.Time
}

func newLoopFixture(t *testing.T, cfg Config) *loopFixture {
	t.Helper()
	return newLoopFixtureWith(t, seededPaper(t), cfg)
}

func newLoopFixtureWith(t *testing.T, paper *broker.Paper, cfg Config) *loopFixture {
	t.Helper()
	cooldown := risk.NewCooldownState(nil)

	source, err := strategy.Build("momentum", strategy.Config{})
	require.NoError(t, err)

	guard := risk.NewGuard(paper, cooldown, risk.GuardConfig{
		CooldownWindow:   15 * time.Minute,
		MaxOpenTotal:     5,
		MaxPerInstrument: 2,
		BlockSameSide:    true,
		MarketCheck:      true,
	}, testLogger())

	sizer := sizing.New(sizing.Policy{Mode: sizing.ModeFixed, DefaultLots: 0.05})
	executor := exec.New(paper, exec.Config{RetryDelay: time.Millisecond}, testLogger()).
		WithSleep(func(context.Context, time.Duration) error { return nil })

	if cfg.Instruments == nil {
		cfg.Instruments = []string{"EURUSD"}
	}
	loop := NewTradeLoop(paper, source, guard, sizer, executor, cooldown, nil, nil, cfg, testLogger())

	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	loop.now = func() time.Time { return now }
	return &loopFixture{loop: loop, paper: paper, cooldown: cooldown, now: now}
}

func TestCycleOpensPositionOnSignal(t *testing.T) {
	f := newLoopFixture(t, Config{})

	f.loop.Cycle(context.Background())

	positions, err := f.paper.OpenPositions(context.Background(), "EURUSD")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	pos := positions[0]
	assert.Equal(t, domain.SideLong, pos.Side)
	assert.InDelta(t, 0.05, pos.Volume, 1e-9)
	assert.InDelta(t, 1.1032, pos.EntryPrice, 1e-9, "long fills at the ask")
	assert.Less(t, pos.CurrentStopLoss, pos.EntryPrice)
	assert.Greater(t, pos.CurrentTakeProfit, pos.EntryPrice)

	status := f.loop.Status()
	inst := status.Instruments["EURUSD"]
	assert.Equal(t, "trend_up", inst.Regime)
	assert.True(t, inst.Accepted)
	assert.Equal(t, string(domain.OutcomeFilled), inst.Outcome)

	assert.Positive(t, f.cooldown.Remaining("EURUSD", 15*time.Minute, f.now.Add(time.Minute)),
		"a confirmed fill starts the cooldown")
}

func TestSecondCycleIsBlocked(t *testing.T) {
	f := newLoopFixture(t, Config{})

	f.loop.Cycle(context.Background())
	f.loop.Cycle(context.Background())

	positions, err := f.paper.OpenPositions(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Len(t, positions, 1, "admission stops the duplicate entry")

	inst := f.loop.Status().Instruments["EURUSD"]
	assert.Equal(t, "blocked", inst.Outcome)
	assert.Contains(t, inst.Reasons, domain.ReasonCooldownActive)
	assert.Contains(t, inst.Reasons, domain.ReasonSameSideBlocked)
}

func TestDryRunNeverSubmits(t *testing.T) {
	f := newLoopFixture(t, Config{DryRun: true})

	f.loop.Cycle(context.Background())

	positions, err := f.paper.OpenPositions(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Empty(t, positions)

	inst := f.loop.Status().Instruments["EURUSD"]
	assert.True(t, inst.Accepted, "the full pipeline still runs")
	assert.Equal(t, "dry_run", inst.Outcome)

	assert.Zero(t, f.cooldown.Remaining("EURUSD", 15*time.Minute, f.now.Add(time.Minute)),
		"no fill means no cooldown")
}

func TestGracePeriodSuppressesEntries(t *testing.T) {
	f := newLoopFixture(t, Config{GracePeriod: 10 * time.Minute})
	f.loop.startedAt = f.now.Add(-time.Minute)

	f.loop.Cycle(context.Background())

	positions, err := f.paper.OpenPositions(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Equal(t, "grace_period", f.loop.Status().Instruments["EURUSD"].Outcome)
}

func TestRegimeGateBlocksRepeatEntries(t *testing.T) {
	f := newLoopFixture(t, Config{RequireNewRegime: true})

	f.loop.Cycle(context.Background())
	f.loop.Cycle(context.Background())

	inst := f.loop.Status().Instruments["EURUSD"]
	assert.Equal(t, "regime_unchanged", inst.Outcome,
		"same regime as the last fill is not re-entered")
}

func TestUnknownInstrumentIsIsolated(t *testing.T) {
	f := newLoopFixture(t, Config{Instruments: []string{"GBPUSD", "EURUSD"}})

	f.loop.Cycle(context.Background())

	status := f.loop.Status()
	assert.Equal(t, "metadata_unavailable", status.Instruments["GBPUSD"].Outcome)
	assert.Equal(t, string(domain.OutcomeFilled), status.Instruments["EURUSD"].Outcome,
		"one instrument failing never stops the others")
}

func TestMissingHistoryIsSignalError(t *testing.T) {
	paper := broker.NewPaper(10_000)
	paper.SetInstrument(eurusd())
	paper.SetQuote("EURUSD", 1.1030, 1.1032)
	f := newLoopFixtureWith(t, paper, Config{})

	f.loop.Cycle(context.Background())

	positions, err := f.paper.OpenPositions(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Equal(t, "signal_error", f.loop.Status().Instruments["EURUSD"].Outcome)
}

func TestDecideReportsWithoutSubmitting(t *testing.T) {
	f := newLoopFixture(t, Config{})

	sig, decision, err := f.loop.Decide(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, domain.SideLong, sig.Side)
	assert.Equal(t, "trend_up", sig.Regime)
	assert.True(t, decision.Accepted)

	positions, err := f.paper.OpenPositions(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Empty(t, positions)
}
