package exec

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

// scriptedSession replays a fixed sequence of submit outcomes and records
// every request, so retry and widen behavior is fully observable.
type scriptedSession struct {
	quote    domain.Quote
	quoteErr error

	submits []domain.OrderRequest
	replies []domain.BrokerReply
	errs    []error

	modifies    []float64
	modifyOKAt  int // 1-based attempt that succeeds; 0 = never
	modifyCalls int
}

func (s *scriptedSession) Quote(context.Context, string) (domain.Quote, error) {
	if s.quoteErr != nil {
		return domain.Quote{}, s.quoteErr
	}
	return s.quote, nil
}

func (s *scriptedSession) SubmitMarketOrder(_ context.Context, req domain.OrderRequest) (domain.BrokerReply, error) {
	i := len(s.submits)
	s.submits = append(s.submits, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return domain.BrokerReply{}, s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return domain.BrokerReply{RetCode: RetDone, Comment: "done", Ticket: 42, Price: req.ReferencePrice}, nil
}

func (s *scriptedSession) ModifyStopLoss(_ context.Context, _ int64, newStop float64) (domain.ModifyResult, error) {
	s.modifyCalls++
	s.modifies = append(s.modifies, newStop)
	if s.modifyOKAt > 0 && s.modifyCalls >= s.modifyOKAt {
		return domain.ModifyResult{OK: true, BrokerCode: RetDone}, nil
	}
	return domain.ModifyResult{BrokerCode: RetInvalidStops, Message: "invalid stops"}, nil
}

func (s *scriptedSession) RecentBars(context.Context, string, domain.Timeframe, int) ([]domain.Bar, error) {
	return nil, domain.ErrUnavailable
}
func (s *scriptedSession) OpenPositions(context.Context, string) ([]domain.OpenPosition, error) {
	return nil, nil
}
func (s *scriptedSession) AccountSnapshot(context.Context) (domain.AccountSnapshot, error) {
	return domain.AccountSnapshot{}, nil
}
func (s *scriptedSession) InstrumentMetadata(context.Context, string) (domain.Instrument, error) {
	return domain.Instrument{}, domain.ErrUnknownSymbol
}
func (s *scriptedSession) IsTradable(context.Context, string) (bool, error) { return true, nil }

func testInstrument() domain.Instrument {
	return domain.Instrument{
		Symbol:   "EURUSD",
		Digits:   5,
		Point:    0.00001,
		TickSize: 0.00001,
	}
}

func testConfig() Config {
	return Config{
		MaxRetries:       3,
		RetryDelay:       time.Millisecond,
		WidenMultiplier:  1.5,
		MaxWidenAttempts: 2,
		AttachRetries:    2,
	}
}

// noSleep counts pauses without waiting.
func noSleep(count *int) SleepFunc {
	return func(context.Context, time.Duration) error {
		*count++
		return nil
	}
}

func newTestExecutor(s *scriptedSession, cfg Config, sleeps *int) *Executor {
	e := New(s, cfg, slog.New(slog.DiscardHandler))
	return e.WithSleep(noSleep(sleeps))
}

func TestExecuteFillsFirstTry(t *testing.T) {
	s := &scriptedSession{
		quote:   domain.Quote{Bid: 1.0999, Ask: 1.1001},
		replies: []domain.BrokerReply{{RetCode: RetDone, Comment: "done", Ticket: 7, Price: 1.1001}},
	}
	var sleeps int
	e := newTestExecutor(s, testConfig(), &sleeps)

	res := e.Execute(context.Background(), testInstrument(), domain.SideLong, 0.1, 25, 50, "t")

	require.Equal(t, domain.OutcomeFilled, res.Outcome)
	assert.Equal(t, int64(7), res.Ticket)
	assert.InDelta(t, 1.1001, res.FilledPrice, 1e-9)
	assert.InDelta(t, 1.0976, res.AppliedStopLoss, 1e-9)
	assert.InDelta(t, 1.1051, res.AppliedTakeProfit, 1e-9)
	assert.Zero(t, res.RetryCount)
	assert.Zero(t, sleeps)
	require.Len(t, s.submits, 1)
	assert.NotEmpty(t, s.submits[0].ClientID)
}

func TestExecuteRetriesTransientThenFills(t *testing.T) {
	s := &scriptedSession{
		quote: domain.Quote{Bid: 1.0999, Ask: 1.1001},
		replies: []domain.BrokerReply{
			{RetCode: RetRequote, Comment: "requote"},
			{RetCode: RetPriceChanged, Comment: "price changed"},
			{RetCode: RetDone, Comment: "done", Ticket: 9, Price: 1.1002},
		},
	}
	var sleeps int
	e := newTestExecutor(s, testConfig(), &sleeps)

	res := e.Execute(context.Background(), testInstrument(), domain.SideLong, 0.1, 25, 50, "t")

	require.Equal(t, domain.OutcomeFilled, res.Outcome)
	assert.Equal(t, 2, res.RetryCount)
	assert.Equal(t, 2, sleeps)
	assert.Len(t, s.submits, 3)
}

func TestExecuteTransientExhaustedIsRejected(t *testing.T) {
	replies := make([]domain.BrokerReply, 5)
	for i := range replies {
		replies[i] = domain.BrokerReply{RetCode: RetRequote, Comment: "requote"}
	}
	s := &scriptedSession{quote: domain.Quote{Bid: 1.0999, Ask: 1.1001}, replies: replies}
	var sleeps int
	e := newTestExecutor(s, testConfig(), &sleeps)

	res := e.Execute(context.Background(), testInstrument(), domain.SideLong, 0.1, 25, 50, "t")

	assert.Equal(t, domain.OutcomeRejected, res.Outcome)
	assert.Len(t, s.submits, 4, "initial attempt plus MaxRetries")
}

func TestExecuteConnectivityExhaustedIsUnavailable(t *testing.T) {
	replies := make([]domain.BrokerReply, 5)
	for i := range replies {
		replies[i] = domain.BrokerReply{RetCode: RetConnection, Comment: "no connection"}
	}
	s := &scriptedSession{quote: domain.Quote{Bid: 1.0999, Ask: 1.1001}, replies: replies}
	var sleeps int
	e := newTestExecutor(s, testConfig(), &sleeps)

	res := e.Execute(context.Background(), testInstrument(), domain.SideLong, 0.1, 25, 50, "t")
	assert.Equal(t, domain.OutcomeBrokerUnavailable, res.Outcome)
}

func TestExecuteTransportErrorsBecomeUnavailable(t *testing.T) {
	s := &scriptedSession{
		quote: domain.Quote{Bid: 1.0999, Ask: 1.1001},
		errs:  []error{errors.New("dial"), errors.New("dial"), errors.New("dial"), errors.New("dial")},
	}
	var sleeps int
	e := newTestExecutor(s, testConfig(), &sleeps)

	res := e.Execute(context.Background(), testInstrument(), domain.SideLong, 0.1, 25, 50, "t")

	assert.Equal(t, domain.OutcomeBrokerUnavailable, res.Outcome)
	assert.Len(t, s.submits, 4)
}

func TestExecutePermanentRejectionStopsImmediately(t *testing.T) {
	s := &scriptedSession{
		quote:   domain.Quote{Bid: 1.0999, Ask: 1.1001},
		replies: []domain.BrokerReply{{RetCode: RetNoMoney, Comment: "no money"}},
	}
	var sleeps int
	e := newTestExecutor(s, testConfig(), &sleeps)

	res := e.Execute(context.Background(), testInstrument(), domain.SideLong, 0.1, 25, 50, "t")

	assert.Equal(t, domain.OutcomeRejected, res.Outcome)
	assert.Equal(t, RetNoMoney, res.BrokerCode)
	assert.Len(t, s.submits, 1, "permanent rejections are not retried")
	assert.Zero(t, sleeps)
}

func TestExecuteWidensStopsThenFills(t *testing.T) {
	s := &scriptedSession{
		quote: domain.Quote{Bid: 1.0999, Ask: 1.1001},
		replies: []domain.BrokerReply{
			{RetCode: RetInvalidStops, Comment: "invalid stops"},
			{RetCode: RetDone, Comment: "done", Ticket: 5, Price: 1.1001},
		},
	}
	var sleeps int
	e := newTestExecutor(s, testConfig(), &sleeps)

	res := e.Execute(context.Background(), testInstrument(), domain.SideLong, 0.1, 10, 20, "t")

	require.Equal(t, domain.OutcomeFilled, res.Outcome)
	require.Len(t, s.submits, 2)

	// 10 pips, then widened to 15.
	assert.InDelta(t, 1.1001-0.0010, s.submits[0].StopLossPrice, 1e-9)
	assert.InDelta(t, 1.1001-0.0015, s.submits[1].StopLossPrice, 1e-9)
	assert.Less(t, s.submits[1].StopLossPrice, s.submits[0].StopLossPrice,
		"widened stop sits further from entry")
	assert.Equal(t, 1, res.RetryCount)
}

func TestExecuteNakedFallbackAttachesStop(t *testing.T) {
	s := &scriptedSession{
		quote: domain.Quote{Bid: 1.0999, Ask: 1.1001},
		replies: []domain.BrokerReply{
			{RetCode: RetInvalidStops, Comment: "invalid stops"},
			{RetCode: RetInvalidStops, Comment: "invalid stops"},
			{RetCode: RetInvalidStops, Comment: "invalid stops"},
			{RetCode: RetDone, Comment: "done", Ticket: 11, Price: 1.1001}, // naked fill
		},
		modifyOKAt: 1,
	}
	var sleeps int
	e := newTestExecutor(s, testConfig(), &sleeps)

	res := e.Execute(context.Background(), testInstrument(), domain.SideLong, 0.1, 10, 20, "t")

	require.Equal(t, domain.OutcomeFilled, res.Outcome)
	assert.Equal(t, "stop loss attached after naked fill", res.Warning)
	assert.Equal(t, int64(11), res.Ticket)

	require.Len(t, s.submits, 4)
	naked := s.submits[3]
	assert.Zero(t, naked.StopLossPrice, "fallback order carries no stops")
	assert.Zero(t, naked.TakeProfitPrice)

	// The widest stop computed before the fallback (10 * 1.5^2 = 22.5 pips)
	// is the one attached.
	require.Len(t, s.modifies, 1)
	assert.InDelta(t, 1.1001-0.00225, s.modifies[0], 1e-9)
	assert.InDelta(t, s.modifies[0], res.AppliedStopLoss, 1e-9)
}

func TestExecuteUnprotectedWhenAttachFails(t *testing.T) {
	s := &scriptedSession{
		quote: domain.Quote{Bid: 1.0999, Ask: 1.1001},
		replies: []domain.BrokerReply{
			{RetCode: RetInvalidStops, Comment: "invalid stops"},
			{RetCode: RetInvalidStops, Comment: "invalid stops"},
			{RetCode: RetInvalidStops, Comment: "invalid stops"},
			{RetCode: RetDone, Comment: "done", Ticket: 12, Price: 1.1001},
		},
		modifyOKAt: 0, // attach never succeeds
	}
	var sleeps int
	e := newTestExecutor(s, testConfig(), &sleeps)

	res := e.Execute(context.Background(), testInstrument(), domain.SideLong, 0.1, 10, 20, "t")

	require.Equal(t, domain.OutcomeFilledWithoutProtection, res.Outcome)
	assert.Equal(t, "position open without stop loss", res.Warning)
	assert.Equal(t, int64(12), res.Ticket)
	assert.Equal(t, 2, s.modifyCalls, "AttachRetries bounds the attach attempts")
	assert.True(t, res.Filled())
}

func TestExecuteQuoteFailureIsUnavailable(t *testing.T) {
	s := &scriptedSession{quoteErr: domain.ErrNoTick}
	var sleeps int
	e := newTestExecutor(s, testConfig(), &sleeps)

	res := e.Execute(context.Background(), testInstrument(), domain.SideLong, 0.1, 25, 50, "t")
	assert.Equal(t, domain.OutcomeBrokerUnavailable, res.Outcome)
	assert.Empty(t, s.submits)
}

func TestExecuteCanceledDuringRetryIsUnavailable(t *testing.T) {
	s := &scriptedSession{
		quote:   domain.Quote{Bid: 1.0999, Ask: 1.1001},
		replies: []domain.BrokerReply{{RetCode: RetRequote, Comment: "requote"}},
	}
	e := New(s, testConfig(), slog.New(slog.DiscardHandler)).
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			return context.Canceled
		})

	res := e.Execute(context.Background(), testInstrument(), domain.SideLong, 0.1, 25, 50, "t")

	assert.Equal(t, domain.OutcomeBrokerUnavailable, res.Outcome)
	assert.Len(t, s.submits, 1, "no submit after a canceled pause")
}

func TestClassifyCommentFallback(t *testing.T) {
	assert.Equal(t, classInvalidStops, classify(domain.BrokerReply{RetCode: 10013, Comment: "Invalid S/L or T/P"}))
	assert.Equal(t, classInvalidStops, classify(domain.BrokerReply{RetCode: 10013, Comment: "stops too close to market"}))
	assert.Equal(t, classTransient, classify(domain.BrokerReply{RetCode: 10013, Comment: "invalid request"}),
		"unknown retcodes get the bounded retry budget")
	assert.Equal(t, classSuccess, classify(domain.BrokerReply{RetCode: RetPlaced}))
	assert.Equal(t, classPermanent, classify(domain.BrokerReply{RetCode: RetNoMoney}))
}

func TestExecuteUnknownRetcodeRetriesThenRejects(t *testing.T) {
	unknown := domain.BrokerReply{RetCode: 10099, Comment: "unexpected server state"}
	s := &scriptedSession{
		quote:   domain.Quote{Bid: 1.0999, Ask: 1.1001},
		replies: []domain.BrokerReply{unknown, unknown, unknown, unknown},
	}
	var sleeps int
	e := newTestExecutor(s, testConfig(), &sleeps)

	res := e.Execute(context.Background(), testInstrument(), domain.SideLong, 0.1, 10, 20, "t")

	assert.Equal(t, domain.OutcomeRejected, res.Outcome)
	assert.Len(t, s.submits, 4, "initial attempt plus the full retry budget")
}
