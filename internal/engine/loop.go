// Package engine orchestrates the trading cycle: signal, admission,
// sizing, execution, and journaling. One cycle walks every configured
// instrument; a failure on one instrument never stops the others.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantonic/autotrader/internal/domain"
	"github.com/quantonic/autotrader/internal/exec"
	"github.com/quantonic/autotrader/internal/notify"
	"github.com/quantonic/autotrader/internal/risk"
	"github.com/quantonic/autotrader/internal/sizing"
	"github.com/quantonic/autotrader/internal/strategy"
)

// Config holds the trade loop settings.
type Config struct {
	Instruments []string
	Interval    time.Duration
	// GracePeriod suppresses order submission for a window after start,
	// so a restart into a moving market does not trade on stale context.
	GracePeriod time.Duration
	// RequireNewRegime blocks a new entry on an instrument until the
	// strategy's regime differs from the one that produced the last fill.
	RequireNewRegime bool
	// DryRun evaluates the full pipeline but never submits orders.
	DryRun bool
}

// InstrumentStatus summarizes the most recent cycle for one instrument.
type InstrumentStatus struct {
	Symbol    string    `json:"symbol"`
	Regime    string    `json:"regime"`
	Side      string    `json:"side,omitempty"`
	Accepted  bool      `json:"accepted"`
	Reasons   []string  `json:"reasons,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Status is the loop's observable state, served by the HTTP API.
type Status struct {
	StartedAt   time.Time                   `json:"started_at"`
	LastCycleAt time.Time                   `json:"last_cycle_at"`
	Cycles      int64                       `json:"cycles"`
	DryRun      bool                        `json:"dry_run"`
	InGrace     bool                        `json:"in_grace"`
	Instruments map[string]InstrumentStatus `json:"instruments"`
}

// TradeLoop runs the per-instrument trading pipeline on a fixed cadence.
type TradeLoop struct {
	session  domain.BrokerSession
	source   strategy.SignalSource
	guard    *risk.Guard
	sizer    *sizing.Sizer
	executor *exec.Executor
	cooldown *risk.CooldownState
	journal  domain.JournalStore // may be nil
	notifier *notify.Notifier    // may be nil
	cfg      Config
	logger   *slog.Logger

	startedAt time.Time
	now       func() time.Time

	mu         sync.Mutex
	cycles     int64
	lastCycle  time.Time
	lastStatus map[string]InstrumentStatus
	lastRegime map[string]string // regime at the last fill per instrument
}

// NewTradeLoop wires the pipeline. journal and notifier may be nil.
func NewTradeLoop(
	session domain.BrokerSession,
	source strategy.SignalSource,
	guard *risk.Guard,
	sizer *sizing.Sizer,
	executor *exec.Executor,
	cooldown *risk.CooldownState,
	journal domain.JournalStore,
	notifier *notify.Notifier,
	cfg Config,
	logger *slog.Logger,
) *TradeLoop {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &TradeLoop{
		session:    session,
		source:     source,
		guard:      guard,
		sizer:      sizer,
		executor:   executor,
		cooldown:   cooldown,
		journal:    journal,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "trade_loop")),
		now:        func() time.Time { return time.Now().UTC() },
		lastStatus: make(map[string]InstrumentStatus),
		lastRegime: make(map[string]string),
	}
}

// Run drives cycles until the context is canceled. The first cycle runs
// immediately.
func (l *TradeLoop) Run(ctx context.Context) error {
	l.startedAt = l.now()
	l.logger.InfoContext(ctx, "trade loop started",
		slog.Any("instruments", l.cfg.Instruments),
		slog.Duration("interval", l.cfg.Interval),
		slog.Bool("dry_run", l.cfg.DryRun),
	)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			l.logger.InfoContext(ctx, "trade loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.Cycle(ctx)
		}
	}
}

// Cycle evaluates every configured instrument once.
func (l *TradeLoop) Cycle(ctx context.Context) {
	now := l.now()
	for _, symbol := range l.cfg.Instruments {
		if ctx.Err() != nil {
			return
		}
		l.evaluateInstrument(ctx, symbol, now)
	}

	l.mu.Lock()
	l.cycles++
	l.lastCycle = now
	l.mu.Unlock()
}

func (l *TradeLoop) evaluateInstrument(ctx context.Context, symbol string, now time.Time) {
	status := InstrumentStatus{Symbol: symbol, CheckedAt: now}
	defer func() {
		l.mu.Lock()
		l.lastStatus[symbol] = status
		l.mu.Unlock()
	}()

	inst, err := l.session.InstrumentMetadata(ctx, symbol)
	if err != nil {
		status.Outcome = "metadata_unavailable"
		l.logger.WarnContext(ctx, "instrument metadata unavailable",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return
	}

	sig, err := l.source.Evaluate(ctx, l.session, inst)
	if err != nil {
		status.Outcome = "signal_error"
		l.logger.WarnContext(ctx, "signal evaluation failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return
	}
	status.Regime = sig.Regime
	if sig.NoSignal() {
		status.Outcome = "no_signal"
		return
	}
	status.Side = string(sig.Side)

	if l.inGrace(now) {
		status.Outcome = "grace_period"
		return
	}

	if l.cfg.RequireNewRegime && l.regimeUnchanged(symbol, sig.Regime) {
		status.Outcome = "regime_unchanged"
		return
	}

	decision := l.guard.Evaluate(ctx, symbol, sig.Side, sig.StopDistance, now)
	status.Accepted = decision.Accepted
	status.Reasons = decision.Reasons
	l.journalDecision(ctx, symbol, sig, decision, now)

	if !decision.Accepted {
		status.Outcome = "blocked"
		l.notify(ctx, notify.EventTradeBlocked,
			"Trade blocked: "+symbol,
			formatBlocked(symbol, sig, decision),
		)
		return
	}

	var equity float64
	if acct, err := l.session.AccountSnapshot(ctx); err == nil {
		equity = acct.Equity
	}
	lots := l.sizer.Size(inst, sig.StopDistance, equity)

	if l.cfg.DryRun {
		status.Outcome = "dry_run"
		l.logger.InfoContext(ctx, "dry run: would submit",
			slog.String("symbol", symbol),
			slog.String("side", string(sig.Side)),
			slog.Float64("lots", lots),
			slog.Float64("sl_pips", sig.StopDistance),
			slog.Float64("tp_pips", sig.TargetDistance),
		)
		return
	}

	result := l.executor.Execute(ctx, inst, sig.Side, lots, sig.StopDistance, sig.TargetDistance, "autotrader:"+l.source.Name())
	status.Outcome = string(result.Outcome)
	l.journalOrder(ctx, symbol, sig, lots, result, now)

	if result.Filled() {
		// Cooldown is only written after a confirmed fill; an accepted
		// signal that never reaches the broker leaves the window open.
		l.cooldown.Mark(ctx, symbol, now)
		l.mu.Lock()
		l.lastRegime[symbol] = sig.Regime
		l.mu.Unlock()
	}

	switch result.Outcome {
	case domain.OutcomeFilled:
		l.notify(ctx, notify.EventOrderFilled,
			"Order filled: "+symbol,
			formatFill(symbol, sig, lots, result),
		)
	case domain.OutcomeFilledWithoutProtection:
		l.notify(ctx, notify.EventUnprotected,
			"UNPROTECTED position: "+symbol,
			formatFill(symbol, sig, lots, result),
		)
	case domain.OutcomeRejected:
		l.notify(ctx, notify.EventOrderRejected,
			"Order rejected: "+symbol,
			result.BrokerMessage,
		)
	case domain.OutcomeBrokerUnavailable:
		l.notify(ctx, notify.EventBrokerDown,
			"Broker unavailable: "+symbol,
			result.BrokerMessage,
		)
	}
}

// Decide runs signal and admission for one symbol without sizing or
// submitting. It backs the inspection API.
func (l *TradeLoop) Decide(ctx context.Context, symbol string) (domain.Signal, domain.GuardDecision, error) {
	inst, err := l.session.InstrumentMetadata(ctx, symbol)
	if err != nil {
		return domain.Signal{}, domain.GuardDecision{}, err
	}
	sig, err := l.source.Evaluate(ctx, l.session, inst)
	if err != nil {
		return domain.Signal{}, domain.GuardDecision{}, err
	}
	if sig.NoSignal() {
		return sig, domain.GuardDecision{}, nil
	}
	decision := l.guard.Evaluate(ctx, symbol, sig.Side, sig.StopDistance, l.now())
	return sig, decision, nil
}

// Status returns a snapshot of the loop state.
func (l *TradeLoop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	instruments := make(map[string]InstrumentStatus, len(l.lastStatus))
	for k, v := range l.lastStatus {
		instruments[k] = v
	}
	return Status{
		StartedAt:   l.startedAt,
		LastCycleAt: l.lastCycle,
		Cycles:      l.cycles,
		DryRun:      l.cfg.DryRun,
		InGrace:     l.inGrace(l.now()),
		Instruments: instruments,
	}
}

func (l *TradeLoop) inGrace(now time.Time) bool {
	if l.cfg.GracePeriod <= 0 || l.startedAt.IsZero() {
		return false
	}
	return now.Before(l.startedAt.Add(l.cfg.GracePeriod))
}

func (l *TradeLoop) regimeUnchanged(symbol, regime string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	last, ok := l.lastRegime[symbol]
	return ok && last == regime
}

func (l *TradeLoop) notify(ctx context.Context, event, title, message string) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(ctx, event, title, message); err != nil {
		l.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (l *TradeLoop) journalDecision(ctx context.Context, symbol string, sig domain.Signal, d domain.GuardDecision, now time.Time) {
	l.appendJournal(ctx, domain.JournalEntry{
		ID:         uuid.NewString(),
		Kind:       domain.JournalDecision,
		Instrument: symbol,
		Side:       sig.Side,
		Accepted:   d.Accepted,
		Reasons:    d.Reasons,
		Detail: map[string]any{
			"regime":          sig.Regime,
			"confidence":      sig.Confidence,
			"sl_pips":         sig.StopDistance,
			"tp_pips":         sig.TargetDistance,
			"why":             sig.Why,
			"open_total":      d.Snapshot.OpenPositionsTotal,
			"open_instrument": d.Snapshot.OpenPositionsInstrument,
			"equity":          d.Snapshot.Equity,
			"daily_pnl":       d.Snapshot.DailyPnl,
		},
		At: now,
	})
}

func (l *TradeLoop) journalOrder(ctx context.Context, symbol string, sig domain.Signal, lots float64, r domain.OrderResult, now time.Time) {
	l.appendJournal(ctx, domain.JournalEntry{
		ID:         uuid.NewString(),
		Kind:       domain.JournalOrder,
		Instrument: symbol,
		Side:       sig.Side,
		Accepted:   true,
		Outcome:    string(r.Outcome),
		Detail: map[string]any{
			"lots":         lots,
			"ticket":       r.Ticket,
			"filled_price": r.FilledPrice,
			"applied_sl":   r.AppliedStopLoss,
			"applied_tp":   r.AppliedTakeProfit,
			"retries":      r.RetryCount,
			"warning":      r.Warning,
			"retcode":      r.BrokerCode,
			"comment":      r.BrokerMessage,
		},
		At: now,
	})
}

// appendJournal writes best-effort: journaling never blocks trading.
func (l *TradeLoop) appendJournal(ctx context.Context, e domain.JournalEntry) {
	if l.journal == nil {
		return
	}
	if err := l.journal.Append(ctx, e); err != nil {
		l.logger.WarnContext(ctx, "journal append failed",
			slog.String("kind", string(e.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
