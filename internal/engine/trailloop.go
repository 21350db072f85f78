package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantonic/autotrader/internal/domain"
	"github.com/quantonic/autotrader/internal/notify"
	"github.com/quantonic/autotrader/internal/trail"
)

// TrailLoop runs trailing passes on a fixed cadence, independent of the
// trade loop. The controller applies its own per-instrument cooldown on
// top of this interval.
type TrailLoop struct {
	session    domain.BrokerSession
	controller *trail.Controller
	journal    domain.JournalStore // may be nil
	notifier   *notify.Notifier    // may be nil
	symbols    []string
	interval   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewTrailLoop wires a trailing loop over the given symbols.
func NewTrailLoop(
	session domain.BrokerSession,
	controller *trail.Controller,
	journal domain.JournalStore,
	notifier *notify.Notifier,
	symbols []string,
	interval time.Duration,
	logger *slog.Logger,
) *TrailLoop {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	return &TrailLoop{
		session:    session,
		controller: controller,
		journal:    journal,
		notifier:   notifier,
		symbols:    symbols,
		interval:   interval,
		logger:     logger.With(slog.String("component", "trail_loop")),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run drives passes until the context is canceled.
func (t *TrailLoop) Run(ctx context.Context) error {
	t.logger.InfoContext(ctx, "trail loop started",
		slog.Any("instruments", t.symbols),
		slog.Duration("interval", t.interval),
	)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "trail loop stopped")
			return ctx.Err()
		case <-ticker.C:
			t.Pass(ctx, false)
		}
	}
}

// Pass runs one trailing pass and records the result. force bypasses the
// controller's per-instrument cadence; the API trigger uses it.
func (t *TrailLoop) Pass(ctx context.Context, force bool) domain.TrailReport {
	instruments := t.resolveInstruments(ctx)
	report := t.controller.RunPass(ctx, instruments, t.now(), force)

	for _, a := range report.Actions {
		t.journalAction(ctx, a)
		if a.OK && t.notifier != nil {
			_ = t.notifier.Notify(ctx, notify.EventTrailMoved,
				"Stop trailed: "+a.Instrument,
				formatTrail(a),
			)
		}
	}
	return report
}

// resolveInstruments looks up metadata for each configured symbol; a
// symbol that cannot be resolved is skipped this pass.
func (t *TrailLoop) resolveInstruments(ctx context.Context) []domain.Instrument {
	out := make([]domain.Instrument, 0, len(t.symbols))
	for _, sym := range t.symbols {
		inst, err := t.session.InstrumentMetadata(ctx, sym)
		if err != nil {
			t.logger.WarnContext(ctx, "instrument metadata unavailable",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, inst)
	}
	return out
}

func (t *TrailLoop) journalAction(ctx context.Context, a domain.TrailAction) {
	if t.journal == nil {
		return
	}
	entry := domain.JournalEntry{
		ID:         uuid.NewString(),
		Kind:       domain.JournalTrail,
		Instrument: a.Instrument,
		Side:       a.Side,
		Accepted:   a.OK,
		Outcome:    trailOutcome(a),
		Detail: map[string]any{
			"ticket":    a.Ticket,
			"from_stop": a.FromStop,
			"to_stop":   a.ToStop,
			"message":   a.Message,
		},
		At: a.At,
	}
	if err := t.journal.Append(ctx, entry); err != nil {
		t.logger.WarnContext(ctx, "journal append failed",
			slog.String("kind", string(entry.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

func trailOutcome(a domain.TrailAction) string {
	if a.OK {
		return "moved"
	}
	return "modify_failed"
}
