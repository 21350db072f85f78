// Package exec submits market orders and drives the recovery protocol
// around broker rejections: bounded retries for transient failures, stop
// widening for stop-level violations, and a naked-entry fallback with a
// post-fill stop attach when widening alone cannot satisfy the broker.
package exec

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantonic/autotrader/internal/domain"
	"github.com/quantonic/autotrader/internal/pricing"
)

// Config bounds the executor's retry behavior.
type Config struct {
	MaxRetries       int           // submit retries for transient and connectivity failures
	RetryDelay       time.Duration // pause between retries
	WidenMultiplier  float64       // applied to both stop distances on invalid-stops, must be > 1
	MaxWidenAttempts int           // widen rounds before falling back to a naked entry
	AttachRetries    int           // ModifyStopLoss attempts after a naked fill
}

// Defaults returns the executor configuration used when none is supplied.
func Defaults() Config {
	return Config{
		MaxRetries:       3,
		RetryDelay:       500 * time.Millisecond,
		WidenMultiplier:  1.5,
		MaxWidenAttempts: 3,
		AttachRetries:    3,
	}
}

// SleepFunc pauses between retries. It returns early with the context
// error when the context is canceled, so shutdown is never blocked on a
// retry delay.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Executor turns an accepted, sized trade into a broker position. It is
// stateless across calls; serialization of mutating broker calls belongs
// to the session.
type Executor struct {
	session domain.BrokerSession
	cfg     Config
	logger  *slog.Logger
	sleep   SleepFunc
	newID   func() string
}

// New creates an Executor. Zero-valued config fields fall back to Defaults.
func New(session domain.BrokerSession, cfg Config, logger *slog.Logger) *Executor {
	def := Defaults()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.WidenMultiplier <= 1 {
		cfg.WidenMultiplier = def.WidenMultiplier
	}
	if cfg.MaxWidenAttempts <= 0 {
		cfg.MaxWidenAttempts = def.MaxWidenAttempts
	}
	if cfg.AttachRetries <= 0 {
		cfg.AttachRetries = def.AttachRetries
	}
	return &Executor{
		session: session,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "executor")),
		sleep:   defaultSleep,
		newID:   uuid.NewString,
	}
}

// WithSleep overrides the retry pause, for tests.
func (e *Executor) WithSleep(fn SleepFunc) *Executor {
	e.sleep = fn
	return e
}

// Execute submits a market order for the given instrument and side with
// protective stops derived from the pip distances. It always returns a
// terminal OrderResult; errors along the way are folded into the outcome.
func (e *Executor) Execute(ctx context.Context, inst domain.Instrument, side domain.Side, lots, slPips, tpPips float64, comment string) domain.OrderResult {
	res := domain.OrderResult{Outcome: domain.OutcomeRejected}

	quote, err := e.session.Quote(ctx, inst.Symbol)
	if err != nil {
		res.Outcome = domain.OutcomeBrokerUnavailable
		res.BrokerMessage = err.Error()
		return res
	}
	entry := quote.Reference(side)

	retries := 0
	widens := 0

	for {
		stops := pricing.ComputeStops(inst, side, entry, slPips, tpPips)
		req := domain.OrderRequest{
			ClientID:        e.newID(),
			Instrument:      inst.Symbol,
			Side:            side,
			Quantity:        lots,
			StopLossPrice:   stops.StopLoss,
			TakeProfitPrice: stops.TakeProfit,
			ReferencePrice:  entry,
			Comment:         comment,
		}

		reply, err := e.session.SubmitMarketOrder(ctx, req)
		if err != nil {
			if retries >= e.cfg.MaxRetries {
				res.Outcome = domain.OutcomeBrokerUnavailable
				res.BrokerMessage = err.Error()
				return res
			}
			retries++
			res.RetryCount++
			if serr := e.sleep(ctx, e.cfg.RetryDelay); serr != nil {
				res.Outcome = domain.OutcomeBrokerUnavailable
				res.BrokerMessage = serr.Error()
				return res
			}
			entry = e.refreshEntry(ctx, inst.Symbol, side, entry)
			continue
		}

		res.BrokerCode = reply.RetCode
		res.BrokerMessage = reply.Comment

		switch classify(reply) {
		case classSuccess:
			res.Outcome = domain.OutcomeFilled
			res.Ticket = reply.Ticket
			res.FilledPrice = reply.Price
			if res.FilledPrice <= 0 {
				res.FilledPrice = entry
			}
			res.AppliedStopLoss = stops.StopLoss
			res.AppliedTakeProfit = stops.TakeProfit
			e.logger.InfoContext(ctx, "order filled",
				slog.String("symbol", inst.Symbol),
				slog.String("side", string(side)),
				slog.Float64("lots", lots),
				slog.Float64("price", res.FilledPrice),
				slog.Int64("ticket", res.Ticket),
				slog.Int("retries", res.RetryCount),
			)
			return res

		case classTransient, classUnavailable:
			if retries >= e.cfg.MaxRetries {
				if classify(reply) == classUnavailable {
					res.Outcome = domain.OutcomeBrokerUnavailable
				}
				e.logger.WarnContext(ctx, "order abandoned after retries",
					slog.String("symbol", inst.Symbol),
					slog.Int("retcode", reply.RetCode),
					slog.String("comment", reply.Comment),
				)
				return res
			}
			retries++
			res.RetryCount++
			if serr := e.sleep(ctx, e.cfg.RetryDelay); serr != nil {
				res.Outcome = domain.OutcomeBrokerUnavailable
				res.BrokerMessage = serr.Error()
				return res
			}
			entry = e.refreshEntry(ctx, inst.Symbol, side, entry)

		case classInvalidStops:
			if widens >= e.cfg.MaxWidenAttempts {
				return e.submitNaked(ctx, inst, side, lots, entry, stops.StopLoss, comment, res)
			}
			widens++
			res.RetryCount++
			slPips *= e.cfg.WidenMultiplier
			tpPips *= e.cfg.WidenMultiplier
			e.logger.InfoContext(ctx, "widening stops",
				slog.String("symbol", inst.Symbol),
				slog.Int("round", widens),
				slog.Float64("sl_pips", slPips),
				slog.Float64("tp_pips", tpPips),
			)

		case classPermanent:
			e.logger.WarnContext(ctx, "order rejected",
				slog.String("symbol", inst.Symbol),
				slog.Int("retcode", reply.RetCode),
				slog.String("comment", reply.Comment),
			)
			return res
		}
	}
}

// submitNaked opens the position without protective stops and then tries
// to attach the stop loss to the live position. The widest stop price
// computed before the fallback is the one attached.
func (e *Executor) submitNaked(ctx context.Context, inst domain.Instrument, side domain.Side, lots, entry, stopLoss float64, comment string, res domain.OrderResult) domain.OrderResult {
	e.logger.WarnContext(ctx, "falling back to naked entry",
		slog.String("symbol", inst.Symbol),
		slog.Float64("pending_sl", stopLoss),
	)

	retries := 0
	for {
		req := domain.OrderRequest{
			ClientID:       e.newID(),
			Instrument:     inst.Symbol,
			Side:           side,
			Quantity:       lots,
			ReferencePrice: entry,
			Comment:        comment,
		}

		reply, err := e.session.SubmitMarketOrder(ctx, req)
		if err != nil {
			if retries >= e.cfg.MaxRetries {
				res.Outcome = domain.OutcomeBrokerUnavailable
				res.BrokerMessage = err.Error()
				return res
			}
			retries++
			res.RetryCount++
			if serr := e.sleep(ctx, e.cfg.RetryDelay); serr != nil {
				res.Outcome = domain.OutcomeBrokerUnavailable
				res.BrokerMessage = serr.Error()
				return res
			}
			continue
		}

		res.BrokerCode = reply.RetCode
		res.BrokerMessage = reply.Comment

		switch classify(reply) {
		case classSuccess:
			res.Ticket = reply.Ticket
			res.FilledPrice = reply.Price
			if res.FilledPrice <= 0 {
				res.FilledPrice = entry
			}
			return e.attachStop(ctx, inst, res, stopLoss)

		case classTransient, classUnavailable:
			if retries >= e.cfg.MaxRetries {
				if classify(reply) == classUnavailable {
					res.Outcome = domain.OutcomeBrokerUnavailable
				} else {
					res.Outcome = domain.OutcomeRejected
				}
				return res
			}
			retries++
			res.RetryCount++
			if serr := e.sleep(ctx, e.cfg.RetryDelay); serr != nil {
				res.Outcome = domain.OutcomeBrokerUnavailable
				res.BrokerMessage = serr.Error()
				return res
			}
			entry = e.refreshEntry(ctx, inst.Symbol, side, entry)

		default:
			res.Outcome = domain.OutcomeRejected
			return res
		}
	}
}

// attachStop retries ModifyStopLoss on the freshly opened position. An
// unprotected fill is still a fill; the caller gets the warning, not an
// error.
func (e *Executor) attachStop(ctx context.Context, inst domain.Instrument, res domain.OrderResult, stopLoss float64) domain.OrderResult {
	for i := 0; i < e.cfg.AttachRetries; i++ {
		if i > 0 {
			if serr := e.sleep(ctx, e.cfg.RetryDelay); serr != nil {
				break
			}
		}
		mr, err := e.session.ModifyStopLoss(ctx, res.Ticket, stopLoss)
		if err == nil && mr.OK {
			res.Outcome = domain.OutcomeFilled
			res.AppliedStopLoss = stopLoss
			res.Warning = "stop loss attached after naked fill"
			e.logger.InfoContext(ctx, "stop loss attached",
				slog.String("symbol", inst.Symbol),
				slog.Int64("ticket", res.Ticket),
				slog.Float64("sl", stopLoss),
			)
			return res
		}
		if err == nil {
			res.BrokerCode = mr.BrokerCode
			res.BrokerMessage = mr.Message
		} else {
			res.BrokerMessage = err.Error()
		}
	}

	res.Outcome = domain.OutcomeFilledWithoutProtection
	res.Warning = "position open without stop loss"
	e.logger.ErrorContext(ctx, "position left unprotected",
		slog.String("symbol", inst.Symbol),
		slog.Int64("ticket", res.Ticket),
		slog.String("last_error", res.BrokerMessage),
	)
	return res
}

// refreshEntry re-reads the quote before a retry so the request is priced
// off a fresh tick. The previous reference is kept when the quote fails.
func (e *Executor) refreshEntry(ctx context.Context, symbol string, side domain.Side, fallback float64) float64 {
	q, err := e.session.Quote(ctx, symbol)
	if err != nil {
		return fallback
	}
	return q.Reference(side)
}
