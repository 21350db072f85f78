package broker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/quantonic/autotrader/internal/domain"
)

// Paper is an in-memory broker session for paper trading and tests. It
// fills every market order at the quoted reference price with no slippage
// and marks positions to the last quote set via SetQuote.
type Paper struct {
	mu          sync.Mutex
	quotes      map[string]domain.Quote
	bars        map[string][]domain.Bar
	instruments map[string]domain.Instrument
	positions   map[int64]*domain.OpenPosition
	nextTicket  int64
	balance     float64
	realized    float64
	now         func() time.Time
}

var _ domain.BrokerSession = (*Paper)(nil)

// NewPaper creates a paper session with the given starting balance.
func NewPaper(balance float64) *Paper {
	return &Paper{
		quotes:      make(map[string]domain.Quote),
		bars:        make(map[string][]domain.Bar),
		instruments: make(map[string]domain.Instrument),
		positions:   make(map[int64]*domain.OpenPosition),
		nextTicket:  1000,
		balance:     balance,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetInstrument registers metadata for a symbol.
func (p *Paper) SetInstrument(inst domain.Instrument) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instruments[key(inst.Symbol)] = inst
}

// SetQuote updates the current quote and re-marks open positions on the
// symbol.
func (p *Paper) SetQuote(symbol string, bid, ask float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[key(symbol)] = domain.Quote{Bid: bid, Ask: ask, Time: p.now()}
	for _, pos := range p.positions {
		if key(pos.Instrument) != key(symbol) {
			continue
		}
		if pos.Side == domain.SideLong {
			pos.CurrentPrice = bid
		} else {
			pos.CurrentPrice = ask
		}
		pos.FloatingProfit = p.floating(pos)
	}
}

// SetBars installs bar history for a symbol and timeframe.
func (p *Paper) SetBars(symbol string, tf domain.Timeframe, bars []domain.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[key(symbol)+"/"+string(tf)] = bars
}

func (p *Paper) Quote(_ context.Context, symbol string) (domain.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.quotes[key(symbol)]
	if !ok {
		return domain.Quote{}, domain.ErrNoTick
	}
	return q, nil
}

func (p *Paper) RecentBars(_ context.Context, symbol string, tf domain.Timeframe, count int) ([]domain.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bars, ok := p.bars[key(symbol)+"/"+string(tf)]
	if !ok {
		return nil, domain.ErrUnavailable
	}
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]domain.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (p *Paper) SubmitMarketOrder(_ context.Context, req domain.OrderRequest) (domain.BrokerReply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.quotes[key(req.Instrument)]
	if !ok {
		return domain.BrokerReply{RetCode: 10018, Comment: "market closed"}, nil
	}

	p.nextTicket++
	fill := q.Reference(req.Side)
	pos := &domain.OpenPosition{
		Ticket:            p.nextTicket,
		Instrument:        req.Instrument,
		Side:              req.Side,
		Volume:            req.Quantity,
		EntryPrice:        fill,
		CurrentPrice:      fill,
		CurrentStopLoss:   req.StopLossPrice,
		CurrentTakeProfit: req.TakeProfitPrice,
		OpenedAt:          p.now(),
	}
	p.positions[pos.Ticket] = pos

	return domain.BrokerReply{
		RetCode: 10009,
		Comment: "done",
		Ticket:  pos.Ticket,
		Deal:    pos.Ticket,
		Price:   fill,
	}, nil
}

func (p *Paper) ModifyStopLoss(_ context.Context, ticket int64, newStop float64) (domain.ModifyResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticket]
	if !ok {
		return domain.ModifyResult{BrokerCode: 10013, Message: "position not found"}, nil
	}
	pos.CurrentStopLoss = newStop
	return domain.ModifyResult{OK: true, BrokerCode: 10009}, nil
}

func (p *Paper) OpenPositions(_ context.Context, symbol string) ([]domain.OpenPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.OpenPosition
	for _, pos := range p.positions {
		if symbol == "" || key(pos.Instrument) == key(symbol) {
			out = append(out, *pos)
		}
	}
	return out, nil
}

func (p *Paper) AccountSnapshot(_ context.Context) (domain.AccountSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var floating float64
	for _, pos := range p.positions {
		floating += pos.FloatingProfit
	}
	return domain.AccountSnapshot{
		Equity:           p.balance + p.realized + floating,
		Balance:          p.balance + p.realized,
		RealizedPnlToday: p.realized,
		Currency:         "USD",
	}, nil
}

func (p *Paper) InstrumentMetadata(_ context.Context, symbol string) (domain.Instrument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inst, ok := p.instruments[key(symbol)]
	if !ok {
		return domain.Instrument{}, domain.ErrUnknownSymbol
	}
	return inst, nil
}

func (p *Paper) IsTradable(_ context.Context, symbol string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.quotes[key(symbol)]
	return ok, nil
}

// Close flattens a position at the current quote, realizing its PnL.
// It exists for paper-mode tooling, not the trade loop.
func (p *Paper) Close(ticket int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticket]
	if !ok {
		return false
	}
	p.realized += pos.FloatingProfit
	delete(p.positions, ticket)
	return true
}

// floating marks a position to its CurrentPrice using the instrument's
// tick economics, falling back to a plain price difference.
func (p *Paper) floating(pos *domain.OpenPosition) float64 {
	diff := pos.CurrentPrice - pos.EntryPrice
	if pos.Side == domain.SideShort {
		diff = -diff
	}
	inst, ok := p.instruments[key(pos.Instrument)]
	if !ok || inst.TickSize <= 0 || inst.TickValue <= 0 {
		return diff * pos.Volume
	}
	return diff / inst.TickSize * inst.TickValue * pos.Volume
}

func key(symbol string) string { return strings.ToUpper(symbol) }
