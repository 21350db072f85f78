package broker

import (
	"context"

	"github.com/quantonic/autotrader/internal/domain"
)

// Shadow reads market data from a live session and routes every trading
// call to a Paper session, so paper mode runs against real quotes without
// ever touching the live account. Before a trading call it copies the
// current live quote into the paper book, so fills and floating profit
// track the live market.
type Shadow struct {
	data  domain.BrokerSession
	paper *Paper
}

var _ domain.BrokerSession = (*Shadow)(nil)

// NewShadow wraps a live data session around a paper trading session.
func NewShadow(data domain.BrokerSession, paper *Paper) *Shadow {
	return &Shadow{data: data, paper: paper}
}

func (s *Shadow) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	q, err := s.data.Quote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	s.paper.SetQuote(symbol, q.Bid, q.Ask)
	return q, nil
}

func (s *Shadow) RecentBars(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]domain.Bar, error) {
	return s.data.RecentBars(ctx, symbol, tf, count)
}

func (s *Shadow) InstrumentMetadata(ctx context.Context, symbol string) (domain.Instrument, error) {
	inst, err := s.data.InstrumentMetadata(ctx, symbol)
	if err != nil {
		return domain.Instrument{}, err
	}
	s.paper.SetInstrument(inst)
	return inst, nil
}

func (s *Shadow) IsTradable(ctx context.Context, symbol string) (bool, error) {
	return s.data.IsTradable(ctx, symbol)
}

func (s *Shadow) SubmitMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.BrokerReply, error) {
	s.refresh(ctx, req.Instrument)
	return s.paper.SubmitMarketOrder(ctx, req)
}

func (s *Shadow) ModifyStopLoss(ctx context.Context, ticket int64, newStop float64) (domain.ModifyResult, error) {
	return s.paper.ModifyStopLoss(ctx, ticket, newStop)
}

// OpenPositions re-marks paper positions to the latest live quotes before
// returning them, so floating profit reflects the live market.
func (s *Shadow) OpenPositions(ctx context.Context, symbol string) ([]domain.OpenPosition, error) {
	positions, err := s.paper.OpenPositions(ctx, symbol)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(positions))
	for _, p := range positions {
		if seen[p.Instrument] {
			continue
		}
		seen[p.Instrument] = true
		s.refresh(ctx, p.Instrument)
	}
	return s.paper.OpenPositions(ctx, symbol)
}

func (s *Shadow) AccountSnapshot(ctx context.Context) (domain.AccountSnapshot, error) {
	return s.paper.AccountSnapshot(ctx)
}

// refresh copies the current live quote into the paper book. Failures are
// ignored; the paper session then marks to the last known quote.
func (s *Shadow) refresh(ctx context.Context, symbol string) {
	if q, err := s.data.Quote(ctx, symbol); err == nil {
		s.paper.SetQuote(symbol, q.Bid, q.Ask)
	}
	if inst, err := s.data.InstrumentMetadata(ctx, symbol); err == nil {
		s.paper.SetInstrument(inst)
	}
}
