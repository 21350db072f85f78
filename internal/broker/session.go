// Package broker provides session-level wrappers around a terminal
// connection: mutating-call serialization and instrument metadata caching.
package broker

import (
	"context"
	"strings"
	"sync"

	"github.com/quantonic/autotrader/internal/domain"
)

// SerializedSession wraps a BrokerSession so that at most one mutating
// call (submit or modify) is in flight at a time. Most terminal bridges
// reject or misorder concurrent trade requests; reads pass through
// untouched. It also caches instrument metadata, which is immutable for
// the lifetime of a terminal session.
type SerializedSession struct {
	inner domain.BrokerSession

	tradeMu sync.Mutex

	metaMu sync.RWMutex
	meta   map[string]domain.Instrument
}

var _ domain.BrokerSession = (*SerializedSession)(nil)

// Serialize wraps inner. Wrapping an already serialized session is safe
// but pointless.
func Serialize(inner domain.BrokerSession) *SerializedSession {
	return &SerializedSession{
		inner: inner,
		meta:  make(map[string]domain.Instrument),
	}
}

func (s *SerializedSession) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	return s.inner.Quote(ctx, symbol)
}

func (s *SerializedSession) RecentBars(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]domain.Bar, error) {
	return s.inner.RecentBars(ctx, symbol, tf, count)
}

func (s *SerializedSession) SubmitMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.BrokerReply, error) {
	s.tradeMu.Lock()
	defer s.tradeMu.Unlock()
	return s.inner.SubmitMarketOrder(ctx, req)
}

func (s *SerializedSession) ModifyStopLoss(ctx context.Context, ticket int64, newStop float64) (domain.ModifyResult, error) {
	s.tradeMu.Lock()
	defer s.tradeMu.Unlock()
	return s.inner.ModifyStopLoss(ctx, ticket, newStop)
}

func (s *SerializedSession) OpenPositions(ctx context.Context, symbol string) ([]domain.OpenPosition, error) {
	return s.inner.OpenPositions(ctx, symbol)
}

func (s *SerializedSession) AccountSnapshot(ctx context.Context) (domain.AccountSnapshot, error) {
	return s.inner.AccountSnapshot(ctx)
}

// InstrumentMetadata serves from the cache, falling through to the inner
// session on first use per symbol.
func (s *SerializedSession) InstrumentMetadata(ctx context.Context, symbol string) (domain.Instrument, error) {
	key := strings.ToUpper(symbol)

	s.metaMu.RLock()
	inst, ok := s.meta[key]
	s.metaMu.RUnlock()
	if ok {
		return inst, nil
	}

	inst, err := s.inner.InstrumentMetadata(ctx, symbol)
	if err != nil {
		return domain.Instrument{}, err
	}

	s.metaMu.Lock()
	s.meta[key] = inst
	s.metaMu.Unlock()
	return inst, nil
}

func (s *SerializedSession) IsTradable(ctx context.Context, symbol string) (bool, error) {
	return s.inner.IsTradable(ctx, symbol)
}
