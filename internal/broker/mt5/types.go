package mt5

import (
	"time"

	"github.com/quantonic/autotrader/internal/domain"
)

// Wire DTOs for the terminal bridge REST API. Timestamps travel as Unix
// milliseconds; prices and volumes as plain floats.

type tickDTO struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	TimeMs int64   `json:"time_ms"`
}

func (t tickDTO) toQuote() domain.Quote {
	return domain.Quote{
		Bid:  t.Bid,
		Ask:  t.Ask,
		Time: time.UnixMilli(t.TimeMs).UTC(),
	}
}

type barDTO struct {
	TimeMs int64   `json:"time_ms"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
}

func (b barDTO) toBar() domain.Bar {
	return domain.Bar{
		Time:  time.UnixMilli(b.TimeMs).UTC(),
		Open:  b.Open,
		High:  b.High,
		Low:   b.Low,
		Close: b.Close,
	}
}

type orderDTO struct {
	ClientID   string  `json:"client_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"` // "buy" or "sell"
	Volume     float64 `json:"volume"`
	StopLoss   float64 `json:"sl,omitempty"`
	TakeProfit float64 `json:"tp,omitempty"`
	Comment    string  `json:"comment,omitempty"`
}

type tradeReplyDTO struct {
	RetCode int     `json:"retcode"`
	Comment string  `json:"comment"`
	Order   int64   `json:"order"`
	Deal    int64   `json:"deal"`
	Price   float64 `json:"price"`
}

func (r tradeReplyDTO) toReply() domain.BrokerReply {
	return domain.BrokerReply{
		RetCode: r.RetCode,
		Comment: r.Comment,
		Ticket:  r.Order,
		Deal:    r.Deal,
		Price:   r.Price,
	}
}

type positionDTO struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Volume     float64 `json:"volume"`
	PriceOpen  float64 `json:"price_open"`
	PriceNow   float64 `json:"price_current"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	Profit     float64 `json:"profit"`
	TimeMs     int64   `json:"time_ms"`
}

func (p positionDTO) toPosition() domain.OpenPosition {
	side := domain.SideLong
	if p.Side == "sell" {
		side = domain.SideShort
	}
	return domain.OpenPosition{
		Ticket:            p.Ticket,
		Instrument:        p.Symbol,
		Side:              side,
		Volume:            p.Volume,
		EntryPrice:        p.PriceOpen,
		CurrentPrice:      p.PriceNow,
		CurrentStopLoss:   p.StopLoss,
		CurrentTakeProfit: p.TakeProfit,
		FloatingProfit:    p.Profit,
		OpenedAt:          time.UnixMilli(p.TimeMs).UTC(),
	}
}

type accountDTO struct {
	Equity        float64 `json:"equity"`
	Balance       float64 `json:"balance"`
	RealizedToday float64 `json:"realized_today"`
	Currency      string  `json:"currency"`
}

func (a accountDTO) toSnapshot() domain.AccountSnapshot {
	return domain.AccountSnapshot{
		Equity:           a.Equity,
		Balance:          a.Balance,
		RealizedPnlToday: a.RealizedToday,
		Currency:         a.Currency,
	}
}

type symbolDTO struct {
	Symbol          string  `json:"symbol"`
	Digits          int     `json:"digits"`
	Point           float64 `json:"point"`
	TickSize        float64 `json:"tick_size"`
	TickValue       float64 `json:"tick_value"`
	StopLevelPoints float64 `json:"trade_stops_level"`
	VolumeMin       float64 `json:"volume_min"`
	VolumeStep      float64 `json:"volume_step"`
	VolumeMax       float64 `json:"volume_max"`
	ContractSize    float64 `json:"contract_size"`
	TradeAllowed    bool    `json:"trade_allowed"`
}

func (s symbolDTO) toInstrument() domain.Instrument {
	return domain.Instrument{
		Symbol:          s.Symbol,
		Digits:          s.Digits,
		Point:           s.Point,
		TickSize:        s.TickSize,
		TickValue:       s.TickValue,
		StopLevelPoints: s.StopLevelPoints,
		VolumeMin:       s.VolumeMin,
		VolumeStep:      s.VolumeStep,
		VolumeMax:       s.VolumeMax,
		ContractSize:    s.ContractSize,
	}
}

func sideString(side domain.Side) string {
	if side == domain.SideLong {
		return "buy"
	}
	return "sell"
}
