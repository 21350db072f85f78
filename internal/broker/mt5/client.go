// Package mt5 talks to a MetaTrader 5 terminal through its REST/WebSocket
// bridge. The Client implements domain.BrokerSession; the optional Stream
// keeps quotes fresh without polling.
package mt5

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quantonic/autotrader/internal/domain"
)

// Client is the REST client for the terminal bridge.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	staleAfter time.Duration
	stream     *Stream
}

var _ domain.BrokerSession = (*Client)(nil)

// NewClient creates a bridge client.
//
// baseURL is the bridge root, e.g. "http://127.0.0.1:5001/api/v1".
// staleAfter bounds how old a tick may be before Quote reports ErrNoTick;
// zero disables the check.
func NewClient(baseURL, apiToken string, staleAfter time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		staleAfter: staleAfter,
	}
}

// AttachStream makes the client serve quotes from the tick stream when a
// fresh one is available, falling back to REST otherwise.
func (c *Client) AttachStream(s *Stream) {
	c.stream = s
}

// Quote returns the current tick for the symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	if c.stream != nil {
		if q, ok := c.stream.LastQuote(symbol); ok && c.fresh(q.Time) {
			return q, nil
		}
	}

	path := fmt.Sprintf("/ticks/%s", url.PathEscape(symbol))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("mt5: quote %s: %w", symbol, err)
	}

	var dto tickDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return domain.Quote{}, fmt.Errorf("mt5: decode quote: %w", err)
	}

	q := dto.toQuote()
	if q.Bid <= 0 && q.Ask <= 0 {
		return domain.Quote{}, domain.ErrNoTick
	}
	if !c.fresh(q.Time) {
		return domain.Quote{}, fmt.Errorf("mt5: quote %s aged %s: %w", symbol, time.Since(q.Time).Round(time.Second), domain.ErrNoTick)
	}
	return q, nil
}

// RecentBars returns up to count bars, oldest first.
func (c *Client) RecentBars(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]domain.Bar, error) {
	params := url.Values{}
	params.Set("timeframe", string(tf))
	params.Set("count", strconv.Itoa(count))
	path := fmt.Sprintf("/bars/%s?%s", url.PathEscape(symbol), params.Encode())

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("mt5: bars %s %s: %w", symbol, tf, err)
	}

	var dtos []barDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("mt5: decode bars: %w", err)
	}

	bars := make([]domain.Bar, 0, len(dtos))
	for _, d := range dtos {
		bars = append(bars, d.toBar())
	}
	return bars, nil
}

// SubmitMarketOrder sends a market order. A nil error means the bridge
// answered; the retcode carries the trade server's verdict.
func (c *Client) SubmitMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.BrokerReply, error) {
	dto := orderDTO{
		ClientID:   req.ClientID,
		Symbol:     req.Instrument,
		Side:       sideString(req.Side),
		Volume:     req.Quantity,
		StopLoss:   req.StopLossPrice,
		TakeProfit: req.TakeProfitPrice,
		Comment:    req.Comment,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/orders/market", dto)
	if err != nil {
		return domain.BrokerReply{}, fmt.Errorf("mt5: submit order %s: %w", req.Instrument, err)
	}

	var reply tradeReplyDTO
	if err := json.Unmarshal(body, &reply); err != nil {
		return domain.BrokerReply{}, fmt.Errorf("mt5: decode order reply: %w", err)
	}
	return reply.toReply(), nil
}

// ModifyStopLoss updates only the stop loss of an open position.
func (c *Client) ModifyStopLoss(ctx context.Context, ticket int64, newStop float64) (domain.ModifyResult, error) {
	path := fmt.Sprintf("/positions/%d/sl", ticket)
	body, err := c.doRequest(ctx, http.MethodPost, path, map[string]float64{"sl": newStop})
	if err != nil {
		return domain.ModifyResult{}, fmt.Errorf("mt5: modify sl %d: %w", ticket, err)
	}

	var reply tradeReplyDTO
	if err := json.Unmarshal(body, &reply); err != nil {
		return domain.ModifyResult{}, fmt.Errorf("mt5: decode modify reply: %w", err)
	}
	return domain.ModifyResult{
		OK:         reply.RetCode == 10009,
		BrokerCode: reply.RetCode,
		Message:    reply.Comment,
	}, nil
}

// OpenPositions returns open positions, optionally filtered by symbol.
func (c *Client) OpenPositions(ctx context.Context, symbol string) ([]domain.OpenPosition, error) {
	path := "/positions"
	if symbol != "" {
		path += "?symbol=" + url.QueryEscape(symbol)
	}

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("mt5: positions: %w", err)
	}

	var dtos []positionDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("mt5: decode positions: %w", err)
	}

	out := make([]domain.OpenPosition, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toPosition())
	}
	return out, nil
}

// AccountSnapshot returns the account state.
func (c *Client) AccountSnapshot(ctx context.Context) (domain.AccountSnapshot, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/account", nil)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("mt5: account: %w", err)
	}

	var dto accountDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("mt5: decode account: %w", err)
	}
	return dto.toSnapshot(), nil
}

// InstrumentMetadata resolves symbol metadata from the bridge.
func (c *Client) InstrumentMetadata(ctx context.Context, symbol string) (domain.Instrument, error) {
	path := fmt.Sprintf("/symbols/%s", url.PathEscape(symbol))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("mt5: symbol %s: %w", symbol, err)
	}

	var dto symbolDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return domain.Instrument{}, fmt.Errorf("mt5: decode symbol: %w", err)
	}
	return dto.toInstrument(), nil
}

// IsTradable reports whether the symbol has trading enabled and a fresh
// tick.
func (c *Client) IsTradable(ctx context.Context, symbol string) (bool, error) {
	path := fmt.Sprintf("/symbols/%s", url.PathEscape(symbol))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, fmt.Errorf("mt5: symbol %s: %w", symbol, err)
	}

	var dto symbolDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return false, fmt.Errorf("mt5: decode symbol: %w", err)
	}
	if !dto.TradeAllowed {
		return false, nil
	}

	if _, err := c.Quote(ctx, symbol); err != nil {
		return false, nil
	}
	return true, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) fresh(at time.Time) bool {
	if c.staleAfter <= 0 {
		return true
	}
	return time.Since(at) <= c.staleAfter
}

// doRequest builds, sends, and reads an HTTP request against the bridge.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrUnknownSymbol
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("bridge status %d: %s: %w", resp.StatusCode, truncate(respBody), domain.ErrUnavailable)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("bridge status %d: %s", resp.StatusCode, truncate(respBody))
	}
	return respBody, nil
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
