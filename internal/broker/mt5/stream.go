package mt5

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantonic/autotrader/internal/domain"
)

const (
	// streamWriteWait is the time allowed to write a message to the peer.
	streamWriteWait = 10 * time.Second

	// streamPongWait is the time allowed to read the next pong message.
	streamPongWait = 30 * time.Second

	// streamPingPeriod sends pings at this interval. Must be less than pongWait.
	streamPingPeriod = (streamPongWait * 9) / 10

	// streamReconnectDelay is the base delay before attempting to reconnect.
	streamReconnectDelay = 2 * time.Second

	// streamMaxReconnectDelay caps the exponential backoff.
	streamMaxReconnectDelay = 60 * time.Second
)

// TickHandler is called for every tick received over the stream.
type TickHandler func(symbol string, q domain.Quote)

// Stream is the WebSocket tick feed from the terminal bridge. It keeps
// the last quote per subscribed symbol and reconnects with backoff.
type Stream struct {
	wsURL    string
	apiToken string
	conn     *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Tracked subscriptions for reconnection.
	symbols []string

	latest map[string]domain.Quote

	handlerMu sync.RWMutex
	handlers  []TickHandler

	// done is closed when the stream shuts down.
	done chan struct{}
}

// NewStream creates a tick stream client.
//
// wsURL is the bridge stream endpoint, e.g. "ws://127.0.0.1:5001/api/v1/stream".
func NewStream(wsURL, apiToken string) *Stream {
	return &Stream{
		wsURL:    wsURL,
		apiToken: apiToken,
		latest:   make(map[string]domain.Quote),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and restores any tracked
// subscriptions.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("mt5/stream: client is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	var header map[string][]string
	if s.apiToken != "" {
		header = map[string][]string{"Authorization": {"Bearer " + s.apiToken}}
	}

	conn, _, err := dialer.DialContext(ctx, s.wsURL, header)
	if err != nil {
		return fmt.Errorf("mt5/stream: connect: %w", err)
	}

	s.conn = conn

	s.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(streamPongWait))
		return nil
	})

	go s.readLoop()
	go s.pingLoop()

	if len(s.symbols) > 0 {
		if err := s.sendSubscribe(s.symbols); err != nil {
			return fmt.Errorf("mt5/stream: restore subscriptions: %w", err)
		}
	}

	return nil
}

// Subscribe starts streaming ticks for the given symbols.
func (s *Stream) Subscribe(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("mt5/stream: not connected")
	}

	if err := s.sendSubscribe(symbols); err != nil {
		return fmt.Errorf("mt5/stream: subscribe: %w", err)
	}

	existing := make(map[string]struct{}, len(s.symbols))
	for _, sym := range s.symbols {
		existing[sym] = struct{}{}
	}
	for _, sym := range symbols {
		if _, ok := existing[sym]; !ok {
			s.symbols = append(s.symbols, sym)
		}
	}

	return nil
}

// LastQuote returns the most recent streamed quote for the symbol.
func (s *Stream) LastQuote(symbol string) (domain.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.latest[strings.ToUpper(symbol)]
	return q, ok
}

// OnTick registers a handler called for every received tick.
func (s *Stream) OnTick(handler TickHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Close shuts down the stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.done)

	if s.conn != nil {
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return s.conn.Close()
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendSubscribe sends a subscribe command. Caller must hold s.mu.
func (s *Stream) sendSubscribe(symbols []string) error {
	cmd := struct {
		Action  string   `json:"action"`
		Symbols []string `json:"symbols"`
	}{
		Action:  "subscribe",
		Symbols: symbols,
	}

	s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads tick messages and dispatches them. On disconnect it
// attempts reconnection.
func (s *Stream) readLoop() {
	defer func() {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}

			s.reconnect()
			return
		}

		s.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (s *Stream) pingLoop() {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw stream message and routes tick events.
func (s *Stream) handleMessage(raw []byte) {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	if envelope.Type != "tick" {
		return
	}

	var dto tickDTO
	if err := json.Unmarshal(envelope.Data, &dto); err != nil {
		return
	}

	q := dto.toQuote()
	key := strings.ToUpper(dto.Symbol)

	s.mu.Lock()
	s.latest[key] = q
	s.mu.Unlock()

	s.handlerMu.RLock()
	handlers := s.handlers
	s.handlerMu.RUnlock()

	for _, h := range handlers {
		h(dto.Symbol, q)
	}
}

// reconnect re-establishes the connection with exponential backoff.
func (s *Stream) reconnect() {
	delay := streamReconnectDelay

	for {
		select {
		case <-s.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > streamMaxReconnectDelay {
			delay = streamMaxReconnectDelay
		}
	}
}
