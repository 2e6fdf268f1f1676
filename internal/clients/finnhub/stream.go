package finnhub

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aristath/datafeed/internal/domain"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	defaultStreamURL = "wss://ws.finnhub.io"

	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10

	// A quiet tape outside market hours is normal; staleness only means
	// the feed itself may be wedged.
	tradeStaleThreshold = 5 * time.Minute
)

// Trade is the latest observed trade for one subscribed symbol.
type Trade struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
	At     time.Time `json:"at"`
}

// StreamStatus is a point-in-time snapshot of stream health for the ops
// surface.
type StreamStatus struct {
	Connected bool      `json:"connected"`
	Symbols   []string  `json:"symbols"`
	Trades    int64     `json:"trades_received"`
	LastTrade time.Time `json:"last_trade,omitempty"`
	Stale     bool      `json:"stale"`
}

// TradeStream maintains a websocket subscription to live trades and keeps
// the last trade per symbol in memory. It reconnects with exponential
// backoff and never surfaces upstream hiccups to callers: readers see the
// last known trade and its age.
type TradeStream struct {
	url        string
	apiKey     string
	symbols    []string
	httpClient *http.Client
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex

	log zerolog.Logger

	connected    bool
	reconnecting bool
	stopChan     chan struct{}
	stopped      bool

	trades     map[string]Trade
	tradeCount int64
	lastUpdate time.Time
	tradesMu   sync.RWMutex
}

// createHTTP1Client creates an HTTP client that forces HTTP/1.1. The
// websocket upgrade handshake requires it, while the endpoint's edge would
// otherwise negotiate HTTP/2 via TLS ALPN.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// NewTradeStream creates a live-trade stream client for the given symbols.
func NewTradeStream(apiKey string, symbols []string, log zerolog.Logger) *TradeStream {
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if n := domain.NormalizeSymbol(s); n != "" {
			normalized = append(normalized, n)
		}
	}
	return &TradeStream{
		url:        defaultStreamURL,
		apiKey:     apiKey,
		symbols:    normalized,
		httpClient: createHTTP1Client(),
		log:        log.With().Str("component", "trade_stream").Logger(),
		trades:     make(map[string]Trade),
		stopChan:   make(chan struct{}),
	}
}

// Start establishes the connection and launches the read loop. A failed
// initial dial is not fatal: the reconnect loop keeps trying in the
// background.
func (ts *TradeStream) Start() error {
	ts.log.Info().Strs("symbols", ts.symbols).Msg("Starting trade stream")

	if err := ts.connect(); err != nil {
		ts.log.Warn().Err(err).Msg("Initial stream connection failed, will retry in background")
		go ts.reconnectLoop()
		return err
	}

	ts.mu.RLock()
	ctx := ts.connCtx
	ts.mu.RUnlock()
	go ts.readMessages(ctx)

	ts.log.Info().Msg("Trade stream started")
	return nil
}

// Stop gracefully shuts the stream down.
func (ts *TradeStream) Stop() error {
	ts.mu.Lock()
	if ts.stopped {
		ts.mu.Unlock()
		return nil
	}
	ts.stopped = true
	ts.mu.Unlock()

	ts.log.Info().Msg("Stopping trade stream")
	close(ts.stopChan)
	return ts.disconnect()
}

// connect dials the websocket and subscribes to every configured symbol.
func (ts *TradeStream) connect() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	wsURL := ts.url + "?token=" + url.QueryEscape(ts.apiKey)
	ts.log.Info().Str("url", ts.url).Msg("Connecting to trade stream")

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		HTTPClient: ts.httpClient,
	})
	if err != nil {
		return fmt.Errorf("failed to dial stream: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	ts.conn = conn
	ts.connCtx = connCtx
	ts.cancelFunc = connCancel
	ts.connected = true

	if err := ts.subscribeAll(connCtx); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		ts.conn = nil
		ts.connCtx = nil
		ts.cancelFunc = nil
		ts.connected = false
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ts.log.Info().Int("symbols", len(ts.symbols)).Msg("Trade stream connected")
	return nil
}

// disconnect closes the connection and cancels the read loop.
func (ts *TradeStream) disconnect() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.conn == nil {
		return nil
	}

	if ts.cancelFunc != nil {
		ts.cancelFunc()
		ts.cancelFunc = nil
	}

	err := ts.conn.Close(websocket.StatusNormalClosure, "")
	ts.conn = nil
	ts.connCtx = nil
	ts.connected = false

	if err != nil {
		return fmt.Errorf("error closing stream: %w", err)
	}
	return nil
}

// subscribeMessage is the wire format for subscription requests.
type subscribeMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// subscribeAll sends one subscribe frame per configured symbol.
func (ts *TradeStream) subscribeAll(ctx context.Context) error {
	for _, symbol := range ts.symbols {
		data, err := json.Marshal(subscribeMessage{Type: "subscribe", Symbol: symbol})
		if err != nil {
			return fmt.Errorf("failed to marshal subscribe message: %w", err)
		}

		writeCtx, cancel := context.WithTimeout(ctx, writeWait)
		err = ts.conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", symbol, err)
		}
	}
	return nil
}

// streamMessage is the wire format of inbound frames. Type is "trade" for
// tape updates and "ping" for the application-level keepalive.
type streamMessage struct {
	Type string       `json:"type"`
	Data []tradeFrame `json:"data"`
}

// tradeFrame is one trade on the tape. The timestamp is UNIX milliseconds.
type tradeFrame struct {
	Symbol string  `json:"s"`
	Price  float64 `json:"p"`
	Time   int64   `json:"t"`
	Volume float64 `json:"v"`
}

// readMessages consumes frames until the connection drops, then hands off
// to the reconnect loop.
func (ts *TradeStream) readMessages(ctx context.Context) {
	defer func() {
		ts.log.Info().Msg("Stream read loop stopped")
		ts.mu.RLock()
		stopped := ts.stopped
		ts.mu.RUnlock()
		if !stopped {
			go ts.reconnectLoop()
		}
	}()

	for {
		select {
		case <-ts.stopChan:
			return
		case <-ctx.Done():
			ts.log.Debug().Msg("Stream read loop context cancelled")
			return
		default:
		}

		ts.mu.RLock()
		conn := ts.conn
		ts.mu.RUnlock()
		if conn == nil {
			ts.log.Warn().Msg("Stream connection is nil, stopping read loop")
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				ts.log.Info().Int("status", int(closeStatus)).Msg("Stream closed normally")
			} else if ctx.Err() != nil {
				ts.log.Debug().Msg("Stream read cancelled by context")
			} else {
				ts.log.Error().Err(err).Msg("Unexpected stream read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := ts.handleMessage(message); err != nil {
			ts.log.Error().Err(err).Str("message", string(message)).Msg("Failed to handle stream message")
		}
	}
}

// handleMessage parses one frame and folds trades into the last-trade map.
func (ts *TradeStream) handleMessage(message []byte) error {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return fmt.Errorf("failed to parse stream message: %w", err)
	}

	switch msg.Type {
	case "trade":
		ts.applyTrades(msg.Data)
	case "ping":
		// Application-level keepalive; no response required
	default:
		ts.log.Debug().Str("type", msg.Type).Msg("Ignoring stream message type")
	}
	return nil
}

// applyTrades updates the last-trade map, keeping the newest trade per
// symbol within a frame.
func (ts *TradeStream) applyTrades(frames []tradeFrame) {
	if len(frames) == 0 {
		return
	}

	ts.tradesMu.Lock()
	defer ts.tradesMu.Unlock()

	for _, f := range frames {
		if f.Symbol == "" || f.Price <= 0 {
			continue
		}
		at := time.UnixMilli(f.Time).UTC()
		if prev, ok := ts.trades[f.Symbol]; ok && at.Before(prev.At) {
			continue
		}
		ts.trades[f.Symbol] = Trade{
			Symbol: f.Symbol,
			Price:  f.Price,
			Volume: f.Volume,
			At:     at,
		}
		ts.tradeCount++
	}
	ts.lastUpdate = time.Now()
}

// reconnectLoop retries the connection with exponential backoff. It keeps
// retrying past maxReconnectAttempts, just noisier.
func (ts *TradeStream) reconnectLoop() {
	ts.mu.Lock()
	if ts.reconnecting || ts.stopped {
		ts.mu.Unlock()
		return
	}
	ts.reconnecting = true
	ts.mu.Unlock()

	defer func() {
		ts.mu.Lock()
		ts.reconnecting = false
		ts.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-ts.stopChan:
			ts.log.Info().Msg("Stream reconnect loop stopped")
			return
		default:
		}

		ts.mu.RLock()
		stopped := ts.stopped
		ts.mu.RUnlock()
		if stopped {
			return
		}

		attempt++
		delay := calculateBackoff(attempt)

		if attempt <= maxReconnectAttempts {
			ts.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Attempting stream reconnect")
		} else {
			ts.log.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("Stream reconnect attempt (exceeded max attempts, will keep retrying)")
		}

		select {
		case <-time.After(delay):
		case <-ts.stopChan:
			return
		}

		if err := ts.connect(); err != nil {
			ts.log.Error().Err(err).Int("attempt", attempt).Msg("Stream reconnect failed")
			continue
		}

		ts.log.Info().Int("attempt", attempt).Msg("Stream reconnected")

		ts.mu.RLock()
		ctx := ts.connCtx
		ts.mu.RUnlock()
		go ts.readMessages(ctx)
		return
	}
}

// calculateBackoff returns the exponential backoff delay for an attempt,
// capped at maxReconnectDelay.
func calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}

// LastTrade returns the most recent trade for a symbol, if one has been
// observed since startup.
func (ts *TradeStream) LastTrade(symbol string) (Trade, bool) {
	ts.tradesMu.RLock()
	defer ts.tradesMu.RUnlock()

	trade, ok := ts.trades[domain.NormalizeSymbol(symbol)]
	return trade, ok
}

// Snapshot returns a copy of the last trade per symbol.
func (ts *TradeStream) Snapshot() map[string]Trade {
	ts.tradesMu.RLock()
	defer ts.tradesMu.RUnlock()

	result := make(map[string]Trade, len(ts.trades))
	for k, v := range ts.trades {
		result[k] = v
	}
	return result
}

// IsConnected reports current connection state.
func (ts *TradeStream) IsConnected() bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.connected
}

// Status summarizes stream health for the ops surface.
func (ts *TradeStream) Status() StreamStatus {
	ts.tradesMu.RLock()
	lastUpdate := ts.lastUpdate
	count := ts.tradeCount
	ts.tradesMu.RUnlock()

	return StreamStatus{
		Connected: ts.IsConnected(),
		Symbols:   append([]string(nil), ts.symbols...),
		Trades:    count,
		LastTrade: lastUpdate,
		Stale:     lastUpdate.IsZero() || time.Since(lastUpdate) > tradeStaleThreshold,
	}
}
