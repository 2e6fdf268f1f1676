package finnhub

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStream() *TradeStream {
	return NewTradeStream("test-token", []string{"aapl", "MSFT", " "}, zerolog.Nop())
}

func TestNewTradeStream_NormalizesSymbols(t *testing.T) {
	ts := newTestStream()
	assert.Equal(t, []string{"AAPL", "MSFT"}, ts.symbols)
}

func TestHandleMessage_TradeFramesUpdateLastTrade(t *testing.T) {
	ts := newTestStream()

	err := ts.handleMessage([]byte(`{
		"type": "trade",
		"data": [
			{"s": "AAPL", "p": 227.52, "t": 1724443200123, "v": 100},
			{"s": "MSFT", "p": 417.11, "t": 1724443201000, "v": 25}
		]
	}`))
	require.NoError(t, err)

	trade, ok := ts.LastTrade("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 227.52, trade.Price, 1e-9)
	assert.Equal(t, float64(100), trade.Volume)
	assert.Equal(t, time.UnixMilli(1724443200123).UTC(), trade.At)

	snapshot := ts.Snapshot()
	assert.Len(t, snapshot, 2)
}

func TestHandleMessage_OlderTradeNeverRegresses(t *testing.T) {
	ts := newTestStream()

	require.NoError(t, ts.handleMessage([]byte(`{"type":"trade","data":[{"s":"AAPL","p":227.52,"t":1724443205000,"v":100}]}`)))
	require.NoError(t, ts.handleMessage([]byte(`{"type":"trade","data":[{"s":"AAPL","p":226.00,"t":1724443200000,"v":50}]}`)))

	trade, ok := ts.LastTrade("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 227.52, trade.Price, 1e-9)
}

func TestHandleMessage_SkipsMalformedFrames(t *testing.T) {
	ts := newTestStream()

	require.NoError(t, ts.handleMessage([]byte(`{"type":"trade","data":[{"s":"","p":1,"t":1,"v":1},{"s":"AAPL","p":0,"t":1,"v":1}]}`)))
	assert.Empty(t, ts.Snapshot())
}

func TestHandleMessage_PingIgnored(t *testing.T) {
	ts := newTestStream()
	require.NoError(t, ts.handleMessage([]byte(`{"type":"ping"}`)))
	assert.Empty(t, ts.Snapshot())
}

func TestHandleMessage_MalformedPayload(t *testing.T) {
	ts := newTestStream()
	assert.Error(t, ts.handleMessage([]byte(`not json`)))
}

func TestLastTrade_NormalizesLookupSymbol(t *testing.T) {
	ts := newTestStream()
	require.NoError(t, ts.handleMessage([]byte(`{"type":"trade","data":[{"s":"AAPL","p":227.52,"t":1724443200000,"v":1}]}`)))

	_, ok := ts.LastTrade(" aapl ")
	assert.True(t, ok)
}

func TestCalculateBackoff_ExponentialWithCap(t *testing.T) {
	assert.Equal(t, 5*time.Second, calculateBackoff(1))
	assert.Equal(t, 10*time.Second, calculateBackoff(2))
	assert.Equal(t, 40*time.Second, calculateBackoff(4))
	assert.Equal(t, 5*time.Minute, calculateBackoff(12))
	assert.Equal(t, 5*time.Minute, calculateBackoff(50))
}

func TestStatus_ReflectsTapeActivity(t *testing.T) {
	ts := newTestStream()

	status := ts.Status()
	assert.False(t, status.Connected)
	assert.True(t, status.Stale)
	assert.Equal(t, int64(0), status.Trades)
	assert.Equal(t, []string{"AAPL", "MSFT"}, status.Symbols)

	require.NoError(t, ts.handleMessage([]byte(`{"type":"trade","data":[{"s":"AAPL","p":227.52,"t":1724443200000,"v":1}]}`)))

	status = ts.Status()
	assert.False(t, status.Stale)
	assert.Equal(t, int64(1), status.Trades)
}
