package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/crypto-price-stream/internal/price-service/metrics"
	"github.com/radieske/crypto-price-stream/pkg/contracts/events"
)

type wsFixture struct {
	handler *Handler
	reg     *Registry
	url     string
}

func newWSFixture(t *testing.T, cfg HandlerConfig) *wsFixture {
	t.Helper()
	m := metrics.NewNop()
	reg := NewRegistry(m.WSConnections)
	h := NewHandler(reg, exampleStore(), cfg, zap.NewNop(), m)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		reg.CloseAll()
		srv.Close()
	})
	return &wsFixture{handler: h, reg: reg, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestHandler_CatchUpOnConnect(t *testing.T) {
	fx := newWSFixture(t, HandlerConfig{})
	conn := dial(t, fx.url)

	var msg events.PriceUpdate
	readJSON(t, conn, &msg)
	assert.Equal(t, events.TypePriceUpdate, msg.Type)
	assert.Equal(t, 50000.0, msg.Data["btc"].Price)
	assert.Equal(t, 3000.0, msg.Data["eth"].Price)
	assert.False(t, msg.Timestamp.IsZero())

	assert.Eventually(t, func() bool { return fx.reg.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHandler_PingYieldsOnePong(t *testing.T) {
	fx := newWSFixture(t, HandlerConfig{})
	conn := dial(t, fx.url)

	var catchUp events.PriceUpdate
	readJSON(t, conn, &catchUp)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	var pong map[string]any
	readJSON(t, conn, &pong)
	assert.Equal(t, map[string]any{"type": "pong"}, pong)
	assert.Equal(t, 1, fx.reg.Len())

	// nada além de um pong
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHandler_MalformedPayloadIgnored(t *testing.T) {
	fx := newWSFixture(t, HandlerConfig{})
	conn := dial(t, fx.url)

	var catchUp events.PriceUpdate
	readJSON(t, conn, &catchUp)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`this is not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)))

	// conexão continua aberta: o ping seguinte ainda é respondido, e é a primeira resposta
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	var pong events.Pong
	readJSON(t, conn, &pong)
	assert.Equal(t, events.TypePong, pong.Type)
	assert.Equal(t, 1, fx.reg.Len())
}

func TestHandler_DisconnectRemovesClient(t *testing.T) {
	fx := newWSFixture(t, HandlerConfig{})
	conn := dial(t, fx.url)

	var catchUp events.PriceUpdate
	readJSON(t, conn, &catchUp)
	require.Equal(t, 1, fx.reg.Len())

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return fx.reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, fx.handler.Wait(ctx))
}

func TestHandler_OversizedFrameClosesConnection(t *testing.T) {
	fx := newWSFixture(t, HandlerConfig{MaxMessageBytes: 64})
	conn := dial(t, fx.url)

	var catchUp events.PriceUpdate
	readJSON(t, conn, &catchUp)

	big := `{"type":"ping","pad":"` + strings.Repeat("x", 256) + `"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return fx.reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_InboundRateLimitDropsExcess(t *testing.T) {
	fx := newWSFixture(t, HandlerConfig{InboundRate: 0.001, InboundBurst: 2})
	conn := dial(t, fx.url)

	var catchUp events.PriceUpdate
	readJSON(t, conn, &catchUp)

	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	}

	pongs := 0
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
		pongs++
	}
	assert.Equal(t, 2, pongs)
	assert.Equal(t, 1, fx.reg.Len())
}

func TestHandler_BroadcastReachesConnectedClients(t *testing.T) {
	fx := newWSFixture(t, HandlerConfig{})
	c1 := dial(t, fx.url)
	c2 := dial(t, fx.url)

	var skip events.PriceUpdate
	readJSON(t, c1, &skip)
	readJSON(t, c2, &skip)
	require.Eventually(t, func() bool { return fx.reg.Len() == 2 }, time.Second, 10*time.Millisecond)

	b := NewBroadcaster(fx.reg, zap.NewNop(), nil)
	assert.Equal(t, 2, b.Broadcast(exampleStore()))

	require.NoError(t, c1.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, c2.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, p1, err := c1.ReadMessage()
	require.NoError(t, err)
	_, p2, err := c2.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}
