package priceclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/crypto-price-stream/pkg/contracts/events"
)

// ErrGaveUp indica que o limite de tentativas seguidas de reconexão foi atingido
var ErrGaveUp = errors.New("price stream: max reconnect attempts reached")

// Backoff exponencial: Initial, 2x, 4x... até Max; MaxAttempts tentativas seguidas sem sucesso
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: time.Second, Max: 30 * time.Second, MaxAttempts: 5}
}

// Delay retorna a espera antes da tentativa n (1-based)
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Metrics do cliente de referência
type Metrics struct {
	Updates    prometheus.Counter
	Reconnects prometheus.Counter
	Connected  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Updates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "price_client_updates_total",
			Help: "Mensagens price_update recebidas",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "price_client_reconnects_total",
			Help: "Tentativas de reconexão",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "price_client_connected",
			Help: "1 quando conectado ao stream",
		}),
	}
	reg.MustRegister(m.Updates, m.Reconnects, m.Connected)
	return m
}

// Client consome o stream de preços, manda ping periódico e reconecta com backoff
type Client struct {
	URL          string
	Log          *zap.Logger
	PingInterval time.Duration
	Backoff      Backoff
	Dialer       *websocket.Dialer
	Metrics      *Metrics // opcional

	OnUpdate func(events.PriceUpdate) // chamado a cada price_update
}

// Run conecta e escuta até o ctx ser cancelado ou as tentativas se esgotarem.
// Uma conexão bem sucedida zera o contador de tentativas
func (c *Client) Run(ctx context.Context) error {
	attempts := 0
	for {
		connected, err := c.connectAndListen(ctx)
		if ctx.Err() != nil {
			c.Log.Info("context canceled, stopping price stream client")
			return ctx.Err()
		}
		if connected {
			attempts = 0
		}
		if attempts >= c.Backoff.MaxAttempts {
			c.Log.Error("giving up on price stream", zap.Int("attempts", attempts), zap.Error(err))
			return fmt.Errorf("%w: %w", ErrGaveUp, err)
		}

		attempts++
		delay := c.Backoff.Delay(attempts)
		c.Log.Warn("price stream disconnected, reconnecting",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", c.Backoff.MaxAttempts),
			zap.Duration("delay", delay),
		)
		if c.Metrics != nil {
			c.Metrics.Reconnects.Inc()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// connectAndListen retorna connected=true se o handshake chegou a completar
func (c *Client) connectAndListen(ctx context.Context) (bool, error) {
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return false, err
	}
	c.Log.Info("connected to price stream", zap.String("url", c.URL))
	if c.Metrics != nil {
		c.Metrics.Connected.Set(1)
		defer c.Metrics.Connected.Set(0)
	}

	var writeMu sync.Mutex
	done := make(chan struct{})
	defer close(done)

	// ctx cancelado fecha a conexão e destrava o ReadMessage
	go func() {
		select {
		case <-ctx.Done():
			writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			writeMu.Unlock()
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	go c.keepAlive(conn, &writeMu, done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}
		c.handle(message)
	}
}

func (c *Client) keepAlive(conn *websocket.Conn, writeMu *sync.Mutex, done <-chan struct{}) {
	if c.PingInterval <= 0 {
		return
	}
	ping, _ := json.Marshal(events.ClientMsg{Type: events.TypePing})
	ticker := time.NewTicker(c.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := conn.WriteMessage(websocket.TextMessage, ping)
			writeMu.Unlock()
			if err != nil {
				c.Log.Warn("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// handle só reage a price_update; pong e tipos desconhecidos são ignorados
func (c *Client) handle(message []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &head); err != nil {
		c.Log.Warn("invalid message", zap.Error(err))
		return
	}

	switch head.Type {
	case events.TypePriceUpdate:
		var upd events.PriceUpdate
		if err := json.Unmarshal(message, &upd); err != nil {
			c.Log.Warn("invalid price update", zap.Error(err))
			return
		}
		if c.Metrics != nil {
			c.Metrics.Updates.Inc()
		}
		if c.OnUpdate != nil {
			c.OnUpdate(upd)
		}
	case events.TypePong:
		c.Log.Debug("pong received")
	}
}
