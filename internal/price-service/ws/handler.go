package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/radieske/crypto-price-stream/internal/price-service/metrics"
	"github.com/radieske/crypto-price-stream/internal/price-service/store"
)

// Limites por conexão
const (
	DefaultMaxMessageBytes = 4096
	DefaultReadTimeout     = 60 * time.Second
	DefaultPingInterval    = 30 * time.Second
)

// HandlerConfig define os limites aplicados a cada conexão
type HandlerConfig struct {
	WriteWait       time.Duration
	MaxMessageBytes int64         // frame maior fecha a conexão
	ReadTimeout     time.Duration // renovado a cada frame ou pong recebido
	PingInterval    time.Duration // ping de controle do servidor
	InboundRate     float64       // mensagens/s processadas; o excesso é descartado
	InboundBurst    int
	CheckOrigin     func(r *http.Request) bool
}

// Handler atende /ws: registra o cliente, manda o catch-up e responde pings até a conexão cair
type Handler struct {
	Registry *Registry
	Store    store.Reader
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time

	cfg      HandlerConfig
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
}

func NewHandler(reg *Registry, st store.Reader, cfg HandlerConfig, log *zap.Logger, m *metrics.Metrics) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 2 * time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.InboundRate <= 0 {
		cfg.InboundRate = 5
	}
	if cfg.InboundBurst <= 0 {
		cfg.InboundBurst = 10
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	return &Handler{
		Registry: reg,
		Store:    st,
		Log:      log,
		Metrics:  m,
		Now:      time.Now,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ServeHTTP faz o upgrade e roda o ciclo de vida da conexão na própria goroutine do request
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.wg.Add(1)
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	h.Handle(NewClient(conn, r.RemoteAddr, h.cfg.WriteWait))
}

// Handle: Open -> catch-up -> loop de leitura -> Closed.
// A remoção do registry roda em qualquer caminho de saída
func (h *Handler) Handle(c *Client) {
	h.Registry.Add(c)
	h.Log.Info("ws client connected", zap.String("client_id", c.ID), zap.String("remote_addr", c.RemoteAddr))

	done := make(chan struct{})
	defer func() {
		close(done)
		h.Registry.Remove(c)
		c.Close()
		h.Log.Info("ws client disconnected", zap.String("client_id", c.ID))
	}()

	if err := h.sendCatchUp(c); err != nil {
		h.Log.Warn("catch-up send failed", zap.String("client_id", c.ID), zap.Error(err))
		return
	}

	c.conn.SetReadLimit(h.cfg.MaxMessageBytes)
	h.extendDeadline(c)
	c.conn.SetPongHandler(func(string) error {
		h.extendDeadline(c)
		return nil
	})

	go h.keepAlive(c, done)

	limiter := rate.NewLimiter(rate.Limit(h.cfg.InboundRate), h.cfg.InboundBurst)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			h.logReadError(c, err)
			return
		}
		h.extendDeadline(c)

		if !limiter.Allow() {
			h.Log.Debug("inbound message dropped by rate limit", zap.String("client_id", c.ID))
			continue
		}

		switch ParseInbound(payload) {
		case InboundPing:
			if err := c.Send(pongPayload); err != nil {
				h.Log.Warn("pong send failed", zap.String("client_id", c.ID), zap.Error(err))
				return
			}
		default:
			// mensagem desconhecida ou malformada: ignora sem responder
		}
	}
}

// Wait bloqueia até todos os handlers terminarem ou o ctx expirar
func (h *Handler) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) sendCatchUp(c *Client) error {
	payload, err := EncodePriceUpdate(h.Store, h.Now())
	if err != nil {
		return err
	}
	if err := c.Send(payload); err != nil {
		return err
	}
	if h.Metrics != nil {
		h.Metrics.WSMessagesSent.Inc()
	}
	return nil
}

func (h *Handler) keepAlive(c *Client, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				// o loop de leitura vai falhar em seguida e limpar
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (h *Handler) extendDeadline(c *Client) {
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
}

func (h *Handler) logReadError(c *Client, err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		h.Log.Warn("ws frame too large, closing", zap.String("client_id", c.ID), zap.Int64("limit", h.cfg.MaxMessageBytes))
		return
	}
	h.Log.Debug("ws read ended", zap.String("client_id", c.ID), zap.Error(err))
}
