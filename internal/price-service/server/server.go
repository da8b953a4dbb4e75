package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/radieske/crypto-price-stream/internal/price-service/fetcher"
	httpapi "github.com/radieske/crypto-price-stream/internal/price-service/http"
	"github.com/radieske/crypto-price-stream/internal/price-service/metrics"
	"github.com/radieske/crypto-price-stream/internal/price-service/refresh"
	"github.com/radieske/crypto-price-stream/internal/price-service/store"
	"github.com/radieske/crypto-price-stream/internal/price-service/ws"
	"github.com/radieske/crypto-price-stream/internal/shared/config"
)

// Server compõe o acceptor HTTP/WebSocket e o refresh loop.
// Store e Registry pertencem ao Server e são passados explicitamente a cada componente
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	Log             *zap.Logger

	Store    *store.Store
	Registry *ws.Registry
	Handler  *ws.Handler
	Loop     *refresh.Loop
	Router   http.Handler
}

// New monta o grafo de dependências a partir da config.
// afterBroadcast é opcional (sinks)
func New(cfg config.Config, log *zap.Logger, m *metrics.Metrics, f fetcher.Fetcher, afterBroadcast refresh.AfterBroadcastFunc) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	symbols := cfg.Symbols()
	st := store.New(symbols)
	reg := ws.NewRegistry(m.WSConnections)
	broadcaster := ws.NewBroadcaster(reg, log, m)

	handler := ws.NewHandler(reg, st, ws.HandlerConfig{
		WriteWait:       cfg.WSWriteWait,
		MaxMessageBytes: cfg.WSMaxMessageBytes,
		InboundRate:     cfg.WSInboundRate,
		InboundBurst:    cfg.WSInboundBurst,
	}, log, m)

	loop := &refresh.Loop{
		Log:              log,
		Fetcher:          f,
		Store:            st,
		Broadcaster:      broadcaster,
		Symbols:          symbols,
		Interval:         cfg.RefreshInterval,
		FetchTimeout:     cfg.FetchTimeout,
		Clock:            clockwork.NewRealClock(),
		Metrics:          m,
		OnAfterBroadcast: afterBroadcast,
	}

	api := &httpapi.API{Store: st, Symbols: symbols, WS: handler}

	return &Server{
		Addr:            net.JoinHostPort(cfg.Host, cfg.HTTPPort),
		ShutdownTimeout: cfg.ShutdownTimeout,
		Log:             log,
		Store:           st,
		Registry:        reg,
		Handler:         handler,
		Loop:            loop,
		Router:          api.Router(),
	}
}

// Listen faz o bind; é a única falha fatal de startup
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.Addr, err)
	}
	return ln, nil
}

// Serve roda o refresh loop e o acceptor até o ctx ser cancelado.
// Shutdown: para o loop (esperando o ciclo em andamento), para de aceitar conexões,
// fecha todos os clientes com close frame e espera os handlers (best-effort, ShutdownTimeout)
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = s.Loop.Run(loopCtx)
	}()

	httpSrv := &http.Server{
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.Log.Info("price service listening", zap.String("addr", ln.Addr().String()), zap.String("paths", "/,/ws,/v1/prices,/v1/assets"))
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.Log.Info("shutdown requested")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http serve: %w", err)
			s.Log.Error("http server stopped unexpectedly", zap.Error(err))
		}
	}

	cancelLoop()
	<-loopDone

	timeout := s.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		s.Log.Warn("http shutdown incomplete", zap.Error(err))
	}

	closed := s.Registry.CloseAll()
	if err := s.Handler.Wait(shutdownCtx); err != nil {
		s.Log.Warn("ws handlers still running after shutdown timeout", zap.Error(err))
	}
	s.Log.Info("price service stopped", zap.Int("ws_clients_closed", closed))

	return runErr
}
