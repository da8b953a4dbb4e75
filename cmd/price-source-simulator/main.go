package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/crypto-price-stream/internal/price-source-simulator/market"
	"github.com/radieske/crypto-price-stream/internal/shared/config"
	"github.com/radieske/crypto-price-stream/internal/shared/logger"
	sharedmetrics "github.com/radieske/crypto-price-stream/internal/shared/metrics"
)

const (
	stepInterval = 2 * time.Second
	volatility   = 0.01 // até 1% por passo
	failureRate  = 0.05 // 5% de respostas 503
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ids := make([]string, 0, len(cfg.TrackedAssets))
	for _, a := range cfg.TrackedAssets {
		ids = append(ids, a.SourceID)
	}
	mkt := market.New(ids, time.Now().UnixNano(), volatility)

	// Move os preços a cada stepInterval
	go func() {
		ticker := time.NewTicker(stepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mkt.Step()
			}
		}
	}()

	api := &market.API{
		Market:      mkt,
		Log:         log,
		FailureRate: failureRate,
		Requests:    market.NewRequestsCounter(prometheus.DefaultRegisterer),
	}

	// ==== MÉTRICAS (/healthz, /metrics)
	metricsSrv := sharedmetrics.StartMetricsServer(cfg.MetricsPort, nil)
	defer metricsSrv.Close()
	log.Info("price source simulator (metrics) running", zap.String("addr", metricsSrv.Addr), zap.String("paths", "/healthz,/metrics"))

	// ==== PÚBLICO: /api/v3/simple/price
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Host, cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("price source simulator (public) running",
		zap.String("addr", srv.Addr),
		zap.Strings("ids", ids),
		zap.String("paths", "/api/v3/simple/price,/api/v3/ping"),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("public server error", zap.Error(err))
	}
}
