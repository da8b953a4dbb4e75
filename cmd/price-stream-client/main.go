package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	priceclient "github.com/radieske/crypto-price-stream/internal/price-client"
	"github.com/radieske/crypto-price-stream/internal/shared/cache"
	"github.com/radieske/crypto-price-stream/internal/shared/config"
	"github.com/radieske/crypto-price-stream/internal/shared/kafka"
	"github.com/radieske/crypto-price-stream/internal/shared/logger"
	sharedmetrics "github.com/radieske/crypto-price-stream/internal/shared/metrics"
	"github.com/radieske/crypto-price-stream/pkg/contracts/events"
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

	metricsSrv := sharedmetrics.StartMetricsServer(cfg.MetricsPort, nil)
	defer metricsSrv.Close()

	m := priceclient.NewMetrics(prometheus.DefaultRegisterer)
	onUpdate := func(u events.PriceUpdate) {
		symbols := make([]string, 0, len(u.Data))
		for sym := range u.Data {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)

		fields := []zap.Field{zap.String("source", cfg.ClientSource), zap.Time("timestamp", u.Timestamp)}
		for _, sym := range symbols {
			fields = append(fields, zap.Float64(sym, u.Data[sym].Price))
		}
		log.Info("price update", fields...)
	}

	// no modo ws o próprio client conta as atualizações
	counted := func(u events.PriceUpdate) {
		m.Updates.Inc()
		onUpdate(u)
	}

	var run func(context.Context) error
	switch cfg.ClientSource {
	case "redis":
		rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		sub := &priceclient.RedisSubscriber{Client: rdb, Channel: cfg.RedisPubSubChannel, Log: log, OnUpdate: counted}
		run = sub.Run

	case "kafka":
		brokers := kafka.Brokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			log.Fatal("kafka brokers not provided")
		}
		reader := kafka.NewReader(brokers, cfg.TopicPriceUpdates, cfg.KafkaGroupID)
		defer reader.Close()
		consumer := &priceclient.KafkaConsumer{Reader: reader, Log: log, OnUpdate: counted}
		run = consumer.Run

	default:
		c := &priceclient.Client{
			URL:          cfg.PriceStreamURL,
			Log:          log,
			PingInterval: cfg.ClientPingInterval,
			Backoff:      priceclient.DefaultBackoff(),
			Metrics:      m,
			OnUpdate:     onUpdate,
		}
		run = c.Run
	}

	log.Info("price stream client starting",
		zap.String("source", cfg.ClientSource),
		zap.String("url", cfg.PriceStreamURL),
	)
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("price stream client stopped", zap.Error(err))
		os.Exit(1)
	}
}
