package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/crypto-price-stream/internal/price-service/fetcher"
	"github.com/radieske/crypto-price-stream/internal/price-service/metrics"
	"github.com/radieske/crypto-price-stream/internal/price-service/refresh"
	"github.com/radieske/crypto-price-stream/internal/price-service/server"
	"github.com/radieske/crypto-price-stream/internal/price-service/sink"
	"github.com/radieske/crypto-price-stream/internal/shared/cache"
	"github.com/radieske/crypto-price-stream/internal/shared/config"
	"github.com/radieske/crypto-price-stream/internal/shared/kafka"
	"github.com/radieske/crypto-price-stream/internal/shared/logger"
	sharedmetrics "github.com/radieske/crypto-price-stream/internal/shared/metrics"
)

func main() {
	// carrega config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting service",
		zap.Strings("assets", cfg.Symbols()),
		zap.String("price_source", cfg.PriceSourceURL),
		zap.Duration("refresh_interval", cfg.RefreshInterval),
	)

	m := metrics.New(prometheus.DefaultRegisterer)

	// fonte de preços com circuit breaker
	source := fetcher.NewCoinGecko(cfg.PriceSourceURL, cfg.QuoteCurrency, cfg.SourceIDs())
	breaker := fetcher.NewBreaker(source, fetcher.DefaultBreakerSettings(), log)

	// sinks opcionais: Redis (snapshot + pub/sub) e Kafka
	var sinks []sink.Sink
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis unavailable, sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, sink.NewRedisSink(redisClient, cfg.RedisPubSubChannel, cfg.RedisSnapshotTTL))
			log.Info("redis sink enabled", zap.String("addr", cfg.RedisAddr), zap.String("channel", cfg.RedisPubSubChannel))
		}
	}
	if brokers := kafka.Brokers(cfg.KafkaBrokers); len(brokers) > 0 {
		if cfg.Env == "local" || cfg.Env == "dev" {
			tctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			created, err := kafka.EnsureTopic(tctx, brokers[0], cfg.TopicPriceUpdates)
			cancel()
			if err != nil {
				log.Warn("failed to create kafka topic", zap.String("topic", cfg.TopicPriceUpdates), zap.Error(err))
			} else if created {
				log.Info("kafka topic created", zap.String("topic", cfg.TopicPriceUpdates))
			}
		}
		sinks = append(sinks, sink.NewKafkaSink(kafka.NewWriter(brokers, cfg.TopicPriceUpdates)))
		log.Info("kafka sink enabled", zap.String("topic", cfg.TopicPriceUpdates))
	}

	var hook refresh.AfterBroadcastFunc
	fanout := sink.NewFanout(log, m, 2*time.Second, sinks...)
	if fanout.Len() > 0 {
		hook = fanout.Hook
	}
	defer func() {
		if err := fanout.Close(); err != nil {
			log.Warn("sink close failed", zap.Error(err))
		}
	}()

	// sobe servidor de métricas e health
	metricsSrv := sharedmetrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	})
	defer metricsSrv.Close()
	log.Info("metrics/health server starting", zap.String("addr", metricsSrv.Addr))

	srv := server.New(cfg, log, m, breaker, hook)
	ln, err := srv.Listen()
	if err != nil {
		log.Fatal("failed to bind", zap.Error(err))
	}

	if err := srv.Serve(ctx, ln); err != nil {
		log.Error("server error", zap.Error(err))
	}
}
