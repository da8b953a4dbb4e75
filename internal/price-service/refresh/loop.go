package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/radieske/crypto-price-stream/internal/price-service/fetcher"
	"github.com/radieske/crypto-price-stream/internal/price-service/metrics"
	"github.com/radieske/crypto-price-stream/internal/price-service/store"
	"github.com/radieske/crypto-price-stream/pkg/contracts/events"
)

// Broadcaster é o que o loop precisa do fan-out WebSocket
type Broadcaster interface {
	Broadcast(src store.Reader) int
}

// AfterBroadcastFunc recebe o snapshot recém publicado (ex: espelhar em Redis / Kafka)
type AfterBroadcastFunc func(ctx context.Context, update events.PriceUpdate)

// Loop busca preços a cada Interval, atualiza o store e faz o broadcast.
// Falha no fetch mantém os valores antigos e não gera broadcast
type Loop struct {
	Log          *zap.Logger
	Fetcher      fetcher.Fetcher
	Store        *store.Store
	Broadcaster  Broadcaster
	Symbols      []string
	Interval     time.Duration
	FetchTimeout time.Duration
	Clock        clockwork.Clock
	Metrics      *metrics.Metrics

	OnAfterBroadcast AfterBroadcastFunc // opcional
}

// Run executa até o ctx ser cancelado; retorna sempre ctx.Err()
func (l *Loop) Run(ctx context.Context) error {
	clock := l.clock()
	l.log().Info("refresh loop started",
		zap.Strings("symbols", l.Symbols),
		zap.Duration("interval", l.Interval),
		zap.Duration("fetch_timeout", l.FetchTimeout),
	)

	for {
		if err := ctx.Err(); err != nil {
			l.log().Info("refresh loop stopped")
			return err
		}

		l.Cycle(ctx)

		select {
		case <-ctx.Done():
			l.log().Info("refresh loop stopped")
			return ctx.Err()
		case <-clock.After(l.Interval):
		}
	}
}

// Cycle roda um único fetch -> apply -> broadcast; retorna se o store foi atualizado
func (l *Loop) Cycle(ctx context.Context) bool {
	clock := l.clock()
	start := clock.Now()
	defer func() {
		if l.Metrics != nil {
			l.Metrics.RefreshDuration.Observe(clock.Since(start).Seconds())
		}
	}()

	prices, err := l.Fetcher.Fetch(ctx, l.Symbols, l.FetchTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		result := metrics.FetchUnavailable
		if errors.Is(err, fetcher.ErrTimeout) {
			result = metrics.FetchTimeout
		}
		l.observe(result)
		l.log().Warn("price fetch failed, keeping cached prices", zap.String("result", result), zap.Error(err))
		return false
	}
	l.observe(metrics.FetchOK)

	at := clock.Now().UTC()
	l.Store.Apply(prices, at)
	delivered := l.Broadcaster.Broadcast(l.Store)

	l.log().Debug("prices refreshed", zap.Int("assets", len(prices)), zap.Int("delivered", delivered))

	if l.OnAfterBroadcast != nil {
		l.OnAfterBroadcast(ctx, events.NewPriceUpdate(l.Store.Snapshot(), at))
	}
	return true
}

func (l *Loop) observe(result string) {
	if l.Metrics != nil {
		l.Metrics.FetchResults.WithLabelValues(result).Inc()
	}
}

func (l *Loop) clock() clockwork.Clock {
	if l.Clock == nil {
		return clockwork.NewRealClock()
	}
	return l.Clock
}

func (l *Loop) log() *zap.Logger {
	if l.Log == nil {
		return zap.NewNop()
	}
	return l.Log
}
