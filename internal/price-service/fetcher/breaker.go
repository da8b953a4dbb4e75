package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings controla quando o circuito abre
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32        // falhas seguidas para abrir
	OpenTimeout         time.Duration // tempo aberto antes de testar de novo (half-open)
}

// DefaultBreakerSettings: 5 falhas seguidas, 30s aberto
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{Name: "price-source", ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// Breaker envolve outro Fetcher com circuit breaker.
// Com o circuito aberto a chamada falha na hora com ErrUnavailable, sem bater na fonte
type Breaker struct {
	next Fetcher
	cb   *gobreaker.CircuitBreaker
}

var _ Fetcher = (*Breaker)(nil)

func NewBreaker(next Fetcher, s BreakerSettings, log *zap.Logger) *Breaker {
	if log == nil {
		log = zap.NewNop()
	}
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("price source circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// cancelamento no shutdown não conta como falha da fonte
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Fetch(ctx context.Context, symbols []string, timeout time.Duration) (map[string]float64, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Fetch(ctx, symbols, timeout)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, err
	}
	return res.(map[string]float64), nil
}

// State expõe o estado atual do circuito (usado no /healthz e em testes)
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
