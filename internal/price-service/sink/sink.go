package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/crypto-price-stream/internal/price-service/metrics"
	"github.com/radieske/crypto-price-stream/pkg/contracts/events"
)

// Sink espelha cada atualização publicada para consumidores externos.
// Só escrita: o serviço nunca lê de volta desses destinos
type Sink interface {
	Name() string
	Publish(ctx context.Context, update events.PriceUpdate) error
	Close() error
}

// Fanout publica em todos os sinks, cada um com seu próprio timeout.
// Erro em um sink não impede os demais
type Fanout struct {
	Sinks   []Sink
	Timeout time.Duration
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

func NewFanout(log *zap.Logger, m *metrics.Metrics, timeout time.Duration, sinks ...Sink) *Fanout {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Fanout{Sinks: sinks, Timeout: timeout, Log: log, Metrics: m}
}

// Publish retorna a junção dos erros (errors.Join); nil se todos publicaram
func (f *Fanout) Publish(ctx context.Context, update events.PriceUpdate) error {
	var errs []error
	for _, s := range f.Sinks {
		sctx, cancel := context.WithTimeout(ctx, f.Timeout)
		err := s.Publish(sctx, update)
		cancel()
		if err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		if f.Metrics != nil {
			f.Metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
		}
		f.Log.Warn("sink publish failed", zap.String("sink", s.Name()), zap.Error(err))
	}
	return errors.Join(errs...)
}

// Hook adapta o fanout para o callback do refresh loop (erros já foram logados)
func (f *Fanout) Hook(ctx context.Context, update events.PriceUpdate) {
	_ = f.Publish(ctx, update)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.Sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Len() int { return len(f.Sinks) }
