package ws

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/crypto-price-stream/internal/price-service/metrics"
	"github.com/radieske/crypto-price-stream/internal/price-service/store"
)

// Broadcaster envia o snapshot do store para todos os clientes do registry
type Broadcaster struct {
	Registry *Registry
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func NewBroadcaster(reg *Registry, log *zap.Logger, m *metrics.Metrics) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{Registry: reg, Log: log, Metrics: m, Now: time.Now}
}

// Broadcast serializa uma vez e envia em paralelo, um goroutine por cliente.
// Falha em um cliente não afeta os outros; quem falhou sai do registry e é fechado.
// Retorna quantos envios deram certo
func (b *Broadcaster) Broadcast(src store.Reader) int {
	clients := b.Registry.Snapshot()
	if len(clients) == 0 {
		return 0
	}

	payload, err := EncodePriceUpdate(src, b.now())
	if err != nil {
		b.Log.Error("encode price update failed", zap.Error(err))
		return 0
	}

	errs := make([]error, len(clients))
	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c *Client) {
			defer wg.Done()
			errs[i] = c.Send(payload)
		}(i, c)
	}
	wg.Wait()

	delivered := 0
	for i, c := range clients {
		if errs[i] == nil {
			delivered++
			continue
		}
		if b.Registry.Remove(c) {
			b.Log.Warn("ws send failed, dropping client",
				zap.String("client_id", c.ID),
				zap.String("remote_addr", c.RemoteAddr),
				zap.Error(errs[i]),
			)
			if b.Metrics != nil {
				b.Metrics.WSSendFailures.Inc()
			}
		}
		c.Close()
	}

	if b.Metrics != nil {
		b.Metrics.WSMessagesSent.Add(float64(delivered))
	}
	b.Log.Debug("price update broadcast", zap.Int("clients", len(clients)), zap.Int("delivered", delivered))
	return delivered
}

func (b *Broadcaster) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
