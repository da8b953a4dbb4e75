package ws

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry mantém o conjunto de clientes conectados.
// Só contém conexões consideradas vivas: sai na primeira falha de envio ou no fechamento
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	gauge   prometheus.Gauge // pode ser nil
}

func NewRegistry(gauge prometheus.Gauge) *Registry {
	return &Registry{
		clients: make(map[*Client]struct{}),
		gauge:   gauge,
	}
}

// Add registra o cliente; adicionar de novo o mesmo ponteiro não altera nada
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; ok {
		return
	}
	r.clients[c] = struct{}{}
	if r.gauge != nil {
		r.gauge.Inc()
	}
}

// Remove é idempotente e retorna true só para quem de fato removeu.
// Broadcaster e handler podem detectar a mesma queda ao mesmo tempo
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		return false
	}
	delete(r.clients, c)
	if r.gauge != nil {
		r.gauge.Dec()
	}
	return true
}

// Snapshot copia os clientes atuais para iterar fora do lock
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll remove e fecha todos os clientes (shutdown)
func (r *Registry) CloseAll() int {
	clients := r.Snapshot()
	n := 0
	for _, c := range clients {
		if r.Remove(c) {
			n++
		}
		c.Close()
	}
	return n
}
