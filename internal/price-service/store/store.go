package store

import (
	"sort"
	"sync"
	"time"

	"github.com/radieske/crypto-price-stream/pkg/contracts/events"
)

// Reader é a visão somente-leitura do store usada pelo broadcast, pelo catch-up e pela API REST
type Reader interface {
	Snapshot() map[string]events.AssetPrice
}

// Store guarda o último preço conhecido de cada ativo rastreado.
// O conjunto de chaves é fixado em New; só os valores mudam
type Store struct {
	mu     sync.RWMutex
	prices map[string]events.AssetPrice
}

var _ Reader = (*Store)(nil)

// New cria o store com todos os símbolos zerados e sem timestamp
func New(symbols []string) *Store {
	prices := make(map[string]events.AssetPrice, len(symbols))
	for _, s := range symbols {
		prices[s] = events.AssetPrice{}
	}
	return &Store{prices: prices}
}

// Snapshot retorna uma cópia consistente: nunca expõe metade de um Apply
func (s *Store) Snapshot() map[string]events.AssetPrice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]events.AssetPrice, len(s.prices))
	for sym, p := range s.prices {
		if p.LastUpdated != nil {
			ts := *p.LastUpdated
			p.LastUpdated = &ts
		}
		out[sym] = p
	}
	return out
}

// Apply grava todos os preços recebidos com o mesmo timestamp em uma única seção crítica.
// Símbolos fora do conjunto rastreado são ignorados; ausentes mantêm o valor anterior
func (s *Store) Apply(updates map[string]float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sym, price := range updates {
		if _, tracked := s.prices[sym]; !tracked {
			continue
		}
		ts := at
		s.prices[sym] = events.AssetPrice{Price: price, LastUpdated: &ts}
	}
}

// Symbols retorna os símbolos rastreados em ordem alfabética
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.prices))
	for sym := range s.prices {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
