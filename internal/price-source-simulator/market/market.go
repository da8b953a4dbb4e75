package market

import (
	"math/rand"
	"sync"
)

// Preço inicial dos ativos conhecidos; outros começam em 100
var seedPrices = map[string]float64{
	"bitcoin":  50000,
	"ethereum": 3000,
	"solana":   150,
	"cardano":  0.45,
	"dogecoin": 0.12,
}

// Cotação relativa ao dólar das moedas aceitas em vs_currencies
var currencyRates = map[string]float64{
	"usd": 1,
	"eur": 0.92,
	"brl": 5.1,
}

// Market mantém um passeio aleatório de preços por id de ativo
type Market struct {
	mu         sync.Mutex
	prices     map[string]float64
	rnd        *rand.Rand
	volatility float64 // variação máxima por passo (0.01 = 1%)
}

func New(ids []string, seed int64, volatility float64) *Market {
	prices := make(map[string]float64, len(ids))
	for _, id := range ids {
		p, ok := seedPrices[id]
		if !ok {
			p = 100
		}
		prices[id] = p
	}
	return &Market{prices: prices, rnd: rand.New(rand.NewSource(seed)), volatility: volatility}
}

// Step move cada preço em até ±volatility, nunca abaixo de zero
func (m *Market) Step() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.prices {
		delta := (m.rnd.Float64()*2 - 1) * m.volatility
		next := p * (1 + delta)
		if next < 0 {
			next = 0
		}
		m.prices[id] = next
	}
}

// Quote retorna {id: {moeda: preço}} só para ids e moedas conhecidos, como a API real
func (m *Market) Quote(ids, currencies []string) map[string]map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]map[string]float64)
	for _, id := range ids {
		usd, ok := m.prices[id]
		if !ok {
			continue
		}
		quotes := make(map[string]float64)
		for _, cur := range currencies {
			if rate, ok := currencyRates[cur]; ok {
				quotes[cur] = usd * rate
			}
		}
		out[id] = quotes
	}
	return out
}

// Fail sorteia se a próxima resposta deve simular falha da fonte
func (m *Market) Fail(rate float64) bool {
	if rate <= 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rnd.Float64() < rate
}
