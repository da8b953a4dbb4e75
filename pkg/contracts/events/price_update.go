package events

import "time"

// Tipos de mensagem trafegados no WebSocket
const (
	TypePriceUpdate = "price_update"
	TypePong        = "pong"
	TypePing        = "ping"
)

// AssetPrice é o último preço conhecido de um ativo.
// LastUpdated nil significa que o ativo ainda não recebeu nenhuma atualização (serializa como null)
type AssetPrice struct {
	Price       float64    `json:"price"`
	LastUpdated *time.Time `json:"last_updated"`
}

// PriceUpdate é publicado no broadcast periódico, no catch-up de novas conexões
// e nos sinks (Redis / Kafka)
type PriceUpdate struct {
	Type      string                `json:"type"` // sempre "price_update"
	Data      map[string]AssetPrice `json:"data"`
	Timestamp time.Time             `json:"timestamp"`
}

// NewPriceUpdate monta a mensagem a partir de um snapshot já copiado
func NewPriceUpdate(snapshot map[string]AssetPrice, at time.Time) PriceUpdate {
	if snapshot == nil {
		snapshot = map[string]AssetPrice{}
	}
	return PriceUpdate{Type: TypePriceUpdate, Data: snapshot, Timestamp: at}
}

// Pong é a resposta ao keepalive do cliente
type Pong struct {
	Type string `json:"type"`
}

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: ping (qualquer outro valor é ignorado)
type ClientMsg struct {
	Type string `json:"type"`
}
